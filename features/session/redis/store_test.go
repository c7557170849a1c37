package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"goa.design/agentwire/protocol"
	"goa.design/agentwire/session"
)

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.EqualError(t, err, "redis client is required")

	_, err = New(Options{Client: goredis.NewClient(&goredis.Options{}), TTL: -time.Second})
	require.Error(t, err)
}

func TestKeyUsesPrefix(t *testing.T) {
	store, err := New(Options{Client: goredis.NewClient(&goredis.Options{})})
	require.NoError(t, err)
	require.Equal(t, "agentwire:thread:t1", store.key("t1"))

	store, err = New(Options{Client: goredis.NewClient(&goredis.Options{}), KeyPrefix: "custom:"})
	require.NoError(t, err)
	require.Equal(t, "custom:t1", store.key("t1"))
}

func TestEncodeDecodeThread(t *testing.T) {
	thread := session.NewThread("thread-1")
	thread.Messages = []protocol.Message{
		{ID: "m1", Role: protocol.RoleUser, Content: "hello"},
		{ID: "m2", Role: protocol.RoleActivity, ActivityType: "plan", Content: map[string]any{"steps": []any{"a"}}},
	}
	thread.State = map[string]any{"count": float64(3)}
	thread.MarkProcessed("m1")
	thread.OpenToolCall("call-1")
	thread.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	raw, err := encodeThread(thread)
	require.NoError(t, err)
	back, err := decodeThread(raw)
	require.NoError(t, err)
	require.Equal(t, thread.Messages, back.Messages)
	require.Equal(t, thread.State, back.State)
	require.Equal(t, []string{"m1"}, back.ProcessedIDs())
	require.Equal(t, []string{"call-1"}, back.PendingToolCallIDs())
	require.True(t, back.UpdatedAt.Equal(thread.UpdatedAt))
}

func TestDecodeThreadRejectsGarbage(t *testing.T) {
	_, err := decodeThread([]byte("not json"))
	require.Error(t, err)
}

// TestStoreIntegration exercises the store against a live Redis when
// AGENTWIRE_REDIS_URL is set (e.g. redis://localhost:6379/0).
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("AGENTWIRE_REDIS_URL")
	if url == "" {
		t.Skip("AGENTWIRE_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(Options{Client: client, KeyPrefix: "agentwire-test:thread:", TTL: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	thread := session.NewThread("it-thread")
	thread.Messages = []protocol.Message{{ID: "m1", Role: protocol.RoleUser, Content: "hi"}}
	thread.OpenToolCall("call-1")
	require.NoError(t, store.Save(ctx, thread))

	loaded, err := store.Load(ctx, "it-thread")
	require.NoError(t, err)
	require.Equal(t, thread.Messages, loaded.Messages)

	require.ErrorIs(t, store.Delete(ctx, "it-thread"), session.ErrPendingToolCalls)

	loaded.ResolveToolCall("call-1")
	require.NoError(t, store.Save(ctx, loaded))
	require.NoError(t, store.Delete(ctx, "it-thread"))
	_, err = store.Load(ctx, "it-thread")
	require.ErrorIs(t, err, session.ErrThreadNotFound)
}
