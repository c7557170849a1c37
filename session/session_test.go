package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/agentwire/protocol"
)

func TestFilterNewIsIdempotent(t *testing.T) {
	thread := NewThread("t1")
	msgs := []protocol.Message{
		{ID: "m1", Role: protocol.RoleUser, Content: "a"},
		{ID: "m2", Role: protocol.RoleUser, Content: "b"},
	}

	fresh := thread.FilterNew(msgs)
	require.Len(t, fresh, 2)

	thread.MarkProcessed("m1", "m2")
	require.Empty(t, thread.FilterNew(msgs))

	// A retry mixing seen and unseen ids only surfaces the unseen ones.
	retry := append(msgs, protocol.Message{ID: "m3", Role: protocol.RoleUser, Content: "c"})
	fresh = thread.FilterNew(retry)
	require.Len(t, fresh, 1)
	require.Equal(t, "m3", fresh[0].ID)
}

func TestSeenOnZeroThread(t *testing.T) {
	var thread Thread
	require.False(t, thread.Seen("m1"))
	thread.MarkProcessed("m1")
	require.True(t, thread.Seen("m1"))
}

func TestToolCallBookkeeping(t *testing.T) {
	thread := NewThread("t1")
	require.False(t, thread.HasPendingToolCalls())

	thread.OpenToolCall("c1")
	thread.OpenToolCall("c2")
	require.True(t, thread.HasPendingToolCalls())
	require.Equal(t, []string{"c1", "c2"}, thread.PendingToolCallIDs())

	thread.ResolveToolCall("c1")
	require.Equal(t, []string{"c2"}, thread.PendingToolCallIDs())

	// Resolving an unknown id is a no-op.
	thread.ResolveToolCall("ghost")
	require.True(t, thread.HasPendingToolCalls())

	thread.ResolveToolCall("c2")
	require.False(t, thread.HasPendingToolCalls())
}

func TestProcessedIDsAreSorted(t *testing.T) {
	thread := NewThread("t1")
	thread.MarkProcessed("zz", "aa", "mm")
	require.Equal(t, []string{"aa", "mm", "zz"}, thread.ProcessedIDs())
}

func TestCloneIsDeep(t *testing.T) {
	thread := NewThread("t1")
	thread.Messages = []protocol.Message{{ID: "m1", Role: protocol.RoleUser, Content: "hi"}}
	thread.State = map[string]any{"k": "v"}
	thread.MarkProcessed("m1")
	thread.OpenToolCall("c1")

	clone := thread.Clone()
	clone.Messages[0].Content = "mutated"
	clone.State.(map[string]any)["k"] = "mutated"
	clone.MarkProcessed("m2")
	clone.ResolveToolCall("c1")

	require.Equal(t, "hi", thread.Messages[0].Content)
	require.Equal(t, "v", thread.State.(map[string]any)["k"])
	require.False(t, thread.Seen("m2"))
	require.True(t, thread.HasPendingToolCalls())
}
