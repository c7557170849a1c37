// Package redis provides a Redis-backed implementation of the session thread
// store. Threads are stored as JSON documents under a configurable key prefix
// so a single Redis instance can serve several deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/agentwire/protocol"
	"goa.design/agentwire/session"
)

const (
	defaultKeyPrefix = "agentwire:thread:"
	storeName        = "session-redis"
)

// Options configures the Redis thread store.
type Options struct {
	// Client is the Redis client (required).
	Client *goredis.Client
	// KeyPrefix namespaces thread keys. Defaults to "agentwire:thread:".
	KeyPrefix string
	// TTL expires idle threads. Zero means no expiry.
	TTL time.Duration
}

// Store implements session.Store on top of Redis.
type Store struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// New returns a Store backed by Redis.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("ttl must be >= 0, got %s", opts.TTL)
	}
	return &Store{rdb: opts.Client, prefix: prefix, ttl: opts.TTL}, nil
}

// Name identifies the store for health reporting.
func (s *Store) Name() string { return storeName }

// Ping verifies connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load retrieves a thread. Returns session.ErrThreadNotFound for unknown ids.
func (s *Store) Load(ctx context.Context, threadID string) (session.Thread, error) {
	if threadID == "" {
		return session.Thread{}, errors.New("thread id is required")
	}
	raw, err := s.rdb.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Thread{}, session.ErrThreadNotFound
	}
	if err != nil {
		return session.Thread{}, err
	}
	return decodeThread(raw)
}

// Save inserts or updates a thread, refreshing its TTL when one is set.
func (s *Store) Save(ctx context.Context, thread session.Thread) error {
	if thread.ThreadID == "" {
		return errors.New("thread id is required")
	}
	raw, err := encodeThread(thread)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(thread.ThreadID), raw, s.ttl).Err()
}

// Delete evicts a thread. Threads with outstanding tool calls are protected.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}
	thread, err := s.Load(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.HasPendingToolCalls() {
		return session.ErrPendingToolCalls
	}
	deleted, err := s.rdb.Del(ctx, s.key(threadID)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return session.ErrThreadNotFound
	}
	return nil
}

func (s *Store) key(threadID string) string {
	return s.prefix + threadID
}

// threadDocument is the persisted JSON shape of a thread.
type threadDocument struct {
	ThreadID         string             `json:"threadId"`
	Messages         []protocol.Message `json:"messages,omitempty"`
	State            json.RawMessage    `json:"state,omitempty"`
	ProcessedIDs     []string           `json:"processedMessageIds,omitempty"`
	PendingToolCalls []string           `json:"pendingToolCallIds,omitempty"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func encodeThread(thread session.Thread) ([]byte, error) {
	doc := threadDocument{
		ThreadID:         thread.ThreadID,
		Messages:         thread.Messages,
		ProcessedIDs:     thread.ProcessedIDs(),
		PendingToolCalls: thread.PendingToolCallIDs(),
		UpdatedAt:        thread.UpdatedAt.UTC(),
	}
	if thread.State != nil {
		raw, err := json.Marshal(thread.State)
		if err != nil {
			return nil, fmt.Errorf("encode state: %w", err)
		}
		doc.State = raw
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode thread: %w", err)
	}
	return out, nil
}

func decodeThread(raw []byte) (session.Thread, error) {
	var doc threadDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return session.Thread{}, fmt.Errorf("decode thread: %w", err)
	}
	thread := session.NewThread(doc.ThreadID)
	thread.Messages = doc.Messages
	thread.UpdatedAt = doc.UpdatedAt
	if len(doc.State) > 0 {
		var state any
		if err := json.Unmarshal(doc.State, &state); err != nil {
			return session.Thread{}, fmt.Errorf("decode state: %w", err)
		}
		thread.State = state
	}
	thread.MarkProcessed(doc.ProcessedIDs...)
	for _, id := range doc.PendingToolCalls {
		thread.OpenToolCall(id)
	}
	return thread, nil
}
