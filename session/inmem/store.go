// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/session/redis or
// features/session/mongo).
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/agentwire/session"
)

// Store is an in-memory implementation of session.Store. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	threads map[string]session.Thread
}

// New returns an empty Store.
func New() *Store {
	return &Store{threads: make(map[string]session.Thread)}
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, threadID string) (session.Thread, error) {
	if threadID == "" {
		return session.Thread{}, errors.New("thread id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return session.Thread{}, session.ErrThreadNotFound
	}
	return t.Clone(), nil
}

// Save implements session.Store.
func (s *Store) Save(_ context.Context, thread session.Thread) error {
	if thread.ThreadID == "" {
		return errors.New("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := thread.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}
	s.threads[thread.ThreadID] = stored
	return nil
}

// Delete implements session.Store. Threads with outstanding tool calls are
// protected from eviction.
func (s *Store) Delete(_ context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return session.ErrThreadNotFound
	}
	if t.HasPendingToolCalls() {
		return session.ErrPendingToolCalls
	}
	delete(s.threads, threadID)
	return nil
}
