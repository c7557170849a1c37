// Package inmem provides an in-memory stand-in for the Mongo thread client,
// used by tests and local tooling.
package inmem

import (
	"context"
	"sync"

	"goa.design/agentwire/session"
)

// Client keeps threads in a map and mirrors the Mongo client's semantics,
// including the pending-tool-call eviction guard.
type Client struct {
	mu      sync.RWMutex
	threads map[string]session.Thread
}

// New returns a Client with no stored threads.
func New() *Client {
	return &Client{threads: make(map[string]session.Thread)}
}

// Name identifies the client for health reporting.
func (c *Client) Name() string { return "session-mongo-inmem" }

// Ping always succeeds.
func (c *Client) Ping(context.Context) error { return nil }

// LoadThread returns a deep copy of the stored thread.
func (c *Client) LoadThread(_ context.Context, threadID string) (session.Thread, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	thread, ok := c.threads[threadID]
	if !ok {
		return session.Thread{}, session.ErrThreadNotFound
	}
	return thread.Clone(), nil
}

// SaveThread stores a deep copy of the thread.
func (c *Client) SaveThread(_ context.Context, thread session.Thread) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[thread.ThreadID] = thread.Clone()
	return nil
}

// DeleteThread evicts a thread unless it has outstanding tool calls.
func (c *Client) DeleteThread(_ context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	thread, ok := c.threads[threadID]
	if !ok {
		return session.ErrThreadNotFound
	}
	if thread.HasPendingToolCalls() {
		return session.ErrPendingToolCalls
	}
	delete(c.threads, threadID)
	return nil
}

// Reset clears all stored threads (useful in tests).
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads = make(map[string]session.Thread)
}
