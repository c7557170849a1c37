package mongo

import (
	"context"
	"errors"

	clientsmongo "goa.design/agentwire/features/session/mongo/clients/mongo"
	"goa.design/agentwire/session"
)

// Store implements session.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Load retrieves a thread from storage.
func (s *Store) Load(ctx context.Context, threadID string) (session.Thread, error) {
	return s.client.LoadThread(ctx, threadID)
}

// Save inserts or updates a thread.
func (s *Store) Save(ctx context.Context, thread session.Thread) error {
	return s.client.SaveThread(ctx, thread)
}

// Delete evicts a thread. Threads with pending tool calls are protected; the
// client returns session.ErrPendingToolCalls without deleting.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	return s.client.DeleteThread(ctx, threadID)
}
