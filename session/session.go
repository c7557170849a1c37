// Package session tracks per-thread bookkeeping across runs: the persisted
// conversation, the set of message ids already folded into it, and the set of
// tool calls started but not yet resolved.
//
// Processed message ids make re-submission idempotent: a client that retries
// a run with the same input does not duplicate messages. Pending tool call ids
// guard cleanup: a thread with an outstanding human-in-the-loop tool call must
// not be evicted.
//
// Stores are explicit objects passed by reference and torn down on shutdown;
// there is no process-wide registry. The inmem subpackage provides the
// in-memory implementation used by tests and local development; durable
// implementations live under features/session.
package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"goa.design/agentwire/protocol"
)

type (
	// Thread is the persisted state of one conversation identity across runs.
	Thread struct {
		// ThreadID is the durable conversation identifier.
		ThreadID string
		// Messages is the conversation as of the last committed run snapshot.
		Messages []protocol.Message
		// State is the shared JSON state document as of the last committed
		// run snapshot.
		State any
		// Processed holds the ids of messages already folded into Messages.
		Processed map[string]struct{}
		// PendingToolCalls holds the ids of tool calls with a START but no
		// matching RESULT.
		PendingToolCalls map[string]struct{}
		// UpdatedAt records when the thread was last committed.
		UpdatedAt time.Time
	}

	// Store persists threads. Implementations must be safe for concurrent use;
	// callers follow a single-writer discipline per thread id.
	Store interface {
		// Load retrieves a thread. Returns ErrThreadNotFound when the thread
		// does not exist.
		Load(ctx context.Context, threadID string) (Thread, error)
		// Save inserts or updates a thread.
		Save(ctx context.Context, thread Thread) error
		// Delete evicts a thread. Returns ErrPendingToolCalls when the thread
		// has outstanding tool calls; eviction would orphan a
		// human-in-the-loop exchange.
		Delete(ctx context.Context, threadID string) error
	}
)

var (
	// ErrThreadNotFound reports a load or delete of an unknown thread.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrPendingToolCalls reports an eviction blocked by outstanding tool
	// calls.
	ErrPendingToolCalls = errors.New("thread has pending tool calls")
)

// NewThread returns an empty thread for the given id.
func NewThread(threadID string) Thread {
	return Thread{
		ThreadID:         threadID,
		Processed:        make(map[string]struct{}),
		PendingToolCalls: make(map[string]struct{}),
	}
}

// Seen reports whether a message id has already been folded into the thread.
func (t Thread) Seen(messageID string) bool {
	_, ok := t.Processed[messageID]
	return ok
}

// MarkProcessed records message ids as folded into the thread.
func (t *Thread) MarkProcessed(messageIDs ...string) {
	if t.Processed == nil {
		t.Processed = make(map[string]struct{}, len(messageIDs))
	}
	for _, id := range messageIDs {
		t.Processed[id] = struct{}{}
	}
}

// FilterNew returns the messages whose ids the thread has not seen, in input
// order. Resubmitting an already-processed message is a no-op, not a duplicate
// append.
func (t Thread) FilterNew(msgs []protocol.Message) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if !t.Seen(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// OpenToolCall records a tool call start awaiting its result.
func (t *Thread) OpenToolCall(toolCallID string) {
	if t.PendingToolCalls == nil {
		t.PendingToolCalls = make(map[string]struct{})
	}
	t.PendingToolCalls[toolCallID] = struct{}{}
}

// ResolveToolCall clears a tool call once its result arrived. Resolving an
// unknown id is a no-op.
func (t *Thread) ResolveToolCall(toolCallID string) {
	delete(t.PendingToolCalls, toolCallID)
}

// HasPendingToolCalls reports whether any tool call is still awaiting a
// result.
func (t Thread) HasPendingToolCalls() bool { return len(t.PendingToolCalls) > 0 }

// ProcessedIDs returns the processed message ids in sorted order, for stable
// persistence and logging.
func (t Thread) ProcessedIDs() []string { return sortedKeys(t.Processed) }

// PendingToolCallIDs returns the pending tool call ids in sorted order.
func (t Thread) PendingToolCallIDs() []string { return sortedKeys(t.PendingToolCalls) }

// Clone returns a deep copy of the thread.
func (t Thread) Clone() Thread {
	out := t
	out.Messages = make([]protocol.Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = m.Clone()
	}
	out.State = cloneState(t.State)
	out.Processed = make(map[string]struct{}, len(t.Processed))
	for id := range t.Processed {
		out.Processed[id] = struct{}{}
	}
	out.PendingToolCalls = make(map[string]struct{}, len(t.PendingToolCalls))
	for id := range t.PendingToolCalls {
		out.PendingToolCalls[id] = struct{}{}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneState(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = cloneState(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = cloneState(val)
		}
		return out
	default:
		return v
	}
}
