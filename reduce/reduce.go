// Package reduce folds a canonical event sequence into conversation state. It
// is the receiving half of the wire protocol: given the conversation as it
// stood before a run and the run's ordered events, the Reducer produces the
// sequence of conversation snapshots a client renders.
//
// The Reducer is defined per event for testability: Apply processes exactly one
// canonical event and Snapshot materializes the resulting state. It is a pure
// fold: replaying the same event sequence against the same prior state always
// yields the same snapshots. Chunk shorthand events are not part of the
// canonical grammar and must be expanded by the chunks package before they
// reach Apply.
//
// A Reducer owns its working copy of the conversation for the duration of a
// run and is not safe for concurrent use. Distinct runs, including sequential
// runs of the same thread, each use a fresh Reducer seeded from the persisted
// conversation.
package reduce

import (
	"errors"
	"fmt"

	"goa.design/agentwire/patch"
	"goa.design/agentwire/protocol"
)

type (
	// Snapshot is the materialized conversation state after an applied event.
	// Slices and state trees are deep copies; callers own the result.
	Snapshot struct {
		// ThreadID and RunID identify the run that produced the snapshot.
		ThreadID string
		RunID    string
		// Messages is the conversation message list, activity entries included.
		Messages []protocol.Message
		// State is the shared JSON state document.
		State any
		// Steps is the stack of currently open step names, outermost first.
		Steps []string
		// Thinking is the text accumulated during the current thinking phase,
		// empty outside thinking phases. It is display scratch, not dialogue.
		Thinking string
		// ThinkingActive reports whether a thinking phase is open, letting
		// clients render an in-progress indicator before any text arrives.
		ThinkingActive bool
		// Terminal reports whether the run has ended.
		Terminal bool
		// Result carries the run-level result payload on successful
		// termination.
		Result any
		// Error holds the terminal error signal when the run failed.
		Error *RunError
	}

	// RunError is the single user-visible failure signal of a run.
	RunError struct {
		Message string
		Code    string
	}

	// Reducer folds canonical events into conversation state for one run.
	Reducer struct {
		threadID string
		runID    string
		messages []protocol.Message
		state    any

		texts     map[string]*textBuffer
		textOrder []string
		tools     map[string]*toolBuffer
		toolOrder []string

		steps        []string
		thinking     []byte
		thinkingOpen bool

		terminal bool
		result   any
		runErr   *RunError
	}

	// textBuffer accumulates a streaming text message between its START and
	// END events.
	textBuffer struct {
		role protocol.Role
		text []byte
	}

	// toolBuffer accumulates a streaming tool call between its START and END
	// events.
	toolBuffer struct {
		name     string
		parentID string
		args     []byte
	}
)

var (
	// ErrPatchFailed reports a STATE_DELTA whose patch could not be applied.
	// The failure is fatal for the run; the state before the failing delta is
	// preserved.
	ErrPatchFailed = errors.New("state delta patch failed")

	// ErrNoOpenStream reports a CONTENT/ARGS/END event with no matching START.
	ErrNoOpenStream = errors.New("no open streaming buffer for event")

	// ErrChunkEvent reports a shorthand chunk event that reached the reducer
	// without normalization.
	ErrChunkEvent = errors.New("chunk event must be normalized before reduction")
)

// New returns a Reducer seeded with the prior conversation. The provided
// messages and state are copied; the caller's values are never mutated.
func New(messages []protocol.Message, state any) *Reducer {
	r := &Reducer{
		state: cloneState(state),
		texts: make(map[string]*textBuffer),
		tools: make(map[string]*toolBuffer),
	}
	r.messages = make([]protocol.Message, len(messages))
	for i, m := range messages {
		r.messages[i] = m.Clone()
	}
	return r
}

// Apply folds one canonical event into the working state. Errors are fatal for
// the run: the state reflects every event before the failing one and the
// failing event has had no partial effect.
func (r *Reducer) Apply(evt protocol.Event) error {
	if r.terminal {
		// Streams end at the terminal event; anything after it is ignored.
		return nil
	}
	switch e := evt.(type) {
	case *protocol.RunStartedEvent:
		r.threadID = e.ThreadID
		r.runID = e.RunID
		r.resetRunScope()
	case *protocol.RunFinishedEvent:
		r.closeAllBuffers()
		r.terminal = true
		r.result = e.Result
	case *protocol.RunErrorEvent:
		r.closeAllBuffers()
		r.terminal = true
		r.runErr = &RunError{Message: e.Message, Code: e.Code}
	case *protocol.StepStartedEvent:
		r.steps = append(r.steps, e.StepName)
	case *protocol.StepFinishedEvent:
		r.popStep(e.StepName)

	case *protocol.TextMessageStartEvent:
		if _, open := r.texts[e.MessageID]; open {
			// Protocol violation: force-close the stale buffer first.
			r.closeText(e.MessageID)
		}
		role := e.Role
		if role == "" {
			role = protocol.RoleAssistant
		}
		r.texts[e.MessageID] = &textBuffer{role: role}
		r.textOrder = append(r.textOrder, e.MessageID)
	case *protocol.TextMessageContentEvent:
		buf, open := r.texts[e.MessageID]
		if !open {
			return fmt.Errorf("text message content %q: %w", e.MessageID, ErrNoOpenStream)
		}
		buf.text = append(buf.text, e.Delta...)
	case *protocol.TextMessageEndEvent:
		if _, open := r.texts[e.MessageID]; !open {
			return fmt.Errorf("text message end %q: %w", e.MessageID, ErrNoOpenStream)
		}
		r.closeText(e.MessageID)

	case *protocol.ToolCallStartEvent:
		if _, open := r.tools[e.ToolCallID]; open {
			r.closeTool(e.ToolCallID)
		}
		r.tools[e.ToolCallID] = &toolBuffer{name: e.ToolCallName, parentID: e.ParentMessageID}
		r.toolOrder = append(r.toolOrder, e.ToolCallID)
	case *protocol.ToolCallArgsEvent:
		buf, open := r.tools[e.ToolCallID]
		if !open {
			return fmt.Errorf("tool call args %q: %w", e.ToolCallID, ErrNoOpenStream)
		}
		buf.args = append(buf.args, e.Delta...)
	case *protocol.ToolCallEndEvent:
		if _, open := r.tools[e.ToolCallID]; !open {
			return fmt.Errorf("tool call end %q: %w", e.ToolCallID, ErrNoOpenStream)
		}
		r.closeTool(e.ToolCallID)
	case *protocol.ToolCallResultEvent:
		role := e.Role
		if role == "" {
			role = protocol.RoleTool
		}
		r.messages = append(r.messages, protocol.Message{
			ID:         e.MessageID,
			Role:       role,
			Content:    e.Content,
			ToolCallID: e.ToolCallID,
		})

	case *protocol.ThinkingStartEvent:
		r.thinkingOpen = true
		r.thinking = nil
	case *protocol.ThinkingEndEvent:
		r.thinkingOpen = false
		r.thinking = nil
	case *protocol.ThinkingTextMessageStartEvent, *protocol.ThinkingTextMessageEndEvent:
		// Block boundaries inside a thinking phase carry no payload.
	case *protocol.ThinkingTextMessageContentEvent:
		r.thinking = append(r.thinking, e.Delta...)

	case *protocol.StateSnapshotEvent:
		r.state = cloneState(e.Snapshot)
	case *protocol.StateDeltaEvent:
		next, err := patch.Apply(r.state, e.Delta)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPatchFailed, err)
		}
		r.state = next
	case *protocol.MessagesSnapshotEvent:
		r.applyMessagesSnapshot(e.Messages)

	case *protocol.ActivitySnapshotEvent:
		r.applyActivitySnapshot(e)
	case *protocol.ActivityDeltaEvent:
		return r.applyActivityDelta(e)

	case *protocol.RawEvent, *protocol.CustomEvent:
		// Extension events never touch messages or state.
	case *protocol.TextMessageChunkEvent, *protocol.ToolCallChunkEvent:
		return ErrChunkEvent
	default:
		return fmt.Errorf("unhandled event type %T", evt)
	}
	return nil
}

// Fold applies every event in order, stopping at the first error. It returns
// the final snapshot alongside the error so callers keep the last consistent
// state when a run aborts.
func (r *Reducer) Fold(events []protocol.Event) (Snapshot, error) {
	for _, evt := range events {
		if err := r.Apply(evt); err != nil {
			return r.Snapshot(), err
		}
	}
	return r.Snapshot(), nil
}

// CloseStream handles the end of the event source. A stream that ends without
// a terminal event is a protocol violation treated as an implicit RUN_ERROR:
// open buffers are force-closed and the run is marked failed.
func (r *Reducer) CloseStream() {
	if r.terminal {
		return
	}
	r.closeAllBuffers()
	r.terminal = true
	r.runErr = &RunError{Message: "event stream ended without a terminal event", Code: "stream_incomplete"}
}

// Discard drops open streaming buffers without materializing them. Used on
// cancellation, where the run produced no terminal event and the last
// committed snapshot stands as provisional.
func (r *Reducer) Discard() {
	r.texts = make(map[string]*textBuffer)
	r.textOrder = nil
	r.tools = make(map[string]*toolBuffer)
	r.toolOrder = nil
}

// Snapshot materializes the current conversation state. The result is a deep
// copy; the Reducer retains ownership of its working state.
func (r *Reducer) Snapshot() Snapshot {
	msgs := make([]protocol.Message, len(r.messages))
	for i, m := range r.messages {
		msgs[i] = m.Clone()
	}
	var steps []string
	if len(r.steps) > 0 {
		steps = make([]string, len(r.steps))
		copy(steps, r.steps)
	}
	var runErr *RunError
	if r.runErr != nil {
		c := *r.runErr
		runErr = &c
	}
	return Snapshot{
		ThreadID:       r.threadID,
		RunID:          r.runID,
		Messages:       msgs,
		State:          cloneState(r.state),
		Steps:          steps,
		Thinking:       string(r.thinking),
		ThinkingActive: r.thinkingOpen,
		Terminal:       r.terminal,
		Result:         r.result,
		Error:          runErr,
	}
}

// Terminal reports whether the run has ended.
func (r *Reducer) Terminal() bool { return r.terminal }

func (r *Reducer) resetRunScope() {
	r.texts = make(map[string]*textBuffer)
	r.textOrder = nil
	r.tools = make(map[string]*toolBuffer)
	r.toolOrder = nil
	r.steps = nil
	r.thinking = nil
	r.thinkingOpen = false
}

// closeText materializes the buffered text message and discards its buffer.
func (r *Reducer) closeText(messageID string) {
	buf := r.texts[messageID]
	if buf == nil {
		return
	}
	delete(r.texts, messageID)
	r.textOrder = removeID(r.textOrder, messageID)
	r.messages = append(r.messages, protocol.Message{
		ID:      messageID,
		Role:    buf.role,
		Content: string(buf.text),
	})
}

// closeTool attaches the buffered tool call to its parent assistant message,
// creating the parent when streaming order delivered the call first.
func (r *Reducer) closeTool(toolCallID string) {
	buf := r.tools[toolCallID]
	if buf == nil {
		return
	}
	delete(r.tools, toolCallID)
	r.toolOrder = removeID(r.toolOrder, toolCallID)

	call := protocol.ToolCall{
		ID:       toolCallID,
		CallType: "function",
		Function: protocol.FunctionCall{Name: buf.name, Arguments: string(buf.args)},
	}

	parentID := buf.parentID
	if parentID == "" {
		// No parent named: attach to the most recent assistant message when
		// one exists, otherwise synthesize a parent keyed by the call id.
		for i := len(r.messages) - 1; i >= 0; i-- {
			if r.messages[i].Role == protocol.RoleAssistant {
				r.messages[i].ToolCalls = append(r.messages[i].ToolCalls, call)
				return
			}
		}
		parentID = toolCallID
	}
	for i := range r.messages {
		if r.messages[i].ID == parentID {
			r.messages[i].ToolCalls = append(r.messages[i].ToolCalls, call)
			return
		}
	}
	r.messages = append(r.messages, protocol.Message{
		ID:        parentID,
		Role:      protocol.RoleAssistant,
		ToolCalls: []protocol.ToolCall{call},
	})
}

// closeAllBuffers force-closes open buffers in the order they were opened,
// keeping materialization deterministic.
func (r *Reducer) closeAllBuffers() {
	for _, id := range append([]string(nil), r.textOrder...) {
		r.closeText(id)
	}
	for _, id := range append([]string(nil), r.toolOrder...) {
		r.closeTool(id)
	}
}

// popStep removes the most recent matching step name from the stack. Unmatched
// finishes are ignored.
func (r *Reducer) popStep(name string) {
	for i := len(r.steps) - 1; i >= 0; i-- {
		if r.steps[i] == name {
			r.steps = append(r.steps[:i], r.steps[i+1:]...)
			return
		}
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
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
