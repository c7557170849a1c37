package protocol

import (
	"errors"
	"fmt"

	"goa.design/agentwire/patch"
)

type (
	// RunStartedEvent signals that a run has begun executing. It is always the
	// first event of a stream.
	RunStartedEvent struct {
		BaseEvent
		// ThreadID identifies the persistent conversation the run belongs to.
		ThreadID string `json:"threadId"`
		// RunID uniquely identifies this run within the thread.
		RunID string `json:"runId"`
	}

	// RunFinishedEvent signals that a run completed successfully. It terminates
	// the stream.
	RunFinishedEvent struct {
		BaseEvent
		ThreadID string `json:"threadId"`
		RunID    string `json:"runId"`
		// Result carries an optional run-level result payload.
		Result any `json:"result,omitempty"`
	}

	// RunErrorEvent signals that a run terminated with an error. It terminates
	// the stream. Message and Code together form the single user-visible
	// failure signal for the run.
	RunErrorEvent struct {
		BaseEvent
		// Message is a human-readable description of the failure.
		Message string `json:"message"`
		// Code is an optional machine-readable error classifier.
		Code string `json:"code,omitempty"`
	}

	// StepStartedEvent signals the start of a named step within a run.
	StepStartedEvent struct {
		BaseEvent
		StepName string `json:"stepName"`
	}

	// StepFinishedEvent signals the completion of a named step.
	StepFinishedEvent struct {
		BaseEvent
		StepName string `json:"stepName"`
	}

	// TextMessageStartEvent opens a streaming text message identified by
	// MessageID. No message is visible in the conversation until the matching
	// end event arrives.
	TextMessageStartEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
		// Role is the dialogue role of the message under construction,
		// typically RoleAssistant.
		Role Role `json:"role"`
	}

	// TextMessageContentEvent carries a text delta for an open streaming
	// message. Delta must be non-empty.
	TextMessageContentEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
		Delta     string `json:"delta"`
	}

	// TextMessageEndEvent closes a streaming text message, materializing it in
	// the conversation.
	TextMessageEndEvent struct {
		BaseEvent
		MessageID string `json:"messageId"`
	}

	// TextMessageChunkEvent is the shorthand streaming form. The first chunk of
	// a message must carry MessageID and Role; subsequent chunks may carry only
	// Delta. The chunks package expands chunk sequences into canonical
	// START/CONTENT/END triads.
	TextMessageChunkEvent struct {
		BaseEvent
		MessageID string `json:"messageId,omitempty"`
		Role      Role   `json:"role,omitempty"`
		Delta     string `json:"delta,omitempty"`
	}

	// ThinkingStartEvent opens a thinking phase.
	ThinkingStartEvent struct {
		BaseEvent
		// Title optionally names the thinking phase for display purposes.
		Title string `json:"title,omitempty"`
	}

	// ThinkingEndEvent closes a thinking phase.
	ThinkingEndEvent struct {
		BaseEvent
	}

	// ThinkingTextMessageStartEvent opens a streaming thinking text block
	// within a thinking phase.
	ThinkingTextMessageStartEvent struct {
		BaseEvent
	}

	// ThinkingTextMessageContentEvent carries a thinking text delta. Delta must
	// be non-empty.
	ThinkingTextMessageContentEvent struct {
		BaseEvent
		Delta string `json:"delta"`
	}

	// ThinkingTextMessageEndEvent closes a streaming thinking text block.
	ThinkingTextMessageEndEvent struct {
		BaseEvent
	}

	// ToolCallStartEvent opens a streaming tool call. ParentMessageID names the
	// assistant message the call belongs to; the owning message may not exist
	// yet when the event arrives.
	ToolCallStartEvent struct {
		BaseEvent
		ToolCallID      string `json:"toolCallId"`
		ToolCallName    string `json:"toolCallName"`
		ParentMessageID string `json:"parentMessageId,omitempty"`
	}

	// ToolCallArgsEvent carries a tool call argument delta. Argument deltas
	// concatenate into the JSON-encoded argument string of the call.
	ToolCallArgsEvent struct {
		BaseEvent
		ToolCallID string `json:"toolCallId"`
		Delta      string `json:"delta"`
	}

	// ToolCallEndEvent closes a streaming tool call, attaching it to its parent
	// assistant message.
	ToolCallEndEvent struct {
		BaseEvent
		ToolCallID string `json:"toolCallId"`
	}

	// ToolCallChunkEvent is the shorthand streaming form of a tool call. The
	// first chunk must carry ToolCallID and ToolCallName.
	ToolCallChunkEvent struct {
		BaseEvent
		ToolCallID      string `json:"toolCallId,omitempty"`
		ToolCallName    string `json:"toolCallName,omitempty"`
		ParentMessageID string `json:"parentMessageId,omitempty"`
		Delta           string `json:"delta,omitempty"`
	}

	// ToolCallResultEvent delivers the result of a completed tool call as a
	// tool message identified by MessageID.
	ToolCallResultEvent struct {
		BaseEvent
		MessageID  string `json:"messageId"`
		ToolCallID string `json:"toolCallId"`
		Content    string `json:"content"`
		Role       Role   `json:"role,omitempty"`
	}

	// StateSnapshotEvent replaces the shared run state wholesale. No merging
	// occurs; the snapshot becomes the new state.
	StateSnapshotEvent struct {
		BaseEvent
		Snapshot any `json:"snapshot"`
	}

	// StateDeltaEvent mutates the shared run state through a sequence of
	// RFC 6902 operations. A failing operation aborts the run; the state prior
	// to the delta is preserved.
	StateDeltaEvent struct {
		BaseEvent
		Delta []patch.Operation `json:"delta"`
	}

	// MessagesSnapshotEvent replaces the conversation message list. Activity
	// messages present in the prior conversation are re-anchored into the new
	// list by the reducer; they never appear in the snapshot itself.
	MessagesSnapshotEvent struct {
		BaseEvent
		Messages []Message `json:"messages"`
	}

	// ActivitySnapshotEvent creates or replaces an activity message, a
	// non-dialogue side channel for structured in-progress UI state.
	ActivitySnapshotEvent struct {
		BaseEvent
		MessageID    string `json:"messageId"`
		ActivityType string `json:"activityType"`
		// Content is an arbitrary JSON value rendered by the client.
		Content any `json:"content"`
		// Replace controls collision behavior: when true an existing message
		// with MessageID is overwritten wholesale, when false the snapshot is
		// ignored and the existing content wins.
		Replace bool `json:"replace,omitempty"`
	}

	// ActivityDeltaEvent patches the content of an existing activity message
	// with RFC 6902 operations. A delta targeting a message that does not exist
	// is dropped, not buffered.
	ActivityDeltaEvent struct {
		BaseEvent
		MessageID    string            `json:"messageId"`
		ActivityType string            `json:"activityType,omitempty"`
		Patch        []patch.Operation `json:"patch"`
	}

	// RawEvent passes an upstream source event through the stream untouched.
	// It has no effect on conversation state.
	RawEvent struct {
		BaseEvent
		Event any `json:"event"`
		// Source optionally names the upstream system the event came from.
		Source string `json:"source,omitempty"`
	}

	// CustomEvent carries an application-defined extension event. It has no
	// effect on conversation state.
	CustomEvent struct {
		BaseEvent
		Name  string `json:"name"`
		Value any    `json:"value,omitempty"`
	}
)

// Type returns the wire discriminator. Each concrete event type derives it
// from the type itself so events built in code carry the right discriminator
// without stamping BaseEvent by hand.
func (*RunStartedEvent) Type() EventType  { return EventTypeRunStarted }
func (*RunFinishedEvent) Type() EventType { return EventTypeRunFinished }
func (*RunErrorEvent) Type() EventType    { return EventTypeRunError }

func (*StepStartedEvent) Type() EventType  { return EventTypeStepStarted }
func (*StepFinishedEvent) Type() EventType { return EventTypeStepFinished }

func (*TextMessageStartEvent) Type() EventType   { return EventTypeTextMessageStart }
func (*TextMessageContentEvent) Type() EventType { return EventTypeTextMessageContent }
func (*TextMessageEndEvent) Type() EventType     { return EventTypeTextMessageEnd }
func (*TextMessageChunkEvent) Type() EventType   { return EventTypeTextMessageChunk }

func (*ThinkingStartEvent) Type() EventType { return EventTypeThinkingStart }
func (*ThinkingEndEvent) Type() EventType   { return EventTypeThinkingEnd }
func (*ThinkingTextMessageStartEvent) Type() EventType {
	return EventTypeThinkingTextMessageStart
}
func (*ThinkingTextMessageContentEvent) Type() EventType {
	return EventTypeThinkingTextMessageContent
}
func (*ThinkingTextMessageEndEvent) Type() EventType {
	return EventTypeThinkingTextMessageEnd
}

func (*ToolCallStartEvent) Type() EventType  { return EventTypeToolCallStart }
func (*ToolCallArgsEvent) Type() EventType   { return EventTypeToolCallArgs }
func (*ToolCallEndEvent) Type() EventType    { return EventTypeToolCallEnd }
func (*ToolCallChunkEvent) Type() EventType  { return EventTypeToolCallChunk }
func (*ToolCallResultEvent) Type() EventType { return EventTypeToolCallResult }

func (*StateSnapshotEvent) Type() EventType    { return EventTypeStateSnapshot }
func (*StateDeltaEvent) Type() EventType       { return EventTypeStateDelta }
func (*MessagesSnapshotEvent) Type() EventType { return EventTypeMessagesSnapshot }

func (*ActivitySnapshotEvent) Type() EventType { return EventTypeActivitySnapshot }
func (*ActivityDeltaEvent) Type() EventType    { return EventTypeActivityDelta }

func (*RawEvent) Type() EventType    { return EventTypeRaw }
func (*CustomEvent) Type() EventType { return EventTypeCustom }

// Validate reports whether the event satisfies its wire constraints. The decode
// boundary calls Validate on every inbound event and silently drops failures;
// producers call it before emission to fail fast.
func Validate(evt Event) error {
	switch e := evt.(type) {
	case *RunStartedEvent:
		if e.ThreadID == "" {
			return errors.New("run started: thread id is required")
		}
		if e.RunID == "" {
			return errors.New("run started: run id is required")
		}
	case *RunFinishedEvent:
		if e.ThreadID == "" {
			return errors.New("run finished: thread id is required")
		}
		if e.RunID == "" {
			return errors.New("run finished: run id is required")
		}
	case *RunErrorEvent:
		if e.Message == "" {
			return errors.New("run error: message is required")
		}
	case *StepStartedEvent:
		if e.StepName == "" {
			return errors.New("step started: step name is required")
		}
	case *StepFinishedEvent:
		if e.StepName == "" {
			return errors.New("step finished: step name is required")
		}
	case *TextMessageStartEvent:
		if e.MessageID == "" {
			return errors.New("text message start: message id is required")
		}
	case *TextMessageContentEvent:
		if e.MessageID == "" {
			return errors.New("text message content: message id is required")
		}
		if e.Delta == "" {
			return errors.New("text message content: delta must not be empty")
		}
	case *TextMessageEndEvent:
		if e.MessageID == "" {
			return errors.New("text message end: message id is required")
		}
	case *ThinkingTextMessageContentEvent:
		if e.Delta == "" {
			return errors.New("thinking text message content: delta must not be empty")
		}
	case *ToolCallStartEvent:
		if e.ToolCallID == "" {
			return errors.New("tool call start: tool call id is required")
		}
		if e.ToolCallName == "" {
			return errors.New("tool call start: tool call name is required")
		}
	case *ToolCallArgsEvent:
		if e.ToolCallID == "" {
			return errors.New("tool call args: tool call id is required")
		}
	case *ToolCallEndEvent:
		if e.ToolCallID == "" {
			return errors.New("tool call end: tool call id is required")
		}
	case *ToolCallResultEvent:
		if e.MessageID == "" {
			return errors.New("tool call result: message id is required")
		}
		if e.ToolCallID == "" {
			return errors.New("tool call result: tool call id is required")
		}
	case *ActivitySnapshotEvent:
		if e.MessageID == "" {
			return errors.New("activity snapshot: message id is required")
		}
		if e.ActivityType == "" {
			return errors.New("activity snapshot: activity type is required")
		}
	case *ActivityDeltaEvent:
		if e.MessageID == "" {
			return errors.New("activity delta: message id is required")
		}
	case *CustomEvent:
		if e.Name == "" {
			return errors.New("custom: name is required")
		}
	case *MessagesSnapshotEvent:
		seen := make(map[string]struct{}, len(e.Messages))
		for _, m := range e.Messages {
			if m.ID == "" {
				return errors.New("messages snapshot: message id is required")
			}
			if _, ok := seen[m.ID]; ok {
				return fmt.Errorf("messages snapshot: duplicate message id %q", m.ID)
			}
			seen[m.ID] = struct{}{}
		}
	}
	return nil
}
