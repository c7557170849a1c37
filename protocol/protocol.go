// Package protocol defines the wire-level vocabulary exchanged between an agent
// backend and a user-facing client: the event union streamed while a run
// executes, the message types that make up a conversation, and the run input
// envelope submitted to start a run.
//
// Events form a closed tagged union discriminated by the "type" field. Consumers
// switch exhaustively over the concrete event types; the decoder in this package
// rejects unknown discriminators so new event kinds surface at the boundary
// rather than falling through silently.
//
// The stream grammar is strictly ordered per run: RUN_STARTED first, then any
// number of message/tool/state events, then exactly one of RUN_FINISHED or
// RUN_ERROR. Shorthand chunk events (TEXT_MESSAGE_CHUNK, TOOL_CALL_CHUNK) are
// not part of the canonical grammar; the chunks package expands them into
// START/CONTENT/END triads before reduction.
package protocol

// EventType discriminates the concrete event kinds on the wire.
type EventType string

const (
	// EventTypeRunStarted signals that a run has begun executing.
	EventTypeRunStarted EventType = "RUN_STARTED"
	// EventTypeRunFinished signals that a run completed successfully.
	EventTypeRunFinished EventType = "RUN_FINISHED"
	// EventTypeRunError signals that a run terminated with an error.
	EventTypeRunError EventType = "RUN_ERROR"
	// EventTypeStepStarted signals the start of a named step within a run.
	EventTypeStepStarted EventType = "STEP_STARTED"
	// EventTypeStepFinished signals the completion of a named step.
	EventTypeStepFinished EventType = "STEP_FINISHED"

	// EventTypeTextMessageStart opens a streaming text message.
	EventTypeTextMessageStart EventType = "TEXT_MESSAGE_START"
	// EventTypeTextMessageContent carries a non-empty text delta.
	EventTypeTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	// EventTypeTextMessageEnd closes a streaming text message.
	EventTypeTextMessageEnd EventType = "TEXT_MESSAGE_END"
	// EventTypeTextMessageChunk is the shorthand form carrying identity on its
	// first occurrence and a delta on every occurrence.
	EventTypeTextMessageChunk EventType = "TEXT_MESSAGE_CHUNK"

	// EventTypeThinkingStart opens a thinking phase.
	EventTypeThinkingStart EventType = "THINKING_START"
	// EventTypeThinkingEnd closes a thinking phase.
	EventTypeThinkingEnd EventType = "THINKING_END"
	// EventTypeThinkingTextMessageStart opens a streaming thinking text block.
	EventTypeThinkingTextMessageStart EventType = "THINKING_TEXT_MESSAGE_START"
	// EventTypeThinkingTextMessageContent carries a non-empty thinking delta.
	EventTypeThinkingTextMessageContent EventType = "THINKING_TEXT_MESSAGE_CONTENT"
	// EventTypeThinkingTextMessageEnd closes a streaming thinking text block.
	EventTypeThinkingTextMessageEnd EventType = "THINKING_TEXT_MESSAGE_END"

	// EventTypeToolCallStart opens a streaming tool call.
	EventTypeToolCallStart EventType = "TOOL_CALL_START"
	// EventTypeToolCallArgs carries a tool call argument delta.
	EventTypeToolCallArgs EventType = "TOOL_CALL_ARGS"
	// EventTypeToolCallEnd closes a streaming tool call.
	EventTypeToolCallEnd EventType = "TOOL_CALL_END"
	// EventTypeToolCallChunk is the shorthand form of a streaming tool call.
	EventTypeToolCallChunk EventType = "TOOL_CALL_CHUNK"
	// EventTypeToolCallResult delivers the result of a completed tool call.
	EventTypeToolCallResult EventType = "TOOL_CALL_RESULT"

	// EventTypeStateSnapshot replaces the shared run state wholesale.
	EventTypeStateSnapshot EventType = "STATE_SNAPSHOT"
	// EventTypeStateDelta mutates the shared run state via RFC 6902 operations.
	EventTypeStateDelta EventType = "STATE_DELTA"
	// EventTypeMessagesSnapshot replaces the conversation message list.
	EventTypeMessagesSnapshot EventType = "MESSAGES_SNAPSHOT"

	// EventTypeActivitySnapshot creates or replaces an activity message.
	EventTypeActivitySnapshot EventType = "ACTIVITY_SNAPSHOT"
	// EventTypeActivityDelta patches an existing activity message's content.
	EventTypeActivityDelta EventType = "ACTIVITY_DELTA"

	// EventTypeRaw passes an upstream event through untouched.
	EventTypeRaw EventType = "RAW"
	// EventTypeCustom carries an application-defined extension event.
	EventTypeCustom EventType = "CUSTOM"
)

type (
	// Event is the interface implemented by every wire event. Concrete types
	// embed BaseEvent for the shared metadata and are matched by type switch.
	Event interface {
		// Type returns the wire discriminator for the event.
		Type() EventType
		// Timestamp returns the event creation time in Unix milliseconds, or
		// nil when the producer did not stamp the event.
		Timestamp() *int64
	}

	// BaseEvent carries the metadata shared by every event: the wire
	// discriminator, an optional producer timestamp and an opaque passthrough
	// of the upstream event that produced this one, kept for debugging only.
	//
	// EventType is the serialized form of the discriminator. It may be unset
	// on events constructed in code; Type on the concrete event type is the
	// authoritative discriminator and MarshalEvent stamps the field from it.
	BaseEvent struct {
		EventType   EventType `json:"type"`
		TimestampMS *int64    `json:"timestamp,omitempty"`
		RawEvent    any       `json:"rawEvent,omitempty"`
	}
)

// Timestamp returns the producer timestamp in Unix milliseconds, nil when unset.
func (b *BaseEvent) Timestamp() *int64 { return b.TimestampMS }

// SetTimestamp stamps the event with a Unix millisecond timestamp.
func (b *BaseEvent) SetTimestamp(ms int64) { b.TimestampMS = &ms }
