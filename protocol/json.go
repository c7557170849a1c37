// JSON helpers for encoding and decoding wire events. Decoding discriminates
// concrete event types on the "type" field, mirroring how messages are
// discriminated on "role".
package protocol

import (
	"encoding/json"
	"fmt"
)

// UnmarshalEvent decodes a single wire event from its JSON encoding. Unknown
// discriminators and shape mismatches are returned as errors; the transport
// decode boundary treats any error as a silently dropped frame.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	evt, err := eventForType(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	if err := Validate(evt); err != nil {
		return nil, fmt.Errorf("validate %s: %w", head.Type, err)
	}
	return evt, nil
}

// MarshalEvent encodes a wire event, stamping the "type" discriminator from the
// concrete type so callers need not populate it by hand.
func MarshalEvent(evt Event) ([]byte, error) {
	if s, ok := evt.(interface{ setType(EventType) }); ok {
		s.setType(evt.Type())
	}
	return json.Marshal(evt)
}

func (b *BaseEvent) setType(t EventType) { b.EventType = t }

func eventForType(t EventType) (Event, error) {
	switch t {
	case EventTypeRunStarted:
		return &RunStartedEvent{}, nil
	case EventTypeRunFinished:
		return &RunFinishedEvent{}, nil
	case EventTypeRunError:
		return &RunErrorEvent{}, nil
	case EventTypeStepStarted:
		return &StepStartedEvent{}, nil
	case EventTypeStepFinished:
		return &StepFinishedEvent{}, nil
	case EventTypeTextMessageStart:
		return &TextMessageStartEvent{}, nil
	case EventTypeTextMessageContent:
		return &TextMessageContentEvent{}, nil
	case EventTypeTextMessageEnd:
		return &TextMessageEndEvent{}, nil
	case EventTypeTextMessageChunk:
		return &TextMessageChunkEvent{}, nil
	case EventTypeThinkingStart:
		return &ThinkingStartEvent{}, nil
	case EventTypeThinkingEnd:
		return &ThinkingEndEvent{}, nil
	case EventTypeThinkingTextMessageStart:
		return &ThinkingTextMessageStartEvent{}, nil
	case EventTypeThinkingTextMessageContent:
		return &ThinkingTextMessageContentEvent{}, nil
	case EventTypeThinkingTextMessageEnd:
		return &ThinkingTextMessageEndEvent{}, nil
	case EventTypeToolCallStart:
		return &ToolCallStartEvent{}, nil
	case EventTypeToolCallArgs:
		return &ToolCallArgsEvent{}, nil
	case EventTypeToolCallEnd:
		return &ToolCallEndEvent{}, nil
	case EventTypeToolCallChunk:
		return &ToolCallChunkEvent{}, nil
	case EventTypeToolCallResult:
		return &ToolCallResultEvent{}, nil
	case EventTypeStateSnapshot:
		return &StateSnapshotEvent{}, nil
	case EventTypeStateDelta:
		return &StateDeltaEvent{}, nil
	case EventTypeMessagesSnapshot:
		return &MessagesSnapshotEvent{}, nil
	case EventTypeActivitySnapshot:
		return &ActivitySnapshotEvent{}, nil
	case EventTypeActivityDelta:
		return &ActivityDeltaEvent{}, nil
	case EventTypeRaw:
		return &RawEvent{}, nil
	case EventTypeCustom:
		return &CustomEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}
