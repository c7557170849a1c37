// Package chunks expands shorthand streaming events into canonical triads.
//
// Producers may emit TEXT_MESSAGE_CHUNK and TOOL_CALL_CHUNK events carrying
// only a delta (plus identity on the first occurrence) instead of the full
// START/CONTENT/END grammar. The Normalizer rewrites a raw event sequence so
// that chunk events never reach the reducer: the first chunk of a stream
// synthesizes the START event, every non-empty delta becomes a CONTENT or ARGS
// event, and the stream is closed by synthesizing the END event as soon as a
// non-chunk event arrives, a chunk for a different stream begins, or the run's
// event sequence ends.
//
// A Normalizer holds no state beyond the identity of the currently open
// chunk-derived stream and is reset per run. It is not safe for concurrent use;
// each run owns its own instance.
package chunks

import (
	"errors"

	"goa.design/agentwire/protocol"
)

type (
	// Normalizer is a stateful rewriting pass over one run's raw event
	// sequence. Feed every decoded event to Push and the end of the sequence
	// to Flush; the returned slices replace the pushed event in the canonical
	// sequence.
	Normalizer struct {
		openText *openTextStream
		openTool *openToolStream
	}

	openTextStream struct {
		messageID string
		role      protocol.Role
	}

	openToolStream struct {
		toolCallID string
	}
)

// ErrChunkIdentity reports a first chunk that does not carry the identifying
// fields required to synthesize its START event.
var ErrChunkIdentity = errors.New("first chunk of a stream must carry identity")

// New returns a Normalizer with no open streams.
func New() *Normalizer {
	return &Normalizer{}
}

// Push rewrites one raw event into its canonical expansion. Chunk events expand
// into synthesized START/CONTENT/ARGS events; any other event force-closes the
// open chunk-derived stream (synthesizing its END) and then passes through
// unmodified.
func (n *Normalizer) Push(evt protocol.Event) ([]protocol.Event, error) {
	switch e := evt.(type) {
	case *protocol.TextMessageChunkEvent:
		return n.pushText(e)
	case *protocol.ToolCallChunkEvent:
		return n.pushTool(e)
	default:
		out := n.closeOpen()
		return append(out, evt), nil
	}
}

// Flush closes any still-open chunk-derived stream at the end of the raw
// sequence and resets the Normalizer for reuse.
func (n *Normalizer) Flush() []protocol.Event {
	return n.closeOpen()
}

// Reset drops any open stream without synthesizing END events. Used when a run
// is cancelled and its buffered streams are discarded rather than closed.
func (n *Normalizer) Reset() {
	n.openText = nil
	n.openTool = nil
}

func (n *Normalizer) pushText(e *protocol.TextMessageChunkEvent) ([]protocol.Event, error) {
	var out []protocol.Event

	// A text chunk ends any open tool stream, and any open text stream for a
	// different message.
	out = append(out, n.closeTool()...)
	if n.openText != nil && e.MessageID != "" && e.MessageID != n.openText.messageID {
		out = append(out, n.closeText()...)
	}

	if n.openText == nil {
		if e.MessageID == "" {
			return nil, ErrChunkIdentity
		}
		role := e.Role
		if role == "" {
			role = protocol.RoleAssistant
		}
		n.openText = &openTextStream{messageID: e.MessageID, role: role}
		out = append(out, &protocol.TextMessageStartEvent{
			BaseEvent: protocol.BaseEvent{EventType: protocol.EventTypeTextMessageStart, TimestampMS: e.TimestampMS},
			MessageID: e.MessageID,
			Role:      role,
		})
	}
	if e.Delta != "" {
		out = append(out, &protocol.TextMessageContentEvent{
			BaseEvent: protocol.BaseEvent{EventType: protocol.EventTypeTextMessageContent, TimestampMS: e.TimestampMS},
			MessageID: n.openText.messageID,
			Delta:     e.Delta,
		})
	}
	return out, nil
}

func (n *Normalizer) pushTool(e *protocol.ToolCallChunkEvent) ([]protocol.Event, error) {
	var out []protocol.Event

	out = append(out, n.closeText()...)
	if n.openTool != nil && e.ToolCallID != "" && e.ToolCallID != n.openTool.toolCallID {
		out = append(out, n.closeTool()...)
	}

	if n.openTool == nil {
		if e.ToolCallID == "" || e.ToolCallName == "" {
			return nil, ErrChunkIdentity
		}
		n.openTool = &openToolStream{toolCallID: e.ToolCallID}
		out = append(out, &protocol.ToolCallStartEvent{
			BaseEvent:       protocol.BaseEvent{EventType: protocol.EventTypeToolCallStart, TimestampMS: e.TimestampMS},
			ToolCallID:      e.ToolCallID,
			ToolCallName:    e.ToolCallName,
			ParentMessageID: e.ParentMessageID,
		})
	}
	if e.Delta != "" {
		out = append(out, &protocol.ToolCallArgsEvent{
			BaseEvent:  protocol.BaseEvent{EventType: protocol.EventTypeToolCallArgs, TimestampMS: e.TimestampMS},
			ToolCallID: n.openTool.toolCallID,
			Delta:      e.Delta,
		})
	}
	return out, nil
}

func (n *Normalizer) closeOpen() []protocol.Event {
	out := n.closeText()
	return append(out, n.closeTool()...)
}

func (n *Normalizer) closeText() []protocol.Event {
	if n.openText == nil {
		return nil
	}
	evt := &protocol.TextMessageEndEvent{
		BaseEvent: protocol.BaseEvent{EventType: protocol.EventTypeTextMessageEnd},
		MessageID: n.openText.messageID,
	}
	n.openText = nil
	return []protocol.Event{evt}
}

func (n *Normalizer) closeTool() []protocol.Event {
	if n.openTool == nil {
		return nil
	}
	evt := &protocol.ToolCallEndEvent{
		BaseEvent:  protocol.BaseEvent{EventType: protocol.EventTypeToolCallEnd},
		ToolCallID: n.openTool.toolCallID,
	}
	n.openTool = nil
	return []protocol.Event{evt}
}
