package chunks

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/agentwire/protocol"
)

func push(t *testing.T, n *Normalizer, evts ...protocol.Event) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for _, evt := range evts {
		expanded, err := n.Push(evt)
		require.NoError(t, err)
		out = append(out, expanded...)
	}
	return out
}

func types(evts []protocol.Event) []protocol.EventType {
	out := make([]protocol.EventType, len(evts))
	for i, evt := range evts {
		out[i] = evt.Type()
	}
	return out
}

func TestTextChunksExpandToTriad(t *testing.T) {
	n := New()
	out := push(t, n,
		&protocol.TextMessageChunkEvent{MessageID: "m1", Role: protocol.RoleAssistant, Delta: "Hel"},
		&protocol.TextMessageChunkEvent{Delta: "lo"},
	)
	out = append(out, n.Flush()...)

	require.Equal(t, []protocol.EventType{
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
	}, types(out))

	start := out[0].(*protocol.TextMessageStartEvent)
	require.Equal(t, "m1", start.MessageID)
	require.Equal(t, protocol.RoleAssistant, start.Role)
	// Continuation chunks inherit the open stream's identity.
	require.Equal(t, "m1", out[2].(*protocol.TextMessageContentEvent).MessageID)
	require.Equal(t, "m1", out[3].(*protocol.TextMessageEndEvent).MessageID)
}

func TestFirstChunkDefaultsRoleToAssistant(t *testing.T) {
	n := New()
	out := push(t, n, &protocol.TextMessageChunkEvent{MessageID: "m1", Delta: "x"})
	require.Equal(t, protocol.RoleAssistant, out[0].(*protocol.TextMessageStartEvent).Role)
}

func TestFirstChunkWithoutIdentityFails(t *testing.T) {
	n := New()
	_, err := n.Push(&protocol.TextMessageChunkEvent{Delta: "orphan"})
	require.ErrorIs(t, err, ErrChunkIdentity)

	_, err = n.Push(&protocol.ToolCallChunkEvent{Delta: "{"})
	require.ErrorIs(t, err, ErrChunkIdentity)

	// Tool chunks need both id and name on first occurrence.
	_, err = n.Push(&protocol.ToolCallChunkEvent{ToolCallID: "c1"})
	require.ErrorIs(t, err, ErrChunkIdentity)
}

func TestEmptyDeltaSynthesizesNoContent(t *testing.T) {
	n := New()
	out := push(t, n, &protocol.TextMessageChunkEvent{MessageID: "m1"})
	out = append(out, n.Flush()...)
	require.Equal(t, []protocol.EventType{
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageEnd,
	}, types(out))
}

func TestNonChunkEventForceClosesOpenStream(t *testing.T) {
	n := New()
	out := push(t, n,
		&protocol.TextMessageChunkEvent{MessageID: "m1", Delta: "partial"},
		&protocol.StateSnapshotEvent{Snapshot: map[string]any{}},
	)
	require.Equal(t, []protocol.EventType{
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
		protocol.EventTypeStateSnapshot,
	}, types(out))
}

func TestNewMessageIDClosesPreviousStream(t *testing.T) {
	n := New()
	out := push(t, n,
		&protocol.TextMessageChunkEvent{MessageID: "m1", Delta: "one"},
		&protocol.TextMessageChunkEvent{MessageID: "m2", Delta: "two"},
	)
	out = append(out, n.Flush()...)
	require.Equal(t, []protocol.EventType{
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
	}, types(out))
	require.Equal(t, "m1", out[2].(*protocol.TextMessageEndEvent).MessageID)
	require.Equal(t, "m2", out[3].(*protocol.TextMessageStartEvent).MessageID)
}

func TestToolChunkClosesTextStreamAndViceVersa(t *testing.T) {
	n := New()
	out := push(t, n,
		&protocol.TextMessageChunkEvent{MessageID: "m1", Delta: "thinking"},
		&protocol.ToolCallChunkEvent{ToolCallID: "c1", ToolCallName: "search", Delta: `{"q"`},
		&protocol.TextMessageChunkEvent{MessageID: "m2", Delta: "done"},
	)
	out = append(out, n.Flush()...)
	require.Equal(t, []protocol.EventType{
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
		protocol.EventTypeToolCallStart,
		protocol.EventTypeToolCallArgs,
		protocol.EventTypeToolCallEnd,
		protocol.EventTypeTextMessageStart,
		protocol.EventTypeTextMessageContent,
		protocol.EventTypeTextMessageEnd,
	}, types(out))
}

func TestToolChunkCarriesParentMessageID(t *testing.T) {
	n := New()
	out := push(t, n, &protocol.ToolCallChunkEvent{ToolCallID: "c1", ToolCallName: "search", ParentMessageID: "m1"})
	require.Equal(t, "m1", out[0].(*protocol.ToolCallStartEvent).ParentMessageID)
}

func TestResetDropsOpenStreams(t *testing.T) {
	n := New()
	push(t, n, &protocol.TextMessageChunkEvent{MessageID: "m1", Delta: "x"})
	n.Reset()
	require.Empty(t, n.Flush())
}

func TestCanonicalEventsPassThrough(t *testing.T) {
	n := New()
	evt := &protocol.RunStartedEvent{ThreadID: "t1", RunID: "r1"}
	out := push(t, n, evt)
	require.Equal(t, []protocol.Event{evt}, out)
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("chunked text reassembles to the original", prop.ForAll(
		func(deltas []string) bool {
			n := New()
			var out []protocol.Event
			for i, d := range deltas {
				chunk := &protocol.TextMessageChunkEvent{Delta: d}
				if i == 0 {
					chunk.MessageID = "m1"
				}
				expanded, err := n.Push(chunk)
				if err != nil {
					return false
				}
				out = append(out, expanded...)
			}
			out = append(out, n.Flush()...)

			var text string
			contents := 0
			for _, evt := range out {
				if c, ok := evt.(*protocol.TextMessageContentEvent); ok {
					text += c.Delta
					contents++
				}
			}
			var want string
			nonEmpty := 0
			for _, d := range deltas {
				want += d
				if d != "" {
					nonEmpty++
				}
			}
			return text == want && contents == nonEmpty
		},
		gen.SliceOfN(5, gen.AlphaString()).SuchThat(func(v []string) bool { return len(v) > 0 }),
	))

	properties.Property("expansion is a well-formed triad per stream", prop.ForAll(
		func(streams int) bool {
			n := New()
			var out []protocol.Event
			for i := 0; i < streams; i++ {
				id := fmt.Sprintf("m%d", i)
				expanded, err := n.Push(&protocol.TextMessageChunkEvent{MessageID: id, Delta: "d"})
				if err != nil {
					return false
				}
				out = append(out, expanded...)
			}
			out = append(out, n.Flush()...)

			open := ""
			starts := 0
			for _, evt := range out {
				switch e := evt.(type) {
				case *protocol.TextMessageStartEvent:
					if open != "" {
						return false
					}
					open = e.MessageID
					starts++
				case *protocol.TextMessageContentEvent:
					if e.MessageID != open {
						return false
					}
				case *protocol.TextMessageEndEvent:
					if e.MessageID != open {
						return false
					}
					open = ""
				default:
					return false
				}
			}
			return open == "" && starts == streams
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
