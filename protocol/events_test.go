package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsMissingIdentity(t *testing.T) {
	cases := []struct {
		name string
		evt  Event
		msg  string
	}{
		{"run started without thread", &RunStartedEvent{RunID: "r1"}, "thread id is required"},
		{"run started without run", &RunStartedEvent{ThreadID: "t1"}, "run id is required"},
		{"run finished without thread", &RunFinishedEvent{RunID: "r1"}, "thread id is required"},
		{"run error without message", &RunErrorEvent{}, "message is required"},
		{"step started without name", &StepStartedEvent{}, "step name is required"},
		{"step finished without name", &StepFinishedEvent{}, "step name is required"},
		{"text start without id", &TextMessageStartEvent{Role: RoleAssistant}, "message id is required"},
		{"text content without id", &TextMessageContentEvent{Delta: "x"}, "message id is required"},
		{"text content empty delta", &TextMessageContentEvent{MessageID: "m1"}, "delta must not be empty"},
		{"text end without id", &TextMessageEndEvent{}, "message id is required"},
		{"thinking content empty delta", &ThinkingTextMessageContentEvent{}, "delta must not be empty"},
		{"tool start without id", &ToolCallStartEvent{ToolCallName: "search"}, "tool call id is required"},
		{"tool start without name", &ToolCallStartEvent{ToolCallID: "c1"}, "tool call name is required"},
		{"tool args without id", &ToolCallArgsEvent{Delta: "{"}, "tool call id is required"},
		{"tool end without id", &ToolCallEndEvent{}, "tool call id is required"},
		{"tool result without message id", &ToolCallResultEvent{ToolCallID: "c1"}, "message id is required"},
		{"tool result without call id", &ToolCallResultEvent{MessageID: "m1"}, "tool call id is required"},
		{"activity snapshot without id", &ActivitySnapshotEvent{ActivityType: "plan"}, "message id is required"},
		{"activity snapshot without type", &ActivitySnapshotEvent{MessageID: "a1"}, "activity type is required"},
		{"activity delta without id", &ActivityDeltaEvent{}, "message id is required"},
		{"custom without name", &CustomEvent{}, "name is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorContains(t, Validate(tc.evt), tc.msg)
		})
	}
}

func TestValidateMessagesSnapshotDuplicateIDs(t *testing.T) {
	evt := &MessagesSnapshotEvent{Messages: []Message{
		{ID: "m1", Role: RoleUser, Content: "a"},
		{ID: "m1", Role: RoleAssistant, Content: "b"},
	}}
	require.ErrorContains(t, Validate(evt), `duplicate message id "m1"`)
}

func TestValidateAcceptsWellFormedEvents(t *testing.T) {
	events := []Event{
		&RunStartedEvent{ThreadID: "t1", RunID: "r1"},
		&RunFinishedEvent{ThreadID: "t1", RunID: "r1"},
		&ThinkingStartEvent{Title: "planning"},
		&ThinkingEndEvent{},
		&TextMessageChunkEvent{MessageID: "m1", Role: RoleAssistant, Delta: "hi"},
		&ToolCallChunkEvent{ToolCallID: "c1", ToolCallName: "search"},
		&StateSnapshotEvent{Snapshot: nil},
		&RawEvent{Event: map[string]any{"anything": true}},
		&MessagesSnapshotEvent{},
	}
	for _, evt := range events {
		require.NoError(t, Validate(evt))
	}
}

func TestTypeDerivesFromConcreteType(t *testing.T) {
	// Events built in code never stamp BaseEvent.EventType; the discriminator
	// must come from the concrete type.
	cases := []struct {
		evt  Event
		want EventType
	}{
		{&RunStartedEvent{ThreadID: "t1", RunID: "r1"}, EventTypeRunStarted},
		{&RunFinishedEvent{ThreadID: "t1", RunID: "r1"}, EventTypeRunFinished},
		{&RunErrorEvent{Message: "boom"}, EventTypeRunError},
		{&StepStartedEvent{StepName: "plan"}, EventTypeStepStarted},
		{&StepFinishedEvent{StepName: "plan"}, EventTypeStepFinished},
		{&TextMessageStartEvent{MessageID: "m1"}, EventTypeTextMessageStart},
		{&TextMessageContentEvent{MessageID: "m1", Delta: "hi"}, EventTypeTextMessageContent},
		{&TextMessageEndEvent{MessageID: "m1"}, EventTypeTextMessageEnd},
		{&TextMessageChunkEvent{MessageID: "m1", Delta: "hi"}, EventTypeTextMessageChunk},
		{&ThinkingStartEvent{}, EventTypeThinkingStart},
		{&ThinkingEndEvent{}, EventTypeThinkingEnd},
		{&ThinkingTextMessageStartEvent{}, EventTypeThinkingTextMessageStart},
		{&ThinkingTextMessageContentEvent{Delta: "hm"}, EventTypeThinkingTextMessageContent},
		{&ThinkingTextMessageEndEvent{}, EventTypeThinkingTextMessageEnd},
		{&ToolCallStartEvent{ToolCallID: "c1", ToolCallName: "search"}, EventTypeToolCallStart},
		{&ToolCallArgsEvent{ToolCallID: "c1", Delta: "{}"}, EventTypeToolCallArgs},
		{&ToolCallEndEvent{ToolCallID: "c1"}, EventTypeToolCallEnd},
		{&ToolCallChunkEvent{ToolCallID: "c1"}, EventTypeToolCallChunk},
		{&ToolCallResultEvent{MessageID: "m2", ToolCallID: "c1"}, EventTypeToolCallResult},
		{&StateSnapshotEvent{Snapshot: map[string]any{}}, EventTypeStateSnapshot},
		{&StateDeltaEvent{}, EventTypeStateDelta},
		{&MessagesSnapshotEvent{}, EventTypeMessagesSnapshot},
		{&ActivitySnapshotEvent{MessageID: "a1", ActivityType: "progress"}, EventTypeActivitySnapshot},
		{&ActivityDeltaEvent{MessageID: "a1"}, EventTypeActivityDelta},
		{&RawEvent{}, EventTypeRaw},
		{&CustomEvent{Name: "ping"}, EventTypeCustom},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.evt.Type(), "%T", tc.evt)
	}
}
