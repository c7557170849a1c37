package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the dialogue role of a message.
type Role string

const (
	// RoleSystem marks platform-authored instructions.
	RoleSystem Role = "system"
	// RoleDeveloper marks application-authored instructions.
	RoleDeveloper Role = "developer"
	// RoleUser marks end-user input.
	RoleUser Role = "user"
	// RoleAssistant marks agent output, optionally carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool result tied to a tool call.
	RoleTool Role = "tool"
	// RoleActivity marks a non-dialogue side-channel message anchored at a
	// position in the conversation. Activity messages render in-progress UI
	// state and never participate in the logical dialogue.
	RoleActivity Role = "activity"
)

type (
	// Message is a single conversation entry. The Role field discriminates the
	// variant; ID is unique within a conversation's message list.
	//
	// Content holds a string for dialogue roles and an arbitrary JSON value
	// for activity messages.
	Message struct {
		ID      string `json:"id"`
		Role    Role   `json:"role"`
		Content any    `json:"content,omitempty"`
		// Name optionally identifies the participant for system/developer
		// prompts addressed to a named entity.
		Name string `json:"name,omitempty"`
		// ToolCalls carries the tool invocations requested by an assistant
		// message. Only meaningful when Role is RoleAssistant.
		ToolCalls []ToolCall `json:"toolCalls,omitempty"`
		// ToolCallID links a tool message back to the call it answers. Only
		// meaningful when Role is RoleTool.
		ToolCallID string `json:"toolCallId,omitempty"`
		// ActivityType classifies an activity message for rendering. Only
		// meaningful when Role is RoleActivity.
		ActivityType string `json:"activityType,omitempty"`
	}

	// ToolCall is a tool invocation attached to an assistant message, modeled
	// after OpenAI tool calls.
	ToolCall struct {
		ID string `json:"id"`
		// CallType is always "function".
		CallType string       `json:"type"`
		Function FunctionCall `json:"function"`
	}

	// FunctionCall names the invoked function and carries its JSON-encoded
	// argument string.
	FunctionCall struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
)

// IsActivity reports whether the message is a side-channel activity entry.
func (m Message) IsActivity() bool { return m.Role == RoleActivity }

// Text returns the message content as a string. Activity messages and messages
// without content return the empty string.
func (m Message) Text() string {
	s, _ := m.Content.(string)
	return s
}

// Clone returns a deep copy of the message. Tool call slices are copied;
// activity content trees are copied structurally.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	out.Content = cloneValue(m.Content)
	return out
}

// Validate reports whether the message satisfies its role-specific constraints.
func (m Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is required")
	}
	switch m.Role {
	case RoleSystem, RoleDeveloper, RoleUser:
		if _, ok := m.Content.(string); !ok {
			return fmt.Errorf("%s message %q: content must be a string", m.Role, m.ID)
		}
	case RoleAssistant:
		if m.Content != nil {
			if _, ok := m.Content.(string); !ok {
				return fmt.Errorf("assistant message %q: content must be a string", m.ID)
			}
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return fmt.Errorf("tool message %q: tool call id is required", m.ID)
		}
	case RoleActivity:
		if m.ActivityType == "" {
			return fmt.Errorf("activity message %q: activity type is required", m.ID)
		}
	default:
		return fmt.Errorf("message %q: unknown role %q", m.ID, m.Role)
	}
	return nil
}

func cloneValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

type (
	// RunAgentInput is the envelope submitted to start a run: the thread and
	// run identity, the conversation so far, the shared state document and the
	// tool/context affordances the client grants the agent.
	RunAgentInput struct {
		ThreadID string `json:"threadId"`
		RunID    string `json:"runId"`
		// ParentRunID links a resumed or forked run back to its predecessor.
		ParentRunID string    `json:"parentRunId,omitempty"`
		Messages    []Message `json:"messages"`
		State       any       `json:"state,omitempty"`
		Tools       []Tool    `json:"tools,omitempty"`
		Context     []Context `json:"context,omitempty"`
		// ForwardedProps carries opaque client properties forwarded to the
		// agent untouched.
		ForwardedProps any `json:"forwardedProps,omitempty"`
	}

	// Tool describes a frontend-provided tool the agent may call. Parameters
	// is a JSON Schema for the tool arguments.
	Tool struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  any    `json:"parameters"`
	}

	// Context is a piece of additional information supplied to the agent.
	Context struct {
		Description string `json:"description"`
		Value       string `json:"value"`
	}
)

// MarshalJSON encodes the tool call with its fixed "function" type so zero
// values round-trip correctly.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	type alias ToolCall
	a := alias(c)
	if a.CallType == "" {
		a.CallType = "function"
	}
	return json.Marshal(a)
}
