package protocol

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateInput checks a RunAgentInput before submission: identity fields are
// present, message ids are unique across the conversation, tool messages carry
// their call id and every tool parameter schema compiles as a JSON Schema.
func ValidateInput(input RunAgentInput) error {
	if input.ThreadID == "" {
		return errors.New("thread id is required")
	}
	if input.RunID == "" {
		return errors.New("run id is required")
	}
	seen := make(map[string]struct{}, len(input.Messages))
	for _, m := range input.Messages {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("duplicate message id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	for _, t := range input.Tools {
		if err := ValidateToolSchema(t); err != nil {
			return err
		}
	}
	return nil
}

// ValidateToolSchema compiles the tool's parameter schema, rejecting tools
// whose parameters are not a valid JSON Schema document.
func ValidateToolSchema(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.Parameters == nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", t.Parameters); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", t.Name, err)
	}
	if _, err := c.Compile("tool.json"); err != nil {
		return fmt.Errorf("tool %q: compile parameter schema: %w", t.Name, err)
	}
	return nil
}

// ValidateToolArgs validates a JSON-decoded tool argument value against the
// tool's parameter schema. Tools without a schema accept any arguments.
func ValidateToolArgs(t Tool, args any) error {
	if t.Parameters == nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", t.Parameters); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", t.Name, err)
	}
	schema, err := c.Compile("tool.json")
	if err != nil {
		return fmt.Errorf("tool %q: compile parameter schema: %w", t.Name, err)
	}
	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("tool %q: %w", t.Name, err)
	}
	return nil
}
