package types

import (
	"context"
	"encoding/json"
)

// ToolDefinition is the format required by LLM APIs for tool/function calling.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a model-emitted request to invoke an external function.
// ID pairs the call with its result message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolHandler executes one tool call and returns its result as a string.
// Handlers are registered on the orchestrator by the embedding application.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)
