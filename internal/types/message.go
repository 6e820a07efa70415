// Package types contains shared types used across multiple packages.
// This helps avoid import cycles between packages like llm and executor.
package types

import "encoding/json"

// Message represents a single message in a conversation.
// Used by the executor and by all provider clients.
type Message struct {
	Role       string          `json:"role"` // "system", "user", "assistant", "tool"
	Content    string          `json:"content"`
	ToolCallID string          `json:"toolCallId,omitempty"` // for role "tool": id of the call being answered
	ToolName   string          `json:"toolName,omitempty"`   // for assistant tool-call messages
	ToolArgs   json.RawMessage `json:"toolArgs,omitempty"`   // for assistant tool-call messages
}

// IsToolCall returns true if the message is an assistant tool-call message.
func (m *Message) IsToolCall() bool {
	return m.Role == "assistant" && m.ToolName != ""
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
