package types

import "time"

// Usage holds token counts for one or more provider calls.
// TotalTokens is always recomputed from prompt+completion; a provider-stated
// total is never stored here.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates counts from another usage block and recomputes the total.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

// FinishReason indicates how a provider call ended.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishToolCall FinishReason = "tool_call"
	FinishLength   FinishReason = "length"
	FinishError    FinishReason = "error"
)

// APIRequest is the provider-agnostic input to one chat-completion call.
type APIRequest struct {
	ModelAPIName string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
	TraceID      string
}

// APIResponse is the provider-agnostic result of one chat-completion call.
type APIResponse struct {
	Content      string
	ToolCall     *ToolCall
	Usage        Usage
	ModelAPIName string
	FinishReason FinishReason
	Raw          any // provider-native response, kept for debugging only
}

// HasToolCall returns true if the response requests a tool invocation.
func (r *APIResponse) HasToolCall() bool {
	return r.ToolCall != nil && r.ToolCall.Name != ""
}

// RouteRequest is the orchestrator's external surface.
type RouteRequest struct {
	Prompt    string
	Messages  []Message // optional pre-built conversation; Prompt appended if set
	Tools     []ToolDefinition
	ModelHint string
	TaskHint  TaskType
	Priority  Priority
	Deadline  time.Time // zero = no deadline
	TraceID   string    // assigned if empty
}

// RouteResponse pairs the final provider response with its cost event.
type RouteResponse struct {
	Response      *APIResponse
	Cost          *CostEvent
	ModelID       string
	FallbackDepth int
	TraceID       string
}
