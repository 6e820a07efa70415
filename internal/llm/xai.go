package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// XAIClient adapts xAI's Grok API. The SDK is streaming-first; chunks are
// accumulated into one atomic response.
type XAIClient struct {
	client *xai.Client
	opts   Options
}

// NewXAIClient builds a client from XAI_API_KEY.
func NewXAIClient(opts Options) (*XAIClient, error) {
	c := &XAIClient{opts: opts}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}

	cfg := xai.Config{APIKey: xai.NewSecureString(os.Getenv("XAI_API_KEY"))}
	if opts.HTTPTimeout > 0 {
		cfg.Timeout = time.Duration(opts.HTTPTimeout) * time.Second
	}
	client, err := xai.New(cfg)
	if err != nil {
		return nil, Classify(err, types.ProviderXAI, "")
	}
	c.client = client
	L_debug("xai client created")
	return c, nil
}

func (c *XAIClient) Provider() types.Provider { return types.ProviderXAI }

func (c *XAIClient) ValidateConfig() error {
	if os.Getenv("XAI_API_KEY") == "" {
		return &Error{
			Kind:        KindProviderUnavailable,
			Provider:    types.ProviderXAI,
			Err:         fmt.Errorf("missing credentials"),
			Remediation: "set XAI_API_KEY",
		}
	}
	return nil
}

// HealthCheck lists models.
func (c *XAIClient) HealthCheck(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return Classify(err, types.ProviderXAI, "")
}

func safeInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

// ChatCompletion streams one completion and accumulates it.
func (c *XAIClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}

	xreq := xai.NewChatRequest().
		WithModel(req.ModelAPIName).
		WithMaxTokens(safeInt32(maxTokens))

	for _, msg := range req.Messages {
		addXAIMessage(xreq, msg)
	}

	if len(req.Tools) > 0 {
		for _, td := range req.Tools {
			schemaJSON, err := json.Marshal(td.InputSchema)
			if err != nil {
				return nil, Ef(KindUnknown, "marshal tool schema for %s: %v", td.Name, err)
			}
			xreq.AddTool(xai.NewFunctionTool(td.Name, td.Description).WithParameters(schemaJSON))
		}
		xreq.WithToolChoice(xai.ToolChoiceAuto)
	}

	stream, err := c.client.StreamChat(ctx, xreq)
	if err != nil {
		return nil, Classify(err, types.ProviderXAI, req.ModelAPIName)
	}

	var (
		text         strings.Builder
		finishReason xai.FinishReason
		usage        xai.Usage
		toolCall     *types.ToolCall
	)

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Classify(err, types.ProviderXAI, req.ModelAPIName)
		}

		if chunk.Delta != "" {
			text.WriteString(chunk.Delta)
		}

		for _, tc := range chunk.ToolCalls {
			if tc.Function == nil || tc.IsServerSide() {
				continue
			}
			if toolCall == nil {
				toolCall = &types.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				}
			}
		}

		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		usage = chunk.Usage
	}

	out := &types.APIResponse{
		Content:      text.String(),
		ToolCall:     toolCall,
		ModelAPIName: req.ModelAPIName,
		Usage: types.Usage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
			TotalTokens:      int(usage.PromptTokens) + int(usage.CompletionTokens),
		},
	}

	switch finishReason {
	case xai.FinishReasonToolCalls:
		out.FinishReason = types.FinishToolCall
	case xai.FinishReasonLength:
		out.FinishReason = types.FinishLength
	default:
		out.FinishReason = types.FinishStop
	}
	if toolCall != nil {
		out.FinishReason = types.FinishToolCall
	}

	L_debug("xai request completed",
		"model", req.ModelAPIName,
		"duration", time.Since(start).Round(time.Millisecond),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens)

	return out, nil
}

// Close is a no-op; the SDK manages its own connections.
func (c *XAIClient) Close() error { return nil }

func addXAIMessage(req *xai.ChatRequest, msg types.Message) {
	switch msg.Role {
	case "system":
		req.SystemMessage(xai.SystemContent{Text: msg.Content})
	case "user":
		req.UserMessage(xai.UserContent{Text: msg.Content})
	case "assistant":
		if msg.ToolName != "" {
			// Text explicitly set, can be empty per xAI API requirements.
			req.AssistantMessage(xai.AssistantContent{
				Text: msg.Content,
				ToolCalls: []xai.HistoryToolCall{{
					ID:        msg.ToolCallID,
					Name:      msg.ToolName,
					Arguments: string(msg.ToolArgs),
				}},
			})
			return
		}
		if msg.Content != "" {
			req.AssistantMessage(xai.AssistantContent{Text: msg.Content})
		}
	case "tool":
		if msg.ToolCallID == "" {
			L_warn("xai: tool result with empty call id, skipping")
			return
		}
		req.ToolResult(xai.ToolContent{CallID: msg.ToolCallID, Result: msg.Content})
	}
}
