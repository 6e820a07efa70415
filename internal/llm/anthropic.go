package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// AnthropicClient adapts the Anthropic Messages API. Tool use arrives as a
// tool_use content block; the pipeline sees only APIResponse.ToolCall.
type AnthropicClient struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicClient builds a client from ANTHROPIC_API_KEY.
func NewAnthropicClient(opts Options) (*AnthropicClient, error) {
	c := &AnthropicClient{opts: opts}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	c.client = anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	L_debug("anthropic client created")
	return c, nil
}

func (c *AnthropicClient) Provider() types.Provider { return types.ProviderAnthropic }

func (c *AnthropicClient) ValidateConfig() error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return &Error{
			Kind:        KindProviderUnavailable,
			Provider:    types.ProviderAnthropic,
			Err:         fmt.Errorf("missing credentials"),
			Remediation: "set ANTHROPIC_API_KEY",
		}
	}
	return nil
}

// HealthCheck lists models; cheap and quota-free.
func (c *AnthropicClient) HealthCheck(ctx context.Context) error {
	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	return Classify(err, types.ProviderAnthropic, "")
}

// ChatCompletion performs one Messages API call.
func (c *AnthropicClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.ModelAPIName),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}

	system, messages := splitSystem(req.Messages)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	params.Messages = toAnthropicMessages(messages)

	if tools := toAnthropicTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, Classify(err, types.ProviderAnthropic, req.ModelAPIName)
	}

	out := &types.APIResponse{
		ModelAPIName: req.ModelAPIName,
		FinishReason: mapAnthropicStop(string(msg.StopReason)),
		Usage: types.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens) + int(msg.Usage.OutputTokens),
		},
		Raw: msg,
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += variant.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			out.ToolCall = &types.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			}
			out.FinishReason = types.FinishToolCall
		}
	}

	L_debug("anthropic request completed",
		"model", req.ModelAPIName,
		"duration", time.Since(start).Round(time.Millisecond),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens,
		"stopReason", msg.StopReason)

	return out, nil
}

// Close is a no-op: the SDK holds no pooled resources beyond the default
// transport.
func (c *AnthropicClient) Close() error { return nil }

func mapAnthropicStop(reason string) types.FinishReason {
	switch reason {
	case "tool_use":
		return types.FinishToolCall
	case "max_tokens":
		return types.FinishLength
	}
	return types.FinishStop
}

// splitSystem pulls system messages out of the conversation; Anthropic
// takes them as a top-level parameter, not a message role.
func splitSystem(messages []types.Message) (string, []types.Message) {
	var system string
	rest := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []types.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			if msg.Content == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			if msg.ToolName != "" {
				var input map[string]any
				json.Unmarshal(msg.ToolArgs, &input)
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    msg.ToolCallID,
						Name:  msg.ToolName,
						Input: input,
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case "tool":
			content := msg.Content
			if content == "" {
				content = "[empty result]"
			}
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, content, false),
			))
		}
	}
	return out
}

func toAnthropicTools(defs []types.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var properties any
		if props, ok := def.InputSchema["properties"]; ok {
			properties = props
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		})
	}
	return out
}
