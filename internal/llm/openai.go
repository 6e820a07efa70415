package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// googleCompatBaseURL is Google's OpenAI-compatible endpoint for Gemini.
const googleCompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenAIClient serves every OpenAI-protocol provider: OpenAI itself, Azure
// OpenAI, Google's compatibility endpoint, and DIAL gateways. The wire
// protocol is identical; only client config differs.
type OpenAIClient struct {
	provider types.Provider
	client   *openai.Client
	opts     Options
}

// NewOpenAIClient builds a client for the given OpenAI-compatible provider.
func NewOpenAIClient(provider types.Provider, opts Options) (*OpenAIClient, error) {
	c := &OpenAIClient{provider: provider, opts: opts}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}

	var cfg openai.ClientConfig
	switch provider {
	case types.ProviderOpenAI:
		cfg = openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	case types.ProviderAzure:
		cfg = openai.DefaultAzureConfig(os.Getenv("AZURE_OPENAI_API_KEY"), os.Getenv("AZURE_OPENAI_ENDPOINT"))
	case types.ProviderGoogle:
		cfg = openai.DefaultConfig(os.Getenv("GOOGLE_API_KEY"))
		cfg.BaseURL = googleCompatBaseURL
	case types.ProviderDIAL:
		cfg = openai.DefaultConfig(os.Getenv("DIAL_API_KEY"))
		cfg.BaseURL = normalizeBaseURL(os.Getenv("DIAL_ENDPOINT"))
	default:
		return nil, Ef(KindProviderUnavailable, "provider %s is not OpenAI-compatible", provider)
	}
	c.client = openai.NewClientWithConfig(cfg)

	L_debug("openai-compatible client created", "provider", provider)
	return c, nil
}

// normalizeBaseURL ensures OpenAI-compatible endpoints end with /v1.
func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL
}

func (c *OpenAIClient) Provider() types.Provider { return c.provider }

// ValidateConfig checks the provider's environment credentials.
func (c *OpenAIClient) ValidateConfig() error {
	var missing []string
	switch c.provider {
	case types.ProviderOpenAI:
		missing = requireEnv("OPENAI_API_KEY")
	case types.ProviderAzure:
		missing = requireEnv("AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT")
	case types.ProviderGoogle:
		missing = requireEnv("GOOGLE_API_KEY")
	case types.ProviderDIAL:
		missing = requireEnv("DIAL_API_KEY", "DIAL_ENDPOINT")
	}
	if len(missing) > 0 {
		return &Error{
			Kind:        KindProviderUnavailable,
			Provider:    c.provider,
			Err:         fmt.Errorf("missing credentials"),
			Remediation: "set " + strings.Join(missing, ", "),
		}
	}
	return nil
}

func requireEnv(vars ...string) []string {
	var missing []string
	for _, v := range vars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// HealthCheck lists models, which is free of token quota.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return Classify(err, c.provider, "")
}

// ChatCompletion performs one non-streaming completion call.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	start := time.Now()

	oaiReq := openai.ChatCompletionRequest{
		Model:       req.ModelAPIName,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Tools:       toOpenAITools(req.Tools),
	}

	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, Classify(err, c.provider, req.ModelAPIName)
	}
	if len(resp.Choices) == 0 {
		return nil, Ef(KindTransientProvider, "%s returned no choices", c.provider)
	}

	choice := resp.Choices[0]
	out := &types.APIResponse{
		Content:      choice.Message.Content,
		ModelAPIName: req.ModelAPIName,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		},
		Raw: resp,
	}

	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		out.ToolCall = &types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
		out.FinishReason = types.FinishToolCall
	}

	L_debug("openai request completed",
		"provider", c.provider,
		"model", req.ModelAPIName,
		"duration", time.Since(start).Round(time.Millisecond),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens)

	return out, nil
}

// Close is a no-op: go-openai uses the shared HTTP transport.
func (c *OpenAIClient) Close() error { return nil }

func mapOpenAIFinish(r openai.FinishReason) types.FinishReason {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return types.FinishToolCall
	case openai.FinishReasonLength:
		return types.FinishLength
	case openai.FinishReasonStop, openai.FinishReasonNull, "":
		return types.FinishStop
	}
	return types.FinishStop
}

// toOpenAIMessages converts conversation messages to the wire format.
// Assistant tool-call messages become tool_calls entries; tool results
// become role=tool messages keyed by the call id.
func toOpenAIMessages(messages []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case "user":
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case "assistant":
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if msg.ToolName != "" {
				m.ToolCalls = []openai.ToolCall{{
					ID:   msg.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      msg.ToolName,
						Arguments: string(msg.ToolArgs),
					},
				}}
			}
			out = append(out, m)
		case "tool":
			content := msg.Content
			if content == "" {
				content = "(no output)"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return out
}

func toOpenAITools(defs []types.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(defs))
	for i, td := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			},
		}
	}
	return out
}
