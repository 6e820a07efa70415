package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to a local Ollama daemon over its native chat API.
// No SDK: the API is two JSON endpoints.
type OllamaClient struct {
	baseURL string
	http    *http.Client
	opts    Options
}

// NewOllamaClient builds a client for OLLAMA_HOST (default localhost:11434).
// Local providers need no credentials.
func NewOllamaClient(opts Options) (*OllamaClient, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}

	timeout := 120 * time.Second
	if opts.HTTPTimeout > 0 {
		timeout = time.Duration(opts.HTTPTimeout) * time.Second
	}

	c := &OllamaClient{
		baseURL: strings.TrimSuffix(host, "/"),
		http:    &http.Client{Timeout: timeout},
		opts:    opts,
	}
	L_debug("ollama client created", "baseURL", c.baseURL)
	return c, nil
}

func (c *OllamaClient) Provider() types.Provider { return types.ProviderLocal }

// ValidateConfig always succeeds; reachability is a health concern.
func (c *OllamaClient) ValidateConfig() error { return nil }

// HealthCheck hits /api/tags, which lists local models without inference.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return Classify(err, types.ProviderLocal, "")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Classify(err, types.ProviderLocal, "")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Ef(KindTransientProvider, "ollama health: status %d", resp.StatusCode)
	}
	return nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunc `json:"function"`
}

type ollamaToolCallFunc struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaToolSpec `json:"function"`
}

type ollamaToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// ChatCompletion performs one non-streaming /api/chat call.
func (c *OllamaClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	start := time.Now()

	body := ollamaChatRequest{
		Model:    req.ModelAPIName,
		Messages: toOllamaMessages(req.Messages),
		Stream:   false,
	}
	for _, td := range req.Tools {
		body.Tools = append(body.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolSpec{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			},
		})
	}
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		body.Options = opts
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Ef(KindUnknown, "marshal ollama request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, Classify(err, types.ProviderLocal, req.ModelAPIName)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, Classify(err, types.ProviderLocal, req.ModelAPIName)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, Classify(err, types.ProviderLocal, req.ModelAPIName)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, Classify(
			fmt.Errorf("ollama chat: status %d: %s", httpResp.StatusCode, string(respBody)),
			types.ProviderLocal, req.ModelAPIName)
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, Ef(KindTransientProvider, "decode ollama response: %v", err)
	}

	out := &types.APIResponse{
		Content:      chat.Message.Content,
		ModelAPIName: req.ModelAPIName,
		Usage: types.Usage{
			PromptTokens:     chat.PromptEvalCount,
			CompletionTokens: chat.EvalCount,
			TotalTokens:      chat.PromptEvalCount + chat.EvalCount,
		},
		FinishReason: types.FinishStop,
	}
	if chat.DoneReason == "length" {
		out.FinishReason = types.FinishLength
	}

	if len(chat.Message.ToolCalls) > 0 {
		tc := chat.Message.ToolCalls[0]
		// Ollama does not assign call ids; the executor synthesizes one.
		out.ToolCall = &types.ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
		out.FinishReason = types.FinishToolCall
	}

	L_debug("ollama request completed",
		"model", req.ModelAPIName,
		"duration", time.Since(start).Round(time.Millisecond),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens)

	return out, nil
}

// Close shuts the idle connection pool.
func (c *OllamaClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func toOllamaMessages(messages []types.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system", "user":
			out = append(out, ollamaMessage{Role: msg.Role, Content: msg.Content})
		case "assistant":
			m := ollamaMessage{Role: "assistant", Content: msg.Content}
			if msg.ToolName != "" {
				m.ToolCalls = []ollamaToolCall{{
					Function: ollamaToolCallFunc{Name: msg.ToolName, Arguments: msg.ToolArgs},
				}}
			}
			out = append(out, m)
		case "tool":
			out = append(out, ollamaMessage{Role: "tool", Content: msg.Content})
		}
	}
	return out
}
