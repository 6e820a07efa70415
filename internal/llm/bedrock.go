package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// BedrockClient adapts AWS Bedrock through the Converse API, which gives a
// uniform message/tool shape across the hosted model families.
type BedrockClient struct {
	runtime *bedrockruntime.Client
	opts    Options
}

// NewBedrockClient builds a client from the standard AWS env credentials.
func NewBedrockClient(opts Options) (*BedrockClient, error) {
	c := &BedrockClient{opts: opts}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, &Error{
			Kind:     KindProviderUnavailable,
			Provider: types.ProviderBedrock,
			Err:      fmt.Errorf("loading AWS config: %w", err),
		}
	}
	c.runtime = bedrockruntime.NewFromConfig(awsCfg)
	L_debug("bedrock client created", "region", os.Getenv("AWS_REGION"))
	return c, nil
}

func (c *BedrockClient) Provider() types.Provider { return types.ProviderBedrock }

func (c *BedrockClient) ValidateConfig() error {
	missing := requireEnv("AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION")
	if len(missing) > 0 {
		return &Error{
			Kind:        KindProviderUnavailable,
			Provider:    types.ProviderBedrock,
			Err:         fmt.Errorf("missing credentials"),
			Remediation: "set AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_REGION",
		}
	}
	return nil
}

// HealthCheck resolves signing credentials. Bedrock has no quota-free
// runtime probe, so credential resolution stands in for a list-models call.
func (c *BedrockClient) HealthCheck(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		return Classify(err, types.ProviderBedrock, "")
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return &Error{
			Kind:     KindProviderUnavailable,
			Provider: types.ProviderBedrock,
			Err:      err,
		}
	}
	return nil
}

// ChatCompletion performs one Converse call.
func (c *BedrockClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	start := time.Now()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.ModelAPIName),
	}

	system, messages := splitSystem(req.Messages)
	if system != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}

	encoded, err := toBedrockMessages(messages)
	if err != nil {
		return nil, err
	}
	input.Messages = encoded

	if cfg := toBedrockTools(req.Tools); cfg != nil {
		input.ToolConfig = cfg
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	inference := &brtypes.InferenceConfiguration{}
	if maxTokens > 0 {
		inference.MaxTokens = aws.Int32(safeInt32(maxTokens))
	}
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(req.Temperature))
	}
	if inference.MaxTokens != nil || inference.Temperature != nil {
		input.InferenceConfig = inference
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, Classify(err, types.ProviderBedrock, req.ModelAPIName)
	}

	out := &types.APIResponse{
		ModelAPIName: req.ModelAPIName,
		FinishReason: mapBedrockStop(output.StopReason),
		Raw:          output,
	}
	if usage := output.Usage; usage != nil {
		in := int(aws.ToInt32(usage.InputTokens))
		outTok := int(aws.ToInt32(usage.OutputTokens))
		out.Usage = types.Usage{
			PromptTokens:     in,
			CompletionTokens: outTok,
			TotalTokens:      in + outTok,
		}
	}

	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				out.Content += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				var args json.RawMessage
				if v.Value.Input != nil {
					if data, err := v.Value.Input.MarshalSmithyDocument(); err == nil {
						args = json.RawMessage(data)
					}
				}
				out.ToolCall = &types.ToolCall{
					ID:        aws.ToString(v.Value.ToolUseId),
					Name:      aws.ToString(v.Value.Name),
					Arguments: args,
				}
				out.FinishReason = types.FinishToolCall
			}
		}
	}

	L_debug("bedrock request completed",
		"model", req.ModelAPIName,
		"duration", time.Since(start).Round(time.Millisecond),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens,
		"stopReason", output.StopReason)

	return out, nil
}

// Close is a no-op; the SDK shares the default HTTP transport.
func (c *BedrockClient) Close() error { return nil }

func mapBedrockStop(reason brtypes.StopReason) types.FinishReason {
	switch reason {
	case brtypes.StopReasonToolUse:
		return types.FinishToolCall
	case brtypes.StopReasonMaxTokens:
		return types.FinishLength
	}
	return types.FinishStop
}

func toBedrockMessages(messages []types.Message) ([]brtypes.Message, error) {
	var out []brtypes.Message
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			if msg.Content == "" {
				continue
			}
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: msg.Content}},
			})

		case "assistant":
			var blocks []brtypes.ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: msg.Content})
			}
			if msg.ToolName != "" {
				var input any
				if len(msg.ToolArgs) > 0 {
					if err := json.Unmarshal(msg.ToolArgs, &input); err != nil {
						return nil, Ef(KindUnknown, "decode tool args for %s: %v", msg.ToolName, err)
					}
				} else {
					input = map[string]any{}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(msg.ToolCallID),
						Name:      aws.String(msg.ToolName),
						Input:     document.NewLazyDocument(&input),
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})

		case "tool":
			// Tool results travel as user messages correlated by toolUseId.
			out = append(out, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolResult{
						Value: brtypes.ToolResultBlock{
							ToolUseId: aws.String(msg.ToolCallID),
							Content: []brtypes.ToolResultContentBlock{
								&brtypes.ToolResultContentBlockMemberText{Value: msg.Content},
							},
						},
					},
				},
			})
		}
	}
	if len(out) == 0 {
		return nil, Ef(KindUnknown, "bedrock requires at least one user or assistant message")
	}
	return out, nil
}

func toBedrockTools(defs []types.ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		var schema any = def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(&schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}
