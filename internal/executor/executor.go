// Package executor runs the multi-turn tool-call conversation loop with
// exact token aggregation.
package executor

import (
	"context"
	"time"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Executor drives the tool-call loop for one request at a time. An
// instance is shared across requests; per-request state lives on the
// stack of Execute.
type Executor struct {
	maxIterations int
	toolTimeout   time.Duration
	tools         *ToolRegistry
}

// New builds an executor. Defaults: 10 iterations, 30s tool timeout.
func New(tools *ToolRegistry, maxIterations int, toolTimeout time.Duration) *Executor {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Executor{
		maxIterations: maxIterations,
		toolTimeout:   toolTimeout,
		tools:         tools,
	}
}

// Execute runs the conversation until the model stops calling tools or the
// iteration cap is hit. The returned response carries the aggregated usage
// of every iteration, never a single call's.
func (e *Executor) Execute(ctx context.Context, client llm.Client, req *types.APIRequest) (*types.APIResponse, error) {
	messages := make([]types.Message, len(req.Messages))
	copy(messages, req.Messages)

	var agg Aggregator
	var last *types.APIResponse

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, llm.E(llm.KindCancelled, err)
		}

		call := &types.APIRequest{
			ModelAPIName: req.ModelAPIName,
			Messages:     messages,
			Tools:        req.Tools,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
			TraceID:      req.TraceID,
		}
		resp, err := client.ChatCompletion(ctx, call)
		if err != nil {
			return nil, err
		}
		last = resp

		if err := agg.Add(resp.Usage); err != nil {
			return nil, err
		}

		if resp.FinishReason != types.FinishToolCall || !resp.HasToolCall() {
			if err := agg.Validate(); err != nil {
				return nil, err
			}
			resp.Usage = agg.Total()
			L_debug("execution complete",
				"traceId", req.TraceID,
				"iterations", iteration,
				"totalTokens", resp.Usage.TotalTokens)
			return resp, nil
		}

		result, err := e.runTool(ctx, resp.ToolCall, req.TraceID)
		if err != nil {
			return nil, err
		}

		callID := resp.ToolCall.ID
		if callID == "" {
			callID = newToolCallID()
		}
		// Append happens-before the next provider call: assistant tool-call
		// first, then the tool result under the same id.
		messages = append(messages,
			types.Message{
				Role:       "assistant",
				Content:    resp.Content,
				ToolCallID: callID,
				ToolName:   resp.ToolCall.Name,
				ToolArgs:   resp.ToolCall.Arguments,
			},
			types.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: callID,
			},
		)
	}

	// Iteration cap: return the partial result with aggregated totals.
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	last.Usage = agg.Total()
	last.FinishReason = types.FinishLength
	last.ToolCall = nil
	L_warn("tool-call iteration cap reached",
		"traceId", req.TraceID,
		"iterations", e.maxIterations,
		"totalTokens", last.Usage.TotalTokens)
	return last, nil
}

// runTool resolves and invokes one tool handler under the tool timeout.
func (e *Executor) runTool(ctx context.Context, call *types.ToolCall, traceID string) (string, error) {
	handler, ok := e.tools.Get(call.Name)
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return "", llm.Ef(llm.KindToolExecution, "no handler registered for tool %q", call.Name)
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(toolCtx, call.Arguments)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		L_error("tool handler failed", "tool", call.Name, "traceId", traceID, "error", err)
		return "", &llm.Error{Kind: llm.KindToolExecution, TraceID: traceID, Err: err}
	}

	metrics.ToolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
	L_debug("tool executed",
		"tool", call.Name,
		"traceId", traceID,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}
