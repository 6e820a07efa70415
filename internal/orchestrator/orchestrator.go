// Package orchestrator is the top-level routing pipeline: analyze the
// prompt, select a model, run the tool-call loop through the provider
// pool, fall back on failure, and record the cost.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/executor"
	"github.com/helmsman-ai/helmsman/internal/fallback"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/pool"
	"github.com/helmsman-ai/helmsman/internal/pricing"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/score"
	"github.com/helmsman-ai/helmsman/internal/selector"
	"github.com/helmsman-ai/helmsman/internal/task"
	"github.com/helmsman-ai/helmsman/internal/tokens"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// completionBuffer is reserved headroom when capping max_tokens against a
// model's context window.
const completionBuffer = 512

// Orchestrator owns the full routing pipeline. Safe for concurrent use.
type Orchestrator struct {
	cfg      *config.Config
	registry *registry.Registry
	analyzer *task.Analyzer
	selector *selector.Selector
	pool     *pool.Pool
	tools    *executor.ToolRegistry
	executor *executor.Executor
	fallback *fallback.Manager
	tracker  *pricing.Tracker
	health   *llm.HealthCache

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option customizes construction.
type Option func(*settings)

type settings struct {
	factory pool.Factory
}

// WithClientFactory overrides provider client construction. Embedding
// applications and tests use it to substitute their own clients; nil keeps
// the real constructors.
func WithClientFactory(f pool.Factory) Option {
	return func(s *settings) { s.factory = f }
}

// New wires the pipeline from configuration. sink receives cost events as
// they are recorded; nil is allowed.
func New(cfg *config.Config, sink pricing.Sink, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	table, err := pricing.LoadTable(cfg.PricesFile)
	if err != nil {
		return nil, err
	}
	if err := table.ValidateRegistry(reg); err != nil {
		return nil, err
	}

	analyzer, err := task.NewAnalyzer(cfg.PatternsFile, cfg.AnalyzerCacheSize)
	if err != nil {
		return nil, err
	}
	guide, err := selector.LoadGuide(cfg.GuideFile)
	if err != nil {
		return nil, err
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	clientPool := pool.New(llm.Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, s.factory)
	scorer := score.NewScorer(cfg.Weights, clientPool)

	tools := executor.NewToolRegistry()

	o := &Orchestrator{
		cfg:      cfg,
		registry: reg,
		analyzer: analyzer,
		selector: selector.New(reg, scorer, guide, cfg.MaxFallbacks),
		pool:     clientPool,
		tools:    tools,
		executor: executor.New(tools, cfg.MaxFunctionCalls, cfg.ToolTimeout),
		fallback: fallback.New(fallback.DefaultBackoff),
		tracker:  pricing.NewTracker(table, cfg.CostBufferSize, sink),
		health:   llm.NewHealthCache(cfg.HealthCacheTTL),
	}
	L_info("orchestrator ready", "models", reg.Len(), "providers", len(reg.Providers()))
	return o, nil
}

// RegisterTool binds a handler invoked when a model requests the named tool.
func (o *Orchestrator) RegisterTool(name string, handler types.ToolHandler) {
	o.tools.Register(name, handler)
}

// ListModels returns the registered model descriptors, id-sorted.
func (o *Orchestrator) ListModels() []*registry.Model {
	return o.registry.All()
}

// Tracker exposes the cost tracker for event inspection.
func (o *Orchestrator) Tracker() *pricing.Tracker {
	return o.tracker
}

// Route runs one request through the full pipeline.
func (o *Orchestrator) Route(ctx context.Context, req *types.RouteRequest) (*types.RouteResponse, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, llm.Ef(llm.KindCancelled, "orchestrator is shut down")
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	trace := req.TraceID
	if trace == "" {
		trace = uuid.NewString()
	}
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	reqs := o.requirements(req)
	L_debug("task analyzed",
		"traceId", trace,
		"taskType", reqs.TaskType,
		"confidence", reqs.Confidence,
		"priority", reqs.Priority)

	candidates, err := o.candidates(req, reqs, trace)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("failed", string(reqs.TaskType)).Inc()
		return nil, err
	}

	messages := o.conversation(req)

	attempt := func(ctx context.Context, candidate string) (*types.APIResponse, error) {
		m, ok := o.registry.Get(candidate)
		if !ok {
			return nil, llm.Ef(llm.KindNoCandidate, "model %q disappeared from registry", candidate)
		}
		client, err := o.pool.Get(m.Provider)
		if err != nil {
			return nil, err
		}
		call := &types.APIRequest{
			ModelAPIName: m.APIName,
			Messages:     messages,
			Tools:        req.Tools,
			Temperature:  o.cfg.Temperature,
			MaxTokens:    o.maxTokensFor(m, messages),
			TraceID:      trace,
		}
		start := time.Now()
		resp, err := o.executor.Execute(ctx, client, call)
		metrics.RequestDuration.WithLabelValues(string(m.Provider), m.ID).Observe(time.Since(start).Seconds())
		return resp, err
	}

	result, err := o.fallback.Run(ctx, candidates, attempt, trace)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("failed", string(reqs.TaskType)).Inc()
		o.recordFailure(err, reqs, trace)
		return nil, err
	}

	resp, err := o.recordSuccess(result, candidates[result.Depth], reqs, trace)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("failed", string(reqs.TaskType)).Inc()
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues(string(resp.Cost.Status), string(reqs.TaskType)).Inc()
	return resp, nil
}

// recordSuccess prices the winning response and assembles the route result.
// The winning model is re-resolved from the registry; a concurrent Reload
// may have dropped it between selection and here.
func (o *Orchestrator) recordSuccess(result *fallback.Result, modelID string, reqs types.TaskRequirements, trace string) (*types.RouteResponse, error) {
	m, ok := o.registry.Get(modelID)
	if !ok {
		return nil, &llm.Error{
			Kind:    llm.KindNoCandidate,
			Model:   modelID,
			TraceID: trace,
			Err:     fmt.Errorf("model %q disappeared from registry", modelID),
		}
	}

	status := types.CostStatusSuccess
	if result.Depth > 0 {
		status = types.CostStatusFallbackUsed
	}
	event, err := o.tracker.Record(result.Response.Usage, pricing.RecordMeta{
		TraceID:       trace,
		ModelID:       modelID,
		APIName:       m.APIName,
		Provider:      m.Provider,
		TaskType:      reqs.TaskType,
		Status:        status,
		FallbackDepth: result.Depth,
	})
	if err != nil {
		return nil, err
	}

	return &types.RouteResponse{
		Response:      result.Response,
		Cost:          event,
		ModelID:       modelID,
		FallbackDepth: result.Depth,
		TraceID:       trace,
	}, nil
}

// requirements analyzes the prompt and applies caller overrides.
func (o *Orchestrator) requirements(req *types.RouteRequest) types.TaskRequirements {
	reqs := o.analyzer.Analyze(o.analysisText(req))
	if req.TaskHint.Valid() {
		reqs.TaskType = req.TaskHint
		reqs.Confidence = 1.0
	}
	if req.Priority != "" {
		reqs.Priority = req.Priority
	}
	if len(req.Tools) > 0 {
		reqs.NeedsFunctionCalling = true
	}
	return reqs
}

// analysisText picks the text the analyzer classifies: the prompt, or the
// last user message when only a pre-built conversation is supplied.
func (o *Orchestrator) analysisText(req *types.RouteRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// candidates builds the ordered attempt list: model hint first when it
// resolves and its provider has credentials, then the selector's chain.
func (o *Orchestrator) candidates(req *types.RouteRequest, reqs types.TaskRequirements, trace string) ([]string, error) {
	primary, chain, err := o.selector.Select(reqs, nil)
	if err != nil {
		if typed, ok := err.(*llm.Error); ok {
			typed.TraceID = trace
		}
		return nil, err
	}
	candidates := append([]string{primary}, chain...)

	if req.ModelHint != "" {
		m, ok := o.registry.Get(req.ModelHint)
		switch {
		case !ok:
			L_warn("model hint not in registry, ignoring", "traceId", trace, "hint", req.ModelHint)
		case !o.pool.Available(m.Provider):
			L_warn("model hint provider has no credentials, ignoring",
				"traceId", trace, "hint", req.ModelHint, "provider", m.Provider)
		default:
			candidates = prepend(candidates, m.ID)
		}
	}

	if len(candidates) == 0 {
		return nil, &llm.Error{
			Kind:        llm.KindNoCandidate,
			TraceID:     trace,
			Err:         fmt.Errorf("no usable model for task %s", reqs.TaskType),
			Remediation: "set provider credentials or register more models",
		}
	}
	L_debug("candidates selected", "traceId", trace, "chain", candidates)
	return candidates, nil
}

// conversation assembles the outgoing message list.
func (o *Orchestrator) conversation(req *types.RouteRequest) []types.Message {
	messages := make([]types.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	if req.Prompt != "" {
		messages = append(messages, types.UserMessage(req.Prompt))
	}
	return messages
}

// maxTokensFor caps the configured max_tokens against the model's context
// window, leaving room for the estimated input.
func (o *Orchestrator) maxTokensFor(m *registry.Model, messages []types.Message) int {
	input := 0
	for _, msg := range messages {
		input += tokens.Get().CountWithOverhead(msg.Content, 4)
	}
	return tokens.CapMaxTokens(o.cfg.MaxTokens, m.ContextWindow, input, completionBuffer)
}

// recordFailure optionally emits a status=failed cost event. Failed runs
// have no trustworthy aggregate usage, so the event carries zero tokens.
func (o *Orchestrator) recordFailure(routeErr error, reqs types.TaskRequirements, trace string) {
	if !o.cfg.EmitFailedCostEvents {
		return
	}
	var provider types.Provider
	var model string
	if typed, ok := routeErr.(*llm.Error); ok {
		provider = typed.Provider
		model = typed.Model
	}
	if _, err := o.tracker.Record(types.Usage{}, pricing.RecordMeta{
		TraceID:  trace,
		ModelID:  model,
		Provider: provider,
		TaskType: reqs.TaskType,
		Status:   types.CostStatusFailed,
	}); err != nil {
		L_warn("failed-cost event rejected", "traceId", trace, "error", err)
	}
}

// Health probes every provider present in the registry that has
// credentials. Probes run concurrently and share the TTL cache.
func (o *Orchestrator) Health(ctx context.Context) map[types.Provider]bool {
	providers := o.registry.Providers()
	out := make(map[types.Provider]bool, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, provider := range providers {
		if !o.pool.Available(provider) {
			// Same lock as the probe goroutines; they may already be writing.
			mu.Lock()
			out[provider] = false
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(p types.Provider) {
			defer wg.Done()
			healthy := false
			if client, err := o.pool.Get(p); err == nil {
				healthy = o.health.Check(ctx, client) == nil
			}
			mu.Lock()
			out[p] = healthy
			mu.Unlock()
		}(provider)
	}
	wg.Wait()
	return out
}

// Shutdown waits up to the configured grace for in-flight requests, then
// closes every provider client. Idempotent; Route calls after Shutdown fail.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.cfg.ShutdownGrace):
		L_warn("shutdown grace elapsed with requests in flight", "grace", o.cfg.ShutdownGrace)
	}
	o.pool.Shutdown()
	L_info("orchestrator stopped")
}

// prepend puts id first and drops any later duplicate.
func prepend(candidates []string, id string) []string {
	out := make([]string, 0, len(candidates)+1)
	out = append(out, id)
	for _, c := range candidates {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}
