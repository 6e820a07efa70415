// Package metrics exposes Prometheus instrumentation for the orchestrator.
// All collectors are registered on the default registry so an embedding
// application can serve them with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completed Route calls by outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "requests_total",
		Help:      "Completed route requests by status.",
	}, []string{"status", "task_type"})

	// RequestDuration tracks end-to-end Route latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "helmsman",
		Name:      "request_duration_seconds",
		Help:      "End-to-end route latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider", "model"})

	// AttemptsTotal counts individual candidate attempts by outcome. The
	// fallback manager only knows model ids, so there is no provider label.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "attempts_total",
		Help:      "Candidate attempts by model and outcome.",
	}, []string{"model", "outcome"})

	// FallbackDepth observes how deep into the candidate chain requests land.
	FallbackDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "helmsman",
		Name:      "fallback_depth",
		Help:      "Candidate chain depth of the winning attempt (0 = primary).",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	// TokensTotal counts aggregated tokens by direction.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "tokens_total",
		Help:      "Aggregated token usage.",
	}, []string{"provider", "model", "direction"})

	// CostMicroUSDTotal counts cost in micro-dollars. Counters are floats but
	// micro-dollar granularity keeps rounding noise out of dashboards.
	CostMicroUSDTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "cost_microusd_total",
		Help:      "Accumulated cost in micro-USD.",
	}, []string{"provider", "model"})

	// ToolCallsTotal counts tool invocations made by the executor.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "tool_calls_total",
		Help:      "Tool handler invocations by outcome.",
	}, []string{"tool", "outcome"})

	// AnalyzerCache counts task-analysis cache hits and misses.
	AnalyzerCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "analyzer_cache_total",
		Help:      "Task analyzer cache lookups.",
	}, []string{"result"})

	// HealthProbes counts provider health probes (cache misses only).
	HealthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "helmsman",
		Name:      "health_probes_total",
		Help:      "Provider health probes by result.",
	}, []string{"provider", "result"})
)

// ObserveTokens records prompt/completion token counters for one response.
func ObserveTokens(provider, model string, prompt, completion int) {
	TokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	TokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
}
