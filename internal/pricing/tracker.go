package pricing

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Sink receives cost events as they are recorded. Provided by the embedding
// application; may be nil.
type Sink func(*types.CostEvent)

// Tracker converts completed responses into cost events and keeps them in a
// bounded ring buffer. Event appends are serialized.
type Tracker struct {
	table *Table
	sink  Sink

	mu     sync.Mutex
	ring   []*types.CostEvent
	next   int
	filled bool
}

// NewTracker builds a tracker with the given ring capacity (10 000 default
// upstream).
func NewTracker(table *Table, capacity int, sink Sink) *Tracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Tracker{
		table: table,
		sink:  sink,
		ring:  make([]*types.CostEvent, capacity),
	}
}

// RecordMeta carries the request metadata attached to a cost event.
type RecordMeta struct {
	TraceID       string
	ModelID       string
	APIName       string
	Provider      types.Provider
	TaskType      types.TaskType
	Status        types.CostStatus
	FallbackDepth int
}

// Record computes cost from aggregated usage and appends the event.
// A zero-token usage that somehow prices to a non-zero cost is a billing
// integrity violation.
func (t *Tracker) Record(usage types.Usage, meta RecordMeta) (*types.CostEvent, error) {
	in, out, total := t.table.Cost(meta.Provider, meta.APIName, usage)

	if usage.TotalTokens == 0 && !total.IsZero() {
		return nil, &llm.Error{
			Kind:     llm.KindBillingIntegrity,
			Provider: meta.Provider,
			Model:    meta.ModelID,
			TraceID:  meta.TraceID,
			Err:      errNonZeroCostForZeroTokens,
		}
	}

	event := &types.CostEvent{
		TraceID:          meta.TraceID,
		Timestamp:        time.Now().UTC(),
		ModelID:          meta.ModelID,
		Provider:         string(meta.Provider),
		TaskType:         meta.TaskType,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostUSDInput:     in,
		CostUSDOutput:    out,
		CostUSDTotal:     total,
		Status:           meta.Status,
		FallbackDepth:    meta.FallbackDepth,
	}

	t.mu.Lock()
	t.ring[t.next] = event
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.filled = true
	}
	t.mu.Unlock()

	metrics.ObserveTokens(string(meta.Provider), meta.ModelID, usage.PromptTokens, usage.CompletionTokens)
	micro, _ := total.Mul(decimal.NewFromInt(1_000_000)).Float64()
	metrics.CostMicroUSDTotal.WithLabelValues(string(meta.Provider), meta.ModelID).Add(micro)

	if t.sink != nil {
		t.sink(event)
	}

	L_debug("cost event recorded",
		"traceId", meta.TraceID,
		"model", meta.ModelID,
		"tokens", usage.TotalTokens,
		"costUsd", total.StringFixed(8),
		"status", meta.Status)

	return event, nil
}

// Events returns the recorded events, oldest first.
func (t *Tracker) Events() []*types.CostEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*types.CostEvent
	if t.filled {
		out = append(out, t.ring[t.next:]...)
	}
	out = append(out, t.ring[:t.next]...)

	// Drop nil slots from a partially filled ring.
	events := make([]*types.CostEvent, 0, len(out))
	for _, e := range out {
		if e != nil {
			events = append(events, e)
		}
	}
	return events
}

// EstimateInput exposes pre-call input cost estimation for callers.
func (t *Tracker) EstimateInput(provider types.Provider, apiName string, promptTokens int) decimal.Decimal {
	return t.table.EstimateInput(provider, apiName, promptTokens)
}

var errNonZeroCostForZeroTokens = errors.New("non-zero cost computed for zero tokens")
