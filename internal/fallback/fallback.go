// Package fallback traverses the ranked candidate chain, classifying
// failures as retryable or terminal and enforcing the global deadline.
package fallback

import (
	"context"
	"math/rand"
	"time"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// AttemptFn executes one candidate. The candidate is a registry model id.
type AttemptFn func(ctx context.Context, candidate string) (*types.APIResponse, error)

// Attempt is the structured record emitted for every try.
type Attempt struct {
	TraceID   string `json:"traceId"`
	Candidate string `json:"candidate"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"` // "ok" or the error kind
	LatencyMS int64  `json:"latencyMs"`
}

// Backoff is exponential with jitter. Waits never exceed Cap.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // fraction, e.g. 0.2 for ±20%
}

// DefaultBackoff matches the upstream retry policy: 0.5s base, 5s cap,
// ±20% jitter.
var DefaultBackoff = Backoff{
	Base:   500 * time.Millisecond,
	Cap:    5 * time.Second,
	Jitter: 0.2,
}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if b.Jitter > 0 {
		span := float64(d) * b.Jitter
		d = time.Duration(float64(d) - span + rand.Float64()*2*span)
	}
	return d
}

// Result pairs the winning response with its chain position and the
// per-attempt records.
type Result struct {
	Response *types.APIResponse
	Depth    int // 0 = primary
	Attempts []Attempt
}

// Manager runs candidate chains. Stateless; safe for concurrent use.
type Manager struct {
	backoff Backoff
}

// New builds a manager with the given backoff (zero value = default).
func New(backoff Backoff) *Manager {
	if backoff.Base <= 0 {
		backoff = DefaultBackoff
	}
	return &Manager{backoff: backoff}
}

// Run tries candidates in order until one succeeds. Transient failures of
// the primary earn one backoff retry; every other failure moves to the
// next candidate, except terminal kinds which abort the whole chain. The
// ctx deadline is global: attempts inherit the remaining budget, and a
// deadline elapsing during a retry wait aborts.
func (m *Manager) Run(ctx context.Context, candidates []string, fn AttemptFn, traceID string) (*Result, error) {
	if len(candidates) == 0 {
		return nil, &llm.Error{
			Kind:    llm.KindNoCandidate,
			TraceID: traceID,
		}
	}

	var attempts []Attempt
	var lastErr error
	attemptNo := 0

	for depth, candidate := range candidates {
		retried := false

	attempt:
		if err := ctx.Err(); err != nil {
			return nil, &llm.Error{Kind: llm.KindCancelled, TraceID: traceID, Attempts: attemptNo, Err: err}
		}

		attemptNo++
		start := time.Now()
		resp, err := fn(ctx, candidate)
		latency := time.Since(start)

		if err == nil {
			attempts = append(attempts, Attempt{
				TraceID: traceID, Candidate: candidate, Attempt: attemptNo,
				Outcome: "ok", LatencyMS: latency.Milliseconds(),
			})
			metrics.AttemptsTotal.WithLabelValues(candidate, "ok").Inc()
			metrics.FallbackDepth.Observe(float64(depth))
			L_info("attempt succeeded",
				"traceId", traceID, "candidate", candidate,
				"attempt", attemptNo, "depth", depth,
				"latency", latency.Round(time.Millisecond))
			return &Result{Response: resp, Depth: depth, Attempts: attempts}, nil
		}

		kind := llm.KindOf(err)
		lastErr = err
		attempts = append(attempts, Attempt{
			TraceID: traceID, Candidate: candidate, Attempt: attemptNo,
			Outcome: string(kind), LatencyMS: latency.Milliseconds(),
		})
		metrics.AttemptsTotal.WithLabelValues(candidate, string(kind)).Inc()
		L_warn("attempt failed",
			"traceId", traceID, "candidate", candidate,
			"attempt", attemptNo, "kind", kind,
			"latency", latency.Round(time.Millisecond))

		if llm.Terminal(kind) {
			return nil, decorate(err, traceID, attemptNo)
		}

		// The primary earns one same-model retry on transient failures;
		// deeper candidates move on immediately.
		if depth == 0 && !retried && llm.RetrySameModel(kind) {
			retried = true
			if err := m.wait(ctx, 1); err != nil {
				return nil, &llm.Error{Kind: llm.KindCancelled, TraceID: traceID, Attempts: attemptNo, Err: err}
			}
			goto attempt
		}
	}

	return nil, decorate(lastErr, traceID, attemptNo)
}

// wait sleeps for the backoff delay, aborting if the deadline fires first.
func (m *Manager) wait(ctx context.Context, retry int) error {
	delay := m.backoff.Delay(retry)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decorate stamps trace and attempt metadata onto the final error.
func decorate(err error, traceID string, attempts int) error {
	if typed, ok := err.(*llm.Error); ok {
		typed.TraceID = traceID
		typed.Attempts = attempts
		return typed
	}
	return &llm.Error{Kind: llm.KindOf(err), TraceID: traceID, Attempts: attempts, Err: err}
}
