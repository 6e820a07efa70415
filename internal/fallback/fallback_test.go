package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

func fastBackoff() Backoff {
	return Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond, Jitter: 0}
}

func okResponse() *types.APIResponse {
	return &types.APIResponse{Content: "ok", FinishReason: types.FinishStop}
}

func TestRunPrimarySucceeds(t *testing.T) {
	m := New(fastBackoff())
	var tried []string
	result, err := m.Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		tried = append(tried, c)
		return okResponse(), nil
	}, "t-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Depth != 0 {
		t.Errorf("depth = %d, want 0", result.Depth)
	}
	if len(tried) != 1 || tried[0] != "a" {
		t.Errorf("tried = %v, want [a]", tried)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Outcome != "ok" {
		t.Errorf("attempts = %+v", result.Attempts)
	}
}

func TestRunTransientPrimaryRetriedOnce(t *testing.T) {
	m := New(fastBackoff())
	calls := 0
	result, err := m.Run(context.Background(), []string{"a"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		calls++
		if calls == 1 {
			return nil, llm.Ef(llm.KindTransientProvider, "503")
		}
		return okResponse(), nil
	}, "t-2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
	if result.Depth != 0 {
		t.Errorf("depth = %d, want 0: retry stays on the primary", result.Depth)
	}
}

func TestRunNextModelMovesImmediately(t *testing.T) {
	m := New(fastBackoff())
	var tried []string
	result, err := m.Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		tried = append(tried, c)
		if c == "a" {
			return nil, llm.Ef(llm.KindContextTooLong, "prompt is too long")
		}
		return okResponse(), nil
	}, "t-3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Depth != 1 {
		t.Errorf("depth = %d, want 1", result.Depth)
	}
	if len(tried) != 2 {
		t.Errorf("tried = %v, want exactly one attempt per candidate", tried)
	}
}

func TestRunTerminalAbortsChain(t *testing.T) {
	m := New(fastBackoff())
	calls := 0
	_, err := m.Run(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		calls++
		return nil, llm.Ef(llm.KindBillingIntegrity, "totals disagree")
	}, "t-4")
	if llm.KindOf(err) != llm.KindBillingIntegrity {
		t.Fatalf("kind = %v, want billing_integrity", llm.KindOf(err))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1: terminal errors must not fall through", calls)
	}
}

func TestRunAllTransientAttemptCount(t *testing.T) {
	// Every candidate fails transiently: each is tried once, plus one
	// retry of the primary.
	m := New(fastBackoff())
	chain := []string{"a", "b", "c"}
	calls := map[string]int{}
	total := 0
	_, err := m.Run(context.Background(), chain, func(ctx context.Context, c string) (*types.APIResponse, error) {
		calls[c]++
		total++
		return nil, llm.Ef(llm.KindTransientProvider, "overloaded")
	}, "t-5")
	if err == nil {
		t.Fatal("Run should fail when every candidate fails")
	}
	if total != len(chain)+1 {
		t.Errorf("total attempts = %d, want %d", total, len(chain)+1)
	}
	if calls["a"] != 2 || calls["b"] != 1 || calls["c"] != 1 {
		t.Errorf("per-candidate attempts = %v", calls)
	}

	var typed *llm.Error
	if !errors.As(err, &typed) {
		t.Fatalf("final error is untyped: %v", err)
	}
	if typed.Attempts != len(chain)+1 {
		t.Errorf("final error attempts = %d, want %d", typed.Attempts, len(chain)+1)
	}
	if typed.TraceID != "t-5" {
		t.Errorf("final error trace = %q, want t-5", typed.TraceID)
	}
}

func TestRunEmptyChain(t *testing.T) {
	m := New(fastBackoff())
	_, err := m.Run(context.Background(), nil, func(ctx context.Context, c string) (*types.APIResponse, error) {
		t.Fatal("attempt fn must not run with an empty chain")
		return nil, nil
	}, "t-6")
	if llm.KindOf(err) != llm.KindNoCandidate {
		t.Errorf("kind = %v, want no_candidate", llm.KindOf(err))
	}
}

func TestRunDeadlineDuringBackoff(t *testing.T) {
	m := New(Backoff{Base: time.Second, Cap: time.Second, Jitter: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Run(ctx, []string{"a"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		return nil, llm.Ef(llm.KindTransientProvider, "503")
	}, "t-7")
	if llm.KindOf(err) != llm.KindCancelled {
		t.Fatalf("kind = %v, want cancelled", llm.KindOf(err))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("deadline should interrupt the backoff wait, took %v", elapsed)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	m := New(fastBackoff())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Run(ctx, []string{"a"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		t.Fatal("attempt fn must not run after cancellation")
		return nil, nil
	}, "t-8")
	if llm.KindOf(err) != llm.KindCancelled {
		t.Errorf("kind = %v, want cancelled", llm.KindOf(err))
	}
}

func TestRunAttemptMetricLabels(t *testing.T) {
	m := New(fastBackoff())
	okBefore := testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues("metric-a", "ok"))
	failBefore := testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues("metric-a", string(llm.KindContextTooLong)))

	_, err := m.Run(context.Background(), []string{"metric-a", "metric-b"}, func(ctx context.Context, c string) (*types.APIResponse, error) {
		if c == "metric-a" {
			return nil, llm.Ef(llm.KindContextTooLong, "prompt is too long")
		}
		return okResponse(), nil
	}, "t-9")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues("metric-a", string(llm.KindContextTooLong))); got != failBefore+1 {
		t.Errorf("failed attempt counter delta = %v, want 1", got-failBefore)
	}
	if got := testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues("metric-b", "ok")); got != 1 {
		t.Errorf("ok attempt counter = %v, want 1", got)
	}
	if okBefore != 0 {
		t.Errorf("metric-a ok counter started at %v, want 0", okBefore)
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Cap: 5 * time.Second, Jitter: 0.2}
	for n := 1; n <= 8; n++ {
		d := b.Delay(n)
		if d < 0 || d > time.Duration(float64(b.Cap)*1.2)+time.Millisecond {
			t.Errorf("Delay(%d) = %v out of bounds", n, d)
		}
	}

	noJitter := Backoff{Base: 500 * time.Millisecond, Cap: 5 * time.Second}
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := noJitter.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
