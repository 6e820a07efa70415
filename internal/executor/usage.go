package executor

import (
	"fmt"

	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Aggregator accumulates token usage across tool-loop iterations under the
// billing-integrity rules: totals are always recomputed from prompt plus
// completion, provider-stated totals are never trusted, and counts only
// ever grow.
type Aggregator struct {
	total    types.Usage
	sawUsage bool // at least one iteration reported non-zero usage
}

// Add folds one iteration's usage into the running totals.
// Negative counts violate monotonic additivity and are fatal.
func (a *Aggregator) Add(u types.Usage) error {
	if u.PromptTokens < 0 || u.CompletionTokens < 0 {
		return llm.Ef(llm.KindBillingIntegrity,
			"negative token delta: prompt=%d completion=%d", u.PromptTokens, u.CompletionTokens)
	}
	a.total.PromptTokens += u.PromptTokens
	a.total.CompletionTokens += u.CompletionTokens
	// Recompute; the provider's TotalTokens is deliberately ignored.
	a.total.TotalTokens = a.total.PromptTokens + a.total.CompletionTokens

	if u.TotalTokens > 0 || u.PromptTokens > 0 || u.CompletionTokens > 0 {
		a.sawUsage = true
	}
	return a.check()
}

// check enforces the recomputation identity after every step.
func (a *Aggregator) check() error {
	if a.total.TotalTokens != a.total.PromptTokens+a.total.CompletionTokens {
		return llm.Ef(llm.KindBillingIntegrity,
			"total %d != prompt %d + completion %d",
			a.total.TotalTokens, a.total.PromptTokens, a.total.CompletionTokens)
	}
	return nil
}

// Validate runs the final integrity checks before the response is returned.
func (a *Aggregator) Validate() error {
	if err := a.check(); err != nil {
		return err
	}
	if a.sawUsage && a.total.TotalTokens == 0 {
		return llm.E(llm.KindBillingIntegrity,
			fmt.Errorf("provider reported usage but aggregate total is zero"))
	}
	return nil
}

// Total returns the aggregated usage.
func (a *Aggregator) Total() types.Usage { return a.total }
