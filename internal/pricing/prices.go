// Package pricing holds the provider price table and the cost tracker.
// All monetary math uses decimals; floats never touch billing.
package pricing

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Price is the cost of one thousand tokens, in USD.
type Price struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

// Zero reports whether both sides of the price are zero.
func (p Price) Zero() bool {
	return p.InputPer1K.IsZero() && p.OutputPer1K.IsZero()
}

// Table maps provider and wire model name to a price. Immutable after load.
type Table struct {
	prices map[types.Provider]map[string]Price
}

//go:embed defaults/prices.yaml
var defaultPrices []byte

// Prices are strings in YAML so no float parsing happens on money values.
type priceFileEntry struct {
	InputPer1K  string `yaml:"input_per_1k"`
	OutputPer1K string `yaml:"output_per_1k"`
}

type priceFile struct {
	Prices map[types.Provider]map[string]priceFileEntry `yaml:"prices"`
}

// LoadTable reads the price table from the YAML file at path, or from the
// embedded defaults when path is empty.
func LoadTable(path string) (*Table, error) {
	data := defaultPrices
	source := "embedded"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read price table: %w", err)
		}
		data = b
		source = path
	}

	var file priceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", source, err)
	}

	t := &Table{prices: make(map[types.Provider]map[string]Price)}
	for provider, models := range file.Prices {
		if !provider.Valid() {
			return nil, fmt.Errorf("price table %s: unknown provider %q", source, provider)
		}
		t.prices[provider] = make(map[string]Price, len(models))
		for apiName, entry := range models {
			in, err := decimal.NewFromString(entry.InputPer1K)
			if err != nil {
				return nil, fmt.Errorf("price table %s: %s/%s input: %w", source, provider, apiName, err)
			}
			out, err := decimal.NewFromString(entry.OutputPer1K)
			if err != nil {
				return nil, fmt.Errorf("price table %s: %s/%s output: %w", source, provider, apiName, err)
			}
			if in.IsNegative() || out.IsNegative() {
				return nil, fmt.Errorf("price table %s: %s/%s: negative price", source, provider, apiName)
			}
			t.prices[provider][apiName] = Price{InputPer1K: in, OutputPer1K: out}
		}
	}

	L_debug("price table loaded", "source", source, "providers", len(t.prices))
	return t, nil
}

// Lookup returns the price for a provider/model pair.
func (t *Table) Lookup(provider types.Provider, apiName string) (Price, bool) {
	models, ok := t.prices[provider]
	if !ok {
		return Price{}, false
	}
	p, ok := models[apiName]
	return p, ok
}

// ValidateRegistry checks that every registered model has a price entry.
// Free-tier models fall back to (0,0) implicitly.
func (t *Table) ValidateRegistry(reg *registry.Registry) error {
	for _, m := range reg.All() {
		if _, ok := t.Lookup(m.Provider, m.APIName); !ok && m.CostTier != registry.TierFree {
			return fmt.Errorf("model %s (%s/%s) has no price entry", m.ID, m.Provider, m.APIName)
		}
	}
	return nil
}

// Cost computes input/output/total cost for aggregated usage.
//
//	cost_input  = prompt_tokens / 1000 × price_input
//	cost_output = completion_tokens / 1000 × price_output
func (t *Table) Cost(provider types.Provider, apiName string, usage types.Usage) (in, out, total decimal.Decimal) {
	price, ok := t.Lookup(provider, apiName)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	thousand := decimal.NewFromInt(1000)
	in = decimal.NewFromInt(int64(usage.PromptTokens)).Div(thousand).Mul(price.InputPer1K)
	out = decimal.NewFromInt(int64(usage.CompletionTokens)).Div(thousand).Mul(price.OutputPer1K)
	return in, out, in.Add(out)
}

// EstimateInput predicts the input-side cost of sending the given token
// count to a model, for pre-call budgeting.
func (t *Table) EstimateInput(provider types.Provider, apiName string, promptTokens int) decimal.Decimal {
	price, ok := t.Lookup(provider, apiName)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(promptTokens)).Div(decimal.NewFromInt(1000)).Mul(price.InputPer1K)
}
