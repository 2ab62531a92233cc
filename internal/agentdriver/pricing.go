package agentdriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andymwolf/solveengine/internal/obslog"
)

// ModelPricing is USD per million tokens for one model, mirroring the
// breakdown an agent result event reports usage in.
type ModelPricing struct {
	InputPerMTok         float64 `json:"input_per_mtok"`
	CacheCreation5mPerMTok float64 `json:"cache_creation_5m_per_mtok"`
	CacheCreation1hPerMTok float64 `json:"cache_creation_1h_per_mtok"`
	CacheReadPerMTok     float64 `json:"cache_read_per_mtok"`
	OutputPerMTok        float64 `json:"output_per_mtok"`
}

// defaultPricing is the built-in table, used whenever no
// SecretFetcher-backed override is configured or the fetch fails. Rates
// mirror the published Claude API prices at the time of writing; an
// operator who needs to track price changes should supply an override
// secret rather than waiting on a new release.
var defaultPricing = map[string]ModelPricing{
	"claude-opus-4": {
		InputPerMTok:           15.00,
		CacheCreation5mPerMTok: 18.75,
		CacheCreation1hPerMTok: 30.00,
		CacheReadPerMTok:       1.50,
		OutputPerMTok:          75.00,
	},
	"claude-sonnet-4": {
		InputPerMTok:           3.00,
		CacheCreation5mPerMTok: 3.75,
		CacheCreation1hPerMTok: 6.00,
		CacheReadPerMTok:       0.30,
		OutputPerMTok:          15.00,
	},
	"claude-haiku-4": {
		InputPerMTok:           0.80,
		CacheCreation5mPerMTok: 1.00,
		CacheCreation1hPerMTok: 1.60,
		CacheReadPerMTok:       0.08,
		OutputPerMTok:          4.00,
	},
}

// PricingTable resolves a model id to its per-token rates, with an
// optional secret-backed override layered over the built-in defaults.
type PricingTable struct {
	rates map[string]ModelPricing
}

// NewPricingTable returns a table seeded with the built-in defaults.
func NewPricingTable() *PricingTable {
	rates := make(map[string]ModelPricing, len(defaultPricing))
	for k, v := range defaultPricing {
		rates[k] = v
	}
	return &PricingTable{rates: rates}
}

// LoadOverride fetches a JSON-encoded map of model id to ModelPricing from
// secretPath via fetcher and merges it over the built-in defaults. A
// fetch or decode failure is non-fatal: the table keeps its existing
// rates and the caller is expected to log the degradation.
func (t *PricingTable) LoadOverride(ctx context.Context, fetcher obslog.SecretFetcher, secretPath string) error {
	if fetcher == nil || secretPath == "" {
		return nil
	}
	raw, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return fmt.Errorf("agentdriver: fetch pricing override: %w", err)
	}
	var override map[string]ModelPricing
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return fmt.Errorf("agentdriver: decode pricing override: %w", err)
	}
	for k, v := range override {
		t.rates[k] = v
	}
	return nil
}

// Rate resolves model to its pricing, matching on exact id first and
// falling back to a known-prefix match (model ids often carry a date
// suffix, e.g. "claude-sonnet-4-20250514"). A model id matching no known
// entry gets the zero ModelPricing: its cost contribution is zero rather
// than borrowed from an unrelated model's rates (spec.md 4.5). Callers
// that need to know whether the zero value means "free" or "unknown"
// should use IsKnown.
func (t *PricingTable) Rate(model string) ModelPricing {
	rate, _ := t.rate(model)
	return rate
}

// IsKnown reports whether model matches an exact or prefix entry in the
// table.
func (t *PricingTable) IsKnown(model string) bool {
	_, ok := t.rate(model)
	return ok
}

func (t *PricingTable) rate(model string) (ModelPricing, bool) {
	if rate, ok := t.rates[model]; ok {
		return rate, true
	}
	for prefix, rate := range t.rates {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return rate, true
		}
	}
	return ModelPricing{}, false
}

// CostUSD computes the dollar cost of usage against a model's rate. An
// unknown model contributes zero.
func (t *PricingTable) CostUSD(model string, usage TokenUsage) float64 {
	rate := t.Rate(model)
	const perMillion = 1_000_000.0
	return float64(usage.InputTokens)*rate.InputPerMTok/perMillion +
		float64(usage.CacheCreation5m)*rate.CacheCreation5mPerMTok/perMillion +
		float64(usage.CacheCreation1h)*rate.CacheCreation1hPerMTok/perMillion +
		float64(usage.CacheReadTokens)*rate.CacheReadPerMTok/perMillion +
		float64(usage.OutputTokens)*rate.OutputPerMTok/perMillion
}

// TotalCostUSD sums cost across every model in tokensByModel and reports
// the ids of any model that matched no known pricing entry, so the
// caller can surface the fact that those models contributed zero cost
// rather than silently under-reporting the total (spec.md 4.5, 9).
func (t *PricingTable) TotalCostUSD(tokensByModel map[string]*TokenUsage) (float64, []string) {
	var total float64
	var unknown []string
	for model, usage := range tokensByModel {
		if usage == nil {
			continue
		}
		if !t.IsKnown(model) {
			unknown = append(unknown, model)
		}
		total += t.CostUSD(model, *usage)
	}
	return total, unknown
}
