package agentdriver

import (
	"context"
	"errors"
	"testing"
)

func TestPricingTable_Rate_ExactMatch(t *testing.T) {
	table := NewPricingTable()
	rate := table.Rate("claude-opus-4")
	if rate.InputPerMTok != 15.00 {
		t.Errorf("InputPerMTok = %v, want 15.00", rate.InputPerMTok)
	}
}

func TestPricingTable_Rate_PrefixMatch(t *testing.T) {
	table := NewPricingTable()
	rate := table.Rate("claude-sonnet-4-20250514")
	if rate.InputPerMTok != 3.00 {
		t.Errorf("InputPerMTok = %v, want 3.00 (prefix match)", rate.InputPerMTok)
	}
}

func TestPricingTable_Rate_UnknownIsZero(t *testing.T) {
	table := NewPricingTable()
	rate := table.Rate("some-future-model")
	if rate != (ModelPricing{}) {
		t.Errorf("Rate(unknown) = %+v, want zero value", rate)
	}
	if table.IsKnown("some-future-model") {
		t.Error("IsKnown(unknown model) = true, want false")
	}
}

func TestPricingTable_CostUSD(t *testing.T) {
	table := NewPricingTable()
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := table.CostUSD("claude-sonnet-4", usage)
	want := 3.00 + 15.00
	if cost != want {
		t.Errorf("CostUSD = %v, want %v", cost, want)
	}
}

func TestPricingTable_TotalCostUSD_MultipleModels(t *testing.T) {
	table := NewPricingTable()
	tokens := map[string]*TokenUsage{
		"claude-opus-4":   {InputTokens: 1_000_000},
		"claude-sonnet-4": {InputTokens: 1_000_000},
	}
	total, unknown := table.TotalCostUSD(tokens)
	want := 15.00 + 3.00
	if total != want {
		t.Errorf("TotalCostUSD = %v, want %v", total, want)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
}

func TestPricingTable_TotalCostUSD_UnknownModelContributesZero(t *testing.T) {
	table := NewPricingTable()
	tokens := map[string]*TokenUsage{
		"claude-opus-4": {InputTokens: 1_000_000},
		"some-unreleased-model": {InputTokens: 1_000_000, OutputTokens: 1_000_000},
	}
	total, unknown := table.TotalCostUSD(tokens)
	if total != 15.00 {
		t.Errorf("TotalCostUSD = %v, want 15.00 (unknown model excluded)", total)
	}
	if len(unknown) != 1 || unknown[0] != "some-unreleased-model" {
		t.Errorf("unknown = %v, want [some-unreleased-model]", unknown)
	}
}

type fakeSecretFetcher struct {
	value string
	err   error
}

func (f fakeSecretFetcher) FetchSecret(ctx context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.value, nil
}

func (f fakeSecretFetcher) Close() error { return nil }

func TestPricingTable_LoadOverride(t *testing.T) {
	table := NewPricingTable()
	fetcher := fakeSecretFetcher{value: `{"claude-opus-4":{"input_per_mtok":99.0}}`}
	if err := table.LoadOverride(context.Background(), fetcher, "projects/x/secrets/pricing"); err != nil {
		t.Fatalf("LoadOverride() error = %v", err)
	}
	if rate := table.Rate("claude-opus-4"); rate.InputPerMTok != 99.0 {
		t.Errorf("InputPerMTok after override = %v, want 99.0", rate.InputPerMTok)
	}
}

func TestPricingTable_LoadOverride_FetchError(t *testing.T) {
	table := NewPricingTable()
	fetcher := fakeSecretFetcher{err: errors.New("secret not found")}
	if err := table.LoadOverride(context.Background(), fetcher, "projects/x/secrets/pricing"); err == nil {
		t.Fatalf("expected error from failed fetch")
	}
	if rate := table.Rate("claude-opus-4"); rate.InputPerMTok != 15.00 {
		t.Errorf("rates should be unchanged after failed override, got %v", rate.InputPerMTok)
	}
}

func TestPricingTable_LoadOverride_NoFetcher(t *testing.T) {
	table := NewPricingTable()
	if err := table.LoadOverride(context.Background(), nil, "unused"); err != nil {
		t.Errorf("LoadOverride with nil fetcher should be a no-op, got error %v", err)
	}
}
