package models

import "testing"

func TestUsageRecompute(t *testing.T) {
	prices := NewPriceTable()
	prices.SetModelPrice("claude-x", ModelPrice{
		InputPerMTok:      3,
		OutputPerMTok:     15,
		CacheReadPerMTok:  0.3,
		CacheWritePerMTok: 3.75,
	})

	u := Usage{Input: 1_000_000, Output: 500_000, CacheRead: 2_000_000, CacheWrite: 100_000}
	u.Recompute("anthropic", "claude-x", prices)

	if u.TotalTokens != 3_600_000 {
		t.Fatalf("total tokens = %d, want 3600000", u.TotalTokens)
	}
	wantTotal := 3.0 + 7.5 + 0.6 + 0.375
	if diff := u.Cost.Total - wantTotal; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("cost.total = %v, want %v", u.Cost.Total, wantTotal)
	}
}

func TestPriceTableProviderFallback(t *testing.T) {
	prices := NewPriceTable()
	prices.SetProviderDefaultPrice("openai", ModelPrice{InputPerMTok: 1, OutputPerMTok: 2})

	u := Usage{Input: 1_000_000, Output: 1_000_000}
	u.Recompute("openai", "gpt-unknown", prices)
	if u.Cost.Input != 1 || u.Cost.Output != 2 {
		t.Fatalf("expected fallback provider price, got %+v", u.Cost)
	}
}

func TestUsageRecomputeOverwritesNotSums(t *testing.T) {
	// Usage.Recompute only derives totals from current field values; callers
	// are responsible for overwriting fields (not summing) before calling it.
	u := Usage{Input: 10}
	u.Recompute("x", "y", nil)
	u.Input = 5
	u.Recompute("x", "y", nil)
	if u.TotalTokens != 5 {
		t.Fatalf("expected overwrite semantics, got total=%d", u.TotalTokens)
	}
}
