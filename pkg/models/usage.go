package models

// Usage tracks token accounting for a single assistant turn. Provider
// adapters overwrite (never sum) these fields on every usage-bearing
// stream event and call Recompute (spec §4.3 Usage accumulation). The
// drivers in internal/providers pass no price table to Recompute, so they
// refresh TotalTokens and leave Cost at zero.
type Usage struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CacheRead   int64 `json:"cache_read"`
	CacheWrite  int64 `json:"cache_write"`
	TotalTokens int64 `json:"total_tokens"`
	Cost        Cost  `json:"cost"`
}

// Cost is the dollar cost of a turn, broken down by token category.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
	Total      float64 `json:"total"`
}

// ModelPrice holds per-million-token rates for one model.
type ModelPrice struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// PriceTable resolves a model ID (with a provider-level fallback) to its
// per-token pricing.
type PriceTable struct {
	byModel    map[string]ModelPrice
	byProvider map[string]ModelPrice
}

// NewPriceTable creates an empty price table.
func NewPriceTable() *PriceTable {
	return &PriceTable{
		byModel:    make(map[string]ModelPrice),
		byProvider: make(map[string]ModelPrice),
	}
}

// SetModelPrice registers pricing for an exact model ID.
func (t *PriceTable) SetModelPrice(model string, price ModelPrice) {
	t.byModel[model] = price
}

// SetProviderDefaultPrice registers a fallback price used for any model of
// a provider that has no exact-match entry.
func (t *PriceTable) SetProviderDefaultPrice(provider string, price ModelPrice) {
	t.byProvider[provider] = price
}

// Resolve returns the price for model, falling back to the provider
// default, then to a zero price.
func (t *PriceTable) Resolve(provider, model string) ModelPrice {
	if p, ok := t.byModel[model]; ok {
		return p
	}
	if p, ok := t.byProvider[provider]; ok {
		return p
	}
	return ModelPrice{}
}

// Recompute fills TotalTokens and Cost from the four token fields and the
// resolved price, as required after every usage overwrite (spec §4.3).
func (u *Usage) Recompute(provider, model string, prices *PriceTable) {
	u.TotalTokens = u.Input + u.Output + u.CacheRead + u.CacheWrite
	if prices == nil {
		return
	}
	price := prices.Resolve(provider, model)
	const million = 1_000_000.0
	u.Cost = Cost{
		Input:      float64(u.Input) * price.InputPerMTok / million,
		Output:     float64(u.Output) * price.OutputPerMTok / million,
		CacheRead:  float64(u.CacheRead) * price.CacheReadPerMTok / million,
		CacheWrite: float64(u.CacheWrite) * price.CacheWritePerMTok / million,
	}
	u.Cost.Total = u.Cost.Input + u.Cost.Output + u.Cost.CacheRead + u.Cost.CacheWrite
}
