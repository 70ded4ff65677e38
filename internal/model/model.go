// Package model defines the core data structures for the hip3-venue engine.
package model

// Company is the static metadata for a listed synthetic asset. Companies are
// defined at process start and never mutated.
type Company struct {
	// ID is the unique registry key, e.g. "openai"
	ID string `json:"id"`

	// Name is the display name
	Name string `json:"name"`

	// Ticker is the synthetic ticker symbol
	Ticker string `json:"ticker"`

	// Category is the sector label shown alongside the asset
	Category string `json:"category"`
}

// PriceBand is the configured floor/ceiling for an asset's traded price.
type PriceBand struct {
	Floor   float64 `json:"floor"`
	Ceiling float64 `json:"ceiling"`
}

// Bounds is the valid value range for a single metric.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MetricField describes one entry of a metric schema: its key, its weight in
// the schema score, the bounds every value is clamped to, and the amplitude of
// the deterministic drift applied on top of the baseline.
type MetricField struct {
	Key    string  `json:"key"`
	Weight float64 `json:"weight"`
	Bounds Bounds  `json:"bounds"`
	Jitter float64 `json:"jitter"`
}

// MetricValues maps metric keys to values for one schema.
type MetricValues map[string]float64

// Clone returns an independent copy of the values.
func (v MetricValues) Clone() MetricValues {
	if v == nil {
		return MetricValues{}
	}
	out := make(MetricValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// MetricGroup bundles the internal and external metric values of one company.
// A partially filled group is also used as an ingestion payload, where absent
// keys mean "keep the default".
type MetricGroup struct {
	Internal MetricValues `json:"internal"`
	External MetricValues `json:"external"`
}

// Clone returns a deep copy of the group.
func (g MetricGroup) Clone() MetricGroup {
	return MetricGroup{
		Internal: g.Internal.Clone(),
		External: g.External.Clone(),
	}
}

// Merge layers the overrides on top of the group field by field and returns a
// new group. Neither input is modified.
func (g MetricGroup) Merge(overrides MetricGroup) MetricGroup {
	merged := g.Clone()
	for k, val := range overrides.Internal {
		merged.Internal[k] = val
	}
	for k, val := range overrides.External {
		merged.External[k] = val
	}
	return merged
}

// IsEmpty reports whether the group carries no values at all.
func (g MetricGroup) IsEmpty() bool {
	return len(g.Internal) == 0 && len(g.External) == 0
}

// NormalizedMetrics holds per-field normalized values in [0,1].
type NormalizedMetrics struct {
	Internal MetricValues `json:"internal"`
	External MetricValues `json:"external"`
}

// Valuation is the metric-implied assessment of one company at one timestamp.
type Valuation struct {
	InternalScore      float64      `json:"internalScore"`
	ExternalScore      float64      `json:"externalScore"`
	CompositeScore     float64      `json:"compositeScore"`
	TargetPrice        float64      `json:"targetPrice"`
	NormalizedInternal MetricValues `json:"normalizedInternal"`
	NormalizedExternal MetricValues `json:"normalizedExternal"`
}

// CompanyValuation is the stateless one-shot valuation of a company, as
// returned by the oracle's snapshot listing.
type CompanyValuation struct {
	Company
	Metrics           MetricGroup       `json:"metrics"`
	NormalizedMetrics NormalizedMetrics `json:"normalizedMetrics"`
	InternalScore     float64           `json:"internalScore"`
	ExternalScore     float64           `json:"externalScore"`
	CompositeScore    float64           `json:"compositeScore"`
	TargetPrice       float64           `json:"targetPrice"`
	PriceFloor        float64           `json:"priceFloor"`
	PriceCeiling      float64           `json:"priceCeiling"`
	Timestamp         int64             `json:"timestamp"`
}

// Asset is the full simulated state of one synthetic asset inside the oracle.
type Asset struct {
	Company
	// Price is the traded price, clamped to the company's band
	Price float64 `json:"price"`

	// Change is the percentage move versus the previous history point
	Change float64 `json:"change"`

	// Volume is the derived synthetic trading volume, floored at 0.1
	Volume float64 `json:"volume"`

	// History is the rolling window of past prices, newest last
	History []float64 `json:"history"`

	Metrics           MetricGroup       `json:"metrics"`
	NormalizedMetrics NormalizedMetrics `json:"normalizedMetrics"`
	InternalScore     float64           `json:"internalScore"`
	ExternalScore     float64           `json:"externalScore"`
	CompositeScore    float64           `json:"compositeScore"`
	TargetPrice       float64           `json:"targetPrice"`
}

// OracleState is the immutable snapshot of the whole asset universe at one
// watermark. Transitions return fresh states and never mutate the input.
type OracleState struct {
	Assets []Asset `json:"assets"`

	// LastUpdated is a Unix-millisecond timestamp, always aligned to the
	// oracle step interval
	LastUpdated int64 `json:"lastUpdated"`
}
