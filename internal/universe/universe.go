// Package universe holds the static registry the venue trades against:
// company metadata, price bands, the internal/external metric schemas, the
// default metric baselines, and the enrichment source routing per company.
// Everything in here is fixed at compile time; mutable state lives elsewhere.
package universe

import (
	"errors"

	"github.com/yourorg/hip3-venue/internal/model"
)

// ErrUnknownCompany is returned when an id is not part of the registry.
var ErrUnknownCompany = errors.New("unknown company")

// CompanyIDs lists the registry keys in listing order.
var CompanyIDs = []string{"openai", "spacex", "neuralink"}

var companies = map[string]model.Company{
	"openai":    {ID: "openai", Name: "OpenAI", Ticker: "OPAI", Category: "AI Research"},
	"spacex":    {ID: "spacex", Name: "SpaceX", Ticker: "SPAC", Category: "Aerospace"},
	"neuralink": {ID: "neuralink", Name: "Neuralink", Ticker: "NRLX", Category: "Neurotech"},
}

var priceBands = map[string]model.PriceBand{
	"openai":    {Floor: 160, Ceiling: 250},
	"spacex":    {Floor: 220, Ceiling: 340},
	"neuralink": {Floor: 70, Ceiling: 150},
}

// InternalSchema describes the company-internal metrics. Weights are designed
// to sum to 1 per schema but the engine does not rely on that.
var InternalSchema = []model.MetricField{
	{Key: "annualRevenue", Weight: 0.42, Bounds: model.Bounds{Min: 0, Max: 120}, Jitter: 1.2},
	{Key: "sentimentScore", Weight: 0.28, Bounds: model.Bounds{Min: -1, Max: 1}, Jitter: 0.12},
	{Key: "monthlyActiveUsers", Weight: 0.3, Bounds: model.Bounds{Min: 0, Max: 400}, Jitter: 6},
}

// ExternalSchema describes the market-environment metrics.
var ExternalSchema = []model.MetricField{
	{Key: "marketPerformance", Weight: 0.38, Bounds: model.Bounds{Min: -0.25, Max: 0.25}, Jitter: 0.018},
	{Key: "verticalPerformance", Weight: 0.34, Bounds: model.Bounds{Min: -0.3, Max: 0.3}, Jitter: 0.02},
	{Key: "fearGreedIndex", Weight: 0.28, Bounds: model.Bounds{Min: 0, Max: 100}, Jitter: 3.5},
}

// defaultBaselines are the zero-dependency fallback metrics. Revenue is in USD
// billions, MAU in millions, market/vertical performance as index deltas.
var defaultBaselines = map[string]model.MetricGroup{
	"openai": {
		Internal: model.MetricValues{
			"annualRevenue":      3.6,
			"sentimentScore":     0.34,
			"monthlyActiveUsers": 95,
		},
		External: model.MetricValues{
			"marketPerformance":   0.05,
			"verticalPerformance": 0.08,
			"fearGreedIndex":      62,
		},
	},
	"spacex": {
		Internal: model.MetricValues{
			"annualRevenue":      9.8,
			"sentimentScore":     0.27,
			"monthlyActiveUsers": 32,
		},
		External: model.MetricValues{
			"marketPerformance":   0.041,
			"verticalPerformance": 0.052,
			"fearGreedIndex":      58,
		},
	},
	"neuralink": {
		Internal: model.MetricValues{
			"annualRevenue":      0.24,
			"sentimentScore":     0.15,
			"monthlyActiveUsers": 1.5,
		},
		External: model.MetricValues{
			"marketPerformance":   0.033,
			"verticalPerformance": 0.018,
			"fearGreedIndex":      54,
		},
	},
}

// Source routes the enrichment fetchers for one company.
type Source struct {
	CrunchbaseID   string
	PitchbookID    string
	SentimentQuery string
	MAUQuery       string
	MarketSymbol   string
	VerticalSymbol string
}

var sources = map[string]Source{
	"openai": {
		CrunchbaseID:   "openai",
		PitchbookID:    "openai",
		SentimentQuery: `"OpenAI" OR "ChatGPT"`,
		MAUQuery:       `"OpenAI" OR "ChatGPT"`,
		MarketSymbol:   "SPY",
		VerticalSymbol: "QQQ",
	},
	"spacex": {
		CrunchbaseID:   "space-exploration-technologies",
		PitchbookID:    "space-exploration-technologies",
		SentimentQuery: `"SpaceX" OR "Starlink"`,
		MAUQuery:       `"Starlink" OR "SpaceX"`,
		MarketSymbol:   "SPY",
		VerticalSymbol: "XAR",
	},
	"neuralink": {
		CrunchbaseID:   "neuralink",
		PitchbookID:    "neuralink",
		SentimentQuery: `"Neuralink"`,
		MAUQuery:       `"Neuralink"`,
		MarketSymbol:   "SPY",
		VerticalSymbol: "XLV",
	},
}

// Company returns the static metadata for an id.
func Company(id string) (model.Company, bool) {
	c, ok := companies[id]
	return c, ok
}

// Band returns the configured price band for an id.
func Band(id string) (model.PriceBand, bool) {
	b, ok := priceBands[id]
	return b, ok
}

// Baseline returns a copy of the default metric baseline for an id.
func Baseline(id string) (model.MetricGroup, bool) {
	b, ok := defaultBaselines[id]
	if !ok {
		return model.MetricGroup{}, false
	}
	return b.Clone(), true
}

// SourceFor returns the enrichment routing for an id, if any.
func SourceFor(id string) (Source, bool) {
	s, ok := sources[id]
	return s, ok
}

// Known reports whether an id is part of the registry.
func Known(id string) bool {
	_, ok := companies[id]
	return ok
}
