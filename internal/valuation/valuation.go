// Package valuation converts metric snapshots into composite scores and
// target prices via weighted normalization against the schema bounds.
package valuation

import (
	"fmt"
	"math"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/universe"
)

// ErrUnknownCompany mirrors the registry sentinel for callers that only
// import this package.
var ErrUnknownCompany = universe.ErrUnknownCompany

// Clamp limits value to [min, max].
func Clamp(value, min, max float64) float64 {
	return math.Min(math.Max(value, min), max)
}

// Normalize maps value into [0,1] relative to the bounds, clamping first.
// A degenerate zero-width range normalizes to 0.
func Normalize(value float64, bounds model.Bounds) float64 {
	clamped := Clamp(value, bounds.Min, bounds.Max)
	r := bounds.Max - bounds.Min
	if r == 0 {
		return 0
	}
	return (clamped - bounds.Min) / r
}

// RoundTo rounds to the given number of decimal places. Non-finite input
// rounds to 0.
func RoundTo(value float64, precision int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}

// Round2 rounds to two decimal places.
func Round2(value float64) float64 { return RoundTo(value, 2) }

// Round3 rounds to three decimal places.
func Round3(value float64) float64 { return RoundTo(value, 3) }

// ScoreSchema computes the weighted normalized score for one schema along with
// the per-field normalized values. Missing fields fall back to the schema
// minimum. The sum is intentionally not divided by the weight total: the
// score's natural range is a property of the schema weights.
func ScoreSchema(schema []model.MetricField, values model.MetricValues) (float64, model.MetricValues) {
	score := 0.0
	normalized := make(model.MetricValues, len(schema))
	for _, field := range schema {
		raw, ok := values[field.Key]
		if !ok {
			raw = field.Bounds.Min
		}
		n := Normalize(raw, field.Bounds)
		score += n * field.Weight
		normalized[field.Key] = n
	}
	return score, normalized
}

// Valuate derives the full valuation of a company from a metric snapshot.
// It is a pure function; the only failure mode is an unknown company id.
func Valuate(id string, metrics model.MetricGroup) (model.Valuation, error) {
	band, ok := universe.Band(id)
	if !ok {
		return model.Valuation{}, fmt.Errorf("%w: %q", ErrUnknownCompany, id)
	}

	internalScore, normalizedInternal := ScoreSchema(universe.InternalSchema, metrics.Internal)
	externalScore, normalizedExternal := ScoreSchema(universe.ExternalSchema, metrics.External)
	composite := internalScore*0.5 + externalScore*0.5

	return model.Valuation{
		InternalScore:      internalScore,
		ExternalScore:      externalScore,
		CompositeScore:     composite,
		TargetPrice:        band.Floor + composite*(band.Ceiling-band.Floor),
		NormalizedInternal: normalizedInternal,
		NormalizedExternal: normalizedExternal,
	}, nil
}
