// Package oracle implements the deterministic price oracle: stateless
// company valuations, and the bootstrapped asset universe advanced in
// lock-step at a fixed interval. State transitions are pure: they take a
// state and a timestamp and return a fresh state, which lets callers hold
// one current value and swap atomically.
package oracle

import (
	"math"
	"time"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/noise"
	"github.com/yourorg/hip3-venue/internal/snapshot"
	"github.com/yourorg/hip3-venue/internal/universe"
	"github.com/yourorg/hip3-venue/internal/valuation"
)

const (
	// StepInterval is the cadence at which the oracle advances. Consumers
	// poll at this interval; finer-grained calls are no-ops.
	StepInterval = 15 * time.Minute

	// StepIntervalMs is StepInterval in Unix milliseconds
	StepIntervalMs = noise.StepIntervalMs

	// HistoryLength is the fixed size of every asset's price history
	HistoryLength = 60
)

// Mean-reversion and noise tuning for the price path.
const (
	reversionFactor = 0.32
	macroAmplitude  = 0.018
	microAmplitude  = 0.01
)

// Engine derives asset state from metric snapshots. It holds no oracle
// state itself; states flow through Bootstrap and Advance.
type Engine struct {
	metrics *snapshot.Provider
}

// New creates an Engine backed by the given snapshot provider.
func New(metrics *snapshot.Provider) *Engine {
	return &Engine{metrics: metrics}
}

// AlignToInterval floors a Unix-millisecond timestamp to the nearest step
// boundary at or before it.
func AlignToInterval(timestampMs int64) int64 {
	aligned := timestampMs - timestampMs%StepIntervalMs
	if timestampMs < 0 && timestampMs%StepIntervalMs != 0 {
		aligned -= StepIntervalMs
	}
	return aligned
}

// priceStep moves a price one interval toward the target: 32% reversion of
// the gap plus two independent noise terms, one seeded by the anchor and one
// by the target, clamped to the band.
func priceStep(band model.PriceBand, prevPrice, targetPrice float64, timestampMs int64) float64 {
	anchor := targetPrice
	if !math.IsNaN(prevPrice) && !math.IsInf(prevPrice, 0) {
		anchor = prevPrice
	}
	reversion := (targetPrice - anchor) * reversionFactor
	macro := noise.Seeded(timestampMs, anchor) * macroAmplitude * targetPrice
	micro := noise.Seeded(timestampMs, targetPrice) * microAmplitude * targetPrice
	return valuation.Clamp(anchor+reversion+macro+micro, band.Floor, band.Ceiling)
}

// deriveVolume blends normalized adoption, sentiment and market-pulse
// signals into a synthetic volume figure. Cosmetic only; pricing never
// reads it.
func deriveVolume(id string, v model.Valuation, timestampMs int64, price float64) float64 {
	adoption := v.NormalizedInternal["monthlyActiveUsers"]*0.6 + v.NormalizedInternal["annualRevenue"]*0.4
	sentiment := v.NormalizedInternal["sentimentScore"]*0.45 + v.NormalizedExternal["fearGreedIndex"]*0.55
	marketPulse := v.NormalizedExternal["marketPerformance"]*0.55 + v.NormalizedExternal["verticalPerformance"]*0.45

	base := (adoption*0.5 + sentiment*0.25 + marketPulse*0.25) * 210
	volatility := 0.85 + v.CompositeScore*0.3
	factor := 1 + noise.Seeded(timestampMs, price+noise.CompanySeed(id))*0.22
	return valuation.Round2(math.Max(0.1, base*volatility*factor))
}

// GenerateValuations produces the stateless one-shot valuation of every
// registered company at the aligned timestamp.
func (e *Engine) GenerateValuations(timestampMs int64) ([]model.CompanyValuation, error) {
	aligned := AlignToInterval(timestampMs)
	out := make([]model.CompanyValuation, 0, len(universe.CompanyIDs))
	for _, id := range universe.CompanyIDs {
		metrics, err := e.metrics.Snapshot(id, aligned)
		if err != nil {
			return nil, err
		}
		v, err := valuation.Valuate(id, metrics)
		if err != nil {
			return nil, err
		}
		company, _ := universe.Company(id)
		band, _ := universe.Band(id)
		out = append(out, model.CompanyValuation{
			Company: company,
			Metrics: metrics,
			NormalizedMetrics: model.NormalizedMetrics{
				Internal: v.NormalizedInternal,
				External: v.NormalizedExternal,
			},
			InternalScore:  valuation.Round3(v.InternalScore),
			ExternalScore:  valuation.Round3(v.ExternalScore),
			CompositeScore: valuation.Round3(v.CompositeScore),
			TargetPrice:    valuation.Round2(v.TargetPrice),
			PriceFloor:     band.Floor,
			PriceCeiling:   band.Ceiling,
			Timestamp:      aligned,
		})
	}
	return out, nil
}

// bootstrapAsset replays the full history window ending at the aligned
// timestamp. The replay is genuine: each frame uses its own metric snapshot
// and feeds the resulting price into the next frame.
func (e *Engine) bootstrapAsset(id string, alignedMs int64) (model.Asset, error) {
	band, ok := universe.Band(id)
	if !ok {
		return model.Asset{}, universe.ErrUnknownCompany
	}
	company, _ := universe.Company(id)

	start := alignedMs - StepIntervalMs*(HistoryLength-1)
	history := make([]float64, 0, HistoryLength)
	prev := math.NaN()
	var metrics model.MetricGroup
	var v model.Valuation

	for i := 0; i < HistoryLength; i++ {
		frameMs := start + StepIntervalMs*int64(i)
		var err error
		metrics, err = e.metrics.Snapshot(id, frameMs)
		if err != nil {
			return model.Asset{}, err
		}
		v, err = valuation.Valuate(id, metrics)
		if err != nil {
			return model.Asset{}, err
		}
		price := v.TargetPrice
		if i > 0 {
			price = priceStep(band, prev, v.TargetPrice, frameMs)
		}
		price = valuation.Round2(price)
		history = append(history, price)
		prev = price
	}

	latest := history[len(history)-1]
	prior := latest
	if len(history) > 1 {
		prior = history[len(history)-2]
	}
	change := 0.0
	if prior != 0 {
		change = (latest - prior) / prior * 100
	}

	return model.Asset{
		Company: company,
		Price:   latest,
		Change:  valuation.Round2(change),
		Volume:  deriveVolume(id, v, alignedMs, latest),
		History: history,
		Metrics: metrics,
		NormalizedMetrics: model.NormalizedMetrics{
			Internal: v.NormalizedInternal,
			External: v.NormalizedExternal,
		},
		InternalScore:  valuation.Round3(v.InternalScore),
		ExternalScore:  valuation.Round3(v.ExternalScore),
		CompositeScore: valuation.Round3(v.CompositeScore),
		TargetPrice:    valuation.Round2(v.TargetPrice),
	}, nil
}

// advanceAsset moves one asset forward a single interval, appending to the
// rolling history and refreshing derived fields.
func (e *Engine) advanceAsset(asset model.Asset, timestampMs int64) (model.Asset, error) {
	band, ok := universe.Band(asset.ID)
	if !ok {
		return model.Asset{}, universe.ErrUnknownCompany
	}

	metrics, err := e.metrics.Snapshot(asset.ID, timestampMs)
	if err != nil {
		return model.Asset{}, err
	}
	v, err := valuation.Valuate(asset.ID, metrics)
	if err != nil {
		return model.Asset{}, err
	}

	nextPrice := valuation.Round2(priceStep(band, asset.Price, v.TargetPrice, timestampMs))
	change := 0.0
	if asset.Price != 0 {
		change = (nextPrice - asset.Price) / asset.Price * 100
	}

	tail := asset.History
	if len(tail) >= HistoryLength {
		tail = tail[len(tail)-(HistoryLength-1):]
	}
	history := make([]float64, 0, HistoryLength)
	history = append(history, tail...)
	history = append(history, nextPrice)

	next := asset
	next.Price = nextPrice
	next.Change = valuation.Round2(change)
	next.Volume = deriveVolume(asset.ID, v, timestampMs, nextPrice)
	next.History = history
	next.Metrics = metrics
	next.NormalizedMetrics = model.NormalizedMetrics{
		Internal: v.NormalizedInternal,
		External: v.NormalizedExternal,
	}
	next.InternalScore = valuation.Round3(v.InternalScore)
	next.ExternalScore = valuation.Round3(v.ExternalScore)
	next.CompositeScore = valuation.Round3(v.CompositeScore)
	next.TargetPrice = valuation.Round2(v.TargetPrice)
	return next, nil
}

// Bootstrap creates a fresh oracle state with a fully replayed history per
// company, watermarked at the aligned timestamp.
func (e *Engine) Bootstrap(timestampMs int64) (model.OracleState, error) {
	aligned := AlignToInterval(timestampMs)
	assets := make([]model.Asset, 0, len(universe.CompanyIDs))
	for _, id := range universe.CompanyIDs {
		asset, err := e.bootstrapAsset(id, aligned)
		if err != nil {
			return model.OracleState{}, err
		}
		assets = append(assets, asset)
	}
	return model.OracleState{Assets: assets, LastUpdated: aligned}, nil
}

// Advance catches a state up to the aligned target timestamp, stepping all
// assets one interval at a time so reversion and noise compound across gaps.
// A target at or before the current watermark returns the input unchanged.
func (e *Engine) Advance(state model.OracleState, timestampMs int64) (model.OracleState, error) {
	target := AlignToInterval(timestampMs)
	if target <= state.LastUpdated {
		return state, nil
	}

	current := state
	for current.LastUpdated+StepIntervalMs <= target {
		stepMs := current.LastUpdated + StepIntervalMs
		assets := make([]model.Asset, len(current.Assets))
		for i, asset := range current.Assets {
			next, err := e.advanceAsset(asset, stepMs)
			if err != nil {
				return model.OracleState{}, err
			}
			assets[i] = next
		}
		current = model.OracleState{Assets: assets, LastUpdated: stepMs}
	}
	return current, nil
}

// AssetSnapshot builds a standalone asset view at the aligned timestamp,
// independent of any running state.
func (e *Engine) AssetSnapshot(id string, timestampMs int64) (model.Asset, error) {
	return e.bootstrapAsset(id, AlignToInterval(timestampMs))
}
