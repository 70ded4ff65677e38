// Package noise implements the deterministic pseudo-random generator that
// drives every time-dependent calculation in the oracle. The sine-based hash
// is load-bearing: identical (timestamp, variant) inputs must reproduce
// bit-identical outputs across runs and platforms, so it must not be replaced
// with a general-purpose PRNG.
package noise

import "math"

// StepIntervalMs is the oracle step interval the timestamp is scaled by.
const StepIntervalMs int64 = 15 * 60 * 1000

// Seeded maps a Unix-millisecond timestamp and a variant seed to a value in
// [-1, 1). Pure function, no state, never fails.
func Seeded(timestampMs int64, variant float64) float64 {
	seed := float64(timestampMs)/float64(StepIntervalMs) + variant*17.371
	x := math.Sin(seed*12.9898) * 43758.5453
	return (x-math.Floor(x))*2 - 1
}

// CompanySeed derives a stable per-company seed from its id. The same id
// always yields the same seed, which keeps drift reproducible across runs.
func CompanySeed(id string) float64 {
	total := 0
	for i := 0; i < len(id); i++ {
		total += int(id[i]) * (i + 1)
	}
	return float64(total)
}
