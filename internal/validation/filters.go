// Package validation provides filtering for enrichment payloads before they
// are merged into a company's metric baseline.
package validation

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/universe"
)

// Options holds configuration for payload validation.
type Options struct {
	// AllowUnknownKeys keeps payload fields that are not part of any
	// schema instead of dropping them
	AllowUnknownKeys bool

	// BoundsSlack widens the schema bounds by this fraction of the span
	// before rejecting a value. Scraped data is noisy; the drift stage
	// clamps hard anyway.
	BoundsSlack float64
}

// DefaultOptions returns sensible defaults for scraped metrics.
func DefaultOptions() Options {
	return Options{
		AllowUnknownKeys: false,
		BoundsSlack:      0.05,
	}
}

// FilterPayload removes implausible fields from an enrichment payload and
// returns the cleaned copy. Individual bad fields are dropped, never fatal:
// a partially valid payload is still worth ingesting.
func FilterPayload(payload model.MetricGroup, opts Options) model.MetricGroup {
	return model.MetricGroup{
		Internal: filterValues(payload.Internal, universe.InternalSchema, opts),
		External: filterValues(payload.External, universe.ExternalSchema, opts),
	}
}

// Filter applies the default options.
func Filter(payload model.MetricGroup) model.MetricGroup {
	return FilterPayload(payload, DefaultOptions())
}

func filterValues(values model.MetricValues, schema []model.MetricField, opts Options) model.MetricValues {
	if len(values) == 0 {
		return model.MetricValues{}
	}

	fields := make(map[string]model.MetricField, len(schema))
	for _, f := range schema {
		fields[f.Key] = f
	}

	valid := make(model.MetricValues, len(values))
	for key, value := range values {
		field, known := fields[key]
		if !known {
			if opts.AllowUnknownKeys {
				valid[key] = value
			} else {
				logrus.WithField("key", key).Debug("Dropped unknown metric key")
			}
			continue
		}
		if !isPlausible(value, field, opts) {
			logrus.WithFields(logrus.Fields{
				"key":   key,
				"value": value,
			}).Debug("Dropped implausible metric value")
			continue
		}
		valid[key] = value
	}
	return valid
}

func isPlausible(value float64, field model.MetricField, opts Options) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	slack := (field.Bounds.Max - field.Bounds.Min) * opts.BoundsSlack
	return value >= field.Bounds.Min-slack && value <= field.Bounds.Max+slack
}
