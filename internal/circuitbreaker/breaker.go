// Package circuitbreaker provides a defensive mechanism that protects the
// metric baselines from implausible enrichment payloads. A scraped value that
// deviates wildly from the defaults trips the breaker, and ingestion stays
// suppressed until the system has proven healthy again.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/universe"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation, payloads accepted
	StateOpen                  // Tripped, ingestion suppressed
	StateHalfOpen              // Testing whether payloads look sane again
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned while the breaker suppresses ingestion.
var ErrOpen = errors.New("circuit breaker open: ingestion suppressed")

// Thresholds defines the limits that will trip the circuit breaker
type Thresholds struct {
	// MaxSpanShift is the maximum allowed deviation of an ingested value
	// from its default baseline, measured as a fraction of the metric's
	// bounds span (e.g. 0.6 allows a move of 60% of the full range)
	MaxSpanShift float64

	// Cooldown is how long the breaker stays open before a recovery probe
	Cooldown time.Duration

	// HealthyThreshold is the number of consecutive sane payloads required
	// to close the circuit again from half-open
	HealthyThreshold int
}

// DefaultThresholds returns limits suitable for scraped company metrics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSpanShift:     0.6,
		Cooldown:         10 * time.Minute,
		HealthyThreshold: 3,
	}
}

// Breaker implements the circuit breaker pattern over enrichment payloads.
type Breaker struct {
	thresholds Thresholds

	mu           sync.RWMutex
	state        State
	lastTrip     time.Time
	successCount int

	// onTrip is invoked asynchronously when the circuit opens
	onTrip func(reason string)

	// now is swappable for tests
	now func() time.Time
}

// New creates a Breaker with the provided thresholds.
func New(t Thresholds) *Breaker {
	if t.MaxSpanShift <= 0 {
		t.MaxSpanShift = DefaultThresholds().MaxSpanShift
	}
	if t.Cooldown <= 0 {
		t.Cooldown = DefaultThresholds().Cooldown
	}
	if t.HealthyThreshold <= 0 {
		t.HealthyThreshold = DefaultThresholds().HealthyThreshold
	}
	return &Breaker{
		thresholds: t,
		state:      StateClosed,
		now:        time.Now,
	}
}

// WithTripCallback registers a callback invoked whenever the circuit trips.
func (b *Breaker) WithTripCallback(fn func(reason string)) *Breaker {
	b.onTrip = fn
	return b
}

// WithClock overrides the breaker's clock. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Check evaluates an enrichment payload for a company against the thresholds.
// A nil error means the payload may be ingested. While the circuit is open the
// payload is rejected without inspection; after the cooldown the breaker moves
// to half-open and starts probing again.
func (b *Breaker) Check(id string, payload model.MetricGroup) error {
	b.mu.RLock()
	state := b.state
	lastTrip := b.lastTrip
	b.mu.RUnlock()

	if state == StateOpen {
		if b.now().Sub(lastTrip) <= b.thresholds.Cooldown {
			return ErrOpen
		}
		b.transitionToHalfOpen()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if payload.IsEmpty() {
		return errors.New("empty enrichment payload")
	}

	defaults, ok := universe.Baseline(id)
	if !ok {
		reason := fmt.Sprintf("payload for unknown company %q", id)
		b.trip(reason)
		return errors.New(reason)
	}

	if reason := b.inspect(universe.InternalSchema, payload.Internal, defaults.Internal); reason != "" {
		b.trip(reason)
		return errors.New(reason)
	}
	if reason := b.inspect(universe.ExternalSchema, payload.External, defaults.External); reason != "" {
		b.trip(reason)
		return errors.New(reason)
	}

	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.thresholds.HealthyThreshold {
			b.state = StateClosed
			b.successCount = 0
			logrus.Info("Ingestion circuit breaker closed: payloads look healthy again")
		}
	}
	return nil
}

// GetState returns the current state of the circuit breaker.
func (b *Breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset forcibly closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.successCount = 0
	logrus.Info("Ingestion circuit breaker manually reset")
}

// inspect returns a trip reason if any overridden field moved further from its
// default than the allowed fraction of the bounds span. Callers hold b.mu.
func (b *Breaker) inspect(schema []model.MetricField, values, defaults model.MetricValues) string {
	for _, field := range schema {
		value, ok := values[field.Key]
		if !ok {
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Sprintf("non-finite value for %q", field.Key)
		}
		span := field.Bounds.Max - field.Bounds.Min
		if span <= 0 {
			continue
		}
		shift := math.Abs(value-defaults[field.Key]) / span
		if shift > b.thresholds.MaxSpanShift {
			return fmt.Sprintf("value for %q shifted %.2f of span (threshold %.2f)",
				field.Key, shift, b.thresholds.MaxSpanShift)
		}
	}
	return ""
}

func (b *Breaker) transitionToHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.state = StateHalfOpen
		b.successCount = 0
		logrus.Info("Ingestion circuit breaker half-open: probing payload quality")
	}
}

// trip opens the circuit. Callers hold b.mu.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.lastTrip = b.now()
	b.successCount = 0
	logrus.Warnf("Ingestion circuit breaker tripped: %s", reason)
	if b.onTrip != nil {
		go b.onTrip(reason)
	}
}
