package circuitbreaker

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/hip3-venue/internal/model"
)

func sanePayload() model.MetricGroup {
	return model.MetricGroup{
		Internal: model.MetricValues{"annualRevenue": 4.1, "sentimentScore": 0.3},
		External: model.MetricValues{"fearGreedIndex": 60},
	}
}

func wildPayload() model.MetricGroup {
	// Revenue jumps from the 3.6 default to 110 of a 120-wide span.
	return model.MetricGroup{
		Internal: model.MetricValues{"annualRevenue": 110},
	}
}

func TestCheckAcceptsSanePayload(t *testing.T) {
	b := New(DefaultThresholds())
	require.NoError(t, b.Check("openai", sanePayload()))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestCheckRejectsEmptyPayload(t *testing.T) {
	b := New(DefaultThresholds())
	err := b.Check("openai", model.MetricGroup{})
	require.Error(t, err)
	// An empty payload is rejected but is not a trip condition.
	assert.Equal(t, StateClosed, b.GetState())
}

func TestTripOnExcessiveShift(t *testing.T) {
	var tripped atomic.Int32
	b := New(DefaultThresholds()).WithTripCallback(func(string) { tripped.Add(1) })

	err := b.Check("openai", wildPayload())
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.GetState())

	// While open, even a sane payload is rejected.
	err = b.Check("openai", sanePayload())
	require.ErrorIs(t, err, ErrOpen)

	assert.Eventually(t, func() bool { return tripped.Load() >= 1 },
		time.Second, 10*time.Millisecond)
}

func TestTripOnNonFiniteValue(t *testing.T) {
	b := New(DefaultThresholds())
	err := b.Check("openai", model.MetricGroup{
		Internal: model.MetricValues{"annualRevenue": math.NaN()},
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.GetState())
}

func TestTripOnUnknownCompany(t *testing.T) {
	b := New(DefaultThresholds())
	require.Error(t, b.Check("enron", sanePayload()))
	assert.Equal(t, StateOpen, b.GetState())
}

func TestRecoveryThroughHalfOpen(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	b := New(Thresholds{MaxSpanShift: 0.6, Cooldown: time.Minute, HealthyThreshold: 2}).
		WithClock(func() time.Time { return current })

	require.Error(t, b.Check("openai", wildPayload()))
	require.Equal(t, StateOpen, b.GetState())

	// Cooldown has not elapsed yet.
	require.ErrorIs(t, b.Check("openai", sanePayload()), ErrOpen)

	current = current.Add(2 * time.Minute)

	// First healthy payload moves to half-open, second closes the circuit.
	require.NoError(t, b.Check("openai", sanePayload()))
	assert.Equal(t, StateHalfOpen, b.GetState())
	require.NoError(t, b.Check("openai", sanePayload()))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestHalfOpenRelapse(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	b := New(Thresholds{MaxSpanShift: 0.6, Cooldown: time.Minute, HealthyThreshold: 3}).
		WithClock(func() time.Time { return current })

	require.Error(t, b.Check("openai", wildPayload()))
	current = current.Add(2 * time.Minute)

	require.NoError(t, b.Check("openai", sanePayload()))
	require.Equal(t, StateHalfOpen, b.GetState())

	// A wild payload during recovery re-opens the circuit immediately.
	require.Error(t, b.Check("openai", wildPayload()))
	assert.Equal(t, StateOpen, b.GetState())
}

func TestManualReset(t *testing.T) {
	b := New(DefaultThresholds())
	require.Error(t, b.Check("openai", wildPayload()))
	require.Equal(t, StateOpen, b.GetState())

	b.Reset()
	assert.Equal(t, StateClosed, b.GetState())
	assert.NoError(t, b.Check("openai", sanePayload()))
}
