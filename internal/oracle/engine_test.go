package oracle

import (
	"math"
	"reflect"
	"testing"

	"github.com/yourorg/hip3-venue/internal/snapshot"
	"github.com/yourorg/hip3-venue/internal/universe"
)

const fixedNow = int64(1_756_700_000_000)

func newEngine() *Engine {
	return New(snapshot.New(snapshot.Options{}))
}

func TestAlignToInterval(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{0, 0},
		{StepIntervalMs, StepIntervalMs},
		{StepIntervalMs - 1, 0},
		{StepIntervalMs + 1, StepIntervalMs},
		{fixedNow, fixedNow - fixedNow%StepIntervalMs},
	}
	for _, tc := range cases {
		if got := AlignToInterval(tc.in); got != tc.want {
			t.Errorf("AlignToInterval(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBootstrapDeterministic(t *testing.T) {
	a, err := newEngine().Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	b, err := newEngine().Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two bootstraps at the same timestamp diverged")
	}
}

func TestBootstrapShape(t *testing.T) {
	state, err := newEngine().Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if state.LastUpdated%StepIntervalMs != 0 {
		t.Errorf("lastUpdated %d not interval-aligned", state.LastUpdated)
	}
	if len(state.Assets) != len(universe.CompanyIDs) {
		t.Fatalf("got %d assets, want %d", len(state.Assets), len(universe.CompanyIDs))
	}
	for _, asset := range state.Assets {
		if len(asset.History) != HistoryLength {
			t.Errorf("%s: history length %d, want %d", asset.ID, len(asset.History), HistoryLength)
		}
		if asset.History[len(asset.History)-1] != asset.Price {
			t.Errorf("%s: price %v not the newest history point", asset.ID, asset.Price)
		}
		if asset.Volume < 0.1 {
			t.Errorf("%s: volume %v below floor", asset.ID, asset.Volume)
		}
		band, _ := universe.Band(asset.ID)
		for i, p := range asset.History {
			if p < band.Floor || p > band.Ceiling {
				t.Errorf("%s: history[%d] = %v outside band [%v, %v]", asset.ID, i, p, band.Floor, band.Ceiling)
			}
		}
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	engine := newEngine()
	state, err := engine.Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Same interval: no-op, same value back.
	same, err := engine.Advance(state, fixedNow)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !reflect.DeepEqual(state, same) {
		t.Fatal("advance within the current interval changed state")
	}

	// Older timestamp: also a no-op.
	past, err := engine.Advance(state, fixedNow-StepIntervalMs)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !reflect.DeepEqual(state, past) {
		t.Fatal("advance to a past timestamp changed state")
	}

	// advance(advance(s, t), t) == advance(s, t).
	later := fixedNow + 3*StepIntervalMs
	once, err := engine.Advance(state, later)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	twice, err := engine.Advance(once, later)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("repeated advance to the same target diverged")
	}
}

func TestAdvanceStepsSequentially(t *testing.T) {
	engine := newEngine()
	state, err := engine.Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// A long gap stepped in one call must equal stepping interval by
	// interval, because each step's noise depends on the prior price.
	gap := int64(7)
	direct, err := engine.Advance(state, fixedNow+gap*StepIntervalMs)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	stepped := state
	for i := int64(1); i <= gap; i++ {
		stepped, err = engine.Advance(stepped, fixedNow+i*StepIntervalMs)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if !reflect.DeepEqual(direct, stepped) {
		t.Fatal("one-shot advance diverged from interval-by-interval advance")
	}
	if direct.LastUpdated != AlignToInterval(fixedNow)+gap*StepIntervalMs {
		t.Errorf("lastUpdated = %d, want %d", direct.LastUpdated, AlignToInterval(fixedNow)+gap*StepIntervalMs)
	}
	for _, asset := range direct.Assets {
		if len(asset.History) != HistoryLength {
			t.Errorf("%s: history length %d after gap, want %d", asset.ID, len(asset.History), HistoryLength)
		}
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	engine := newEngine()
	state, err := engine.Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	before := make([]float64, len(state.Assets[0].History))
	copy(before, state.Assets[0].History)

	if _, err := engine.Advance(state, fixedNow+2*StepIntervalMs); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !reflect.DeepEqual(before, state.Assets[0].History) {
		t.Fatal("advance mutated the input state's history")
	}
}

func TestGenerateValuations(t *testing.T) {
	vals, err := newEngine().GenerateValuations(fixedNow)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(vals) != len(universe.CompanyIDs) {
		t.Fatalf("got %d valuations, want %d", len(vals), len(universe.CompanyIDs))
	}
	for _, v := range vals {
		if v.Timestamp != AlignToInterval(fixedNow) {
			t.Errorf("%s: timestamp %d not aligned", v.ID, v.Timestamp)
		}
		if v.CompositeScore < 0 || v.CompositeScore > 1 {
			t.Errorf("%s: composite %v out of [0,1]", v.ID, v.CompositeScore)
		}
		if v.TargetPrice < v.PriceFloor || v.TargetPrice > v.PriceCeiling {
			t.Errorf("%s: target %v outside band [%v, %v]", v.ID, v.TargetPrice, v.PriceFloor, v.PriceCeiling)
		}
		want := math.Round((0.5*v.InternalScore+0.5*v.ExternalScore)*1000) / 1000
		if math.Abs(v.CompositeScore-want) > 0.002 {
			t.Errorf("%s: composite %v inconsistent with halves %v/%v", v.ID, v.CompositeScore, v.InternalScore, v.ExternalScore)
		}
	}
}

func TestAssetSnapshotMatchesBootstrap(t *testing.T) {
	engine := newEngine()
	state, err := engine.Bootstrap(fixedNow)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	snap, err := engine.AssetSnapshot(universe.CompanyIDs[0], fixedNow)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(state.Assets[0], snap) {
		t.Fatal("standalone snapshot diverged from bootstrapped asset")
	}
}

func TestAssetSnapshotUnknownCompany(t *testing.T) {
	if _, err := newEngine().AssetSnapshot("theranos", fixedNow); err == nil {
		t.Fatal("expected an error for an unregistered company")
	}
}
