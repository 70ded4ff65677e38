package noise

import "testing"

func TestSeededDeterminism(t *testing.T) {
	tests := []struct {
		name    string
		ts      int64
		variant float64
	}{
		{"aligned timestamp", 1_700_000_100_000, 1},
		{"unaligned timestamp", 1_700_000_123_456, 17},
		{"zero variant", 1_700_000_100_000, 0},
		{"price-valued variant", 1_700_000_100_000, 243.17},
		{"negative variant", 1_700_000_100_000, -0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := Seeded(tt.ts, tt.variant)
			for i := 0; i < 100; i++ {
				if got := Seeded(tt.ts, tt.variant); got != first {
					t.Fatalf("Seeded not deterministic: %v != %v", got, first)
				}
			}
		})
	}
}

func TestSeededRange(t *testing.T) {
	for ts := int64(0); ts < 200; ts++ {
		for variant := 0; variant < 50; variant++ {
			v := Seeded(ts*StepIntervalMs+ts*777, float64(variant))
			if v < -1 || v >= 1 {
				t.Fatalf("Seeded(%d, %d) = %v outside [-1,1)", ts, variant, v)
			}
		}
	}
}

func TestSeededVariesWithInputs(t *testing.T) {
	base := Seeded(1_700_000_100_000, 1)
	if Seeded(1_700_000_100_000+StepIntervalMs, 1) == base {
		t.Error("expected different output one interval later")
	}
	if Seeded(1_700_000_100_000, 2) == base {
		t.Error("expected different output for different variant")
	}
}

func TestCompanySeed(t *testing.T) {
	tests := []struct {
		id   string
		want float64
	}{
		// sum of byte * (position+1)
		{"ab", float64('a') + 2*float64('b')},
		{"ba", float64('b') + 2*float64('a')},
		{"", 0},
	}
	for _, tt := range tests {
		if got := CompanySeed(tt.id); got != tt.want {
			t.Errorf("CompanySeed(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if CompanySeed("openai") == CompanySeed("spacex") {
		t.Error("expected distinct seeds for distinct ids")
	}
	if CompanySeed("openai") != CompanySeed("openai") {
		t.Error("expected stable seed per id")
	}
}
