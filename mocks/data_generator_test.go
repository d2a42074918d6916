package mocks

import (
	"testing"
	"time"
)

func TestDataGenerator_GenerateBars(t *testing.T) {
	gen := NewDataGenerator(42) // Fixed seed for reproducibility
	config := DefaultConfig()
	config.Count = 100

	bars := gen.GenerateBars(config)

	if len(bars) != 100 {
		t.Errorf("expected 100 bars, got %d", len(bars))
	}

	for i, bar := range bars {
		if bar.High < bar.Open || bar.High < bar.Close {
			t.Errorf("bar %d: high %v below open/close", i, bar.High)
		}

		if bar.Low > bar.Open || bar.Low > bar.Close {
			t.Errorf("bar %d: low %v above open/close", i, bar.Low)
		}

		if i > 0 && !bars[i-1].StartTime.Before(bar.StartTime) {
			t.Errorf("bar %d: timestamps not strictly increasing", i)
		}
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	config := DefaultConfig()
	config.Count = 50

	first := NewDataGenerator(7).GenerateBars(config)
	second := NewDataGenerator(7).GenerateBars(config)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bar %d differs across generators with the same seed", i)
		}
	}
}

func TestDataGenerator_GenerateTicks(t *testing.T) {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 10

	ticks := gen.GenerateTicks(config)

	if len(ticks) != 40 {
		t.Fatalf("expected 4 ticks per bar, got %d", len(ticks))
	}

	for i, tick := range ticks {
		if tick.Ask <= tick.Bid {
			t.Errorf("tick %d: ask %v not above bid %v", i, tick.Ask, tick.Bid)
		}
	}

	if !ticks[0].Time.Equal(config.StartTime) {
		t.Errorf("first tick at %v, want %v", ticks[0].Time, config.StartTime)
	}

	if ticks[3].Time.Sub(ticks[0].Time) >= time.Minute {
		t.Error("intra-bar ticks spill past the bar interval")
	}
}
