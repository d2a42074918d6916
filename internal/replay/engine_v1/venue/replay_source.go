package venue

import (
	"sort"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// ReplayMode selects how the venue advances simulated time.
type ReplayMode string

const (
	// ReplayModeBars advances time by one base period per step, delivering
	// every symbol's bar whose start time equals the current instant.
	ReplayModeBars ReplayMode = "bars"
	// ReplayModeTicks advances time by delivering the next tick of one
	// globally sorted timeline across all symbols.
	ReplayModeTicks ReplayMode = "ticks"
)

// BarReplaySource holds per-symbol bar series with one cursor each. The
// venue advances cursors whose next bar matches the global instant; cursors
// never move backwards.
type BarReplaySource struct {
	base    types.Timeframe
	series  map[string][]types.Bar
	cursors map[string]int
}

// NewBarReplaySource validates that every series is strictly time-ordered
// and aligned to the base timeframe grid, and returns a source positioned
// before the first bar. Off-grid bars would never match the stepped clock
// instant, leaving the cursor stuck and the replay unable to finish.
func NewBarReplaySource(base types.Timeframe, series map[string][]types.Bar) (*BarReplaySource, error) {
	if len(series) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "bar replay source requires at least one series")
	}

	for symbol, bars := range series {
		for i, bar := range bars {
			if !bar.StartTime.Equal(base.Truncate(bar.StartTime)) {
				return nil, errors.Newf(errors.ErrCodeInvalidParameter,
					"series %s bar %d at %s is not aligned to the %s grid",
					symbol, i, bar.StartTime.Format(time.RFC3339), base)
			}
		}

		for i := 1; i < len(bars); i++ {
			if !bars[i-1].StartTime.Before(bars[i].StartTime) {
				return nil, errors.Newf(errors.ErrCodeTimelineUnsorted,
					"series %s not strictly increasing at index %d", symbol, i)
			}
		}
	}

	cursors := make(map[string]int, len(series))
	for symbol := range series {
		cursors[symbol] = 0
	}

	return &BarReplaySource{base: base, series: series, cursors: cursors}, nil
}

// BaseTimeframe returns the period by which the clock advances per step.
func (s *BarReplaySource) BaseTimeframe() types.Timeframe {
	return s.base
}

// Symbols returns every symbol with a series, sorted.
func (s *BarReplaySource) Symbols() []string {
	symbols := make([]string, 0, len(s.series))
	for symbol := range s.series {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Start returns the earliest bar time across all series, aligned to the
// base timeframe.
func (s *BarReplaySource) Start() time.Time {
	var start time.Time

	for _, bars := range s.series {
		if len(bars) == 0 {
			continue
		}

		if start.IsZero() || bars[0].StartTime.Before(start) {
			start = bars[0].StartTime
		}
	}

	return s.base.Truncate(start)
}

// PeekTime returns the next unconsumed bar's start time for a symbol.
func (s *BarReplaySource) PeekTime(symbol string) (time.Time, bool) {
	bars := s.series[symbol]

	cursor := s.cursors[symbol]
	if cursor >= len(bars) {
		return time.Time{}, false
	}

	return bars[cursor].StartTime, true
}

// Pop consumes and returns the next bar for a symbol.
func (s *BarReplaySource) Pop(symbol string) (types.Bar, bool) {
	bars := s.series[symbol]

	cursor := s.cursors[symbol]
	if cursor >= len(bars) {
		return types.Bar{}, false
	}

	s.cursors[symbol] = cursor + 1

	return bars[cursor], true
}

// Exhausted reports whether a symbol has no bars left.
func (s *BarReplaySource) Exhausted(symbol string) bool {
	return s.cursors[symbol] >= len(s.series[symbol])
}

// Remaining reports whether any symbol still has unconsumed bars.
func (s *BarReplaySource) Remaining() bool {
	for symbol := range s.series {
		if !s.Exhausted(symbol) {
			return true
		}
	}

	return false
}

// TickReplaySource merges every symbol's ticks into one chronological
// timeline. A single monotonically increasing index into this timeline is
// the authoritative clock source in tick mode.
type TickReplaySource struct {
	timeline []types.Tick
	index    int
}

// NewTickReplaySource sorts all ticks into one global timeline. The sort is
// stable so simultaneous ticks keep their per-symbol order.
func NewTickReplaySource(ticksBySymbol map[string][]types.Tick) (*TickReplaySource, error) {
	var timeline []types.Tick
	for _, ticks := range ticksBySymbol {
		timeline = append(timeline, ticks...)
	}

	if len(timeline) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "tick replay source requires at least one tick")
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Time.Before(timeline[j].Time)
	})

	return &TickReplaySource{timeline: timeline}, nil
}

// Symbols returns every symbol present in the timeline, sorted.
func (s *TickReplaySource) Symbols() []string {
	seen := make(map[string]struct{})

	var symbols []string

	for _, t := range s.timeline {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}

		seen[t.Symbol] = struct{}{}
		symbols = append(symbols, t.Symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Start returns the first tick's time.
func (s *TickReplaySource) Start() time.Time {
	return s.timeline[0].Time
}

// Next consumes and returns the next tick on the global timeline.
func (s *TickReplaySource) Next() (types.Tick, bool) {
	if s.index >= len(s.timeline) {
		return types.Tick{}, false
	}

	tick := s.timeline[s.index]
	s.index++

	return tick, true
}

// Remaining reports whether the timeline has unconsumed ticks.
func (s *TickReplaySource) Remaining() bool {
	return s.index < len(s.timeline)
}
