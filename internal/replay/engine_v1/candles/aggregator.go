// Package candles aggregates a single replayed price stream into per-timeframe
// OHLC series. One aggregator instance serves one symbol and is owned by the
// venue's clock goroutine; it is not safe for concurrent mutation.
package candles

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// seriesState tracks one timeframe's in-progress bucket and closed history.
type seriesState struct {
	timeframe types.Timeframe
	current   *types.BarBuilder
	closed    []types.Bar

	// snapshot caches closed+current as one table between updates so
	// repeated reads inside a single replay step do not re-materialize it.
	snapshot      []types.Bar
	snapshotValid bool
}

// Aggregator fans one symbol's price samples out into every configured
// timeframe. Samples must arrive in non-decreasing time order; the replay
// clock guarantees that.
type Aggregator struct {
	symbol string
	states []*seriesState
	byTF   map[types.Timeframe]*seriesState

	// lastBucket is the finest timeframe's bucket of the previous sample.
	// While a sample stays inside it no timeframe can advance, so the
	// boundary checks are skipped entirely.
	lastBucket time.Time

	// advanced is reused across Update calls to avoid a per-sample alloc.
	advanced []types.Timeframe
}

// NewAggregator creates an aggregator for the given symbol and timeframes.
// Timeframes are kept in ascending duration order; the first one is the
// finest and drives the boundary short-circuit.
func NewAggregator(symbol string, timeframes []types.Timeframe) (*Aggregator, error) {
	if len(timeframes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "aggregator requires at least one timeframe")
	}

	sorted := make([]types.Timeframe, len(timeframes))
	copy(sorted, timeframes)

	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Duration() < sorted[j-1].Duration(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	a := &Aggregator{
		symbol: symbol,
		byTF:   make(map[types.Timeframe]*seriesState, len(sorted)),
	}

	for _, tf := range sorted {
		if _, ok := a.byTF[tf]; ok {
			continue
		}

		state := &seriesState{timeframe: tf}
		a.states = append(a.states, state)
		a.byTF[tf] = state
	}

	return a, nil
}

// Symbol returns the symbol this aggregator serves.
func (a *Aggregator) Symbol() string {
	return a.symbol
}

// Timeframes returns the configured timeframes in ascending duration order.
func (a *Aggregator) Timeframes() []types.Timeframe {
	tfs := make([]types.Timeframe, len(a.states))
	for i, state := range a.states {
		tfs[i] = state.timeframe
	}

	return tfs
}

// SeedHistory pre-loads closed bars for one timeframe so indicators have a
// warm-up window before the first replayed sample. Seeded bars must precede
// every sample later fed through Update.
func (a *Aggregator) SeedHistory(tf types.Timeframe, bars []types.Bar) error {
	state, ok := a.byTF[tf]
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidTimeframe, "timeframe %s not configured", tf)
	}

	for i := 1; i < len(bars); i++ {
		if !bars[i-1].StartTime.Before(bars[i].StartTime) {
			return errors.Newf(errors.ErrCodeTimelineUnsorted,
				"seed history for %s not strictly increasing at index %d", tf, i)
		}
	}

	state.closed = append(state.closed, bars...)
	state.snapshotValid = false

	return nil
}

// Update feeds one price sample and returns the timeframes whose bar closed
// on this sample, finest first. The common case (sample lands inside every
// current bucket) touches each state once with no allocation; samples inside
// the same finest bucket as the previous one skip boundary checks.
func (a *Aggregator) Update(t time.Time, price float64, volume float64) []types.Timeframe {
	finest := a.states[0].timeframe.Truncate(t)
	sameBucket := !a.lastBucket.IsZero() && finest.Equal(a.lastBucket)
	a.lastBucket = finest

	a.advanced = a.advanced[:0]

	for _, state := range a.states {
		if sameBucket && state.current != nil {
			state.current.Update(price, volume)
			state.snapshotValid = false

			continue
		}

		bucket := state.timeframe.Truncate(t)

		if state.current == nil {
			state.current = types.NewBarBuilder(a.symbol, bucket)
		} else if bucket.After(state.current.BucketStart()) {
			state.closed = append(state.closed, state.current.Snapshot())
			state.current = types.NewBarBuilder(a.symbol, bucket)
			a.advanced = append(a.advanced, state.timeframe)
		}

		state.current.Update(price, volume)
		state.snapshotValid = false
	}

	return a.advanced
}

// UpdateBar folds an already-aggregated fine bar into every timeframe,
// replaying its open, extremes and close as four samples. Used by bar-level
// replay sources where no tick stream exists.
func (a *Aggregator) UpdateBar(bar types.Bar) []types.Timeframe {
	advanced := a.Update(bar.StartTime, bar.Open, 0)
	a.Update(bar.StartTime, bar.High, 0)
	a.Update(bar.StartTime, bar.Low, 0)
	a.Update(bar.StartTime, bar.Close, bar.Volume)

	return advanced
}

// ClosedBars returns up to n most recent closed bars for a timeframe, oldest
// first. n <= 0 returns the full history. The returned slice is shared;
// callers must not mutate it.
func (a *Aggregator) ClosedBars(tf types.Timeframe, n int) ([]types.Bar, error) {
	state, ok := a.byTF[tf]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidTimeframe, "timeframe %s not configured", tf)
	}

	if n <= 0 || n >= len(state.closed) {
		return state.closed, nil
	}

	return state.closed[len(state.closed)-n:], nil
}

// LatestClosedBar returns the most recent closed bar for a timeframe, or
// None before the first boundary crossing.
func (a *Aggregator) LatestClosedBar(tf types.Timeframe) (optional.Option[types.Bar], error) {
	state, ok := a.byTF[tf]
	if !ok {
		return optional.None[types.Bar](), errors.Newf(errors.ErrCodeInvalidTimeframe, "timeframe %s not configured", tf)
	}

	if len(state.closed) == 0 {
		return optional.None[types.Bar](), nil
	}

	return optional.Some(state.closed[len(state.closed)-1]), nil
}

// CurrentBar returns the in-progress bar for a timeframe, or None before
// the first sample.
func (a *Aggregator) CurrentBar(tf types.Timeframe) (optional.Option[types.Bar], error) {
	state, ok := a.byTF[tf]
	if !ok {
		return optional.None[types.Bar](), errors.Newf(errors.ErrCodeInvalidTimeframe, "timeframe %s not configured", tf)
	}

	if state.current == nil || !state.current.HasSample() {
		return optional.None[types.Bar](), nil
	}

	return optional.Some(state.current.Snapshot()), nil
}

// Table returns the closed history plus the in-progress bar as one series,
// oldest first. The result is cached until the next update, so strategies
// polling several indicators per step pay for materialization once. The
// returned slice is shared; callers must not mutate it.
func (a *Aggregator) Table(tf types.Timeframe) ([]types.Bar, error) {
	state, ok := a.byTF[tf]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidTimeframe, "timeframe %s not configured", tf)
	}

	if state.snapshotValid {
		return state.snapshot, nil
	}

	state.snapshot = state.snapshot[:0]
	state.snapshot = append(state.snapshot, state.closed...)

	if state.current != nil && state.current.HasSample() {
		state.snapshot = append(state.snapshot, state.current.Snapshot())
	}

	state.snapshotValid = true

	return state.snapshot, nil
}
