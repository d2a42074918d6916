// Package venue simulates the trading venue a replayed strategy trades
// against: it owns simulated time, per-symbol replay cursors, order
// execution with slippage and margin checks, position lifecycle including
// intrabar stop detection, and the step barrier that keeps concurrent
// symbol workers on one shared clock.
package venue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Quote is the best bid/ask for one symbol at the snapshot's instant.
type Quote struct {
	Bid  float64
	Ask  float64
	Last float64
	Time time.Time
}

// StepSnapshot is the per-step state published to workers: the simulated
// time, the set of symbols with data at this instant, and current quotes.
// It is immutable after publication; readers hold it for at most one step.
type StepSnapshot struct {
	Step    uint64
	Time    time.Time
	Active  map[string]struct{}
	Quotes  map[string]Quote
	LastDay bool
}

// HasData reports whether the symbol has a sample at this snapshot's
// instant. An equality check against the published set, not a scan.
func (s *StepSnapshot) HasData(symbol string) bool {
	_, ok := s.Active[symbol]

	return ok
}

// activeSet double-buffers the per-step snapshot. The writer (the clock
// advance path) composes the next snapshot into a write-side buffer without
// holding any lock, then publishes it with a single pointer swap; readers
// load the current snapshot atomically and never block the writer. This
// replaces a per-step lock paid by every worker with one swap paid once per
// step.
type activeSet struct {
	current atomic.Pointer[StepSnapshot]

	// swapMu serializes writers only. It is distinct from the venue's
	// position mutex so the swap can never participate in a lock-ordering
	// inversion with position updates.
	swapMu sync.Mutex

	// write is the write-side buffer being composed for the next step.
	write *StepSnapshot
}

func newActiveSet(start time.Time) *activeSet {
	a := &activeSet{}
	a.current.Store(&StepSnapshot{
		Time:   start,
		Active: map[string]struct{}{},
		Quotes: map[string]Quote{},
	})

	return a
}

// Load returns the current snapshot without blocking.
func (a *activeSet) Load() *StepSnapshot {
	return a.current.Load()
}

// beginWrite starts composing the next step's snapshot. Called only by the
// clock advance path, outside any lock.
func (a *activeSet) beginWrite(t time.Time) *StepSnapshot {
	prev := a.current.Load()

	next := &StepSnapshot{
		Step:   prev.Step + 1,
		Time:   t,
		Active: make(map[string]struct{}, len(prev.Active)),
		Quotes: make(map[string]Quote, len(prev.Quotes)),
	}

	// Quotes persist across steps until overwritten; activity does not.
	for symbol, q := range prev.Quotes {
		next.Quotes[symbol] = q
	}

	a.write = next

	return next
}

// publish swaps the write-side buffer in as the current snapshot. The
// exclusive section is a single pointer store.
func (a *activeSet) publish() {
	a.swapMu.Lock()
	a.current.Store(a.write)
	a.swapMu.Unlock()

	a.write = nil
}
