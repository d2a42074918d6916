package venue

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// timedMutex is a mutex whose acquisition is bounded. The clock advance
// path uses it for the position set: a timeout there means a deadlock, and
// a deadlock must abort the replay loudly instead of hanging it.
type timedMutex struct {
	ch chan struct{}
}

func newTimedMutex() *timedMutex {
	m := &timedMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}

	return m
}

// Lock blocks without bound. Used on paths where a caller already holds no
// other venue lock.
func (m *timedMutex) Lock() {
	<-m.ch
}

// LockTimeout acquires the mutex or fails with ErrCodeLockTimeout after d.
func (m *timedMutex) LockTimeout(d time.Duration) error {
	select {
	case <-m.ch:
		return nil
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.ch:
		return nil
	case <-timer.C:
		return errors.Newf(errors.ErrCodeLockTimeout, "position lock not acquired within %s", d)
	}
}

func (m *timedMutex) Unlock() {
	select {
	case m.ch <- struct{}{}:
	default:
		panic("venue: unlock of unlocked timedMutex")
	}
}

// stepBarrier synchronizes symbol workers on the shared clock. All workers
// arrive at the end of each step; the last to arrive advances the clock and
// releases the rest. Workers never advance the clock themselves and only
// read the published snapshot for their step.
type stepBarrier struct {
	mu      sync.Mutex
	parties int
	arrived int
	gen     *barrierGen

	// advance runs in the last arriver's goroutine, once per step.
	advance func() (bool, error)
}

type barrierGen struct {
	release chan struct{}
	more    bool
	err     error
}

func newStepBarrier(parties int, advance func() (bool, error)) *stepBarrier {
	return &stepBarrier{
		parties: parties,
		gen:     &barrierGen{release: make(chan struct{})},
		advance: advance,
	}
}

// Arrive blocks until every worker has arrived and the clock has advanced.
// Returns false when the replay is finished. A cancelled context breaks the
// barrier for every waiter.
func (b *stepBarrier) Arrive(ctx context.Context) (bool, error) {
	b.mu.Lock()

	gen := b.gen
	b.arrived++

	if b.arrived == b.parties {
		// Last to arrive: advance the clock for everyone, publish the
		// outcome through this generation and open the next one.
		gen.more, gen.err = b.advance()

		b.arrived = 0
		b.gen = &barrierGen{release: make(chan struct{})}
		b.mu.Unlock()

		close(gen.release)

		return gen.more, gen.err
	}

	b.mu.Unlock()

	select {
	case <-gen.release:
		return gen.more, gen.err
	case <-ctx.Done():
		return false, errors.Wrap(errors.ErrCodeBarrierBroken, "worker abandoned step barrier", ctx.Err())
	}
}
