package venue

import (
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"go.uber.org/zap"
)

// NewWorkerBarrier returns the step barrier for parties concurrent symbol
// workers. Each worker processes its symbols for the published step, then
// calls Arrive; the last to arrive advances the clock for everyone.
func (v *Venue) NewWorkerBarrier(parties int) *stepBarrier {
	return newStepBarrier(parties, v.AdvanceClock)
}

// AdvanceClock performs one global step. Returns false when no instrument
// has remaining data; the replay is then finished and every open position
// has been closed at its last known price. Errors are concurrency faults
// and are fatal to the replay.
func (v *Venue) AdvanceClock() (bool, error) {
	if v.finished {
		return false, nil
	}

	switch v.mode {
	case ReplayModeTicks:
		return v.advanceTickStep()
	default:
		return v.advanceBarStep()
	}
}

// advanceBarStep delivers every bar stamped at the current instant, then
// moves time forward by one base period and publishes the next snapshot.
func (v *Venue) advanceBarStep() (bool, error) {
	if !v.bars.Remaining() {
		return false, v.finish()
	}

	now := v.active.Load().Time

	// Pop this instant's bars and feed aggregation. Aggregators are owned
	// by this path; no lock is held while aggregating.
	stepBars := make(map[string]types.Bar)

	for _, symbol := range v.bars.Symbols() {
		next, ok := v.bars.PeekTime(symbol)
		if !ok || !next.Equal(now) {
			continue
		}

		bar, _ := v.bars.Pop(symbol)
		stepBars[symbol] = bar
		v.aggregators[symbol].UpdateBar(bar)
	}

	if len(stepBars) > 0 {
		if err := v.updatePositions(stepBars, now); err != nil {
			return false, err
		}
	}

	// Recompute the next instant's snapshot without holding any lock, then
	// publish it with a single swap.
	nextTime := now.Add(v.bars.BaseTimeframe().Duration())
	snap := v.active.beginWrite(nextTime)

	for symbol, bar := range stepBars {
		snap.Quotes[symbol] = v.quoteFromBar(symbol, bar)
	}

	for _, symbol := range v.bars.Symbols() {
		if next, ok := v.bars.PeekTime(symbol); ok && next.Equal(nextTime) {
			snap.Active[symbol] = struct{}{}
		}
	}

	snap.LastDay = !v.bars.Remaining()
	v.active.publish()

	return true, nil
}

// advanceTickStep delivers the next tick of the global timeline. The
// tick's owning symbol is the only active one for the step.
func (v *Venue) advanceTickStep() (bool, error) {
	tick, ok := v.ticks.Next()
	if !ok {
		return false, v.finish()
	}

	price := tick.Last
	if price == 0 {
		price = (tick.Bid + tick.Ask) / 2
	}

	v.aggregators[tick.Symbol].Update(tick.Time, price, tick.Volume)

	if err := v.updatePositionsFromTick(tick); err != nil {
		return false, err
	}

	snap := v.active.beginWrite(tick.Time)
	snap.Active[tick.Symbol] = struct{}{}
	snap.Quotes[tick.Symbol] = Quote{Bid: tick.Bid, Ask: tick.Ask, Last: price, Time: tick.Time}
	snap.LastDay = !v.ticks.Remaining()
	v.active.publish()

	return true, nil
}

// finish closes every open position at its last known price and marks the
// replay complete. Idempotent.
func (v *Venue) finish() error {
	if err := v.posMu.LockTimeout(v.lockTimeout()); err != nil {
		return err
	}
	defer v.posMu.Unlock()

	now := v.active.Load().Time
	quotes := v.active.Load().Quotes

	for ticket, pos := range v.positions {
		price := pos.CurrentPrice

		if quote, ok := quotes[pos.Symbol]; ok {
			price = v.closePrice(pos.Side, quote)
		}

		v.closeLocked(ticket, price, types.CloseReasonEndOfReplay, now)
	}

	v.finished = true
	v.log.Info("replay finished", zap.Time("at", now))

	return nil
}

// quoteFromBar derives bid/ask from a bar close and the instrument's fixed
// spread, symmetric around the close.
func (v *Venue) quoteFromBar(symbol string, bar types.Bar) Quote {
	var half float64
	if info, ok := v.instruments[symbol]; ok {
		half = info.Point(info.SpreadPoints) / 2
	}

	return Quote{
		Bid:  bar.Close - half,
		Ask:  bar.Close + half,
		Last: bar.Close,
		Time: bar.StartTime,
	}
}

// closePrice is the side-appropriate exit price: longs close on the bid,
// shorts on the ask.
func (v *Venue) closePrice(side types.Side, quote Quote) float64 {
	if side == types.SideBuy {
		return quote.Bid
	}

	return quote.Ask
}

func (v *Venue) lockTimeout() time.Duration {
	if v.cfg.LockTimeout > 0 {
		return v.cfg.LockTimeout
	}

	return 5 * time.Second
}

// fatalConcurrency logs and wraps a clock-path locking fault. These abort
// the replay; hanging silently is the one unacceptable outcome.
func (v *Venue) fatalConcurrency(err error) error {
	v.log.Error("clock advance lock fault, aborting replay", zap.Error(err))

	return errors.Wrap(errors.ErrCodeReplayAborted, "clock advance failed", err)
}
