package venue

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"go.uber.org/zap"
)

// updatePositions applies one bar step to the open position set. Order
// within the step is fixed: floating profit first, then stop evaluation,
// then closure. The position lock is acquired with a bounded timeout; a
// timeout is a deadlock and aborts the replay.
func (v *Venue) updatePositions(stepBars map[string]types.Bar, now time.Time) error {
	if err := v.posMu.LockTimeout(v.lockTimeout()); err != nil {
		return v.fatalConcurrency(err)
	}
	defer v.posMu.Unlock()

	for ticket, pos := range v.positions {
		bar, ok := stepBars[pos.Symbol]
		if !ok {
			continue
		}

		info := v.instruments[pos.Symbol]

		pos.CurrentPrice = bar.Close
		pos.Profit = pos.ProfitAt(bar.Close, info.TickValue, info.TickSize)

		if price, reason, hit := stopHit(pos, bar.High, bar.Low, bar.Close); hit {
			v.closeLocked(ticket, price, reason, now)
		}
	}

	return nil
}

// updatePositionsFromTick applies one tick step: every open position's
// floating profit is refreshed at its symbol's last quote, and the owning
// symbol's positions are evaluated against this tick's bid/ask.
func (v *Venue) updatePositionsFromTick(tick types.Tick) error {
	if err := v.posMu.LockTimeout(v.lockTimeout()); err != nil {
		return v.fatalConcurrency(err)
	}
	defer v.posMu.Unlock()

	quotes := v.active.Load().Quotes

	for ticket, pos := range v.positions {
		var exit float64

		if pos.Symbol == tick.Symbol {
			exit = tickClosePrice(pos.Side, tick)
		} else if quote, ok := quotes[pos.Symbol]; ok {
			exit = v.closePrice(pos.Side, quote)
		} else {
			continue
		}

		info := v.instruments[pos.Symbol]

		pos.CurrentPrice = exit
		pos.Profit = pos.ProfitAt(exit, info.TickValue, info.TickSize)

		if pos.Symbol != tick.Symbol {
			continue
		}

		// Tick mode has no intrabar extremes; the tick price is the
		// extreme.
		if price, reason, hit := stopHit(pos, exit, exit, exit); hit {
			v.closeLocked(ticket, price, reason, tick.Time)
		}
	}

	return nil
}

// stopHit evaluates SL/TP against intrabar extremes, falling back to the
// close when no extremes exist. A long's stop triggers on the bar low and
// its target on the bar high; symmetric for shorts. The close price alone
// under-detects wicks that touch a level and reverse. Stop-loss wins when
// both levels sit inside one bar.
func stopHit(pos *types.Position, high float64, low float64, close float64) (float64, types.CloseReason, bool) {
	if high == 0 && low == 0 {
		high, low = close, close
	}

	if pos.Side == types.SideBuy {
		if pos.StopLoss > 0 && low <= pos.StopLoss {
			return pos.StopLoss, types.CloseReasonStopLoss, true
		}

		if pos.TakeProfit > 0 && high >= pos.TakeProfit {
			return pos.TakeProfit, types.CloseReasonTakeProfit, true
		}

		return 0, "", false
	}

	if pos.StopLoss > 0 && high >= pos.StopLoss {
		return pos.StopLoss, types.CloseReasonStopLoss, true
	}

	if pos.TakeProfit > 0 && low <= pos.TakeProfit {
		return pos.TakeProfit, types.CloseReasonTakeProfit, true
	}

	return 0, "", false
}

// tickClosePrice is the side-appropriate exit price from a tick.
func tickClosePrice(side types.Side, tick types.Tick) float64 {
	if side == types.SideBuy {
		return tick.Bid
	}

	return tick.Ask
}

// closeLocked realizes a position at price: balance moves by the realized
// profit, an immutable closed-trade record is appended, and the position
// leaves the open set. Caller holds posMu.
func (v *Venue) closeLocked(ticket string, price float64, reason types.CloseReason, now time.Time) {
	pos, ok := v.positions[ticket]
	if !ok {
		return
	}

	info := v.instruments[pos.Symbol]
	profit := pos.ProfitAt(price, info.TickValue, info.TickSize)
	v.balance += profit

	trade := types.ClosedTrade{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Volume:     pos.Volume,
		OpenPrice:  pos.OpenPrice,
		ClosePrice: price,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OpenTime:   pos.OpenTime,
		CloseTime:  now,
		Profit:     profit,
		Reason:     reason,
		Tag:        pos.Tag,
	}

	v.closed = append(v.closed, trade)
	delete(v.positions, ticket)

	if v.tradeLog != nil {
		if err := v.tradeLog.Append(trade); err != nil {
			v.log.Warn("closed trade not persisted", zap.String("ticket", ticket), zap.Error(err))
		}
	}

	v.log.Info("position closed",
		zap.String("ticket", ticket),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
		zap.Float64("profit", profit),
	)
}

// ModifyPosition updates a position's stop-loss and/or take-profit. None
// leaves a level unchanged; Some(0) removes it. Levels closer to the
// current price than the instrument's minimum stop distance are pushed out
// to that distance rather than rejected.
func (v *Venue) ModifyPosition(ticket string, sl optional.Option[float64], tp optional.Option[float64]) bool {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return false
	}

	info := v.instruments[pos.Symbol]
	newSL, newTP := correctStops(pos.Side, pos.CurrentPrice, sl.TakeOr(pos.StopLoss), tp.TakeOr(pos.TakeProfit), info)

	pos.StopLoss = newSL
	pos.TakeProfit = newTP

	return true
}

// ClosePosition closes a position manually at the current side-appropriate
// quote. Returns false when the ticket is unknown or no price exists yet.
func (v *Venue) ClosePosition(ticket string) bool {
	snap := v.active.Load()

	v.posMu.Lock()
	defer v.posMu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return false
	}

	quote, ok := snap.Quotes[pos.Symbol]
	if !ok {
		return false
	}

	v.closeLocked(ticket, v.closePrice(pos.Side, quote), types.CloseReasonManual, snap.Time)

	return true
}

// correctStops pushes SL/TP that violate the instrument's minimum stop
// distance out to exactly that distance, mirroring typical venue behavior
// of correcting rather than rejecting. Zero levels stay unset.
func correctStops(side types.Side, price float64, sl float64, tp float64, info types.InstrumentInfo) (float64, float64) {
	minDist := info.Point(info.StopsLevelPoints)
	if minDist <= 0 || price <= 0 {
		return sl, tp
	}

	if side == types.SideBuy {
		if sl > 0 && price-sl < minDist {
			sl = price - minDist
		}

		if tp > 0 && tp-price < minDist {
			tp = price + minDist
		}

		return sl, tp
	}

	if sl > 0 && sl-price < minDist {
		sl = price + minDist
	}

	if tp > 0 && price-tp < minDist {
		tp = price - minDist
	}

	return sl, tp
}
