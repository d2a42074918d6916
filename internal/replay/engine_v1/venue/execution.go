package venue

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"go.uber.org/zap"
)

// SubmitMarketOrder executes a market order against the current step's
// quotes. Rejections are results carrying a broker-style code, never
// errors; every rejection is logged with its reason.
func (v *Venue) SubmitMarketOrder(req types.OrderRequest) types.OrderResult {
	snap := v.active.Load()

	v.posMu.Lock()
	defer v.posMu.Unlock()

	result := v.executeLocked(snap, req)
	if !result.Success {
		v.log.Info("order rejected",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Float64("volume", req.Volume),
			zap.String("code", string(result.Code)),
			zap.String("comment", result.Comment),
		)
	}

	return result
}

// executeLocked runs the rejection ladder and, on acceptance, fills the
// order and creates the position. Caller holds posMu.
func (v *Venue) executeLocked(snap *StepSnapshot, req types.OrderRequest) types.OrderResult {
	if err := req.Validate(); err != nil {
		return types.Rejected(requestRejectCode(req), err.Error())
	}

	if v.cfg.TradingDisabled {
		return types.Rejected(types.ResultTradeDisabled, "trading disabled globally")
	}

	info, ok := v.instruments[req.Symbol]
	if !ok {
		return types.Rejected(types.ResultSymbolUnknown, fmt.Sprintf("no instrument metadata for %s", req.Symbol))
	}

	if !info.TradeAllowed {
		return types.Rejected(types.ResultTradeDisabled, fmt.Sprintf("trading disabled for %s", req.Symbol))
	}

	// Market-closed cooldown: once a closed market is detected, further
	// attempts are suppressed until the cooldown elapses in simulated time,
	// at which point the condition is re-checked.
	if until, ok := v.cooldownUntil[req.Symbol]; ok {
		if snap.Time.Before(until) {
			return types.Rejected(types.ResultMarketClosed, fmt.Sprintf("market closed, cooling down until %s", until.Format("15:04:05")))
		}

		delete(v.cooldownUntil, req.Symbol)
	}

	volume := info.ClampVolume(req.Volume)
	if volume < info.MinLot || volume > info.MaxLot {
		return types.Rejected(types.ResultInvalidVolume,
			fmt.Sprintf("volume %v outside [%v, %v]", volume, info.MinLot, info.MaxLot))
	}

	if v.marketClosed(snap, req.Symbol) {
		v.cooldownUntil[req.Symbol] = snap.Time.Add(v.cfg.MarketClosedCooldown)

		return types.Rejected(types.ResultMarketClosed, fmt.Sprintf("no remaining data for %s", req.Symbol))
	}

	quote, ok := snap.Quotes[req.Symbol]
	if !ok {
		return types.Rejected(types.ResultNoPrice, fmt.Sprintf("no price yet for %s", req.Symbol))
	}

	fill := v.fillPrice(req.Symbol, req.Side, volume, quote, info)

	required := v.requiredMargin(info, volume, fill)
	if available := v.balance*v.cfg.MarginUseLimit - v.usedMarginLocked(); required > available {
		return types.Rejected(types.ResultNoMoney,
			fmt.Sprintf("required margin %.2f exceeds available %.2f", required, available))
	}

	sl, tp := correctStops(req.Side, fill, req.StopLoss, req.TakeProfit, info)

	pos := &types.Position{
		Ticket:       uuid.New().String(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       volume,
		OpenPrice:    fill,
		CurrentPrice: fill,
		StopLoss:     sl,
		TakeProfit:   tp,
		OpenTime:     snap.Time,
		Tag:          req.Tag,
	}
	v.positions[pos.Ticket] = pos

	v.log.Info("order filled",
		zap.String("ticket", pos.Ticket),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("volume", volume),
		zap.Float64("price", fill),
	)

	return types.OrderResult{
		Success: true,
		Ticket:  pos.Ticket,
		Price:   fill,
		Code:    types.ResultDone,
	}
}

// fillPrice draws the execution price from the best bid/ask and applies
// slippage, always adverse to the trader.
func (v *Venue) fillPrice(symbol string, side types.Side, volume float64, quote Quote, info types.InstrumentInfo) float64 {
	slip := info.Point(v.SlippagePoints(symbol, volume))

	if side == types.SideBuy {
		return quote.Ask + slip
	}

	return quote.Bid - slip
}

// SlippagePoints models fill slippage in points: a base term, a
// volume-proportional term, and a volatility multiplier derived from the
// latest base-timeframe bar's volume relative to its rolling average,
// capped at 3x. Never decreases as volume grows.
func (v *Venue) SlippagePoints(symbol string, volume float64) float64 {
	base := v.cfg.BaseSlippagePoints + v.cfg.SlippagePointsPerLot*volume

	return base * v.volatilityMultiplier(symbol)
}

// volatilityMultiplier compares the most recent closed bar's volume to the
// rolling average of the window before it. Clamped to [1, 3]: calm markets
// never shrink slippage below base, frantic ones at most triple it.
func (v *Venue) volatilityMultiplier(symbol string) float64 {
	agg, ok := v.aggregators[symbol]
	if !ok || v.cfg.VolatilityWindow < 2 {
		return 1
	}

	tfs := agg.Timeframes()

	bars, err := agg.ClosedBars(tfs[0], v.cfg.VolatilityWindow)
	if err != nil || len(bars) < 2 {
		return 1
	}

	recent := bars[len(bars)-1].Volume

	var sum float64
	for _, b := range bars[:len(bars)-1] {
		sum += b.Volume
	}

	avg := sum / float64(len(bars)-1)
	if avg <= 0 {
		return 1
	}

	mult := recent / avg
	if mult < 1 {
		return 1
	}

	if mult > 3 {
		return 3
	}

	return mult
}

// requiredMargin is volume x contract size x price / leverage, converted
// toward the account currency by the category approximation.
func (v *Venue) requiredMargin(info types.InstrumentInfo, volume float64, price float64) float64 {
	leverage := v.cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	margin := volume * info.ContractSize * price / leverage

	return margin * v.conversion.RateToAccount(info.QuoteCategory)
}

// usedMarginLocked sums the margin held by open positions at their open
// prices. Caller holds posMu.
func (v *Venue) usedMarginLocked() float64 {
	var used float64

	for _, pos := range v.positions {
		info := v.instruments[pos.Symbol]
		used += v.requiredMargin(info, pos.Volume, pos.OpenPrice)
	}

	return used
}

// marketClosed reports whether a symbol has no data left to replay.
func (v *Venue) marketClosed(snap *StepSnapshot, symbol string) bool {
	if v.mode == ReplayModeBars {
		return v.bars.Exhausted(symbol)
	}

	return !v.ticks.Remaining() && !snap.HasData(symbol)
}

// requestRejectCode maps a structurally invalid request to the closest
// broker-style code.
func requestRejectCode(req types.OrderRequest) types.ResultCode {
	switch {
	case req.Symbol == "":
		return types.ResultSymbolUnknown
	case req.Volume <= 0:
		return types.ResultInvalidVolume
	case req.StopLoss < 0 || req.TakeProfit < 0:
		return types.ResultInvalidStops
	default:
		return types.ResultInvalidVolume
	}
}
