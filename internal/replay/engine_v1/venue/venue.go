package venue

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/candles"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// Config carries the venue's account and execution parameters.
type Config struct {
	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance" validate:"gt=0"`
	Leverage       float64 `yaml:"leverage" json:"leverage" validate:"gt=0"`
	// Timeframes to aggregate for every symbol. Must include the base
	// timeframe in bar mode.
	Timeframes []types.Timeframe `yaml:"timeframes" json:"timeframes" validate:"min=1"`
	// BaseSlippagePoints is the slippage floor applied to every fill.
	BaseSlippagePoints float64 `yaml:"base_slippage_points" json:"base_slippage_points" validate:"gte=0"`
	// SlippagePointsPerLot scales slippage with requested volume.
	SlippagePointsPerLot float64 `yaml:"slippage_points_per_lot" json:"slippage_points_per_lot" validate:"gte=0"`
	// VolatilityWindow is the rolling bar count for the volume-derived
	// volatility multiplier.
	VolatilityWindow int `yaml:"volatility_window" json:"volatility_window" validate:"gte=0"`
	// MarginUseLimit is the fraction of balance usable as margin.
	MarginUseLimit float64 `yaml:"margin_use_limit" json:"margin_use_limit" validate:"gt=0,lte=1"`
	// MarketClosedCooldown suppresses order attempts on a symbol after a
	// market-closed rejection until it elapses in simulated time.
	MarketClosedCooldown time.Duration `yaml:"market_closed_cooldown" json:"market_closed_cooldown"`
	// LockTimeout bounds position-lock acquisition on the clock path.
	// Exceeding it is treated as a deadlock and aborts the replay.
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`
	// TradingDisabled rejects every order globally.
	TradingDisabled bool `yaml:"trading_disabled" json:"trading_disabled"`
}

// DefaultConfig returns a venue configuration with conventional defaults.
func DefaultConfig() Config {
	return Config{
		InitialBalance:       10_000,
		Leverage:             100,
		Timeframes:           []types.Timeframe{types.TimeframeM1},
		BaseSlippagePoints:   1,
		SlippagePointsPerLot: 0.5,
		VolatilityWindow:     20,
		MarginUseLimit:       0.95,
		MarketClosedCooldown: 5 * time.Minute,
		LockTimeout:          5 * time.Second,
	}
}

// Venue is the simulated trading venue. One venue instance drives one
// replay: it owns the simulated clock, the replay cursors, candle
// aggregation, and all position state.
//
// Locking: position state and balance are guarded by posMu, the per-step
// snapshot by the active set's pointer swap. Candle aggregators are owned
// by the clock advance path; workers may read them only between barrier
// arrivals, when the clock path is quiescent.
type Venue struct {
	log  *logger.Logger
	cfg  Config
	mode ReplayMode

	bars  *BarReplaySource
	ticks *TickReplaySource

	instruments map[string]types.InstrumentInfo
	aggregators map[string]*candles.Aggregator
	conversion  ConversionStrategy

	active *activeSet

	posMu     *timedMutex
	positions map[string]*types.Position
	balance   float64
	closed    []types.ClosedTrade

	// tradeLog is the optional durable closed-trade store. Nil disables it.
	tradeLog *TradeLog

	// cooldownUntil maps symbols under market-closed cooldown to the
	// simulated time at which orders may be attempted again.
	cooldownUntil map[string]time.Time

	finished bool
}

// NewBarVenue creates a venue replaying bar series.
func NewBarVenue(cfg Config, log *logger.Logger, source *BarReplaySource, instruments map[string]types.InstrumentInfo) (*Venue, error) {
	v, err := newVenue(cfg, log, ReplayModeBars, source.Symbols(), source.Start(), instruments)
	if err != nil {
		return nil, err
	}

	v.bars = source

	// Prime the first snapshot so workers see the starting instant's
	// active set before the first clock advance.
	snap := v.active.beginWrite(source.Start())

	for _, symbol := range source.Symbols() {
		if next, ok := source.PeekTime(symbol); ok && next.Equal(snap.Time) {
			snap.Active[symbol] = struct{}{}
		}
	}

	v.active.publish()

	return v, nil
}

// NewTickVenue creates a venue replaying a merged tick timeline.
func NewTickVenue(cfg Config, log *logger.Logger, source *TickReplaySource, instruments map[string]types.InstrumentInfo) (*Venue, error) {
	v, err := newVenue(cfg, log, ReplayModeTicks, source.Symbols(), source.Start(), instruments)
	if err != nil {
		return nil, err
	}

	v.ticks = source

	return v, nil
}

func newVenue(cfg Config, log *logger.Logger, mode ReplayMode, symbols []string, start time.Time, instruments map[string]types.InstrumentInfo) (*Venue, error) {
	if len(cfg.Timeframes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "venue requires at least one timeframe")
	}

	if cfg.MarginUseLimit <= 0 || cfg.MarginUseLimit > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "margin use limit %v outside (0, 1]", cfg.MarginUseLimit)
	}

	aggregators := make(map[string]*candles.Aggregator, len(symbols))

	for _, symbol := range symbols {
		agg, err := candles.NewAggregator(symbol, cfg.Timeframes)
		if err != nil {
			return nil, err
		}

		aggregators[symbol] = agg
	}

	return &Venue{
		log:           log,
		cfg:           cfg,
		mode:          mode,
		instruments:   instruments,
		aggregators:   aggregators,
		conversion:    DefaultCategoryRates(),
		active:        newActiveSet(start),
		posMu:         newTimedMutex(),
		positions:     make(map[string]*types.Position),
		balance:       cfg.InitialBalance,
		cooldownUntil: make(map[string]time.Time),
	}, nil
}

// SetConversionStrategy replaces the margin currency conversion. Must be
// called before the replay starts.
func (v *Venue) SetConversionStrategy(cs ConversionStrategy) {
	v.conversion = cs
}

// SetTradeLog attaches a durable closed-trade store. Must be called before
// the replay starts.
func (v *Venue) SetTradeLog(tl *TradeLog) {
	v.tradeLog = tl
}

// SeedHistory pre-populates closed candles for a symbol/timeframe from the
// cache so strategies have warm-up history at the first step.
func (v *Venue) SeedHistory(symbol string, tf types.Timeframe, bars []types.Bar) error {
	agg, ok := v.aggregators[symbol]
	if !ok {
		return errors.Newf(errors.ErrCodeInstrumentNotFound, "no replay series for %s", symbol)
	}

	return agg.SeedHistory(tf, bars)
}

// Now returns the current simulated time.
func (v *Venue) Now() time.Time {
	return v.active.Load().Time
}

// Snapshot returns the current step's published state.
func (v *Venue) Snapshot() *StepSnapshot {
	return v.active.Load()
}

// GetCandles returns up to count closed candles for a symbol/timeframe,
// most recent last.
func (v *Venue) GetCandles(symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	agg, ok := v.aggregators[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInstrumentNotFound, "no replay series for %s", symbol)
	}

	return agg.ClosedBars(tf, count)
}

// GetLatestClosedCandle returns the most recent closed candle, or None
// before the first boundary crossing.
func (v *Venue) GetLatestClosedCandle(symbol string, tf types.Timeframe) (optional.Option[types.Bar], error) {
	agg, ok := v.aggregators[symbol]
	if !ok {
		return optional.None[types.Bar](), errors.Newf(errors.ErrCodeInstrumentNotFound, "no replay series for %s", symbol)
	}

	return agg.LatestClosedBar(tf)
}

// GetCurrentPrice returns the side-appropriate price for a symbol: ask for
// buys, bid for sells. Returns None before the symbol's first sample.
func (v *Venue) GetCurrentPrice(symbol string, side types.Side) optional.Option[float64] {
	quote, ok := v.active.Load().Quotes[symbol]
	if !ok {
		return optional.None[float64]()
	}

	if side == types.SideBuy {
		return optional.Some(quote.Ask)
	}

	return optional.Some(quote.Bid)
}

// GetStatistics returns the account snapshot: balance, equity, floating
// profit and open position count.
func (v *Venue) GetStatistics() types.AccountStatistics {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	var floating float64
	for _, pos := range v.positions {
		floating += pos.Profit
	}

	return types.AccountStatistics{
		Balance:       v.balance,
		Equity:        v.balance + floating,
		FloatingPnL:   floating,
		OpenPositions: len(v.positions),
	}
}

// GetClosedTrades returns a copy of the closed-trade history in close
// order.
func (v *Venue) GetClosedTrades() []types.ClosedTrade {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	trades := make([]types.ClosedTrade, len(v.closed))
	copy(trades, v.closed)

	return trades
}

// OpenPositions returns copies of every open position.
func (v *Venue) OpenPositions() []types.Position {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	positions := make([]types.Position, 0, len(v.positions))
	for _, pos := range v.positions {
		positions = append(positions, *pos)
	}

	return positions
}

// GetPosition returns a copy of one open position by ticket.
func (v *Venue) GetPosition(ticket string) (optional.Option[types.Position], error) {
	v.posMu.Lock()
	defer v.posMu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return optional.None[types.Position](), errors.Newf(errors.ErrCodePositionNotFound, "no open position %s", ticket)
	}

	return optional.Some(*pos), nil
}

// Instrument returns the metadata for a symbol.
func (v *Venue) Instrument(symbol string) (types.InstrumentInfo, bool) {
	info, ok := v.instruments[symbol]

	return info, ok
}
