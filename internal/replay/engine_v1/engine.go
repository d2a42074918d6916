// Package engine wires the historical cache, the market data providers and
// the simulated venue into one replay run driven from a yaml config.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/histcache"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/venue"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/rxtech-lab/argo-replay/pkg/marketdata/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

// DefaultCacheTTL bounds the age of cached days when the config leaves
// cache_ttl unset.
const DefaultCacheTTL = 7 * 24 * time.Hour

// StepFunc is invoked by a worker once per symbol per step, between barrier
// arrivals. The snapshot is the step the venue just published.
type StepFunc func(ctx context.Context, v *venue.Venue, symbol string, snap *venue.StepSnapshot) error

// ReplayEngineV1 orchestrates one replay run: it validates cache coverage,
// fetches missing days from the configured provider, seeds warm-up history
// and drives the venue clock with a pool of symbol workers.
type ReplayEngineV1 struct {
	config        ReplayEngineV1Config
	log           *logger.Logger
	cache         *histcache.Cache
	provider      provider.Provider
	venue         *venue.Venue
	tradeLog      *venue.TradeLog
	resultsFolder string
	runID         string
}

// NewReplayEngineV1 returns an engine awaiting Initialize.
func NewReplayEngineV1() *ReplayEngineV1 {
	return &ReplayEngineV1{}
}

// Initialize parses the yaml config and constructs the cache and provider.
func (e *ReplayEngineV1) Initialize(config string) error {
	err := yaml.Unmarshal([]byte(config), &e.config)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to unmarshal replay config", err)
	}

	if err := e.config.Validate(); err != nil {
		return err
	}

	logger, err := logger.NewLogger()
	if err != nil {
		return err
	}

	e.log = logger

	ttl := e.config.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	cache, err := histcache.NewCache(e.config.CacheRoot, ttl, e.log)
	if err != nil {
		return err
	}

	e.cache = cache

	if e.config.Provider != "" && e.provider == nil {
		p, err := provider.NewProvider(e.config.Provider, provider.Config{APIKey: e.config.ProviderAPIKey})
		if err != nil {
			return err
		}

		e.provider = p
	}

	e.runID = uuid.New().String()

	return nil
}

// SetDataProvider overrides the config-selected provider. Must be called
// before Initialize or Preload.
func (e *ReplayEngineV1) SetDataProvider(p provider.Provider) {
	e.provider = p
}

// SetResultsFolder sets the directory replay results are written to.
func (e *ReplayEngineV1) SetResultsFolder(folder string) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create results folder", err)
	}

	e.resultsFolder = folder

	return nil
}

// Venue returns the simulated venue. Valid after Preload.
func (e *ReplayEngineV1) Venue() *venue.Venue {
	return e.venue
}

// Preload brings the cache to full coverage for the configured range,
// fetching missing days from the provider, then builds the venue and seeds
// warm-up history.
func (e *ReplayEngineV1) Preload(ctx context.Context, onProgress provider.OnFetchProgress) error {
	start := e.config.StartTime.Unwrap()
	end := e.config.EndTime.Unwrap()

	instruments := make(map[string]types.InstrumentInfo, len(e.config.Symbols))

	for _, symbol := range e.config.Symbols {
		info, err := e.loadInstrument(ctx, symbol, start)
		if err != nil {
			return err
		}

		instruments[symbol] = info
	}

	var (
		v   *venue.Venue
		err error
	)

	switch e.config.Mode {
	case venue.ReplayModeTicks:
		v, err = e.buildTickVenue(instruments, start, end)
	default:
		v, err = e.buildBarVenue(ctx, instruments, start, end, onProgress)
	}

	if err != nil {
		return err
	}

	tradeLog, err := venue.NewTradeLog(e.log)
	if err != nil {
		return err
	}

	if err := tradeLog.Initialize(); err != nil {
		return err
	}

	v.SetTradeLog(tradeLog)

	e.tradeLog = tradeLog
	e.venue = v

	return nil
}

func (e *ReplayEngineV1) buildBarVenue(ctx context.Context, instruments map[string]types.InstrumentInfo, start time.Time, end time.Time, onProgress provider.OnFetchProgress) (*venue.Venue, error) {
	base := e.config.BaseTimeframe
	series := make(map[string][]types.Bar, len(e.config.Symbols))

	for _, symbol := range e.config.Symbols {
		bars, err := e.loadBarsEnsuringCoverage(ctx, symbol, base, start, end, onProgress)
		if err != nil {
			return nil, err
		}

		series[symbol] = bars
	}

	source, err := venue.NewBarReplaySource(base, series)
	if err != nil {
		return nil, err
	}

	v, err := venue.NewBarVenue(e.venueConfig(), e.log, source, instruments)
	if err != nil {
		return nil, err
	}

	if err := e.seedWarmup(v, base, start); err != nil {
		return nil, err
	}

	return v, nil
}

// buildTickVenue loads the merged tick timeline. Providers serve bars only,
// so tick replays require the cache to already hold every day in range.
func (e *ReplayEngineV1) buildTickVenue(instruments map[string]types.InstrumentInfo, start time.Time, end time.Time) (*venue.Venue, error) {
	series := make(map[string][]types.Tick, len(e.config.Symbols))

	for _, symbol := range e.config.Symbols {
		ticks, missing, err := e.cache.LoadTicksPartial(symbol, start, end)
		if err != nil {
			return nil, err
		}

		if len(missing) > 0 {
			return nil, errors.Newf(errors.ErrCodeDayNotCached,
				"tick replay for %s is missing %d cached days starting %s", symbol, len(missing), missing[0])
		}

		series[symbol] = ticks
	}

	source, err := venue.NewTickReplaySource(series)
	if err != nil {
		return nil, err
	}

	return venue.NewTickVenue(e.venueConfig(), e.log, source, instruments)
}

// loadBarsEnsuringCoverage serves from the cache when coverage holds and
// backfills missing days from the provider otherwise.
func (e *ReplayEngineV1) loadBarsEnsuringCoverage(ctx context.Context, symbol string, tf types.Timeframe, start time.Time, end time.Time, onProgress provider.OnFetchProgress) ([]types.Bar, error) {
	key := string(tf)

	bars, missing, err := e.cache.LoadBarsPartial(symbol, key, start, end)
	if err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		return bars, nil
	}

	if e.provider == nil {
		return nil, errors.Newf(errors.ErrCodeDayNotCached,
			"%s/%s is missing %d cached days and no provider is configured", symbol, key, len(missing))
	}

	e.log.Info("backfilling cache from provider",
		zap.String("symbol", symbol),
		zap.String("series", key),
		zap.String("provider", e.provider.Name()),
		zap.Int("missing_days", len(missing)))

	for _, span := range contiguousSpans(missing) {
		fetched, err := e.provider.FetchBars(ctx, symbol, tf, span.first.Time(), span.last.Next().Time(), onProgress)
		if err != nil {
			return nil, err
		}

		// Providers treat the end bound inclusively, so the fetch can carry
		// the first bar of the day after the span. Saving that bar would
		// rewrite an already-valid day's payload with a single bar.
		fetched = span.clamp(fetched)

		if err := e.cache.SaveBars(symbol, key, fetched, e.provider.Name()); err != nil {
			return nil, err
		}
	}

	return e.cache.LoadBars(symbol, key, start, end)
}

func (e *ReplayEngineV1) loadInstrument(ctx context.Context, symbol string, asOf time.Time) (types.InstrumentInfo, error) {
	info, err := e.cache.LoadInstrument(symbol, asOf)
	if err == nil {
		return info, nil
	}

	if e.provider == nil {
		return types.InstrumentInfo{}, err
	}

	info, err = e.provider.FetchInstrument(ctx, symbol)
	if err != nil {
		return types.InstrumentInfo{}, err
	}

	if err := e.cache.SaveInstrument(info, asOf); err != nil {
		e.log.Warn("failed to cache instrument metadata",
			zap.String("symbol", symbol), zap.Error(err))
	}

	return info, nil
}

// seedWarmup loads cached bars preceding the replay start into the venue's
// aggregators. Warm-up days absent from the cache are skipped rather than
// fetched; history before the run is best effort.
func (e *ReplayEngineV1) seedWarmup(v *venue.Venue, tf types.Timeframe, start time.Time) error {
	if e.config.WarmupBars <= 0 {
		return nil
	}

	warmStart := start.Add(-time.Duration(e.config.WarmupBars) * tf.Duration())

	for _, symbol := range e.config.Symbols {
		bars, _, err := e.cache.LoadBarsPartial(symbol, string(tf), warmStart, start.Add(-time.Nanosecond))
		if err != nil {
			return err
		}

		if len(bars) == 0 {
			continue
		}

		if err := v.SeedHistory(symbol, tf, bars); err != nil {
			return err
		}
	}

	return nil
}

// Run drives the replay to completion. Every worker owns a static subset of
// symbols, calls step for each active owned symbol, then arrives at the
// barrier; the last arriver advances the simulated clock.
func (e *ReplayEngineV1) Run(ctx context.Context, step StepFunc) error {
	if e.venue == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "engine has not been preloaded")
	}

	parties := e.workerCount()
	barrier := e.venue.NewWorkerBarrier(parties)
	subsets := partitionSymbols(e.config.Symbols, parties)

	e.log.Info("starting replay",
		zap.String("run_id", e.runID),
		zap.Int("workers", parties),
		zap.Strings("symbols", e.config.Symbols))

	g, ctx := errgroup.WithContext(ctx)

	for _, subset := range subsets {
		g.Go(func() error {
			for {
				snap := e.venue.Snapshot()

				for _, symbol := range subset {
					if !snap.HasData(symbol) {
						continue
					}

					if err := e.callStep(ctx, step, symbol, snap); err != nil {
						return err
					}
				}

				more, err := barrier.Arrive(ctx)
				if err != nil {
					return err
				}

				if !more {
					return nil
				}
			}
		})
	}

	return g.Wait()
}

// callStep isolates a worker from panics inside strategy code. A panicking
// step aborts the replay with a typed error instead of crashing the process.
func (e *ReplayEngineV1) callStep(ctx context.Context, step StepFunc, symbol string, snap *venue.StepSnapshot) (err error) {
	if step == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("worker panicked",
				zap.String("symbol", symbol),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = errors.Newf(errors.ErrCodeWorkerPanicked, "step for %s panicked: %v", symbol, r)
		}
	}()

	return step(ctx, e.venue, symbol, snap)
}

// WriteResults exports the trade log to parquet and writes per-symbol
// replay statistics next to it. Valid after Run returns.
func (e *ReplayEngineV1) WriteResults() ([]types.ReplayStats, error) {
	if e.resultsFolder == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "results folder is not set")
	}

	tradesPath, err := e.tradeLog.Export(e.resultsFolder)
	if err != nil {
		return nil, err
	}

	final := e.venue.GetStatistics()
	now := time.Now().UTC()
	stats := make([]types.ReplayStats, 0, len(e.config.Symbols))

	for _, symbol := range e.config.Symbols {
		summary, err := e.tradeLog.Summary(symbol)
		if err != nil {
			return nil, err
		}

		stats = append(stats, types.ReplayStats{
			ID:             e.runID,
			Timestamp:      now,
			Symbol:         symbol,
			Summary:        summary,
			FinalBalance:   final.Balance,
			TradesFilePath: tradesPath,
			DataRangeStart: e.config.StartTime.Unwrap(),
			DataRangeEnd:   e.config.EndTime.Unwrap(),
		})
	}

	statsPath := filepath.Join(e.resultsFolder, "replay_stats.yaml")
	if err := types.WriteReplayStats(statsPath, stats); err != nil {
		return nil, err
	}

	e.log.Info("replay results written",
		zap.String("run_id", e.runID),
		zap.String("stats", statsPath),
		zap.String("trades", tradesPath))

	return stats, nil
}

// Cleanup releases the trade log and flushes the logger.
func (e *ReplayEngineV1) Cleanup() error {
	if e.tradeLog != nil {
		if err := e.tradeLog.Cleanup(); err != nil {
			return err
		}

		e.tradeLog = nil
	}

	if e.log != nil {
		_ = e.log.Sync()
	}

	return nil
}

func (e *ReplayEngineV1) venueConfig() venue.Config {
	cfg := e.config.Venue

	if len(e.config.Timeframes) > 0 {
		cfg.Timeframes = e.config.Timeframes
	}

	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []types.Timeframe{e.config.BaseTimeframe}
	}

	if e.config.Mode != venue.ReplayModeTicks && !containsTimeframe(cfg.Timeframes, e.config.BaseTimeframe) {
		cfg.Timeframes = append([]types.Timeframe{e.config.BaseTimeframe}, cfg.Timeframes...)
	}

	return cfg
}

func (e *ReplayEngineV1) workerCount() int {
	if e.config.Workers > 0 {
		return e.config.Workers
	}

	if n := len(e.config.Symbols); n < 4 {
		return n
	}

	return 4
}

func containsTimeframe(tfs []types.Timeframe, tf types.Timeframe) bool {
	for _, candidate := range tfs {
		if candidate == tf {
			return true
		}
	}

	return false
}

// partitionSymbols spreads symbols round-robin over count workers. Every
// worker gets a slice, possibly empty, so the barrier party count is stable.
func partitionSymbols(symbols []string, count int) [][]string {
	subsets := make([][]string, count)

	for i, symbol := range symbols {
		subsets[i%count] = append(subsets[i%count], symbol)
	}

	return subsets
}

// daySpan is an inclusive run of consecutive calendar days.
type daySpan struct {
	first types.Day
	last  types.Day
}

func (s daySpan) String() string {
	return fmt.Sprintf("%s..%s", s.first, s.last)
}

// clamp keeps only the bars falling on the span's own days.
func (s daySpan) clamp(bars []types.Bar) []types.Bar {
	kept := make([]types.Bar, 0, len(bars))

	for _, bar := range bars {
		day := types.DayOf(bar.StartTime)
		if day.Before(s.first) || s.last.Before(day) {
			continue
		}

		kept = append(kept, bar)
	}

	return kept
}

// contiguousSpans groups sorted missing days into consecutive runs so each
// run becomes a single provider fetch.
func contiguousSpans(days []types.Day) []daySpan {
	var spans []daySpan

	for _, day := range days {
		if len(spans) > 0 && spans[len(spans)-1].last.Next() == day {
			spans[len(spans)-1].last = day

			continue
		}

		spans = append(spans, daySpan{first: day, last: day})
	}

	return spans
}
