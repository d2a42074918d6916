// Package histcache is the day-partitioned on-disk store for historical
// OHLC and tick series. Per-day partitioning makes invalidation and
// incremental loading local operations: staleness and gap detection are
// per-day predicates instead of range scans, and a missing day can be
// refetched without rewriting the whole range.
package histcache

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/cacheindex"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"go.uber.org/zap"
)

// startGapTolerance is how far into the requested range the first cached
// sample of day zero may sit before coverage reports a start gap.
const startGapTolerance = 24 * time.Hour

// Coverage sampling fast path: series at or above this resolution spanning
// more than sampledValidationDays validate a bounded subset of days
// (first, quartiles, last) instead of every day. This is a deliberate
// precision/performance trade-off for low-resolution series; see
// ValidateCoverage.
const (
	lowResolutionCutoff   = time.Hour
	sampledValidationDays = 14
)

// Cache is the historical data cache. On-disk writes and the index mutation
// that follows them form one logical unit per saved day, serialized by the
// cache mutex.
type Cache struct {
	root  string
	ttl   time.Duration
	log   *logger.Logger
	index *cacheindex.Index

	mu sync.Mutex

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewCache creates a cache rooted at root with the given TTL, building or
// loading the index manifest.
func NewCache(root string, ttl time.Duration, log *logger.Logger) (*Cache, error) {
	index, err := cacheindex.NewIndex(root, log)
	if err != nil {
		return nil, err
	}

	return &Cache{
		root:  root,
		ttl:   ttl,
		log:   log,
		index: index,
		now:   time.Now,
	}, nil
}

// Index exposes the underlying cache index.
func (c *Cache) Index() *cacheindex.Index {
	return c.index
}

// ValidateCoverage checks that every calendar day in [start, end] is cached,
// carries provenance metadata, is within TTL, and that day zero's first
// sample is within one day of the requested start. Returns nil when
// coverage is valid, a *errors.CoverageError otherwise.
//
// For series at or above 1h resolution spanning more than two weeks, only a
// bounded subset of days (first, quartiles, last) is validated. That is a
// documented approximation: a stale day strictly between sampled points can
// slip through, in exchange for O(1) validation cost on multi-year ranges.
func (c *Cache) ValidateCoverage(symbol string, seriesKey string, start time.Time, end time.Time) error {
	days := types.DaysBetween(start, end)
	if len(days) == 0 {
		return errors.New(errors.ErrCodeInvalidDateRange, "empty date range")
	}

	checked := days
	if c.useSampledValidation(seriesKey, len(days)) {
		checked = sampleDays(days)
	}

	for _, day := range checked {
		meta, err := c.dayUsable(symbol, seriesKey, day)
		if err != nil {
			return errors.NewCoverageErrorf(symbol, seriesKey, string(day), "%v", err)
		}

		// Day zero additionally requires the series to begin near the
		// requested start; a late first sample is a gap even when every
		// later day is fully valid.
		if day == days[0] && meta.FirstSampleTime.After(start.Add(startGapTolerance)) {
			return errors.NewCoverageErrorf(symbol, seriesKey, string(day),
				"start gap: first sample %s is more than %s after requested start %s",
				meta.FirstSampleTime.Format(time.RFC3339), startGapTolerance, start.Format(time.RFC3339))
		}
	}

	return nil
}

// LoadBars is the all-or-nothing load: any missing, expired or corrupt day
// in the range aborts with the coverage failure instead of returning a
// partial series.
func (c *Cache) LoadBars(symbol string, seriesKey string, start time.Time, end time.Time) ([]types.Bar, error) {
	days := types.DaysBetween(start, end)
	if len(days) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidDateRange, "empty date range")
	}

	// Strict validation: every day, no sampling.
	for _, day := range days {
		if _, err := c.dayUsable(symbol, seriesKey, day); err != nil {
			return nil, err
		}
	}

	bars, _, err := c.loadDays(symbol, seriesKey, days, start, end)

	return bars, err
}

// LoadBarsPartial loads every valid day it can and reports the calendar
// days that must be fetched from the external provider. The returned series
// is concatenated, de-duplicated by timestamp, sorted and bound-filtered.
// This is the primary integration point for incremental data loading.
func (c *Cache) LoadBarsPartial(symbol string, seriesKey string, start time.Time, end time.Time) ([]types.Bar, []types.Day, error) {
	days := types.DaysBetween(start, end)
	if len(days) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidDateRange, "empty date range")
	}

	var usable []types.Day

	var missing []types.Day

	for _, day := range days {
		meta, err := c.dayUsable(symbol, seriesKey, day)
		if err != nil {
			missing = append(missing, day)

			continue
		}

		// Same day-zero start-gap rule as ValidateCoverage: a first sample
		// far past the requested start means the range head is uncached, so
		// the day is reported missing for refetch.
		if day == days[0] && meta.FirstSampleTime.After(start.Add(startGapTolerance)) {
			missing = append(missing, day)

			continue
		}

		usable = append(usable, day)
	}

	bars, corrupt, err := c.loadDays(symbol, seriesKey, usable, start, end)
	if err != nil {
		return nil, nil, err
	}

	// Days that failed at read time get refetched like never-cached ones.
	if len(corrupt) > 0 {
		missing = append(missing, corrupt...)
		sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })
	}

	return bars, missing, nil
}

// SaveBars splits the series by calendar day and persists one payload plus
// provenance sidecar per day, atomically (temp file + rename), then updates
// the index. Saving the same series twice yields identical cache contents.
func (c *Cache) SaveBars(symbol string, seriesKey string, bars []types.Bar, source string) error {
	if len(bars) == 0 {
		return nil
	}

	byDay := make(map[types.Day][]types.Bar)
	for _, b := range bars {
		day := types.DayOf(b.StartTime)
		byDay[day] = append(byDay[day], b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	days := make([]types.Day, 0, len(byDay))

	for day, dayBars := range byDay {
		sort.Slice(dayBars, func(i, j int) bool { return dayBars[i].StartTime.Before(dayBars[j].StartTime) })

		dir := filepath.Join(c.root, string(day), cacheindex.OHLCDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to create day directory", err)
		}

		payload := filepath.Join(dir, cacheindex.SeriesFileName(symbol, seriesKey))
		if err := writeParquet(payload, barsToRows(dayBars)); err != nil {
			return err
		}

		meta := DayMetadata{
			CachedAt:        c.now().UTC(),
			FirstSampleTime: dayBars[0].StartTime,
			LastSampleTime:  dayBars[len(dayBars)-1].StartTime,
			RowCount:        len(dayBars),
			SchemaVersion:   SchemaVersion,
			Source:          source,
		}
		if err := writeMetadata(filepath.Join(dir, cacheindex.MetaFileName(symbol, seriesKey)), meta); err != nil {
			return err
		}

		days = append(days, day)
	}

	if err := c.index.AddDays(symbol, seriesKey, days...); err != nil {
		// The index is rebuildable; a failed manifest write must not fail
		// the save.
		c.log.Warn("cache index persist failed after save",
			zap.String("symbol", symbol),
			zap.String("series", seriesKey),
			zap.Error(err),
		)
	}

	return nil
}

// LoadTicksPartial is the tick-series counterpart of LoadBarsPartial.
func (c *Cache) LoadTicksPartial(symbol string, start time.Time, end time.Time) ([]types.Tick, []types.Day, error) {
	days := types.DaysBetween(start, end)
	if len(days) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidDateRange, "empty date range")
	}

	var ticks []types.Tick

	var missing []types.Day

	for _, day := range days {
		if _, err := c.dayUsable(symbol, cacheindex.SeriesKeyTicks, day); err != nil {
			missing = append(missing, day)

			continue
		}

		path := c.seriesPath(symbol, cacheindex.SeriesKeyTicks, day)

		rows, err := readTickRows(path)
		if err != nil {
			c.quarantineDay(symbol, cacheindex.SeriesKeyTicks, day, err)
			missing = append(missing, day)

			continue
		}

		ticks = append(ticks, rowsToTicks(symbol, rows)...)
	}

	ticks = dedupTicks(ticks)

	filtered := ticks[:0]

	for _, t := range ticks {
		if t.Time.Before(start) || t.Time.After(end) {
			continue
		}

		filtered = append(filtered, t)
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })

	return filtered, missing, nil
}

// SaveTicks persists a tick series under the dedicated ticks partition.
func (c *Cache) SaveTicks(symbol string, ticks []types.Tick, source string) error {
	if len(ticks) == 0 {
		return nil
	}

	byDay := make(map[types.Day][]types.Tick)
	for _, t := range ticks {
		day := types.DayOf(t.Time)
		byDay[day] = append(byDay[day], t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	days := make([]types.Day, 0, len(byDay))

	for day, dayTicks := range byDay {
		sort.Slice(dayTicks, func(i, j int) bool { return dayTicks[i].Time.Before(dayTicks[j].Time) })

		dir := filepath.Join(c.root, string(day), cacheindex.TicksDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to create day directory", err)
		}

		payload := filepath.Join(dir, cacheindex.SeriesFileName(symbol, cacheindex.SeriesKeyTicks))
		if err := writeParquet(payload, ticksToRows(dayTicks)); err != nil {
			return err
		}

		meta := DayMetadata{
			CachedAt:        c.now().UTC(),
			FirstSampleTime: dayTicks[0].Time,
			LastSampleTime:  dayTicks[len(dayTicks)-1].Time,
			RowCount:        len(dayTicks),
			SchemaVersion:   SchemaVersion,
			Source:          source,
		}
		if err := writeMetadata(filepath.Join(dir, cacheindex.MetaFileName(symbol, cacheindex.SeriesKeyTicks)), meta); err != nil {
			return err
		}

		days = append(days, day)
	}

	if err := c.index.AddDays(symbol, cacheindex.SeriesKeyTicks, days...); err != nil {
		c.log.Warn("cache index persist failed after save",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	return nil
}

// SaveInstrument snapshots instrument metadata under the day partition of
// asOf.
func (c *Cache) SaveInstrument(info types.InstrumentInfo, asOf time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Join(c.root, string(types.DayOf(asOf)), cacheindex.InstrumentsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to create instruments directory", err)
	}

	return writeInstrument(filepath.Join(dir, info.Symbol+".yaml"), info)
}

// LoadInstrument returns the most recent instrument snapshot at or before
// asOf.
func (c *Cache) LoadInstrument(symbol string, asOf time.Time) (types.InstrumentInfo, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return types.InstrumentInfo{}, errors.Wrap(errors.ErrCodeDayNotCached, "failed to scan cache root", err)
	}

	cutoff := types.DayOf(asOf)

	var latest string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		day, err := types.ParseDay(entry.Name())
		if err != nil || cutoff.Before(day) {
			continue
		}

		path := filepath.Join(c.root, entry.Name(), cacheindex.InstrumentsDir, symbol+".yaml")
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if path > latest {
			latest = path
		}
	}

	if latest == "" {
		return types.InstrumentInfo{}, errors.Newf(errors.ErrCodeInstrumentNotFound, "no cached metadata for %s", symbol)
	}

	return readInstrument(latest)
}

// Clear invalidates cached data. An empty symbol with an empty day clears
// everything; an empty symbol with a day clears that day for all symbols;
// an empty day clears every day for the symbol. Narrow invalidations update
// the index in place; coarse ones rebuild it from disk.
func (c *Cache) Clear(symbol string, day types.Day) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case symbol == "" && day != "":
		if err := os.RemoveAll(filepath.Join(c.root, string(day))); err != nil {
			return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to remove day directory", err)
		}

		return c.index.Rebuild()

	case symbol == "":
		entries, err := os.ReadDir(c.root)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeManifestReadFailed, "failed to scan cache root", err)
		}

		for _, entry := range entries {
			if _, err := types.ParseDay(entry.Name()); err != nil {
				continue
			}

			if err := os.RemoveAll(filepath.Join(c.root, entry.Name())); err != nil {
				return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to remove day directory", err)
			}
		}

		return c.index.Rebuild()

	case day == "":
		// All days for one symbol: remove that symbol's files wherever they
		// appear, then rebuild since the removal scope is coarse.
		entries, err := os.ReadDir(c.root)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeManifestReadFailed, "failed to scan cache root", err)
		}

		for _, entry := range entries {
			d, err := types.ParseDay(entry.Name())
			if err != nil {
				continue
			}

			c.removeSymbolDay(symbol, d)
		}

		return c.index.Rebuild()

	default:
		c.removeSymbolDay(symbol, day)

		for _, key := range c.symbolSeriesKeys(symbol) {
			if err := c.index.RemoveDay(symbol, key, day); err != nil {
				c.log.Warn("cache index persist failed after clear", zap.Error(err))
			}
		}

		return nil
	}
}

// dayUsable is the per-day validity predicate shared by ValidateCoverage,
// LoadBars and LoadBarsPartial: the day must be indexed, carry provenance
// metadata with a compatible schema, and be within TTL.
func (c *Cache) dayUsable(symbol string, seriesKey string, day types.Day) (DayMetadata, error) {
	if !c.index.HasDay(symbol, seriesKey, day) {
		return DayMetadata{}, errors.Newf(errors.ErrCodeDayNotCached, "day %s not cached for %s/%s", day, symbol, seriesKey)
	}

	meta, err := readMetadata(c.metaPath(symbol, seriesKey, day))
	if err != nil {
		return DayMetadata{}, err
	}

	if err := meta.CheckSchema(); err != nil {
		return DayMetadata{}, err
	}

	if c.ttl > 0 && c.now().Sub(meta.CachedAt) > c.ttl {
		return DayMetadata{}, errors.Newf(errors.ErrCodeCacheExpired,
			"day %s for %s/%s cached at %s exceeds ttl %s",
			day, symbol, seriesKey, meta.CachedAt.Format(time.RFC3339), c.ttl)
	}

	return meta, nil
}

// loadDays reads the given days, concatenates, de-duplicates by timestamp,
// sorts and filters to [start, end]. Unreadable days are quarantined
// (deleted and de-indexed) and returned separately.
func (c *Cache) loadDays(symbol string, seriesKey string, days []types.Day, start time.Time, end time.Time) ([]types.Bar, []types.Day, error) {
	var bars []types.Bar

	var corrupt []types.Day

	for _, day := range days {
		rows, err := readBarRows(c.seriesPath(symbol, seriesKey, day))
		if err != nil {
			c.quarantineDay(symbol, seriesKey, day, err)
			corrupt = append(corrupt, day)

			continue
		}

		bars = append(bars, rowsToBars(symbol, rows)...)
	}

	bars = dedupBars(bars)

	filtered := bars[:0]

	for _, b := range bars {
		if b.StartTime.Before(start) || b.StartTime.After(end) {
			continue
		}

		filtered = append(filtered, b)
	}

	return filtered, corrupt, nil
}

// quarantineDay deletes an unreadable day payload and drops it from the
// index so the next partial load refetches it. Corruption recovery, not an
// error path: the provider remains the source of truth.
func (c *Cache) quarantineDay(symbol string, seriesKey string, day types.Day, cause error) {
	c.log.Warn("quarantining corrupt cache day",
		zap.String("symbol", symbol),
		zap.String("series", seriesKey),
		zap.String("day", string(day)),
		zap.Error(cause),
	)

	os.Remove(c.seriesPath(symbol, seriesKey, day))
	os.Remove(c.metaPath(symbol, seriesKey, day))

	if err := c.index.RemoveDay(symbol, seriesKey, day); err != nil {
		c.log.Warn("cache index persist failed after quarantine", zap.Error(err))
	}
}

func (c *Cache) useSampledValidation(seriesKey string, dayCount int) bool {
	tf, err := types.ParseTimeframe(seriesKey)
	if err != nil {
		return false
	}

	return tf.Duration() >= lowResolutionCutoff && dayCount > sampledValidationDays
}

func (c *Cache) seriesPath(symbol string, seriesKey string, day types.Day) string {
	sub := cacheindex.OHLCDir
	if seriesKey == cacheindex.SeriesKeyTicks {
		sub = cacheindex.TicksDir
	}

	return filepath.Join(c.root, string(day), sub, cacheindex.SeriesFileName(symbol, seriesKey))
}

func (c *Cache) metaPath(symbol string, seriesKey string, day types.Day) string {
	sub := cacheindex.OHLCDir
	if seriesKey == cacheindex.SeriesKeyTicks {
		sub = cacheindex.TicksDir
	}

	return filepath.Join(c.root, string(day), sub, cacheindex.MetaFileName(symbol, seriesKey))
}

// removeSymbolDay deletes every payload/sidecar of a symbol under one day.
func (c *Cache) removeSymbolDay(symbol string, day types.Day) {
	for _, sub := range []string{cacheindex.OHLCDir, cacheindex.TicksDir} {
		dir := filepath.Join(c.root, string(day), sub)

		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, f := range files {
			fileSymbol, _, err := cacheindex.ParseSeriesFileName(f.Name())
			if err == nil && fileSymbol == symbol {
				os.Remove(filepath.Join(dir, f.Name()))
				os.Remove(filepath.Join(dir, f.Name()[:len(f.Name())-len(cacheindex.SeriesFileExt)]+cacheindex.MetaFileSuffix))
			}
		}
	}

	os.Remove(filepath.Join(c.root, string(day), cacheindex.InstrumentsDir, symbol+".yaml"))
}

// symbolSeriesKeys lists the series keys currently indexed for a symbol.
func (c *Cache) symbolSeriesKeys(symbol string) []string {
	keys := []string{cacheindex.SeriesKeyTicks}
	for _, tf := range types.AllTimeframes {
		keys = append(keys, string(tf))
	}

	return keys
}

// sampleDays picks first, quartiles and last from an ordered day list.
func sampleDays(days []types.Day) []types.Day {
	n := len(days)

	picks := []int{0, n / 4, n / 2, 3 * n / 4, n - 1}
	sampled := make([]types.Day, 0, len(picks))
	seen := make(map[int]struct{}, len(picks))

	for _, i := range picks {
		if _, ok := seen[i]; ok {
			continue
		}

		seen[i] = struct{}{}
		sampled = append(sampled, days[i])
	}

	return sampled
}

func dedupBars(bars []types.Bar) []types.Bar {
	sort.Slice(bars, func(i, j int) bool { return bars[i].StartTime.Before(bars[j].StartTime) })

	out := bars[:0]

	for i, b := range bars {
		if i > 0 && b.StartTime.Equal(bars[i-1].StartTime) {
			// Later write wins for duplicate timestamps.
			out[len(out)-1] = b

			continue
		}

		out = append(out, b)
	}

	return out
}

func dedupTicks(ticks []types.Tick) []types.Tick {
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Time.Before(ticks[j].Time) })

	out := ticks[:0]

	for i, t := range ticks {
		if i > 0 && t.Time.Equal(ticks[i-1].Time) && t.Symbol == ticks[i-1].Symbol {
			out[len(out)-1] = t

			continue
		}

		out = append(out, t)
	}

	return out
}
