package histcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/cacheindex"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	root  string
	cache *Cache
	clock time.Time
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.clock = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	cache, err := NewCache(s.root, 7*24*time.Hour, logger.NewNopLogger())
	s.Require().NoError(err)

	cache.now = func() time.Time { return s.clock }
	s.cache = cache
}

// minuteBars builds one bar per minute covering [start, start+count minutes).
func minuteBars(symbol string, start time.Time, count int) []types.Bar {
	bars := make([]types.Bar, count)
	for i := range bars {
		t := start.Add(time.Duration(i) * time.Minute)
		bars[i] = types.Bar{
			Symbol:    symbol,
			StartTime: t,
			Open:      1.10,
			High:      1.11,
			Low:       1.09,
			Close:     1.105,
			Volume:    100,
		}
	}

	return bars
}

// dayBars builds full minute coverage for each given day starting at midnight.
func (s *CacheTestSuite) saveDays(symbol, key string, days ...types.Day) {
	for _, day := range days {
		start, err := types.ParseDay(string(day))
		s.Require().NoError(err)
		s.Require().NoError(s.cache.SaveBars(symbol, key, minuteBars(symbol, start.Time(), 60), "test"))
	}
}

func (s *CacheTestSuite) TestSaveAndLoadRoundTrip() {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := minuteBars("EURUSD", start, 120)
	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1", bars, "test"))

	loaded, err := s.cache.LoadBars("EURUSD", "M1", start, start.Add(119*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(loaded, 120)
	s.Equal(bars[0].StartTime, loaded[0].StartTime)
	s.Equal(bars[119].Close, loaded[119].Close)
}

func (s *CacheTestSuite) TestSaveIsIdempotent() {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := minuteBars("EURUSD", start, 60)

	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1", bars, "test"))
	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1", bars, "test"))

	loaded, err := s.cache.LoadBars("EURUSD", "M1", start, start.Add(time.Hour))
	s.Require().NoError(err)
	s.Len(loaded, 60)
	s.Equal([]types.Day{"2024-03-01"}, s.cache.Index().CachedDays("EURUSD", "M1"))
}

func (s *CacheTestSuite) TestSaveSplitsByDay() {
	// Series straddling midnight lands in two day partitions.
	start := time.Date(2024, 3, 1, 23, 58, 0, 0, time.UTC)
	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1", minuteBars("EURUSD", start, 4), "test"))

	s.Equal([]types.Day{"2024-03-01", "2024-03-02"}, s.cache.Index().CachedDays("EURUSD", "M1"))

	for _, day := range []string{"2024-03-01", "2024-03-02"} {
		_, err := os.Stat(filepath.Join(s.root, day, cacheindex.OHLCDir, cacheindex.SeriesFileName("EURUSD", "M1")))
		s.NoError(err, day)
		_, err = os.Stat(filepath.Join(s.root, day, cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1")))
		s.NoError(err, day)
	}
}

func (s *CacheTestSuite) TestPartialLoadReportsMissingDays() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-03")

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)

	bars, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, end)
	s.Require().NoError(err)

	// Requested minus cached, exactly.
	s.Equal([]types.Day{"2024-03-02", "2024-03-04"}, missing)
	s.Len(bars, 120)
}

func (s *CacheTestSuite) TestPartialLoadAfterRefetchIsComplete() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-03")

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 3, 23, 59, 0, 0, time.UTC)

	_, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, end)
	s.Require().NoError(err)
	s.Require().Equal([]types.Day{"2024-03-02"}, missing)

	s.saveDays("EURUSD", "M1", missing...)

	bars, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, end)
	s.Require().NoError(err)
	s.Empty(missing)
	s.Len(bars, 180)
}

func (s *CacheTestSuite) TestAllOrNothingLoadFailsOnGap() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-03")

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 3, 23, 59, 0, 0, time.UTC)

	_, err := s.cache.LoadBars("EURUSD", "M1", start, end)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDayNotCached))
}

func (s *CacheTestSuite) TestValidateCoverageStartGap() {
	dayStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1",
		minuteBars("EURUSD", dayStart.Add(6*time.Hour), 60), "test"))

	err := s.cache.ValidateCoverage("EURUSD", "M1", dayStart, dayStart.Add(7*time.Hour))
	s.Require().NoError(err, "6h into day zero is within tolerance")

	// Rewrite the sidecar so the day claims its first sample far past the
	// requested start, as happens when a provider returns data offset from
	// the requested range.
	meta := filepath.Join(s.root, "2024-03-01", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1"))
	s.Require().NoError(writeMetadata(meta, DayMetadata{
		CachedAt:        s.clock,
		FirstSampleTime: dayStart.Add(30 * time.Hour),
		LastSampleTime:  dayStart.Add(31 * time.Hour),
		RowCount:        60,
		SchemaVersion:   SchemaVersion,
		Source:          "test",
	}))

	err = s.cache.ValidateCoverage("EURUSD", "M1", dayStart, dayStart.Add(7*time.Hour))
	s.Require().Error(err)

	var covErr *errors.CoverageError
	s.Require().ErrorAs(err, &covErr)
	s.Contains(covErr.Reason, "start gap")
}

func (s *CacheTestSuite) TestPartialLoadReportsStartGapDay() {
	dayStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.SaveBars("EURUSD", "M1",
		minuteBars("EURUSD", dayStart.Add(6*time.Hour), 60), "test"))

	// Tamper the sidecar so day zero's first sample sits far past the
	// requested start, the same setup coverage validation rejects.
	meta := filepath.Join(s.root, "2024-03-01", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1"))
	s.Require().NoError(writeMetadata(meta, DayMetadata{
		CachedAt:        s.clock,
		FirstSampleTime: dayStart.Add(30 * time.Hour),
		LastSampleTime:  dayStart.Add(31 * time.Hour),
		RowCount:        60,
		SchemaVersion:   SchemaVersion,
		Source:          "test",
	}))

	bars, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", dayStart, dayStart.Add(7*time.Hour))
	s.Require().NoError(err)
	s.Equal([]types.Day{"2024-03-01"}, missing, "a gapped day zero is refetched, not served")
	s.Empty(bars)
}

func (s *CacheTestSuite) TestTTLExpiry() {
	s.saveDays("EURUSD", "M1", "2024-03-01")

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	s.Require().NoError(s.cache.ValidateCoverage("EURUSD", "M1", start, end))

	// Advance the clock past the 7 day TTL; the day is now stale.
	s.clock = s.clock.Add(8 * 24 * time.Hour)

	err := s.cache.ValidateCoverage("EURUSD", "M1", start, end)
	s.Require().Error(err)

	_, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, end)
	s.Require().NoError(err)
	s.Equal([]types.Day{"2024-03-01"}, missing)
}

func (s *CacheTestSuite) TestMissingMetadataFencesDayOff() {
	s.saveDays("EURUSD", "M1", "2024-03-01")

	meta := filepath.Join(s.root, "2024-03-01", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1"))
	s.Require().NoError(os.Remove(meta))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, start.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal([]types.Day{"2024-03-01"}, missing)
}

func (s *CacheTestSuite) TestSchemaMajorMismatchTreatedAsMissing() {
	s.saveDays("EURUSD", "M1", "2024-03-01")

	meta := filepath.Join(s.root, "2024-03-01", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1"))
	s.Require().NoError(writeMetadata(meta, DayMetadata{
		CachedAt:      s.clock,
		RowCount:      60,
		SchemaVersion: "2.0.0",
		Source:        "test",
	}))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, start.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal([]types.Day{"2024-03-01"}, missing)
}

func (s *CacheTestSuite) TestCorruptPayloadIsQuarantined() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-02")

	payload := filepath.Join(s.root, "2024-03-02", cacheindex.OHLCDir, cacheindex.SeriesFileName("EURUSD", "M1"))
	s.Require().NoError(os.WriteFile(payload, []byte("not parquet"), 0644))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC)

	bars, missing, err := s.cache.LoadBarsPartial("EURUSD", "M1", start, end)
	s.Require().NoError(err)
	s.Equal([]types.Day{"2024-03-02"}, missing)
	s.Len(bars, 60)

	// The corrupt payload is gone and the day is de-indexed.
	_, statErr := os.Stat(payload)
	s.True(os.IsNotExist(statErr))
	s.False(s.cache.Index().HasDay("EURUSD", "M1", "2024-03-02"))
}

func (s *CacheTestSuite) TestSampledValidationOnLowResolutionSeries() {
	days := types.DaysBetween(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)

	for _, day := range days {
		start, err := types.ParseDay(string(day))
		s.Require().NoError(err)

		bars := make([]types.Bar, 24)
		for i := range bars {
			bars[i] = types.Bar{
				Symbol: "EURUSD", StartTime: start.Time().Add(time.Duration(i) * time.Hour),
				Open: 1, High: 1, Low: 1, Close: 1, Volume: 1,
			}
		}
		s.Require().NoError(s.cache.SaveBars("EURUSD", "H1", bars, "test"))
	}

	// Expire one mid-range day that sampling does not land on. Sampling picks
	// indexes 0, 7, 15, 23, 30 of 31 days; day index 3 is between picks.
	meta := filepath.Join(s.root, "2024-01-04", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "H1"))
	s.Require().NoError(writeMetadata(meta, DayMetadata{
		CachedAt:      s.clock.Add(-30 * 24 * time.Hour),
		RowCount:      24,
		SchemaVersion: SchemaVersion,
		Source:        "test",
	}))

	// Sampled validation passes despite the stale day.
	err := s.cache.ValidateCoverage("EURUSD", "H1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))
	s.NoError(err)

	// M1 at the same span validates every day and catches it.
	s.saveDays("EURUSD", "M1", days...)
	s.Require().NoError(writeMetadata(
		filepath.Join(s.root, "2024-01-04", cacheindex.OHLCDir, cacheindex.MetaFileName("EURUSD", "M1")),
		DayMetadata{CachedAt: s.clock.Add(-30 * 24 * time.Hour), RowCount: 60, SchemaVersion: SchemaVersion, Source: "test"},
	))

	err = s.cache.ValidateCoverage("EURUSD", "M1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))
	s.Error(err)
}

func (s *CacheTestSuite) TestTicksRoundTrip() {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ticks := make([]types.Tick, 100)
	for i := range ticks {
		ticks[i] = types.Tick{
			Symbol: "EURUSD",
			Time:   start.Add(time.Duration(i) * time.Second),
			Bid:    1.1000,
			Ask:    1.1002,
			Last:   1.1001,
			Volume: 1,
		}
	}

	s.Require().NoError(s.cache.SaveTicks("EURUSD", ticks, "test"))

	loaded, missing, err := s.cache.LoadTicksPartial("EURUSD", start, start.Add(99*time.Second))
	s.Require().NoError(err)
	s.Empty(missing)
	s.Require().Len(loaded, 100)
	s.Equal(ticks[0].Time, loaded[0].Time)
	s.Equal(ticks[99].Ask, loaded[99].Ask)
}

func (s *CacheTestSuite) TestInstrumentSnapshot() {
	info := types.InstrumentInfo{
		Symbol:       "EURUSD",
		PointSize:    0.00001,
		Digits:       5,
		TickValue:    1,
		TickSize:     0.00001,
		LotStep:      0.01,
		MinLot:       0.01,
		MaxLot:       100,
		ContractSize: 100000,
		TradeAllowed: true,
	}

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.cache.SaveInstrument(info, asOf))

	// A later snapshot shadows the earlier one from its day forward.
	updated := info
	updated.SpreadPoints = 12
	s.Require().NoError(s.cache.SaveInstrument(updated, asOf.AddDate(0, 0, 5)))

	got, err := s.cache.LoadInstrument("EURUSD", asOf.AddDate(0, 0, 2))
	s.Require().NoError(err)
	s.Zero(got.SpreadPoints)

	got, err = s.cache.LoadInstrument("EURUSD", asOf.AddDate(0, 0, 10))
	s.Require().NoError(err)
	s.Equal(12.0, got.SpreadPoints)

	_, err = s.cache.LoadInstrument("GBPUSD", asOf)
	s.True(errors.HasCode(err, errors.ErrCodeInstrumentNotFound))
}

func (s *CacheTestSuite) TestClearDay() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-02")

	s.Require().NoError(s.cache.Clear("EURUSD", "2024-03-01"))

	s.False(s.cache.Index().HasDay("EURUSD", "M1", "2024-03-01"))
	s.True(s.cache.Index().HasDay("EURUSD", "M1", "2024-03-02"))
}

func (s *CacheTestSuite) TestClearSymbolKeepsOthers() {
	s.saveDays("EURUSD", "M1", "2024-03-01")
	s.saveDays("GBPUSD", "M1", "2024-03-01")

	s.Require().NoError(s.cache.Clear("EURUSD", ""))

	s.Nil(s.cache.Index().CachedDays("EURUSD", "M1"))
	s.Equal([]types.Day{"2024-03-01"}, s.cache.Index().CachedDays("GBPUSD", "M1"))
}

func (s *CacheTestSuite) TestClearDayAcrossSymbols() {
	s.saveDays("EURUSD", "M1", "2024-03-01", "2024-03-02")
	s.saveDays("GBPUSD", "M1", "2024-03-01")

	s.Require().NoError(s.cache.Clear("", "2024-03-01"))

	s.False(s.cache.Index().HasDay("EURUSD", "M1", "2024-03-01"))
	s.False(s.cache.Index().HasDay("GBPUSD", "M1", "2024-03-01"))
	s.True(s.cache.Index().HasDay("EURUSD", "M1", "2024-03-02"))

	_, err := os.Stat(filepath.Join(s.root, "2024-03-01"))
	s.True(os.IsNotExist(err))
}

func (s *CacheTestSuite) TestClearAll() {
	s.saveDays("EURUSD", "M1", "2024-03-01")
	s.saveDays("GBPUSD", "M5", "2024-03-02")

	s.Require().NoError(s.cache.Clear("", ""))

	s.Nil(s.cache.Index().CachedDays("EURUSD", "M1"))
	s.Nil(s.cache.Index().CachedDays("GBPUSD", "M5"))
}
