package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/histcache"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/venue"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/mocks"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type EngineTestSuite struct {
	suite.Suite
	cacheRoot string
	results   string
	start     time.Time
	end       time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.cacheRoot = s.T().TempDir()
	s.results = s.T().TempDir()
	s.start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s.end = time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
}

func (s *EngineTestSuite) instrument() types.InstrumentInfo {
	return types.InstrumentInfo{
		Symbol:        "EURUSD",
		PointSize:     0.00001,
		Digits:        5,
		TickValue:     1,
		TickSize:      0.00001,
		LotStep:       0.01,
		MinLot:        0.01,
		MaxLot:        100,
		ContractSize:  100000,
		QuoteCategory: types.CurrencyCategoryAccount,
		TradeAllowed:  true,
	}
}

// seedCache writes one day of generated minute bars plus the instrument
// snapshot, so a replay over [start, end] is fully covered.
func (s *EngineTestSuite) seedCache() {
	cache, err := histcache.NewCache(s.cacheRoot, 7*24*time.Hour, logger.NewNopLogger())
	s.Require().NoError(err)

	config := mocks.DefaultConfig()
	config.StartTime = s.start

	bars := mocks.NewDataGenerator(42).GenerateBars(config)
	s.Require().NoError(cache.SaveBars("EURUSD", "M1", bars, "test"))
	s.Require().NoError(cache.SaveInstrument(s.instrument(), s.start))
}

func (s *EngineTestSuite) configYAML() string {
	return fmt.Sprintf(`
cache_root: %s
symbols:
  - EURUSD
mode: bars
base_timeframe: M1
timeframes:
  - M1
  - M5
start_time: %s
end_time: %s
workers: 1
venue:
  initial_balance: 10000
  leverage: 100
  margin_use_limit: 0.95
  base_slippage_points: 0
  slippage_points_per_lot: 0
`, s.cacheRoot, s.start.Format(time.RFC3339), s.end.Format(time.RFC3339))
}

func (s *EngineTestSuite) newEngine() *ReplayEngineV1 {
	e := NewReplayEngineV1()
	s.Require().NoError(e.Initialize(s.configYAML()))
	s.Require().NoError(e.SetResultsFolder(s.results))

	return e
}

func (s *EngineTestSuite) TestReplayFromCache() {
	s.seedCache()

	e := s.newEngine()
	defer e.Cleanup()

	ctx := context.Background()
	s.Require().NoError(e.Preload(ctx, nil))

	var steps atomic.Int64
	var submitted atomic.Bool

	err := e.Run(ctx, func(ctx context.Context, v *venue.Venue, symbol string, snap *venue.StepSnapshot) error {
		steps.Add(1)

		if steps.Load() == 5 && submitted.CompareAndSwap(false, true) {
			result := v.SubmitMarketOrder(types.OrderRequest{Symbol: symbol, Side: types.SideBuy, Volume: 0.1})
			if !result.Success {
				return fmt.Errorf("order rejected: %s %s", result.Code, result.Comment)
			}
		}

		return nil
	})
	s.Require().NoError(err)

	// 61 minute bars in [start, end], each active for exactly one step.
	s.Equal(int64(61), steps.Load())
	s.True(submitted.Load())

	// The position opened mid-replay is force-closed when data runs out.
	trades := e.Venue().GetClosedTrades()
	s.Require().Len(trades, 1)
	s.Equal(types.CloseReasonEndOfReplay, trades[0].Reason)

	stats, err := e.WriteResults()
	s.Require().NoError(err)
	s.Require().Len(stats, 1)
	s.Equal("EURUSD", stats[0].Symbol)
	s.Equal(1, stats[0].Summary.NumberOfTrades)
	s.NotEmpty(stats[0].ID)

	_, err = os.Stat(filepath.Join(s.results, "replay_stats.yaml"))
	s.NoError(err)

	_, err = os.Stat(stats[0].TradesFilePath)
	s.NoError(err)
}

func (s *EngineTestSuite) TestPreloadBackfillsFromProvider() {
	ctrl := gomock.NewController(s.T())
	provider := mocks.NewMockProvider(ctrl)

	config := mocks.DefaultConfig()
	config.StartTime = s.start
	bars := mocks.NewDataGenerator(7).GenerateBars(config)

	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().FetchInstrument(gomock.Any(), "EURUSD").Return(s.instrument(), nil)
	provider.EXPECT().
		FetchBars(gomock.Any(), "EURUSD", types.TimeframeM1, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(bars, nil)

	e := s.newEngine()
	defer e.Cleanup()

	e.SetDataProvider(provider)

	ctx := context.Background()
	s.Require().NoError(e.Preload(ctx, nil))

	// The fetched day is now cached: a second load finds nothing missing.
	cache, err := histcache.NewCache(s.cacheRoot, 7*24*time.Hour, logger.NewNopLogger())
	s.Require().NoError(err)

	_, missing, err := cache.LoadBarsPartial("EURUSD", "M1", s.start, s.end)
	s.Require().NoError(err)
	s.Empty(missing)

	s.Require().NoError(e.Run(ctx, nil))
}

func (s *EngineTestSuite) TestBackfillDoesNotRewriteAdjacentDay() {
	s.end = time.Date(2024, 1, 3, 0, 2, 0, 0, time.UTC)

	// Day two is already cached with exactly three bars; day one is not.
	cache, err := histcache.NewCache(s.cacheRoot, 7*24*time.Hour, logger.NewNopLogger())
	s.Require().NoError(err)

	dayTwo := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	seeded := make([]types.Bar, 3)

	for i := range seeded {
		seeded[i] = types.Bar{
			Symbol:    "EURUSD",
			StartTime: dayTwo.Add(time.Duration(i) * time.Minute),
			Open:      1.1,
			High:      1.1,
			Low:       1.1,
			Close:     1.1,
			Volume:    100,
		}
	}

	s.Require().NoError(cache.SaveBars("EURUSD", "M1", seeded, "test"))
	s.Require().NoError(cache.SaveInstrument(s.instrument(), s.start))

	// The provider treats the end bound inclusively: the day-one backfill
	// response carries day two's midnight bar as well.
	config := mocks.DefaultConfig()
	config.StartTime = s.start
	config.Count = 1441
	fetched := mocks.NewDataGenerator(7).GenerateBars(config)

	ctrl := gomock.NewController(s.T())
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		FetchBars(gomock.Any(), "EURUSD", types.TimeframeM1, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fetched, nil)

	e := s.newEngine()
	defer e.Cleanup()

	e.SetDataProvider(provider)

	s.Require().NoError(e.Preload(context.Background(), nil))

	// The seeded day keeps its own payload: the overlapping midnight bar
	// from the fetch must not shrink it to a single bar.
	fresh, err := histcache.NewCache(s.cacheRoot, 7*24*time.Hour, logger.NewNopLogger())
	s.Require().NoError(err)

	bars, err := fresh.LoadBars("EURUSD", "M1", dayTwo, s.end)
	s.Require().NoError(err)
	s.Len(bars, 3)
}

func (s *EngineTestSuite) TestPreloadFailsWithoutProviderOrCache() {
	e := s.newEngine()
	defer e.Cleanup()

	err := e.Preload(context.Background(), nil)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInstrumentNotFound))
}

func (s *EngineTestSuite) TestRunSurfacesWorkerPanic() {
	s.seedCache()

	e := s.newEngine()
	defer e.Cleanup()

	ctx := context.Background()
	s.Require().NoError(e.Preload(ctx, nil))

	err := e.Run(ctx, func(ctx context.Context, v *venue.Venue, symbol string, snap *venue.StepSnapshot) error {
		panic("strategy bug")
	})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeWorkerPanicked))
}

func (s *EngineTestSuite) TestContiguousSpans() {
	days := []types.Day{"2024-01-02", "2024-01-03", "2024-01-05", "2024-01-08", "2024-01-09"}

	spans := contiguousSpans(days)
	s.Require().Len(spans, 3)
	s.Equal(types.Day("2024-01-02"), spans[0].first)
	s.Equal(types.Day("2024-01-03"), spans[0].last)
	s.Equal(types.Day("2024-01-05"), spans[1].first)
	s.Equal(types.Day("2024-01-05"), spans[1].last)
	s.Equal(types.Day("2024-01-08"), spans[2].first)
	s.Equal(types.Day("2024-01-09"), spans[2].last)
}

func (s *EngineTestSuite) TestDaySpanClampDropsOutOfSpanBars() {
	span := daySpan{first: "2024-01-02", last: "2024-01-02"}

	bars := []types.Bar{
		{Symbol: "EURUSD", StartTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{Symbol: "EURUSD", StartTime: time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)},
		{Symbol: "EURUSD", StartTime: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
	}

	kept := span.clamp(bars)
	s.Require().Len(kept, 2)
	s.Equal(bars[0].StartTime, kept[0].StartTime)
	s.Equal(bars[1].StartTime, kept[1].StartTime)
}

func (s *EngineTestSuite) TestPartitionSymbols() {
	subsets := partitionSymbols([]string{"a", "b", "c", "d", "e"}, 2)
	s.Require().Len(subsets, 2)
	s.Equal([]string{"a", "c", "e"}, subsets[0])
	s.Equal([]string{"b", "d"}, subsets[1])

	// More workers than symbols still yields one subset per party.
	subsets = partitionSymbols([]string{"a"}, 3)
	s.Require().Len(subsets, 3)
	s.Empty(subsets[1])
	s.Empty(subsets[2])
}
