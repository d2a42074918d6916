package candles

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type AggregatorTestSuite struct {
	suite.Suite
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func (s *AggregatorTestSuite) newAgg(tfs ...types.Timeframe) *Aggregator {
	agg, err := NewAggregator("EURUSD", tfs)
	s.Require().NoError(err)

	return agg
}

func (s *AggregatorTestSuite) TestRequiresTimeframes() {
	_, err := NewAggregator("EURUSD", nil)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *AggregatorTestSuite) TestTimeframesSortedByDuration() {
	agg := s.newAgg(types.TimeframeH1, types.TimeframeM1, types.TimeframeM5)
	s.Equal([]types.Timeframe{types.TimeframeM1, types.TimeframeM5, types.TimeframeH1}, agg.Timeframes())
}

func (s *AggregatorTestSuite) TestMinuteBoundary() {
	agg := s.newAgg(types.TimeframeM1)

	at := func(sec int) time.Time {
		return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
	}

	// 09:00:00 opens the bar, 09:00:59 stays inside it, 09:01:00 closes it.
	s.Empty(agg.Update(at(0), 1.10, 10))
	s.Empty(agg.Update(at(59), 1.12, 5))

	advanced := agg.Update(at(60), 1.11, 1)
	s.Equal([]types.Timeframe{types.TimeframeM1}, advanced)

	closed, err := agg.LatestClosedBar(types.TimeframeM1)
	s.Require().NoError(err)
	s.Require().True(closed.IsSome())

	bar := closed.Unwrap()
	s.Equal(at(0), bar.StartTime)
	s.Equal(1.10, bar.Open)
	s.Equal(1.12, bar.High)
	s.Equal(1.10, bar.Low)
	s.Equal(1.12, bar.Close)
	s.Equal(15.0, bar.Volume)

	current, err := agg.CurrentBar(types.TimeframeM1)
	s.Require().NoError(err)
	s.Require().True(current.IsSome())
	s.Equal(at(60), current.Unwrap().StartTime)
	s.Equal(1.11, current.Unwrap().Open)
}

func (s *AggregatorTestSuite) TestCoarseTimeframeAdvancesLater() {
	agg := s.newAgg(types.TimeframeM1, types.TimeframeM5)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for minute := 0; minute < 5; minute++ {
		advanced := agg.Update(base.Add(time.Duration(minute)*time.Minute), 1.10, 1)
		if minute == 0 {
			s.Empty(advanced)

			continue
		}

		s.Equal([]types.Timeframe{types.TimeframeM1}, advanced, "minute %d", minute)
	}

	// 09:05:00 crosses both boundaries, finest first.
	advanced := agg.Update(base.Add(5*time.Minute), 1.11, 1)
	s.Equal([]types.Timeframe{types.TimeframeM1, types.TimeframeM5}, advanced)

	m5, err := agg.LatestClosedBar(types.TimeframeM5)
	s.Require().NoError(err)
	s.Require().True(m5.IsSome())
	s.Equal(base, m5.Unwrap().StartTime)
	s.Equal(5.0, m5.Unwrap().Volume)
}

func (s *AggregatorTestSuite) TestNoClosedBarBeforeFirstBoundary() {
	agg := s.newAgg(types.TimeframeM1)

	closed, err := agg.LatestClosedBar(types.TimeframeM1)
	s.Require().NoError(err)
	s.True(closed.IsNone())

	current, err := agg.CurrentBar(types.TimeframeM1)
	s.Require().NoError(err)
	s.True(current.IsNone())
}

func (s *AggregatorTestSuite) TestSeedHistory() {
	agg := s.newAgg(types.TimeframeM1)

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	seed := []types.Bar{
		{Symbol: "EURUSD", StartTime: base, Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Symbol: "EURUSD", StartTime: base.Add(time.Minute), Open: 2, High: 3, Low: 2, Close: 3, Volume: 1},
	}
	s.Require().NoError(agg.SeedHistory(types.TimeframeM1, seed))

	bars, err := agg.ClosedBars(types.TimeframeM1, 0)
	s.Require().NoError(err)
	s.Len(bars, 2)

	last, err := agg.ClosedBars(types.TimeframeM1, 1)
	s.Require().NoError(err)
	s.Require().Len(last, 1)
	s.Equal(seed[1], last[0])
}

func (s *AggregatorTestSuite) TestSeedHistoryRejectsUnsorted() {
	agg := s.newAgg(types.TimeframeM1)

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	seed := []types.Bar{
		{StartTime: base.Add(time.Minute)},
		{StartTime: base},
	}

	err := agg.SeedHistory(types.TimeframeM1, seed)
	s.True(errors.HasCode(err, errors.ErrCodeTimelineUnsorted))
}

func (s *AggregatorTestSuite) TestUnknownTimeframe() {
	agg := s.newAgg(types.TimeframeM1)

	_, err := agg.ClosedBars(types.TimeframeH4, 0)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))

	_, err = agg.CurrentBar(types.TimeframeH4)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))
}

func (s *AggregatorTestSuite) TestTableIncludesCurrentBar() {
	agg := s.newAgg(types.TimeframeM1)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	agg.Update(base, 1.10, 1)
	agg.Update(base.Add(time.Minute), 1.11, 1)

	table, err := agg.Table(types.TimeframeM1)
	s.Require().NoError(err)
	s.Require().Len(table, 2)
	s.Equal(base, table[0].StartTime)
	s.Equal(base.Add(time.Minute), table[1].StartTime)

	// Cached between updates: same backing slice until the next sample.
	again, err := agg.Table(types.TimeframeM1)
	s.Require().NoError(err)
	s.Same(&table[0], &again[0])

	agg.Update(base.Add(time.Minute+30*time.Second), 1.12, 1)

	table, err = agg.Table(types.TimeframeM1)
	s.Require().NoError(err)
	s.Len(table, 2)
	s.Equal(1.12, table[1].Close)
}

func (s *AggregatorTestSuite) TestUpdateBarFoldsOHLCV() {
	agg := s.newAgg(types.TimeframeM1, types.TimeframeM5)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for minute := 0; minute <= 5; minute++ {
		agg.UpdateBar(types.Bar{
			Symbol:    "EURUSD",
			StartTime: base.Add(time.Duration(minute) * time.Minute),
			Open:      1.10,
			High:      1.15,
			Low:       1.05,
			Close:     1.12,
			Volume:    10,
		})
	}

	m5, err := agg.LatestClosedBar(types.TimeframeM5)
	s.Require().NoError(err)
	s.Require().True(m5.IsSome())

	bar := m5.Unwrap()
	s.Equal(1.10, bar.Open)
	s.Equal(1.15, bar.High)
	s.Equal(1.05, bar.Low)
	s.Equal(1.12, bar.Close)
	s.Equal(50.0, bar.Volume)
}
