package venue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/stretchr/testify/suite"
)

type TradeLogTestSuite struct {
	suite.Suite
	log *TradeLog
}

func TestTradeLogSuite(t *testing.T) {
	suite.Run(t, new(TradeLogTestSuite))
}

func (s *TradeLogTestSuite) SetupTest() {
	tl, err := NewTradeLog(logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(tl.Initialize())
	s.log = tl
}

func (s *TradeLogTestSuite) TearDownTest() {
	s.Require().NoError(s.log.Cleanup())
}

func (s *TradeLogTestSuite) trade(ticket string, symbol string, profit float64, closeTime time.Time) types.ClosedTrade {
	return types.ClosedTrade{
		Ticket:     ticket,
		Symbol:     symbol,
		Side:       types.SideBuy,
		Volume:     1,
		OpenPrice:  1.1000,
		ClosePrice: 1.1000 + profit/100000,
		OpenTime:   closeTime.Add(-time.Hour),
		CloseTime:  closeTime,
		Profit:     profit,
		Reason:     types.CloseReasonManual,
	}
}

func (s *TradeLogTestSuite) TestAppendAndQuery() {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.log.Append(s.trade("t2", "EURUSD", -200, base.Add(time.Minute))))
	s.Require().NoError(s.log.Append(s.trade("t1", "EURUSD", 500, base)))

	trades, err := s.log.Trades()
	s.Require().NoError(err)
	s.Require().Len(trades, 2)

	// Close order, not insert order.
	s.Equal("t1", trades[0].Ticket)
	s.Equal("t2", trades[1].Ticket)
	s.Equal(types.SideBuy, trades[0].Side)
	s.Equal(types.CloseReasonManual, trades[0].Reason)
	s.Equal(500.0, trades[0].Profit)
}

func (s *TradeLogTestSuite) TestSummary() {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.log.Append(s.trade("t1", "EURUSD", 500, base)))
	s.Require().NoError(s.log.Append(s.trade("t2", "EURUSD", -200, base.Add(time.Minute))))
	s.Require().NoError(s.log.Append(s.trade("t3", "EURUSD", 300, base.Add(2*time.Minute))))
	s.Require().NoError(s.log.Append(s.trade("t4", "GBPUSD", -50, base.Add(3*time.Minute))))

	summary, err := s.log.Summary("EURUSD")
	s.Require().NoError(err)

	s.Equal(3, summary.NumberOfTrades)
	s.Equal(2, summary.NumberOfWinningTrades)
	s.Equal(1, summary.NumberOfLosingTrades)
	s.InDelta(2.0/3.0, summary.WinRate, 1e-9)
	s.Equal(200.0, summary.MaximumLoss)
	s.Equal(500.0, summary.MaximumProfit)
	s.Equal(600.0, summary.TotalProfit)

	all, err := s.log.Summary("")
	s.Require().NoError(err)
	s.Equal(4, all.NumberOfTrades)
	s.Equal(550.0, all.TotalProfit)
}

func (s *TradeLogTestSuite) TestSummaryEmpty() {
	summary, err := s.log.Summary("EURUSD")
	s.Require().NoError(err)
	s.Equal(0, summary.NumberOfTrades)
	s.Equal(0.0, summary.WinRate)
}

func (s *TradeLogTestSuite) TestExport() {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.log.Append(s.trade("t1", "EURUSD", 500, base)))

	dir := s.T().TempDir()

	path, err := s.log.Export(dir)
	s.Require().NoError(err)
	s.Equal(filepath.Join(dir, "closed_trades.parquet"), path)

	info, err := os.Stat(path)
	s.Require().NoError(err)
	s.Positive(info.Size())
}
