package venue

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-replay/internal/logger"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"go.uber.org/zap"
)

// TradeLog is the durable closed-trade store backing the venue's in-memory
// history. It also computes per-symbol summaries and exports the full log
// to parquet at the end of a replay.
type TradeLog struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewTradeLog opens an in-memory DuckDB instance for the log.
func NewTradeLog(logger *logger.Logger) (*TradeLog, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to open trade log database", err)
	}

	return &TradeLog{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the closed trades table.
func (t *TradeLog) Initialize() error {
	_, err := t.db.Exec(`
		CREATE TABLE IF NOT EXISTS closed_trades (
			ticket TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			volume DOUBLE,
			open_price DOUBLE,
			close_price DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			open_time TIMESTAMP,
			close_time TIMESTAMP,
			profit DOUBLE,
			reason TEXT,
			tag TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to create closed_trades table", err)
	}

	return nil
}

// Append records one closed trade.
func (t *TradeLog) Append(trade types.ClosedTrade) error {
	query := t.sq.
		Insert("closed_trades").
		Columns(
			"ticket", "symbol", "side", "volume", "open_price", "close_price",
			"stop_loss", "take_profit", "open_time", "close_time", "profit",
			"reason", "tag",
		).
		Values(
			trade.Ticket, trade.Symbol, trade.Side, trade.Volume, trade.OpenPrice,
			trade.ClosePrice, trade.StopLoss, trade.TakeProfit, trade.OpenTime,
			trade.CloseTime, trade.Profit, trade.Reason, trade.Tag,
		).
		RunWith(t.db)

	if _, err := query.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to insert closed trade", err)
	}

	return nil
}

// Trades returns every recorded trade in close order.
func (t *TradeLog) Trades() ([]types.ClosedTrade, error) {
	query := t.sq.
		Select(
			"ticket", "symbol", "side", "volume", "open_price", "close_price",
			"stop_loss", "take_profit", "open_time", "close_time", "profit",
			"reason", "tag",
		).
		From("closed_trades").
		OrderBy("close_time ASC").
		RunWith(t.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to query closed trades", err)
	}
	defer rows.Close()

	var trades []types.ClosedTrade

	for rows.Next() {
		var trade types.ClosedTrade

		var side, reason string

		err := rows.Scan(
			&trade.Ticket, &trade.Symbol, &side, &trade.Volume, &trade.OpenPrice,
			&trade.ClosePrice, &trade.StopLoss, &trade.TakeProfit, &trade.OpenTime,
			&trade.CloseTime, &trade.Profit, &reason, &trade.Tag,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to scan closed trade", err)
		}

		trade.Side = types.Side(side)
		trade.Reason = types.CloseReason(reason)
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// Summary aggregates one symbol's closed trades. An empty symbol
// aggregates all of them.
func (t *TradeLog) Summary(symbol string) (types.TradeSummary, error) {
	query := t.sq.
		Select(
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE profit > 0)",
			"COUNT(*) FILTER (WHERE profit < 0)",
			"COALESCE(MIN(profit), 0)",
			"COALESCE(MAX(profit), 0)",
			"COALESCE(SUM(profit), 0)",
		).
		From("closed_trades")

	if symbol != "" {
		query = query.Where(squirrel.Eq{"symbol": symbol})
	}

	var summary types.TradeSummary

	var minProfit, maxProfit float64

	err := query.RunWith(t.db).QueryRow().Scan(
		&summary.NumberOfTrades,
		&summary.NumberOfWinningTrades,
		&summary.NumberOfLosingTrades,
		&minProfit,
		&maxProfit,
		&summary.TotalProfit,
	)
	if err != nil {
		return types.TradeSummary{}, errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to aggregate closed trades", err)
	}

	if minProfit < 0 {
		summary.MaximumLoss = -minProfit
	}

	if maxProfit > 0 {
		summary.MaximumProfit = maxProfit
	}

	if summary.NumberOfTrades > 0 {
		summary.WinRate = float64(summary.NumberOfWinningTrades) / float64(summary.NumberOfTrades)
	}

	return summary, nil
}

// Export writes the full log to closed_trades.parquet under dir and
// returns the file path. Raw SQL because squirrel has no COPY support.
func (t *TradeLog) Export(dir string) (string, error) {
	path := filepath.Join(dir, "closed_trades.parquet")

	_, err := t.db.Exec(fmt.Sprintf(`COPY closed_trades TO '%s' (FORMAT PARQUET)`, path))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to export closed trades", err)
	}

	t.logger.Info("closed trades exported", zap.String("path", path))

	return path, nil
}

// Cleanup drops the table contents and closes the database.
func (t *TradeLog) Cleanup() error {
	if _, err := t.db.Exec(`DROP TABLE IF EXISTS closed_trades`); err != nil {
		return errors.Wrap(errors.ErrCodeTradeLogFailed, "failed to drop closed_trades table", err)
	}

	return t.db.Close()
}
