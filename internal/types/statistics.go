package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AccountStatistics is the live account snapshot exposed to strategy callers.
type AccountStatistics struct {
	// Balance is realized account currency.
	Balance float64 `yaml:"balance"`
	// Equity is Balance plus FloatingPnL.
	Equity float64 `yaml:"equity"`
	// FloatingPnL is the sum of all open positions' floating profit.
	FloatingPnL float64 `yaml:"floating_pnl"`
	// OpenPositions is the count of currently open positions.
	OpenPositions int `yaml:"open_positions"`
}

type TradeSummary struct {
	// Count of all closed trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of closed trades with positive profit.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of closed trades with negative profit.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
	// Largest single-trade loss (absolute value).
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Largest single-trade profit.
	MaximumProfit float64 `yaml:"maximum_profit"`
	// Sum of all closed trades' profit.
	TotalProfit float64 `yaml:"total_profit"`
}

// ReplayStats is the per-symbol result record written at the end of a replay
// run.
type ReplayStats struct {
	// ID is the unique identifier for this replay run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this replay run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Symbol of the instrument.
	Symbol string `yaml:"symbol"`
	// Summary of all closed trades for the symbol.
	Summary TradeSummary `yaml:"summary"`
	// FinalBalance is the account balance after the replay finished.
	FinalBalance float64 `yaml:"final_balance"`
	// TradesFilePath is the path to the closed trades parquet file.
	TradesFilePath string `yaml:"trades_file_path" json:"trades_file_path"`
	// DataRange describes the replayed period.
	DataRangeStart time.Time `yaml:"data_range_start"`
	DataRangeEnd   time.Time `yaml:"data_range_end"`
}

func WriteReplayStats(path string, stats []ReplayStats) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal replay stats to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write replay stats to file: %w", err)
	}

	return nil
}
