package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CloseReason records why a position left the open set.
type CloseReason string

const (
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonManual      CloseReason = "manual"
	CloseReasonEndOfReplay CloseReason = "end_of_replay"
)

// Position is one open trade. Mutated every clock step (CurrentPrice,
// Profit) by the venue under its position mutex; external readers receive
// copies.
type Position struct {
	Ticket       string    `yaml:"ticket" json:"ticket" csv:"ticket"`
	Symbol       string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side         Side      `yaml:"side" json:"side" csv:"side"`
	Volume       float64   `yaml:"volume" json:"volume" csv:"volume"`
	OpenPrice    float64   `yaml:"open_price" json:"open_price" csv:"open_price"`
	CurrentPrice float64   `yaml:"current_price" json:"current_price" csv:"current_price"`
	StopLoss     float64   `yaml:"stop_loss" json:"stop_loss" csv:"stop_loss"`
	TakeProfit   float64   `yaml:"take_profit" json:"take_profit" csv:"take_profit"`
	OpenTime     time.Time `yaml:"open_time" json:"open_time" csv:"open_time"`
	Tag          string    `yaml:"tag" json:"tag" csv:"tag"`
	// Profit is the floating profit at CurrentPrice in account currency.
	Profit float64 `yaml:"profit" json:"profit" csv:"profit"`
}

// ProfitAt computes the account-currency profit of closing the position at
// exitPrice, as (exit - entry) * volume * tickValue / tickSize, sign-flipped
// for sells. Uses decimal arithmetic so repeated per-step updates do not
// accumulate float error.
func (p *Position) ProfitAt(exitPrice float64, tickValue float64, tickSize float64) float64 {
	if tickSize == 0 {
		return 0
	}

	entryDec := decimal.NewFromFloat(p.OpenPrice)
	exitDec := decimal.NewFromFloat(exitPrice)

	diff := exitDec.Sub(entryDec)
	if p.Side == SideSell {
		diff = diff.Neg()
	}

	result := diff.
		Mul(decimal.NewFromFloat(p.Volume)).
		Mul(decimal.NewFromFloat(tickValue)).
		Div(decimal.NewFromFloat(tickSize))

	profit, _ := result.Float64()

	return profit
}

// ClosedTrade is the immutable record appended when a position closes.
type ClosedTrade struct {
	Ticket     string      `yaml:"ticket" json:"ticket" csv:"ticket"`
	Symbol     string      `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side       Side        `yaml:"side" json:"side" csv:"side"`
	Volume     float64     `yaml:"volume" json:"volume" csv:"volume"`
	OpenPrice  float64     `yaml:"open_price" json:"open_price" csv:"open_price"`
	ClosePrice float64     `yaml:"close_price" json:"close_price" csv:"close_price"`
	StopLoss   float64     `yaml:"stop_loss" json:"stop_loss" csv:"stop_loss"`
	TakeProfit float64     `yaml:"take_profit" json:"take_profit" csv:"take_profit"`
	OpenTime   time.Time   `yaml:"open_time" json:"open_time" csv:"open_time"`
	CloseTime  time.Time   `yaml:"close_time" json:"close_time" csv:"close_time"`
	Profit     float64     `yaml:"profit" json:"profit" csv:"profit"`
	Reason     CloseReason `yaml:"reason" json:"reason" csv:"reason"`
	Tag        string      `yaml:"tag" json:"tag" csv:"tag"`
}
