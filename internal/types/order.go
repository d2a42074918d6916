package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ResultCode is the broker-style outcome of an order submission.
type ResultCode string

const (
	ResultDone          ResultCode = "DONE"
	ResultNoMoney       ResultCode = "NO_MONEY"
	ResultInvalidVolume ResultCode = "INVALID_VOLUME"
	ResultInvalidStops  ResultCode = "INVALID_STOPS"
	ResultMarketClosed  ResultCode = "MARKET_CLOSED"
	ResultTradeDisabled ResultCode = "TRADE_DISABLED"
	ResultNoPrice       ResultCode = "NO_PRICE"
	ResultSymbolUnknown ResultCode = "SYMBOL_UNKNOWN"
)

// OrderRequest is a market order submitted to the simulated venue. Zero
// StopLoss/TakeProfit means "not set".
type OrderRequest struct {
	Symbol     string  `yaml:"symbol" json:"symbol" validate:"required"`
	Side       Side    `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Volume     float64 `yaml:"volume" json:"volume" validate:"required,gt=0"`
	StopLoss   float64 `yaml:"stop_loss" json:"stop_loss" validate:"gte=0"`
	TakeProfit float64 `yaml:"take_profit" json:"take_profit" validate:"gte=0"`
	// Tag is an opaque caller label carried onto the position and the
	// closed-trade record.
	Tag string `yaml:"tag" json:"tag"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrderRequest, "invalid order request", err)
	}

	return nil
}

// OrderResult reports the outcome of an order submission. Rejections are
// results, never errors: Success is false and Code names the reason.
type OrderResult struct {
	Success bool       `yaml:"success" json:"success"`
	Ticket  string     `yaml:"ticket" json:"ticket"`
	Price   float64    `yaml:"price" json:"price"`
	Code    ResultCode `yaml:"code" json:"code"`
	Comment string     `yaml:"comment" json:"comment"`
}

// Rejected builds a rejection result with the given code and comment.
func Rejected(code ResultCode, comment string) OrderResult {
	return OrderResult{
		Success: false,
		Code:    code,
		Comment: comment,
	}
}
