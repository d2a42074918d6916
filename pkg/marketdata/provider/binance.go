package provider

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// binancePageSize is the kline page limit; a short page signals the last
// one.
const binancePageSize = 500

type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider creates a provider backed by Binance spot klines. No
// authentication is needed for historical data.
func NewBinanceProvider(cfg Config) (Provider, error) {
	client := binance.NewClient(cfg.APIKey, "")
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &BinanceProvider{client: client}, nil
}

func (p *BinanceProvider) Name() string {
	return string(ProviderBinance)
}

func (p *BinanceProvider) FetchBars(ctx context.Context, symbol string, tf types.Timeframe, start time.Time, end time.Time, onProgress OnFetchProgress) ([]types.Bar, error) {
	interval, err := timeframeToBinanceInterval(tf)
	if err != nil {
		return nil, err
	}

	startMillis := start.UnixMilli()
	endMillis := end.UnixMilli()

	var bars []types.Bar

	// Paginate within the API's page limit, resuming from the last kline's
	// close time plus one millisecond to avoid duplicates.
	currentStart := startMillis

	for {
		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err, "failed to fetch klines for %s", symbol)
		}

		parsed, err := parseKlines(symbol, klines)
		if err != nil {
			return nil, err
		}

		bars = append(bars, parsed...)

		if onProgress != nil {
			onProgress(float64(currentStart-startMillis), float64(endMillis-startMillis),
				fmt.Sprintf("Fetching %s klines", symbol))
		}

		if len(klines) < binancePageSize {
			break
		}

		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	return bars, nil
}

// FetchInstrument derives crypto instrument metadata from the exchange
// info filters.
func (p *BinanceProvider) FetchInstrument(ctx context.Context, symbol string) (types.InstrumentInfo, error) {
	info, err := p.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return types.InstrumentInfo{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err, "failed to fetch exchange info for %s", symbol)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		digits := s.QuotePrecision
		point := math.Pow10(-digits)

		result := types.InstrumentInfo{
			Symbol:        s.Symbol,
			PointSize:     point,
			Digits:        digits,
			TickValue:     point,
			TickSize:      point,
			LotStep:       0.001,
			MinLot:        0.001,
			MaxLot:        10_000,
			ContractSize:  1,
			QuoteCategory: types.CurrencyCategoryCrypto,
			TradeAllowed:  s.Status == "TRADING",
		}

		if lot := s.LotSizeFilter(); lot != nil {
			if v, err := strconv.ParseFloat(lot.StepSize, 64); err == nil && v > 0 {
				result.LotStep = v
			}

			if v, err := strconv.ParseFloat(lot.MinQuantity, 64); err == nil && v > 0 {
				result.MinLot = v
			}

			if v, err := strconv.ParseFloat(lot.MaxQuantity, 64); err == nil && v > 0 {
				result.MaxLot = v
			}
		}

		if price := s.PriceFilter(); price != nil {
			if v, err := strconv.ParseFloat(price.TickSize, 64); err == nil && v > 0 {
				result.TickSize = v
				result.TickValue = v
				result.PointSize = v
			}
		}

		return result, nil
	}

	return types.InstrumentInfo{}, errors.Newf(errors.ErrCodeInstrumentNotFound, "symbol %s not listed", symbol)
}

// parseKlines converts kline string fields to bars keyed by open time.
func parseKlines(symbol string, klines []*binance.Kline) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(klines))

	for _, k := range klines {
		open, err := strconv.ParseFloat(k.Open, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderParseFailed, err, "malformed kline open %q", k.Open)
		}

		high, err := strconv.ParseFloat(k.High, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderParseFailed, err, "malformed kline high %q", k.High)
		}

		low, err := strconv.ParseFloat(k.Low, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderParseFailed, err, "malformed kline low %q", k.Low)
		}

		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderParseFailed, err, "malformed kline close %q", k.Close)
		}

		volume, err := strconv.ParseFloat(k.Volume, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderParseFailed, err, "malformed kline volume %q", k.Volume)
		}

		bars = append(bars, types.Bar{
			Symbol:    symbol,
			StartTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	return bars, nil
}

// timeframeToBinanceInterval maps a timeframe to a kline interval string.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func timeframeToBinanceInterval(tf types.Timeframe) (string, error) {
	switch tf {
	case types.TimeframeM1:
		return "1m", nil
	case types.TimeframeM5:
		return "5m", nil
	case types.TimeframeM15:
		return "15m", nil
	case types.TimeframeM30:
		return "30m", nil
	case types.TimeframeH1:
		return "1h", nil
	case types.TimeframeH4:
		return "4h", nil
	case types.TimeframeD1:
		return "1d", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "no binance interval for %s", tf)
	}
}
