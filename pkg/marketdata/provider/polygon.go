package provider

import (
	"context"
	"fmt"
	"math"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

type PolygonProvider struct {
	client *polygon.Client
}

// NewPolygonProvider creates a provider backed by Polygon.io aggregates.
func NewPolygonProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "polygon provider requires an API key")
	}

	return &PolygonProvider{client: polygon.New(cfg.APIKey)}, nil
}

func (p *PolygonProvider) Name() string {
	return string(ProviderPolygon)
}

func (p *PolygonProvider) FetchBars(ctx context.Context, symbol string, tf types.Timeframe, start time.Time, end time.Time, onProgress OnFetchProgress) ([]types.Bar, error) {
	multiplier, timespan, err := timeframeToPolygon(tf)
	if err != nil {
		return nil, err
	}

	totalDays := int(end.Sub(start).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Fetching %s %s", symbol, tf)),
		progressbar.OptionShowCount(),
	)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := p.client.ListAggs(ctx, params)

	var bars []types.Bar

	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.Bar{
			Symbol:    symbol,
			StartTime: time.Time(agg.Timestamp).UTC(),
			Open:      agg.Open,
			High:      agg.High,
			Low:       agg.Low,
			Close:     agg.Close,
			Volume:    agg.Volume,
		})

		if len(bars)%1000 == 0 {
			elapsed := time.Time(agg.Timestamp).Sub(start).Hours() / 24
			bar.Set(int(elapsed))

			if onProgress != nil {
				onProgress(elapsed, float64(totalDays), fmt.Sprintf("Fetching %s %s", symbol, tf))
			}
		}
	}

	if iter.Err() != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderFetchFailed, "failed to iterate polygon aggregates", iter.Err())
	}

	bar.Finish()

	return bars, nil
}

// FetchInstrument synthesizes equity-style metadata from the ticker
// details. Polygon does not expose contract specifications, so lot and
// contract parameters default to the share model.
func (p *PolygonProvider) FetchInstrument(ctx context.Context, symbol string) (types.InstrumentInfo, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	details, err := p.client.GetTickerDetails(ctx, &models.GetTickerDetailsParams{Ticker: symbol})
	if err != nil {
		return types.InstrumentInfo{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err, "failed to fetch ticker details for %s", symbol)
	}

	const digits = 2

	return types.InstrumentInfo{
		Symbol:        details.Results.Ticker,
		PointSize:     math.Pow10(-digits),
		Digits:        digits,
		TickValue:     math.Pow10(-digits),
		TickSize:      math.Pow10(-digits),
		LotStep:       1,
		MinLot:        1,
		MaxLot:        1_000_000,
		ContractSize:  1,
		QuoteCategory: types.CurrencyCategoryAccount,
		TradeAllowed:  details.Results.Active,
	}, nil
}

// timeframeToPolygon maps a timeframe onto polygon's multiplier/timespan
// pair.
func timeframeToPolygon(tf types.Timeframe) (int, models.Timespan, error) {
	switch tf {
	case types.TimeframeM1:
		return 1, models.Minute, nil
	case types.TimeframeM5:
		return 5, models.Minute, nil
	case types.TimeframeM15:
		return 15, models.Minute, nil
	case types.TimeframeM30:
		return 30, models.Minute, nil
	case types.TimeframeH1:
		return 1, models.Hour, nil
	case types.TimeframeH4:
		return 4, models.Hour, nil
	case types.TimeframeD1:
		return 1, models.Day, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidTimeframe, "no polygon timespan for %s", tf)
	}
}
