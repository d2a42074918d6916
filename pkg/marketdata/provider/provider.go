// Package provider implements the external market data providers the cache
// layer fetches from when its own coverage reports missing or invalid days.
package provider

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// OnFetchProgress reports download progress to the caller.
type OnFetchProgress = func(current float64, total float64, message string)

// Config carries provider construction parameters. BaseURL overrides the
// provider's default endpoint; tests point it at a local server.
type Config struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Provider is an external source of historical market data. The cache
// layer treats it as the source of truth whenever coverage validation
// fails.
type Provider interface {
	// Name returns the provider identifier recorded in cache provenance.
	Name() string
	// FetchBars downloads OHLC bars for one symbol and timeframe over
	// [start, end]. The context cancels the download.
	FetchBars(ctx context.Context, symbol string, tf types.Timeframe, start time.Time, end time.Time, onProgress OnFetchProgress) ([]types.Bar, error)
	// FetchInstrument returns the instrument's trading metadata.
	FetchInstrument(ctx context.Context, symbol string) (types.InstrumentInfo, error)
}

// NewProvider creates a market data provider of the given type.
func NewProvider(providerType ProviderType, cfg Config) (Provider, error) {
	switch providerType {
	case ProviderBinance:
		return NewBinanceProvider(cfg)
	case ProviderPolygon:
		return NewPolygonProvider(cfg)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", providerType)
	}
}
