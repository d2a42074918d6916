package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
)

// DataGenerator generates realistic market data for testing and
// benchmarking replay components without touching a real provider.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how market data is generated.
type GeneratorConfig struct {
	// Symbol is the instrument symbol (e.g. "EURUSD")
	Symbol string
	// StartTime is the beginning of the data series
	StartTime time.Time
	// Interval is the duration between each bar
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per bar (0.01 = 1%)
	Volatility float64
	// Trend is the drift factor (-0.01 to 0.01 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// SpreadPoints is the bid/ask spread applied when deriving ticks
	SpreadPoints float64
}

// DefaultConfig returns a config producing one day of minute bars on a
// calm random walk.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "EURUSD",
		StartTime:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Interval:     time.Minute,
		Count:        1440,
		InitialPrice: 1.1000,
		Volatility:   0.0005,
		Trend:        0,
		VolumeBase:   100,
		SpreadPoints: 0.00002,
	}
}

// GenerateBars produces a strictly time-ordered bar series following a
// geometric random walk with drift.
func (g *DataGenerator) GenerateBars(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, 0, config.Count)
	price := config.InitialPrice

	for i := 0; i < config.Count; i++ {
		change := g.rng.NormFloat64()*config.Volatility + config.Trend
		open := price
		close := open * math.Exp(change)

		high := math.Max(open, close) * (1 + g.rng.Float64()*config.Volatility/2)
		low := math.Min(open, close) * (1 - g.rng.Float64()*config.Volatility/2)
		volume := config.VolumeBase * (0.5 + g.rng.Float64())

		bars = append(bars, types.Bar{
			Symbol:    config.Symbol,
			StartTime: config.StartTime.Add(time.Duration(i) * config.Interval),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})

		price = close
	}

	return bars
}

// GenerateTicks derives a tick stream from a generated bar walk, four
// ticks per bar tracing open, high, low, close.
func (g *DataGenerator) GenerateTicks(config GeneratorConfig) []types.Tick {
	bars := g.GenerateBars(config)
	ticks := make([]types.Tick, 0, len(bars)*4)
	step := config.Interval / 4
	half := config.SpreadPoints / 2

	for _, bar := range bars {
		for j, price := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			ticks = append(ticks, types.Tick{
				Symbol: bar.Symbol,
				Time:   bar.StartTime.Add(time.Duration(j) * step),
				Bid:    price - half,
				Ask:    price + half,
				Last:   price,
				Volume: bar.Volume / 4,
			})
		}
	}

	return ticks
}
