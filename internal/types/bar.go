package types

import "time"

// Bar is an immutable OHLCV summary of price activity over one timeframe
// bucket. Bars are never mutated once closed; the mutable accumulator is
// BarBuilder.
type Bar struct {
	Symbol    string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	StartTime time.Time `yaml:"start_time" json:"start_time" csv:"start_time"`
	Open      float64   `yaml:"open" json:"open" csv:"open"`
	High      float64   `yaml:"high" json:"high" csv:"high"`
	Low       float64   `yaml:"low" json:"low" csv:"low"`
	Close     float64   `yaml:"close" json:"close" csv:"close"`
	Volume    float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// Tick is a single bid/ask/last/volume observation at an instant. In tick
// replay mode the full tick set across all instruments forms the global
// timeline, so every tick carries its owning symbol.
type Tick struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Bid    float64   `yaml:"bid" json:"bid" csv:"bid"`
	Ask    float64   `yaml:"ask" json:"ask" csv:"ask"`
	Last   float64   `yaml:"last" json:"last" csv:"last"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// BarBuilder accumulates samples into an in-progress bar. The first sample
// sets open/high/low/close; later samples update high/low/close and add
// volume.
type BarBuilder struct {
	symbol      string
	bucketStart time.Time
	open        float64
	high        float64
	low         float64
	close       float64
	volume      float64
	hasSample   bool
}

// NewBarBuilder creates an empty builder for the given symbol and bucket
// start time.
func NewBarBuilder(symbol string, bucketStart time.Time) *BarBuilder {
	return &BarBuilder{
		symbol:      symbol,
		bucketStart: bucketStart,
	}
}

// Update feeds one price/volume sample into the builder.
func (b *BarBuilder) Update(price float64, volume float64) {
	if !b.hasSample {
		b.open = price
		b.high = price
		b.low = price
		b.close = price
		b.volume = volume
		b.hasSample = true

		return
	}

	if price > b.high {
		b.high = price
	}

	if price < b.low {
		b.low = price
	}

	b.close = price
	b.volume += volume
}

// BucketStart returns the bucket boundary this builder accumulates into.
func (b *BarBuilder) BucketStart() time.Time {
	return b.bucketStart
}

// HasSample reports whether at least one sample has been fed.
func (b *BarBuilder) HasSample() bool {
	return b.hasSample
}

// Snapshot returns the current state of the in-progress bar. The returned
// bar is a copy; mutating the builder afterwards does not affect it.
func (b *BarBuilder) Snapshot() Bar {
	return Bar{
		Symbol:    b.symbol,
		StartTime: b.bucketStart,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
	}
}
