package histcache

import (
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// barRow is the parquet schema for one OHLC sample. Timestamps are stored
// as unix milliseconds so the files stay portable across readers.
type barRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// tickRow is the parquet schema for one bid/ask/last observation.
type tickRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Bid       float64 `parquet:"bid"`
	Ask       float64 `parquet:"ask"`
	Last      float64 `parquet:"last"`
	Volume    float64 `parquet:"volume"`
}

func barsToRows(bars []types.Bar) []barRow {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Timestamp: b.StartTime.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	return rows
}

func rowsToBars(symbol string, rows []barRow) []types.Bar {
	bars := make([]types.Bar, len(rows))
	for i, r := range rows {
		bars[i] = types.Bar{
			Symbol:    symbol,
			StartTime: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}

	return bars
}

func ticksToRows(ticks []types.Tick) []tickRow {
	rows := make([]tickRow, len(ticks))
	for i, t := range ticks {
		rows[i] = tickRow{
			Timestamp: t.Time.UnixMilli(),
			Bid:       t.Bid,
			Ask:       t.Ask,
			Last:      t.Last,
			Volume:    t.Volume,
		}
	}

	return rows
}

func rowsToTicks(symbol string, rows []tickRow) []types.Tick {
	ticks := make([]types.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = types.Tick{
			Symbol: symbol,
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Bid:    r.Bid,
			Ask:    r.Ask,
			Last:   r.Last,
			Volume: r.Volume,
		}
	}

	return ticks
}

// writeParquet writes rows atomically: the payload lands under a temp name
// and is renamed into place so a crashed write never leaves a half-day file
// with a valid name.
func writeParquet[T any](path string, rows []T) error {
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to write day payload", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to publish day payload", err)
	}

	return nil
}

func readBarRows(path string) ([]barRow, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDayFileCorrupt, err, "unreadable day payload: %s", path)
	}

	return rows, nil
}

func readTickRows(path string) ([]tickRow, error) {
	rows, err := parquet.ReadFile[tickRow](path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDayFileCorrupt, err, "unreadable day payload: %s", path)
	}

	return rows, nil
}
