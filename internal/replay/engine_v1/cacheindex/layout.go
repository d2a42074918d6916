package cacheindex

import (
	"strings"

	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// On-disk layout of the historical cache, shared with the histcache package:
//
//	<root>/index.yaml
//	<root>/<YYYY-MM-DD>/ohlc/<SYMBOL>__<KEY>.parquet
//	<root>/<YYYY-MM-DD>/ohlc/<SYMBOL>__<KEY>.meta.yaml
//	<root>/<YYYY-MM-DD>/ticks/<SYMBOL>__ticks.parquet
//	<root>/<YYYY-MM-DD>/instruments/<SYMBOL>.yaml
const (
	ManifestFile   = "index.yaml"
	OHLCDir        = "ohlc"
	TicksDir       = "ticks"
	InstrumentsDir = "instruments"

	// SeriesKeyTicks is the series key under which tick data is indexed.
	SeriesKeyTicks = "ticks"

	seriesNameSep  = "__"
	SeriesFileExt  = ".parquet"
	MetaFileSuffix = ".meta.yaml"
)

// SeriesFileName builds the payload file name for a symbol/series pair.
func SeriesFileName(symbol string, seriesKey string) string {
	return symbol + seriesNameSep + seriesKey + SeriesFileExt
}

// MetaFileName builds the provenance sidecar name for a symbol/series pair.
func MetaFileName(symbol string, seriesKey string) string {
	return symbol + seriesNameSep + seriesKey + MetaFileSuffix
}

// ParseSeriesFileName splits a payload file name back into symbol and series
// key. Returns an error for names that do not follow the layout; Rebuild
// skips those instead of failing.
func ParseSeriesFileName(name string) (symbol string, seriesKey string, err error) {
	if !strings.HasSuffix(name, SeriesFileExt) {
		return "", "", errors.Newf(errors.ErrCodeInvalidParameter, "not a series file: %s", name)
	}

	base := strings.TrimSuffix(name, SeriesFileExt)

	parts := strings.SplitN(base, seriesNameSep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Newf(errors.ErrCodeInvalidParameter, "malformed series file name: %s", name)
	}

	return parts[0], parts[1], nil
}
