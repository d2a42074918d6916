package types

import (
	"time"

	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// Timeframe identifies a bar aggregation period.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// AllTimeframes lists every supported timeframe in ascending duration order.
var AllTimeframes = []Timeframe{
	TimeframeM1,
	TimeframeM5,
	TimeframeM15,
	TimeframeM30,
	TimeframeH1,
	TimeframeH4,
	TimeframeD1,
}

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeM1:  time.Minute,
	TimeframeM5:  5 * time.Minute,
	TimeframeM15: 15 * time.Minute,
	TimeframeM30: 30 * time.Minute,
	TimeframeH1:  time.Hour,
	TimeframeH4:  4 * time.Hour,
	TimeframeD1:  24 * time.Hour,
}

// Duration returns the bar period for the timeframe. Unknown timeframes
// return zero.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Truncate aligns t down to the timeframe's bucket boundary in UTC.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	d := tf.Duration()
	if d == 0 {
		return t
	}

	return t.UTC().Truncate(d)
}

// ParseTimeframe converts a string to a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unknown timeframe: %s", s)
	}

	return tf, nil
}
