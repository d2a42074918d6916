package types

import (
	"time"

	"github.com/rxtech-lab/argo-replay/pkg/errors"
)

// Day is a calendar date in UTC, formatted as YYYY-MM-DD. The historical
// cache partitions series by Day; the cache index tracks sets of Days.
type Day string

const dayLayout = "2006-01-02"

// DayOf truncates t to its UTC calendar date.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidParameter, err, "malformed day: %s", s)
	}

	return Day(s), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))

	return t
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return DayOf(d.Time().Add(24 * time.Hour))
}

// Before reports whether d is earlier than other.
func (d Day) Before(other Day) bool {
	return string(d) < string(other)
}

// DaysBetween returns every calendar day from start to end inclusive.
func DaysBetween(start time.Time, end time.Time) []Day {
	if end.Before(start) {
		return nil
	}

	var days []Day

	for d := DayOf(start); !DayOf(end).Before(d); d = d.Next() {
		days = append(days, d)
	}

	return days
}
