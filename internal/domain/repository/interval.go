package repository

import "time"

// Interval is the bar resolution requested from the data supplier.
type Interval string

const (
	IntervalDaily  Interval = "1d"
	IntervalWeekly Interval = "1wk"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case IntervalDaily, IntervalWeekly:
		return true
	default:
		return false
	}
}

// NormalizeInterval converts raw string to a valid interval (or weekly).
func NormalizeInterval(s string) Interval {
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return IntervalWeekly
}

// Period is the nominal length of one bar.
func (iv Interval) Period() time.Duration {
	if iv == IntervalDaily {
		return 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}
