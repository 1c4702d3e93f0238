package common

import (
	"time"
)

// IsFresh reports whether an artifact generated at generatedAt is still
// reusable under the given freshness window. Pure function - the cache store
// only records timestamps, callers decide staleness.
func IsFresh(generatedAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(generatedAt) < window
}

// IsWorkingDay checks if a given date is a trading day.
// Weekends are non-trading; holidays can be supplied by the caller.
func IsWorkingDay(t time.Time, holidays []time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	tDate := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range holidays {
		hDate := time.Date(h.Year(), h.Month(), h.Day(), 0, 0, 0, 0, time.UTC)
		if tDate.Equal(hDate) {
			return false
		}
	}

	return true
}

// LastTradingDay returns the most recent trading day on or before the given
// time. It walks backwards until finding a working day.
func LastTradingDay(t time.Time, holidays []time.Time) time.Time {
	current := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	// Walk backwards up to 10 days to find a trading day
	// (handles long holiday periods like Christmas/New Year)
	for i := 0; i < 10; i++ {
		if IsWorkingDay(current, holidays) {
			return current
		}
		current = current.AddDate(0, 0, -1)
	}

	// Fallback: return the original date if no trading day found
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
