package engine

import (
	"time"
)

// DateLayout is the wire format of a date key.
const DateLayout = "2006-01-02"

// Day returns the calendar day of t in loc as a UTC midnight value.
// All day arithmetic in this package works on such values so DST never shifts a step.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats a day produced by Day.
func DateKey(day time.Time) string {
	return day.Format(DateLayout)
}

// ParseDateKey parses a YYYY-MM-DD key into a UTC midnight value.
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, key, time.UTC)
}

// AddDays steps a day forward (or back for negative n).
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// DaysBetween returns the whole days from a to b; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// KeySet builds a set of date keys.
func KeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// uniqueDays parses keys into distinct days, dropping malformed entries.
func uniqueDays(keys []string) map[string]time.Time {
	days := make(map[string]time.Time, len(keys))
	for _, k := range keys {
		if _, seen := days[k]; seen {
			continue
		}
		d, err := ParseDateKey(k)
		if err != nil {
			continue
		}
		days[k] = d
	}
	return days
}
