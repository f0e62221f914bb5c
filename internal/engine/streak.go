package engine

import (
	"slices"
	"time"
)

// Streaks returns the current and longest runs of consecutive completed days.
// A run is current while its last day is today or yesterday.
func Streaks(completed []string, today time.Time) (current, longest int) {
	byKey := uniqueDays(completed)
	if len(byKey) == 0 {
		return 0, 0
	}

	days := make([]time.Time, 0, len(byKey))
	for _, d := range byKey {
		if !d.After(today) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return 0, 0
	}
	slices.SortFunc(days, func(a, b time.Time) int { return b.Compare(a) })

	ongoing := DaysBetween(days[0], today) <= 1
	run := 1
	longest = 1
	if ongoing {
		current = 1
	}
	for i := 0; i < len(days)-1; i++ {
		if DaysBetween(days[i+1], days[i]) == 1 {
			run++
			longest = max(longest, run)
			if ongoing {
				current++
			}
			continue
		}
		run = 1
		ongoing = false
	}
	return current, longest
}

// ActiveStreak counts consecutive days ending today on which any of the given date
// sets has a completion, capped at limit. A today without completions ends the count at 0.
func ActiveStreak(sets []map[string]struct{}, today time.Time, limit int) int {
	n := 0
	for day := today; n < limit; day = AddDays(day, -1) {
		key := DateKey(day)
		hit := false
		for _, set := range sets {
			if _, ok := set[key]; ok {
				hit = true
				break
			}
		}
		if !hit {
			break
		}
		n++
	}
	return n
}
