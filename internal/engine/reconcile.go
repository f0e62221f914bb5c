package engine

import (
	"slices"
	"time"

	"habittracker/internal/model"
)

// Reconcile back-fills the days between the habit's anchor and today that were neither
// completed nor already missed. The anchor is the later of the creation day and the
// last tracked day. Today, future days and days before creation are never added,
// and a habit without a creation or tracked time is left alone.
//
// The input is not modified; the returned habit carries fresh slices and recomputed
// counters. When nothing is added the habit is returned as-is with a nil slice.
func Reconcile(h model.Habit, now time.Time, loc *time.Location) (model.Habit, []string) {
	today := Day(now, loc)
	var anchor time.Time
	if !h.CreatedAt.IsZero() {
		anchor = Day(h.CreatedAt, loc)
	}
	if h.LastTrackedDate != nil && !h.LastTrackedDate.IsZero() {
		if tracked := Day(*h.LastTrackedDate, loc); anchor.IsZero() || tracked.After(anchor) {
			anchor = tracked
		}
	}
	// A habit with no usable anchor has no history to fill.
	if anchor.IsZero() || !anchor.Before(today) {
		return h, nil
	}

	completed := KeySet(h.CompletedDates)
	if _, ok := completed[DateKey(today)]; ok {
		return h, nil
	}
	missed := KeySet(h.MissedDates)

	var added []string
	for day := AddDays(anchor, 1); day.Before(today); day = AddDays(day, 1) {
		key := DateKey(day)
		if _, ok := completed[key]; ok {
			continue
		}
		if _, ok := missed[key]; ok {
			continue
		}
		added = append(added, key)
	}
	if len(added) == 0 {
		return h, nil
	}

	out := h.Clone()
	out.MissedDates = append(out.MissedDates, added...)
	recount(&out)
	return out, added
}

// Complete marks today as completed. It reports false and returns h unchanged when
// today is already completed.
func Complete(h model.Habit, now time.Time, loc *time.Location) (model.Habit, bool) {
	key := DateKey(Day(now, loc))
	if slices.Contains(h.CompletedDates, key) {
		return h, false
	}

	out := h.Clone()
	out.CompletedDates = append(out.CompletedDates, key)
	out.MissedDates = slices.DeleteFunc(out.MissedDates, func(k string) bool { return k == key })
	tracked := now
	out.LastTrackedDate = &tracked
	recount(&out)
	return out, true
}

func recount(h *model.Habit) {
	h.X1 = len(KeySet(h.CompletedDates))
	h.X2 = len(KeySet(h.MissedDates))
}
