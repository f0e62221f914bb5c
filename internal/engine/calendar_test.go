package engine

import (
	"testing"
	"time"

	"habittracker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthGrid(t *testing.T) {
	h := model.Habit{
		ID:             "h1",
		CreatedAt:      time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC),
		CompletedDates: []string{"2024-03-04"},
		MissedDates:    []string{"2024-03-05"},
	}
	today := day(2024, 3, 6)

	cal := MonthGrid(h, day(2024, 3, 1), today, time.UTC)
	require.Len(t, cal.Days, CalendarCells)
	assert.Equal(t, "2024-03", cal.Month)

	// March 1st 2024 is a Friday, so the grid opens on Sunday Feb 25th.
	assert.Equal(t, "2024-02-25", cal.Days[0].Date)
	assert.False(t, cal.Days[0].InMonth)

	byDate := make(map[string]CalendarDay, len(cal.Days))
	for _, d := range cal.Days {
		byDate[d.Date] = d
	}
	checks := []struct {
		date  string
		check func(CalendarDay) bool
	}{
		{"2024-03-02", func(d CalendarDay) bool { return d.BeforeHabit && d.InMonth }},
		{"2024-03-03", func(d CalendarDay) bool { return !d.BeforeHabit }},
		{"2024-03-04", func(d CalendarDay) bool { return d.Completed && !d.Missed }},
		{"2024-03-05", func(d CalendarDay) bool { return d.Missed && !d.Completed }},
		{"2024-03-06", func(d CalendarDay) bool { return d.Today && !d.Future }},
		{"2024-03-07", func(d CalendarDay) bool { return d.Future }},
	}
	for _, c := range checks {
		assert.True(t, c.check(byDate[c.date]), "cell %s: %+v", c.date, byDate[c.date])
	}
}
