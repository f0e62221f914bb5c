package engine

import (
	"time"

	"habittracker/internal/model"
)

// MonthLayout is the format of a calendar month selector.
const MonthLayout = "2006-01"

// CalendarCells is six full weeks.
const CalendarCells = 42

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date        string `json:"date"`
	Day         int    `json:"day"`
	InMonth     bool   `json:"inMonth"`
	Today       bool   `json:"today"`
	Completed   bool   `json:"completed"`
	Missed      bool   `json:"missed"`
	Future      bool   `json:"future"`
	BeforeHabit bool   `json:"beforeHabit"`
}

// Calendar is the month view of one habit.
type Calendar struct {
	HabitID string        `json:"habitId"`
	Month   string        `json:"month"`
	Days    []CalendarDay `json:"days"`
}

// MonthGrid lays out the month containing month as 42 cells starting on the Sunday on
// or before the first of the month. today is a day produced by Day.
func MonthGrid(h model.Habit, month, today time.Time, loc *time.Location) Calendar {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := AddDays(first, -int(first.Weekday()))
	created := Day(h.CreatedAt, loc)
	completed := KeySet(h.CompletedDates)
	missed := KeySet(h.MissedDates)

	days := make([]CalendarDay, 0, CalendarCells)
	for i := 0; i < CalendarCells; i++ {
		d := AddDays(start, i)
		key := DateKey(d)
		_, isCompleted := completed[key]
		_, isMissed := missed[key]
		days = append(days, CalendarDay{
			Date:        key,
			Day:         d.Day(),
			InMonth:     d.Month() == first.Month(),
			Today:       d.Equal(today),
			Completed:   isCompleted,
			Missed:      isMissed,
			Future:      d.After(today),
			BeforeHabit: d.Before(created),
		})
	}
	return Calendar{HabitID: h.ID, Month: first.Format(MonthLayout), Days: days}
}
