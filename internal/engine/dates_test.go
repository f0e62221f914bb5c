package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2024-03-10 is the spring-forward day in New York.
	start := Day(time.Date(2024, 3, 9, 23, 30, 0, 0, loc), loc)
	assert.Equal(t, "2024-03-09", DateKey(start))

	next := AddDays(start, 1)
	assert.Equal(t, "2024-03-10", DateKey(next))
	assert.Equal(t, "2024-03-11", DateKey(AddDays(next, 1)))
	assert.Equal(t, 2, DaysBetween(start, AddDays(start, 2)))
}

func TestParseDateKey(t *testing.T) {
	d, err := ParseDateKey("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, 0, d.Hour())

	_, err = ParseDateKey("2024-13-01")
	assert.Error(t, err)
}
