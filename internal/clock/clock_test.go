package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTradingDaysBetween_OpenClosedWeekdaysOnly(t *testing.T) {
	loc, err := time.LoadLocation(zoneName)
	require.NoError(t, err)

	// 2026-07-30 is a Thursday.
	a := time.Date(2026, 7, 30, 0, 0, 0, 0, loc)
	// One week later: Fri, Mon, Tue, Wed, Thu = 5 weekdays in (a, b].
	b := a.AddDate(0, 0, 7)

	require.Equal(t, 5, TradingDaysBetween(a, b))
}

func TestTradingDaysBetween_SameDayIsZero(t *testing.T) {
	loc, err := time.LoadLocation(zoneName)
	require.NoError(t, err)
	d := time.Date(2026, 7, 30, 15, 4, 5, 0, loc)
	require.Equal(t, 0, TradingDaysBetween(d, d))
}

func TestIsWeekday(t *testing.T) {
	loc, err := time.LoadLocation(zoneName)
	require.NoError(t, err)
	require.True(t, IsWeekday(time.Date(2026, 7, 30, 0, 0, 0, 0, loc)))  // Thursday
	require.False(t, IsWeekday(time.Date(2026, 8, 1, 0, 0, 0, 0, loc)))  // Saturday
	require.False(t, IsWeekday(time.Date(2026, 8, 2, 0, 0, 0, 0, loc)))  // Sunday
}

func TestMonthsBetween(t *testing.T) {
	loc, err := time.LoadLocation(zoneName)
	require.NoError(t, err)
	a := time.Date(2026, 5, 15, 0, 0, 0, 0, loc)
	b := time.Date(2026, 7, 1, 0, 0, 0, 0, loc)
	require.Equal(t, 2, MonthsBetween(a, b))
}
