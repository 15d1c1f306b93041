package rebalanceflag

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/momentum-rebalancer/internal/clock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk, err := clock.New()
	require.NoError(t, err)

	s, err := New(db, clk, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestLastDate_AbsentWhenNeverWritten(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.LastDate()
	require.False(t, ok)
	require.False(t, s.RebalancedToday())
}

func TestWriteToday_IdempotentWithinOneDay(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteToday())
	require.True(t, s.RebalancedToday())
	require.NoError(t, s.WriteToday())
	require.True(t, s.RebalancedToday())

	d, ok := s.LastDate()
	require.True(t, ok)
	require.Equal(t, s.clk.Today(), d)
}

func TestLastDate_MalformedValueTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.db.Exec(`UPDATE rebalance_flag SET last_date = ? WHERE id = 1`, "not-a-date")
	require.NoError(t, err)

	_, ok := s.LastDate()
	require.False(t, ok)
}
