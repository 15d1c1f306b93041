package universe

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestSeed_PreservesFirstSeenOrderAndDedupes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Seed(RiskLow, []string{"AAPL", "MSFT", "aapl"}))
	require.NoError(t, s.Seed(RiskLow, []string{"GOOG"}))

	members, err := s.Members(RiskLow)
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, members)
}

func TestDownloadUniverse_UnionsAcrossRisksDeduped(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Seed(RiskLow, []string{"AAPL", "MSFT"}))
	require.NoError(t, s.Seed(RiskMedium, []string{"MSFT", "TSLA"}))
	require.NoError(t, s.Seed(RiskHigh, []string{"SPEC"}))

	union, err := s.DownloadUniverse()
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT", "TSLA", "SPEC"}, union)
}
