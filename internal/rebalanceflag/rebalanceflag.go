// Package rebalanceflag persists the single "last rebalanced" NY civil
// date (C2), sharing the main application database.
package rebalanceflag

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/clock"
)

const civilLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS rebalance_flag (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_date TEXT
);
`

// Store is the single-row rebalance-flag table.
type Store struct {
	db  *sql.DB
	clk *clock.Clock
	log zerolog.Logger
}

func New(db *sql.DB, clk *clock.Clock, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate rebalance flag schema: %w", err)
	}
	s := &Store{db: db, clk: clk, log: log.With().Str("component", "rebalanceflag").Logger()}
	if _, err := db.Exec(`INSERT OR IGNORE INTO rebalance_flag (id, last_date) VALUES (1, NULL)`); err != nil {
		return nil, fmt.Errorf("failed to seed rebalance flag row: %w", err)
	}
	return s, nil
}

// LastDate returns the stored NY civil date, or false if absent. A
// malformed stored value is treated as absent rather than an error,
// matching the recoverable-parse contract.
func (s *Store) LastDate() (time.Time, bool) {
	var raw sql.NullString
	if err := s.db.QueryRow(`SELECT last_date FROM rebalance_flag WHERE id = 1`).Scan(&raw); err != nil {
		s.log.Warn().Err(err).Msg("failed to read rebalance flag, treating as absent")
		return time.Time{}, false
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(civilLayout, raw.String, s.clk.Location())
	if err != nil {
		s.log.Warn().Err(err).Str("raw", raw.String).Msg("malformed rebalance flag value, treating as absent")
		return time.Time{}, false
	}
	return d, true
}

// RebalancedToday reports whether the stored date equals today's NY
// civil date.
func (s *Store) RebalancedToday() bool {
	d, ok := s.LastDate()
	if !ok {
		return false
	}
	return d.Equal(s.clk.Today())
}

// WriteToday atomically replaces the stored date with today's NY civil
// date. Idempotent within one civil day.
func (s *Store) WriteToday() error {
	today := s.clk.Today().Format(civilLayout)
	if _, err := s.db.Exec(`UPDATE rebalance_flag SET last_date = ? WHERE id = 1`, today); err != nil {
		return fmt.Errorf("failed to write rebalance flag: %w", err)
	}
	return nil
}
