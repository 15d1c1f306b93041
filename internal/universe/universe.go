// Package universe persists the three named ticker universes (§3:
// low-risk, medium-risk, high-risk) that feed the momentum selector,
// as ordered rows of a single universe_members table.
package universe

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Risk is one of the three named universes.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

const schema = `
CREATE TABLE IF NOT EXISTS universe_members (
	risk TEXT NOT NULL,
	symbol TEXT NOT NULL,
	seq INTEGER NOT NULL,
	PRIMARY KEY (risk, symbol)
);
CREATE INDEX IF NOT EXISTS idx_universe_members_risk_seq ON universe_members(risk, seq);
`

// Store persists universe membership, ordered by first-seen insertion
// sequence, matching §3's "deduplicated preserving first-seen order"
// contract for the low-risk list's blue-chip-plus-additions shape.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func New(db *sql.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate universe schema: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "universe").Logger()}, nil
}

// Seed inserts symbols into a risk universe in order, skipping any
// already present (first-seen order is preserved, duplicates ignored).
func (s *Store) Seed(risk Risk, symbols []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin universe seed transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM universe_members WHERE risk = ?`, string(risk)).Scan(&next); err != nil {
		return fmt.Errorf("failed to read next sequence for %s: %w", risk, err)
	}

	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		res, err := tx.Exec(`INSERT OR IGNORE INTO universe_members (risk, symbol, seq) VALUES (?, ?, ?)`, string(risk), symbol, next)
		if err != nil {
			return fmt.Errorf("failed to insert %s into %s universe: %w", symbol, risk, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}

	return tx.Commit()
}

// Members returns a risk universe's tickers in first-seen order.
func (s *Store) Members(risk Risk) ([]string, error) {
	rows, err := s.db.Query(`SELECT symbol FROM universe_members WHERE risk = ? ORDER BY seq ASC`, string(risk))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s universe: %w", risk, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan universe member: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// DownloadUniverse returns the deduplicated union of all three risk
// universes, preserving first encounter across low, medium, then high.
func (s *Store) DownloadUniverse() ([]string, error) {
	seen := map[string]bool{}
	var union []string
	for _, risk := range []Risk{RiskLow, RiskMedium, RiskHigh} {
		members, err := s.Members(risk)
		if err != nil {
			return nil, err
		}
		for _, symbol := range members {
			if !seen[symbol] {
				seen[symbol] = true
				union = append(union, symbol)
			}
		}
	}
	return union, nil
}
