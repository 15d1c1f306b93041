package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const civilLayout = "2006-01-02"

// RegistryRepo persists the investor registry. Investor lifecycle is
// authoritative out-of-band (§3): this repo is mutated only by ledger
// fee updates (high_watermark, last_fee_date) and status flips, never by
// creating or destroying rows as a side effect of trading.
type RegistryRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRegistryRepo(db *sql.DB, log zerolog.Logger) *RegistryRepo {
	return &RegistryRepo{db: db, log: log.With().Str("repo", "investors").Logger()}
}

// Create registers a new investor. Out-of-band registry management
// (the normal path) calls this directly rather than through the
// trading control loop.
func (r *RegistryRepo) Create(inv Investor) error {
	_, err := r.db.Exec(
		`INSERT INTO investors (name, creation_date, fee_percent, is_fee_receiver, high_watermark, last_fee_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.Name, inv.CreationDate.Format(civilLayout), inv.FeePercent, boolToInt(inv.IsFeeReceiver),
		inv.HighWatermark, inv.LastFeeDate.Format(civilLayout), string(inv.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create investor %s: %w", inv.Name, err)
	}
	return nil
}

// LoadAll loads the full registry. A missing table/empty registry
// returns an empty slice with a warning logged, per §4.8.
func (r *RegistryRepo) LoadAll() ([]Investor, error) {
	rows, err := r.db.Query(`SELECT name, creation_date, fee_percent, is_fee_receiver, high_watermark, last_fee_date, status FROM investors`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			r.log.Warn().Msg("investor registry table is missing, treating registry as empty")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load investor registry: %w", err)
	}
	defer rows.Close()

	var investors []Investor
	for rows.Next() {
		inv, err := scanInvestor(rows)
		if err != nil {
			return nil, err
		}
		investors = append(investors, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investor registry: %w", err)
	}

	if len(investors) == 0 {
		r.log.Warn().Msg("investor registry is empty")
	}

	return investors, nil
}

// Get loads one investor by name.
func (r *RegistryRepo) Get(name string) (*Investor, error) {
	row := r.db.QueryRow(`SELECT name, creation_date, fee_percent, is_fee_receiver, high_watermark, last_fee_date, status FROM investors WHERE name = ?`, name)
	inv, err := scanInvestor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investor %s: %w", name, err)
	}
	return &inv, nil
}

// UpdateFeeState persists the HWM and last_fee_date mutations made by
// Ledger.Fees; this is the only mutation path the control
// loop exercises against the registry table.
func (r *RegistryRepo) UpdateFeeState(name string, highWatermark float64, lastFeeDate time.Time) error {
	_, err := r.db.Exec(
		`UPDATE investors SET high_watermark = ?, last_fee_date = ? WHERE name = ?`,
		highWatermark, lastFeeDate.Format(civilLayout), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update fee state for %s: %w", name, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvestor(s scanner) (Investor, error) {
	var inv Investor
	var creationDate, lastFeeDate, status string
	var isFeeReceiver int

	err := s.Scan(&inv.Name, &creationDate, &inv.FeePercent, &isFeeReceiver, &inv.HighWatermark, &lastFeeDate, &status)
	if err != nil {
		return Investor{}, err
	}

	inv.CreationDate, _ = time.Parse(civilLayout, creationDate)
	inv.LastFeeDate, _ = time.Parse(civilLayout, lastFeeDate)
	inv.IsFeeReceiver = isFeeReceiver != 0
	inv.Status = Status(status)

	return inv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
