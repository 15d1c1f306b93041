package ledger

import (
	"database/sql"
	"fmt"
)

// SnapshotsRepo persists the daily per-investor-per-bucket balances_snapshot
// rows written after market close (§4.9 step e / §4.10's post-close job).
type SnapshotsRepo struct {
	db *sql.DB
}

func NewSnapshotsRepo(db *sql.DB) *SnapshotsRepo {
	return &SnapshotsRepo{db: db}
}

// Create writes or replaces the snapshot row for a given (date, investor,
// bucket). Replacing rather than erroring on conflict lets a re-run of
// the post-close job correct a partial prior run.
func (r *SnapshotsRepo) Create(s Snapshot) error {
	_, err := r.db.Exec(
		`INSERT INTO balances_snapshot (date, investor, bucket, cash, positions_value, total_value, pnl, cumulative_deposits, cumulative_withdrawals, hwm)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date, investor, bucket) DO UPDATE SET
			cash=excluded.cash, positions_value=excluded.positions_value, total_value=excluded.total_value,
			pnl=excluded.pnl, cumulative_deposits=excluded.cumulative_deposits,
			cumulative_withdrawals=excluded.cumulative_withdrawals, hwm=excluded.hwm`,
		s.Date.Format(civilLayout), s.Investor, string(s.Bucket), s.Cash, s.PositionsValue, s.TotalValue,
		s.PnL, s.CumulativeDeposits, s.CumulativeWithdrawals, s.HighWatermark,
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot for %s/%s/%s: %w", s.Date.Format(civilLayout), s.Investor, s.Bucket, err)
	}
	return nil
}
