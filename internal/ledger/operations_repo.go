package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const timestampLayout = "2006-01-02 15:04:05"

// OperationsRepo persists the append-only operations log shared across
// all investors: Create appends a row, the List methods read it back in
// insertion order, and MarkCompleted is the only update.
type OperationsRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewOperationsRepo(db *sql.DB, log zerolog.Logger) *OperationsRepo {
	return &OperationsRepo{db: db, log: log.With().Str("repo", "operations").Logger()}
}

// Create appends a new pending operation row and returns its opaque id.
func (r *OperationsRepo) Create(op Operation) (string, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO operations (id, investor, date, timestamp, kind, bucket, amount, status, balance_after, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Investor, op.Date.Format(civilLayout), op.Timestamp.Format(timestampLayout),
		string(op.Kind), string(op.Bucket), op.Amount, string(op.Status), op.BalanceAfter, op.Note,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create operation for %s: %w", op.Investor, err)
	}
	return op.ID, nil
}

// ListPendingByInvestor returns all pending operations for one investor,
// in insertion order.
func (r *OperationsRepo) ListPendingByInvestor(investor string) ([]Operation, error) {
	rows, err := r.db.Query(
		`SELECT id, investor, date, timestamp, kind, bucket, amount, status, balance_after, note
		 FROM operations WHERE investor = ? AND status = ? ORDER BY timestamp ASC, rowid ASC`,
		investor, string(OperationPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations for %s: %w", investor, err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

// ListCompletedByInvestorBucket returns completed operations for one
// (investor, bucket), in insertion order — the set cash() sums over.
func (r *OperationsRepo) ListCompletedByInvestorBucket(investor string, bucket Bucket) ([]Operation, error) {
	rows, err := r.db.Query(
		`SELECT id, investor, date, timestamp, kind, bucket, amount, status, balance_after, note
		 FROM operations WHERE investor = ? AND bucket = ? AND status = ? ORDER BY timestamp ASC, rowid ASC`,
		investor, string(bucket), string(OperationCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed operations for %s/%s: %w", investor, bucket, err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

// MarkCompleted transitions a pending row to completed and records its
// balance_after. This is the only mutation the append-only log permits:
// it never moves backward, and leaves every other column untouched.
func (r *OperationsRepo) MarkCompleted(id string, balanceAfter float64) error {
	res, err := r.db.Exec(
		`UPDATE operations SET status = ?, balance_after = ? WHERE id = ? AND status = ?`,
		string(OperationCompleted), balanceAfter, id, string(OperationPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark operation %s completed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm update for operation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("operation %s was not pending", id)
	}
	return nil
}

func scanOperations(rows *sql.Rows) ([]Operation, error) {
	var ops []Operation
	for rows.Next() {
		var op Operation
		var date, ts, kind, bucket, status string
		var note sql.NullString

		err := rows.Scan(&op.ID, &op.Investor, &date, &ts, &kind, &bucket, &op.Amount, &status, &op.BalanceAfter, &note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op.Date, _ = time.Parse(civilLayout, date)
		op.Timestamp, _ = time.Parse(timestampLayout, ts)
		op.Kind = OperationKind(kind)
		op.Bucket = Bucket(bucket)
		op.Status = OperationStatus(status)
		op.Note = note.String

		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}
