package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TradesRepo persists the append-only per-investor trade-lot log. Rows
// are never updated; average-cost-basis and cumulative-share figures
// are derived by replaying rows in insertion order, never stored as a
// separately-mutated running total.
type TradesRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTradesRepo(db *sql.DB, log zerolog.Logger) *TradesRepo {
	return &TradesRepo{db: db, log: log.With().Str("repo", "trades").Logger()}
}

// Create appends a trade lot. CumulativeSharesAfter must already reflect
// the running total at call time; the repo does not compute it.
func (r *TradesRepo) Create(tr Trade) (string, error) {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO trades (id, investor, date, timestamp, bucket, side, ticker, shares, price, amount, cumulative_shares_after, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Investor, tr.Date.Format(civilLayout), tr.Timestamp.Format(timestampLayout),
		string(tr.Bucket), string(tr.Side), tr.Ticker, tr.Shares, tr.Price, tr.Amount, tr.CumulativeSharesAfter, tr.Note,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create trade for %s/%s/%s: %w", tr.Investor, tr.Bucket, tr.Ticker, err)
	}
	return tr.ID, nil
}

// ListByInvestorBucket returns every trade lot for an investor's bucket,
// in insertion order, across all tickers — the replay set cash and
// positions_value draw from.
func (r *TradesRepo) ListByInvestorBucket(investor string, bucket Bucket) ([]Trade, error) {
	rows, err := r.db.Query(
		`SELECT id, investor, date, timestamp, bucket, side, ticker, shares, price, amount, cumulative_shares_after, note
		 FROM trades WHERE investor = ? AND bucket = ? ORDER BY timestamp ASC, rowid ASC`,
		investor, string(bucket),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s/%s: %w", investor, bucket, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListByInvestorBucketTicker returns the lots for a single ticker within
// a bucket, in insertion order, for average-cost-basis replay.
func (r *TradesRepo) ListByInvestorBucketTicker(investor string, bucket Bucket, ticker string) ([]Trade, error) {
	rows, err := r.db.Query(
		`SELECT id, investor, date, timestamp, bucket, side, ticker, shares, price, amount, cumulative_shares_after, note
		 FROM trades WHERE investor = ? AND bucket = ? AND ticker = ? ORDER BY timestamp ASC, rowid ASC`,
		investor, string(bucket), ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s/%s/%s: %w", investor, bucket, ticker, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		var tr Trade
		var date, ts, bucket, side string
		var note sql.NullString

		err := rows.Scan(&tr.ID, &tr.Investor, &date, &ts, &bucket, &side, &tr.Ticker, &tr.Shares, &tr.Price, &tr.Amount, &tr.CumulativeSharesAfter, &note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		tr.Date, _ = time.Parse(civilLayout, date)
		tr.Timestamp, _ = time.Parse(timestampLayout, ts)
		tr.Bucket = Bucket(bucket)
		tr.Side = Side(side)
		tr.Note = note.String

		trades = append(trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}
