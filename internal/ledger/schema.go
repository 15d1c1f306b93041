package ledger

import (
	"database/sql"
	"fmt"
)

// createTableStatements mirrors the teacher's own dedicated ledger
// database (server.Config.LedgerDB) and its append-only log table shape
// (internal/modules/cash_flows): one table per §3 log, a registry table
// separate from the logs, one row per investor/bucket/day for snapshots.
const createTableStatements = `
CREATE TABLE IF NOT EXISTS investors (
	name TEXT PRIMARY KEY,
	creation_date TEXT NOT NULL,
	fee_percent REAL NOT NULL,
	is_fee_receiver INTEGER NOT NULL,
	high_watermark REAL NOT NULL,
	last_fee_date TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	investor TEXT NOT NULL,
	date TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	kind TEXT NOT NULL,
	bucket TEXT NOT NULL,
	amount REAL NOT NULL,
	status TEXT NOT NULL,
	balance_after REAL NOT NULL,
	note TEXT,
	FOREIGN KEY (investor) REFERENCES investors(name)
);
CREATE INDEX IF NOT EXISTS idx_operations_investor_bucket ON operations(investor, bucket);
CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	investor TEXT NOT NULL,
	date TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	bucket TEXT NOT NULL,
	side TEXT NOT NULL,
	ticker TEXT NOT NULL,
	shares REAL NOT NULL,
	price REAL NOT NULL,
	amount REAL NOT NULL,
	cumulative_shares_after REAL NOT NULL,
	note TEXT,
	FOREIGN KEY (investor) REFERENCES investors(name)
);
CREATE INDEX IF NOT EXISTS idx_trades_investor_bucket_ticker ON trades(investor, bucket, ticker);

CREATE TABLE IF NOT EXISTS balances_snapshot (
	date TEXT NOT NULL,
	investor TEXT NOT NULL,
	bucket TEXT NOT NULL,
	cash REAL NOT NULL,
	positions_value REAL NOT NULL,
	total_value REAL NOT NULL,
	pnl REAL NOT NULL,
	cumulative_deposits REAL NOT NULL,
	cumulative_withdrawals REAL NOT NULL,
	hwm REAL NOT NULL,
	PRIMARY KEY (date, investor, bucket)
);
`

// Migrate creates the ledger schema if it does not already exist.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(createTableStatements); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}
