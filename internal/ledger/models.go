// Package ledger implements the investor ledger (C8): registry,
// operations log, trades log, derived-balance reconstruction, HWM fee
// assessment, and broker reconciliation.
package ledger

import "time"

// Bucket is one of the three virtual sub-accounts.
type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketMedium Bucket = "medium"
	BucketHigh   Bucket = "high"
)

// AllBuckets lists the three buckets in their fixed execution order
// (low, medium, high), matching §5's ordering guarantee.
var AllBuckets = []Bucket{BucketLow, BucketMedium, BucketHigh}

// DefaultAllocation is the fixed default split used when deposit/withdraw
// is called without a bucket, and as the live strategy's fallback when
// no ledger allocations exist yet.
var DefaultAllocation = map[Bucket]float64{
	BucketLow:    0.45,
	BucketMedium: 0.35,
	BucketHigh:   0.20,
}

// Status is an investor's lifecycle flag.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Investor is the registry row (§3).
type Investor struct {
	Name          string
	CreationDate  time.Time
	FeePercent    float64
	IsFeeReceiver bool
	HighWatermark float64
	LastFeeDate   time.Time
	Status        Status
}

// Active reports whether the investor currently participates in
// allocation, distribution, and fee assessment.
func (i Investor) Active() bool { return i.Status == StatusActive }

// OperationKind is the type of ledger operation entry.
type OperationKind string

const (
	OperationDeposit  OperationKind = "deposit"
	OperationWithdraw OperationKind = "withdraw"
	OperationFee      OperationKind = "fee"
)

// OperationStatus tracks an operation's completion state.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationCompleted OperationStatus = "completed"
)

// Operation is one append-only operations-log row (§3). Amount is
// immutable after creation; only Status and BalanceAfter may be
// mutated, and only pending -> completed.
type Operation struct {
	ID           string
	Investor     string
	Date         time.Time
	Timestamp    time.Time
	Kind         OperationKind
	Bucket       Bucket
	Amount       float64
	Status       OperationStatus
	BalanceAfter float64
	Note         string
}

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one append-only trade-lot entry (§3).
type Trade struct {
	ID                    string
	Investor              string
	Date                  time.Time
	Timestamp             time.Time
	Bucket                Bucket
	Side                  Side
	Ticker                string
	Shares                float64
	Price                 float64
	Amount                float64
	CumulativeSharesAfter float64
	Note                  string
}

// Snapshot is one daily per-investor-per-bucket balances_snapshot row.
type Snapshot struct {
	Date                  time.Time
	Investor              string
	Bucket                Bucket
	Cash                  float64
	PositionsValue        float64
	TotalValue            float64
	PnL                   float64
	CumulativeDeposits    float64
	CumulativeWithdrawals float64
	HighWatermark         float64
}

// BucketBalance is the derived per-bucket view returned by balance queries.
type BucketBalance struct {
	Cash           float64
	PositionsValue float64
	TotalValue     float64
	RealizedPnL    float64
	UnrealizedPnL  float64
}

// InvestorBalance is the full per-investor derived view across buckets.
type InvestorBalance struct {
	Buckets    map[Bucket]BucketBalance
	TotalValue float64
}
