package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/clock"
)

var (
	// ErrInsufficientFunds is returned when a withdraw exceeds the
	// withdrawable balance (per-bucket or across buckets for the split form).
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownInvestor is returned by operations addressed at a name
	// absent from the registry.
	ErrUnknownInvestor = errors.New("unknown investor")
)

// Ledger is the investor ledger (C8): registry plus append-only
// operations/trades logs, with every balance derived by replay rather
// than stored as a mutable running total.
type Ledger struct {
	registry  *RegistryRepo
	ops       *OperationsRepo
	trades    *TradesRepo
	snapshots *SnapshotsRepo
	clk       *clock.Clock
	log       zerolog.Logger
}

func New(db *sql.DB, clk *clock.Clock, log zerolog.Logger) *Ledger {
	log = log.With().Str("component", "ledger").Logger()
	return &Ledger{
		registry:  NewRegistryRepo(db, log),
		ops:       NewOperationsRepo(db, log),
		trades:    NewTradesRepo(db, log),
		snapshots: NewSnapshotsRepo(db),
		clk:       clk,
		log:       log,
	}
}

// Deposit credits an investor, split across buckets by DefaultAllocation
// when bucket is nil, or wholly into one bucket otherwise. Returns the
// opaque operation ids created, in bucket order.
func (l *Ledger) Deposit(name string, amount float64, bucket *Bucket) ([]string, error) {
	return l.record(name, OperationDeposit, amount, bucket, "")
}

// Withdraw debits an investor after checking the requested amount
// against the withdrawable balance (the targeted bucket, or the sum
// across buckets for the split form).
func (l *Ledger) Withdraw(name string, amount float64, bucket *Bucket) ([]string, error) {
	inv, err := l.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownInvestor)
	}

	available, err := l.withdrawableBalance(name, bucket)
	if err != nil {
		return nil, err
	}
	if amount > available {
		return nil, fmt.Errorf("%s requested %.2f, available %.2f: %w", name, amount, available, ErrInsufficientFunds)
	}

	return l.record(name, OperationWithdraw, amount, bucket, "")
}

func (l *Ledger) withdrawableBalance(name string, bucket *Bucket) (float64, error) {
	if bucket != nil {
		bal, err := l.bucketBalance(name, *bucket, nil)
		if err != nil {
			return 0, err
		}
		return bal.TotalValue, nil
	}

	var total float64
	for _, b := range AllBuckets {
		bal, err := l.bucketBalance(name, b, nil)
		if err != nil {
			return 0, err
		}
		total += bal.TotalValue
	}
	return total, nil
}

func (l *Ledger) record(name string, kind OperationKind, amount float64, bucket *Bucket, note string) ([]string, error) {
	now := l.clk.Now()
	today := l.clk.Today()

	buckets := map[Bucket]float64{}
	if bucket != nil {
		buckets[*bucket] = amount
	} else {
		for _, b := range AllBuckets {
			buckets[b] = amount * DefaultAllocation[b]
		}
	}

	var ids []string
	for _, b := range AllBuckets {
		share, ok := buckets[b]
		if !ok {
			continue
		}
		id, err := l.ops.Create(Operation{
			Investor:  name,
			Date:      today,
			Timestamp: now,
			Kind:      kind,
			Bucket:    b,
			Amount:    share,
			Status:    OperationPending,
			Note:      note,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ProcessPending completes every pending operation across all active
// investors, stamping balance_after with the post-completion cash value.
// Called at the start of every rebalance per §4.9 step 1.
func (l *Ledger) ProcessPending() error {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return err
	}

	for _, inv := range investors {
		if !inv.Active() {
			continue
		}
		pending, err := l.ops.ListPendingByInvestor(inv.Name)
		if err != nil {
			return err
		}
		for _, op := range pending {
			balance, err := l.cash(inv.Name, op.Bucket)
			if err != nil {
				return err
			}
			switch op.Kind {
			case OperationDeposit:
				balance += op.Amount
			case OperationWithdraw, OperationFee:
				balance -= op.Amount
			}
			if err := l.ops.MarkCompleted(op.ID, balance); err != nil {
				return err
			}
		}
	}
	return nil
}

// BucketAllocation is the per-investor capital share within one bucket,
// plus the bucket total, used as the pro-rata key for Distribute.
type BucketAllocation struct {
	ByInvestor map[string]float64
	Total      float64
}

// Allocations returns, per bucket, each active investor's total_value
// in that bucket plus the bucket total.
func (l *Ledger) Allocations() (map[Bucket]BucketAllocation, error) {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return nil, err
	}

	out := make(map[Bucket]BucketAllocation, len(AllBuckets))
	for _, b := range AllBuckets {
		alloc := BucketAllocation{ByInvestor: map[string]float64{}}
		for _, inv := range investors {
			if !inv.Active() {
				continue
			}
			bal, err := l.bucketBalance(inv.Name, b, nil)
			if err != nil {
				return nil, err
			}
			alloc.ByInvestor[inv.Name] = bal.TotalValue
			alloc.Total += bal.TotalValue
		}
		out[b] = alloc
	}
	return out, nil
}

// Distribute attributes a fill pro-rata across active investors' capital
// share of the bucket, appending one trade lot per investor with a
// positive share. Skips silently, with a warning, if bucket capital is
// not positive.
func (l *Ledger) Distribute(bucket Bucket, side Side, ticker string, totalShares, price float64) error {
	allocs, err := l.Allocations()
	if err != nil {
		return err
	}
	alloc := allocs[bucket]
	if alloc.Total <= 0 {
		l.log.Warn().Str("bucket", string(bucket)).Str("ticker", ticker).Msg("skipping distribution: bucket has no capital")
		return nil
	}

	now := l.clk.Now()
	today := l.clk.Today()

	for investor, capital := range alloc.ByInvestor {
		fraction := capital / alloc.Total
		if fraction <= 0 {
			continue
		}
		shares := totalShares * fraction
		amount := shares * price

		prior, err := l.positionShares(investor, bucket, ticker)
		if err != nil {
			return err
		}
		var cumulative float64
		switch side {
		case SideBuy:
			cumulative = prior + shares
		case SideSell:
			cumulative = prior - shares
			if cumulative < 0 {
				cumulative = 0
			}
		}

		_, err = l.trades.Create(Trade{
			Investor:              investor,
			Date:                  today,
			Timestamp:             now,
			Bucket:                bucket,
			Side:                  side,
			Ticker:                ticker,
			Shares:                shares,
			Price:                 price,
			Amount:                amount,
			CumulativeSharesAfter: cumulative,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Fees assesses the high-watermark performance fee for every active
// non-fee-receiver investor (or a single investor when only is set).
// In at_rebalance mode an investor is skipped unless at least one
// civil month has passed since their last fee date.
func (l *Ledger) Fees(atRebalance bool, only *string) (map[string]float64, error) {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return nil, err
	}

	now := l.clk.Now()
	out := map[string]float64{}

	for _, inv := range investors {
		if !inv.Active() || inv.IsFeeReceiver {
			continue
		}
		if only != nil && inv.Name != *only {
			continue
		}
		if atRebalance && clock.MonthsBetween(inv.LastFeeDate, now) < 1 {
			continue
		}

		current, err := l.totalValue(inv.Name)
		if err != nil {
			return nil, err
		}
		if current <= inv.HighWatermark {
			continue
		}

		fee := (current - inv.HighWatermark) * inv.FeePercent
		if fee <= 0 {
			continue
		}

		newHWM := current
		newLastFeeDate := inv.LastFeeDate
		if atRebalance {
			newLastFeeDate = l.clk.Today()
		}
		if err := l.registry.UpdateFeeState(inv.Name, newHWM, newLastFeeDate); err != nil {
			return nil, err
		}

		if _, err := l.record(inv.Name, OperationFee, fee, nil, "performance fee"); err != nil {
			return nil, err
		}
		out[inv.Name] = fee
	}
	return out, nil
}

// VerifyIntegrity compares the ledger's total active-investor value
// against the broker's reported account equity, passing within a
// $1 tolerance.
func (l *Ledger) VerifyIntegrity(acct broker.Account) (bool, string) {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return false, fmt.Sprintf("failed to load registry: %v", err)
	}

	var sum float64
	active := 0
	for _, inv := range investors {
		if !inv.Active() {
			continue
		}
		active++
		v, err := l.totalValue(inv.Name)
		if err != nil {
			return false, fmt.Sprintf("failed to compute total value for %s: %v", inv.Name, err)
		}
		sum += v
	}

	if active == 0 {
		return true, "no active investors"
	}

	diff := sum - acct.Equity
	if diff < 0 {
		diff = -diff
	}
	ok := diff <= 1.0
	msg := fmt.Sprintf("ledger total %.2f vs broker equity %.2f (diff %.2f)", sum, acct.Equity, diff)
	return ok, msg
}

// Snapshot appends one balances_snapshot row per active investor per
// bucket, reflecting the derived balances as of date.
func (l *Ledger) Snapshot(date time.Time) error {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return err
	}

	for _, inv := range investors {
		if !inv.Active() {
			continue
		}
		for _, b := range AllBuckets {
			bal, err := l.bucketBalance(inv.Name, b, nil)
			if err != nil {
				return err
			}
			cashVal, err := l.cash(inv.Name, b)
			if err != nil {
				return err
			}
			deposits, withdrawals, err := l.cumulativeFlows(inv.Name, b)
			if err != nil {
				return err
			}

			err = l.snapshots.Create(Snapshot{
				Date:                  date,
				Investor:              inv.Name,
				Bucket:                b,
				Cash:                  cashVal,
				PositionsValue:        bal.PositionsValue,
				TotalValue:            bal.TotalValue,
				PnL:                   bal.RealizedPnL + bal.UnrealizedPnL,
				CumulativeDeposits:    deposits,
				CumulativeWithdrawals: withdrawals,
				HighWatermark:         inv.HighWatermark,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// GetInvestorSummary renders a short human-readable summary of one
// investor's position across all buckets, supplementing the core
// ledger contract.
func (l *Ledger) GetInvestorSummary(name string) (string, error) {
	inv, err := l.registry.Get(name)
	if err != nil {
		return "", err
	}
	if inv == nil {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownInvestor)
	}

	total, err := l.totalValue(name)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("Investor: %s\nStatus: %s\nTotal value: %.2f\nHigh watermark: %.2f\n", inv.Name, inv.Status, total, inv.HighWatermark)
	for _, b := range AllBuckets {
		bal, err := l.bucketBalance(name, b, nil)
		if err != nil {
			return "", err
		}
		summary += fmt.Sprintf("  %s: cash=%.2f positions=%.2f total=%.2f realized_pnl=%.2f unrealized_pnl=%.2f\n",
			b, bal.Cash, bal.PositionsValue, bal.TotalValue, bal.RealizedPnL, bal.UnrealizedPnL)
	}
	return summary, nil
}

// GetAccountAllocations exposes Allocations directly, matching the
// read surface the admin server presents.
func (l *Ledger) GetAccountAllocations() (map[Bucket]BucketAllocation, error) {
	return l.Allocations()
}

// BucketTickers returns the union, over active investors, of tickers
// with a positive position_shares in the given bucket. This is the
// ledger's own view of "what this bucket holds" (§4.9 step d); it is
// informational only, since actual close/open decisions are driven by
// broker fact (step e), not by this set.
func (l *Ledger) BucketTickers(bucket Bucket) ([]string, error) {
	investors, err := l.registry.LoadAll()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, inv := range investors {
		if !inv.Active() {
			continue
		}
		trades, err := l.trades.ListByInvestorBucket(inv.Name, bucket)
		if err != nil {
			return nil, err
		}
		byTicker := map[string][]Trade{}
		for _, tr := range trades {
			byTicker[tr.Ticker] = append(byTicker[tr.Ticker], tr)
		}
		for ticker, lots := range byTicker {
			if replayLots(lots).shares > 0 {
				seen[ticker] = true
			}
		}
	}

	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// cash implements the §3 derived-balance formula: completed deposits
// minus completed withdrawals minus completed fees minus BUY amounts
// plus SELL amounts, scoped to one (investor, bucket).
func (l *Ledger) cash(investor string, bucket Bucket) (float64, error) {
	ops, err := l.ops.ListCompletedByInvestorBucket(investor, bucket)
	if err != nil {
		return 0, err
	}
	trades, err := l.trades.ListByInvestorBucket(investor, bucket)
	if err != nil {
		return 0, err
	}

	var cash float64
	for _, op := range ops {
		switch op.Kind {
		case OperationDeposit:
			cash += op.Amount
		case OperationWithdraw, OperationFee:
			cash -= op.Amount
		}
	}
	for _, tr := range trades {
		switch tr.Side {
		case SideBuy:
			cash -= tr.Amount
		case SideSell:
			cash += tr.Amount
		}
	}
	return cash, nil
}

func (l *Ledger) cumulativeFlows(investor string, bucket Bucket) (deposits, withdrawals float64, err error) {
	ops, err := l.ops.ListCompletedByInvestorBucket(investor, bucket)
	if err != nil {
		return 0, 0, err
	}
	for _, op := range ops {
		switch op.Kind {
		case OperationDeposit:
			deposits += op.Amount
		case OperationWithdraw:
			withdrawals += op.Amount
		}
	}
	return deposits, withdrawals, nil
}

// positionShares returns the last cumulative_shares_after for a triple,
// or 0 if the ticker was never traded.
func (l *Ledger) positionShares(investor string, bucket Bucket, ticker string) (float64, error) {
	trades, err := l.trades.ListByInvestorBucketTicker(investor, bucket, ticker)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, nil
	}
	return trades[len(trades)-1].CumulativeSharesAfter, nil
}

// lotReplay is the average-cost-basis state for one ticker, rebuilt
// fresh from the trade log on every call rather than persisted.
type lotReplay struct {
	shares      float64
	avgCost     float64
	realizedPnL float64
}

func replayLots(trades []Trade) lotReplay {
	var r lotReplay
	for _, tr := range trades {
		switch tr.Side {
		case SideBuy:
			totalCost := r.avgCost*r.shares + tr.Shares*tr.Price
			r.shares += tr.Shares
			if r.shares > 0 {
				r.avgCost = totalCost / r.shares
			}
		case SideSell:
			r.realizedPnL += (tr.Price - r.avgCost) * tr.Shares
			r.shares -= tr.Shares
			if r.shares <= 0 {
				r.shares = 0
				r.avgCost = 0
			}
		}
	}
	return r
}

// priceSource supplies a current price for unrealized P&L and
// positions_value, falling back to the last trade price when absent.
type priceSource func(ticker string) (float64, bool)

// bucketBalance derives cash, positions value, and realized/unrealized
// P&L for one (investor, bucket), using currentPrice (or nil to fall
// back entirely to each ticker's last trade price) for live marks.
func (l *Ledger) bucketBalance(investor string, bucket Bucket, currentPrice priceSource) (BucketBalance, error) {
	cashVal, err := l.cash(investor, bucket)
	if err != nil {
		return BucketBalance{}, err
	}

	all, err := l.trades.ListByInvestorBucket(investor, bucket)
	if err != nil {
		return BucketBalance{}, err
	}

	byTicker := map[string][]Trade{}
	for _, tr := range all {
		byTicker[tr.Ticker] = append(byTicker[tr.Ticker], tr)
	}

	var positionsValue, realized, unrealized float64
	for ticker, lots := range byTicker {
		r := replayLots(lots)
		realized += r.realizedPnL
		if r.shares <= 0 {
			continue
		}

		price, ok := float64(0), false
		if currentPrice != nil {
			price, ok = currentPrice(ticker)
		}
		if !ok {
			price = lots[len(lots)-1].Price
		}

		positionsValue += r.shares * price
		unrealized += (price - r.avgCost) * r.shares
	}

	return BucketBalance{
		Cash:           cashVal,
		PositionsValue: positionsValue,
		TotalValue:     cashVal + positionsValue,
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealized,
	}, nil
}

func (l *Ledger) totalValue(investor string) (float64, error) {
	var total float64
	for _, b := range AllBuckets {
		bal, err := l.bucketBalance(investor, b, nil)
		if err != nil {
			return 0, err
		}
		total += bal.TotalValue
	}
	return total, nil
}
