package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/clock"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))

	clk, err := clock.New()
	require.NoError(t, err)

	return New(db, clk, zerolog.Nop())
}

func mustCreateInvestor(t *testing.T, l *Ledger, name string, hwm, feePercent float64, isFeeReceiver bool) {
	t.Helper()
	require.NoError(t, l.registry.Create(Investor{
		Name:          name,
		CreationDate:  l.clk.Today(),
		FeePercent:    feePercent,
		IsFeeReceiver: isFeeReceiver,
		HighWatermark: hwm,
		LastFeeDate:   l.clk.Today().AddDate(0, -2, 0),
		Status:        StatusActive,
	}))
}

func TestDeposit_DefaultSplitSeedScenario1(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Cherry", 0, 0.2, false)

	ids, err := l.Deposit("Cherry", 10000.00, nil)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	ops, err := l.ops.ListPendingByInvestor("Cherry")
	require.NoError(t, err)
	require.Len(t, ops, 3)

	amounts := map[Bucket]float64{}
	var total float64
	for _, op := range ops {
		amounts[op.Bucket] = op.Amount
		total += op.Amount
		require.Equal(t, 0.0, op.BalanceAfter)
	}
	require.InDelta(t, 4500.00, amounts[BucketLow], 0.001)
	require.InDelta(t, 3500.00, amounts[BucketMedium], 0.001)
	require.InDelta(t, 2000.00, amounts[BucketHigh], 0.001)
	require.InDelta(t, 10000.00, total, 0.001)
}

func TestDistribute_ProRataAttributionSeedScenario2(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Alexey", 0, 0.2, false)
	mustCreateInvestor(t, l, "Alex", 0, 0.2, false)
	mustCreateInvestor(t, l, "Cherry", 0, 0.2, false)

	low := BucketLow
	deposit := func(name string, amount float64) {
		ids, err := l.Deposit(name, amount, &low)
		require.NoError(t, err)
		require.NoError(t, l.ops.MarkCompleted(ids[0], amount))
	}
	deposit("Alexey", 4500)
	deposit("Alex", 2250)
	deposit("Cherry", 4500)

	require.NoError(t, l.Distribute(BucketLow, SideBuy, "AAPL", 10.0, 100.00))

	expect := map[string]float64{"Alexey": 4.0, "Alex": 2.0, "Cherry": 4.0}
	for name, wantShares := range expect {
		trades, err := l.trades.ListByInvestorBucketTicker(name, BucketLow, "AAPL")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		require.InDelta(t, wantShares, trades[0].Shares, 0.001)
		require.InDelta(t, wantShares*100.00, trades[0].Amount, 0.001)
		require.InDelta(t, wantShares, trades[0].CumulativeSharesAfter, 0.001)
	}
}

func TestDistribute_SkipsSilentlyWhenBucketHasNoCapital(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Cherry", 0, 0.2, false)

	require.NoError(t, l.Distribute(BucketLow, SideBuy, "AAPL", 10.0, 100.00))

	trades, err := l.trades.ListByInvestorBucket("Cherry", BucketLow)
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestBucketBalance_PnLRoundTripSeedScenario3(t *testing.T) {
	l := newTestLedger(t)
	now := l.clk.Now()
	today := l.clk.Today()

	_, err := l.trades.Create(Trade{
		Investor: "Solo", Date: today, Timestamp: now, Bucket: BucketLow,
		Side: SideBuy, Ticker: "AAPL", Shares: 100, Price: 150.00, Amount: 15000.00, CumulativeSharesAfter: 100,
	})
	require.NoError(t, err)
	_, err = l.trades.Create(Trade{
		Investor: "Solo", Date: today, Timestamp: now.Add(time.Hour), Bucket: BucketLow,
		Side: SideSell, Ticker: "AAPL", Shares: 50, Price: 160.00, Amount: 8000.00, CumulativeSharesAfter: 50,
	})
	require.NoError(t, err)

	currentPrice := func(ticker string) (float64, bool) { return 170.00, true }
	bal, err := l.bucketBalance("Solo", BucketLow, currentPrice)
	require.NoError(t, err)

	require.InDelta(t, 8500.00, bal.PositionsValue, 0.01)
	require.InDelta(t, 500.00, bal.RealizedPnL, 0.01)
	require.InDelta(t, 1000.00, bal.UnrealizedPnL, 0.01)
}

func TestFees_HWMAtWithdrawalSeedScenario6(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Dana", 10000, 0.20, false)

	// A completed 12000 deposit fully invested in 80 AAPL @ 150 leaves
	// cash 0 and positions 12000, so total_value is 12000.
	low := BucketLow
	ids, err := l.Deposit("Dana", 12000.00, &low)
	require.NoError(t, err)
	require.NoError(t, l.ops.MarkCompleted(ids[0], 12000.00))
	_, err = l.trades.Create(Trade{
		Investor: "Dana", Date: l.clk.Today(), Timestamp: l.clk.Now(), Bucket: BucketLow,
		Side: SideBuy, Ticker: "AAPL", Shares: 80, Price: 150.00, Amount: 12000.00, CumulativeSharesAfter: 80,
	})
	require.NoError(t, err)

	before, err := l.registry.Get("Dana")
	require.NoError(t, err)
	total, err := l.totalValue("Dana")
	require.NoError(t, err)
	require.InDelta(t, 12000.00, total, 0.01)

	name := "Dana"
	fees, err := l.Fees(false, &name)
	require.NoError(t, err)
	require.InDelta(t, 400.00, fees["Dana"], 0.01)

	inv, err := l.registry.Get("Dana")
	require.NoError(t, err)
	require.InDelta(t, 12000.00, inv.HighWatermark, 0.01)
	require.True(t, before.LastFeeDate.Equal(inv.LastFeeDate))
}

func TestFees_SkipsFeeReceiversAndInactive(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Receiver", 0, 0.2, true)
	require.NoError(t, l.registry.Create(Investor{
		Name:          "Dormant",
		CreationDate:  l.clk.Today(),
		FeePercent:    0.2,
		HighWatermark: 0,
		LastFeeDate:   l.clk.Today().AddDate(0, -2, 0),
		Status:        StatusInactive,
	}))

	// Both hold completed capital above their zero high watermark, so
	// only the receiver/inactive exclusions keep them from being charged.
	low := BucketLow
	for _, name := range []string{"Receiver", "Dormant"} {
		ids, err := l.Deposit(name, 5000, &low)
		require.NoError(t, err)
		require.NoError(t, l.ops.MarkCompleted(ids[0], 5000))
	}

	fees, err := l.Fees(false, nil)
	require.NoError(t, err)
	require.Empty(t, fees)
}

func TestAllocations_SumsExactlyAcrossActiveInvestors(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "A", 0, 0.2, false)
	mustCreateInvestor(t, l, "B", 0, 0.2, false)

	low := BucketLow
	ids, err := l.Deposit("A", 1000, &low)
	require.NoError(t, err)
	require.NoError(t, l.ops.MarkCompleted(ids[0], 1000))
	ids, err = l.Deposit("B", 500, &low)
	require.NoError(t, err)
	require.NoError(t, l.ops.MarkCompleted(ids[0], 500))

	allocs, err := l.Allocations()
	require.NoError(t, err)

	var sum float64
	for _, v := range allocs[BucketLow].ByInvestor {
		sum += v
	}
	require.InDelta(t, allocs[BucketLow].Total, sum, 0.0001)
	require.InDelta(t, 1500.0, allocs[BucketLow].Total, 0.0001)
}

func TestVerifyIntegrity_NoActiveInvestorsReturnsOKMessage(t *testing.T) {
	l := newTestLedger(t)
	ok, msg := l.VerifyIntegrity(broker.Account{Equity: 0})
	require.True(t, ok)
	require.Equal(t, "no active investors", msg)
}

func TestWithdraw_FailsWhenExceedingAvailableBalance(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Cherry", 0, 0.2, false)

	_, err := l.Withdraw("Cherry", 100, nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestProcessPending_CompletesAndStampsBalance(t *testing.T) {
	l := newTestLedger(t)
	mustCreateInvestor(t, l, "Cherry", 0, 0.2, false)

	_, err := l.Deposit("Cherry", 1000, nil)
	require.NoError(t, err)

	require.NoError(t, l.ProcessPending())

	pending, err := l.ops.ListPendingByInvestor("Cherry")
	require.NoError(t, err)
	require.Empty(t, pending)

	low := BucketLow
	completed, err := l.ops.ListCompletedByInvestorBucket("Cherry", low)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.InDelta(t, 450.0, completed[0].BalanceAfter, 0.001)
}
