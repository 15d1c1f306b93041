package supervisor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/clock"
	"github.com/aristath/momentum-rebalancer/internal/ledger"
	"github.com/aristath/momentum-rebalancer/internal/locking"
	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/internal/notify"
	"github.com/aristath/momentum-rebalancer/internal/rebalanceflag"
)

type fakeBroker struct {
	open    bool
	account broker.Account
}

func (f *fakeBroker) GetClock(ctx context.Context) (broker.Clock, error) { return broker.Clock{IsOpen: f.open}, nil }
func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	return f.account, nil
}
func (f *fakeBroker) GetAllPositions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakeBroker) GetAsset(ctx context.Context, symbol string) (broker.Asset, error) {
	return broker.Asset{}, nil
}
func (f *fakeBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{}, nil
}
func (f *fakeBroker) GetOrderByID(ctx context.Context, id string) (broker.OrderStatus, error) {
	return broker.OrderStatus{}, nil
}
func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) error { return nil }
func (f *fakeBroker) GetLastTrade(ctx context.Context, symbol string) (broker.Quote, error) {
	return broker.Quote{}, nil
}

var _ broker.Client = (*fakeBroker)(nil)

type fakeNotifier struct {
	errorsSent int
}

func (n *fakeNotifier) SendStartup(ctx context.Context, summary string) error { return nil }
func (n *fakeNotifier) SendCountdown(ctx context.Context, days int, nextDate string) error {
	return nil
}
func (n *fakeNotifier) SendRebalancePreview(ctx context.Context, previews []notify.Preview) error {
	return nil
}
func (n *fakeNotifier) SendError(ctx context.Context, title, detail string, isWarning bool) error {
	n.errorsSent++
	return nil
}
func (n *fakeNotifier) SendConfirmationRequest(ctx context.Context, previews []notify.Preview) (bool, error) {
	return false, nil
}

var _ notify.Notifier = (*fakeNotifier)(nil)

type fakeMember struct {
	name    string
	failErr error
}

func (m fakeMember) StrategyName() string { return m.name }
func (m fakeMember) RunRebalance(ctx context.Context) (RebalanceResult, error) {
	return RebalanceResult{Name: m.name}, m.failErr
}

func newTestDeps(t *testing.T) (*rebalanceflag.Store, *ledger.Ledger, *clock.Clock) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ledger.Migrate(db))

	clk, err := clock.New()
	require.NoError(t, err)

	flag, err := rebalanceflag.New(db, clk, zerolog.Nop())
	require.NoError(t, err)

	led := ledger.New(db, clk, zerolog.Nop())
	return flag, led, clk
}

func TestDailyRebalanceTick_SkipsWhenMarketClosed(t *testing.T) {
	flag, led, clk := newTestDeps(t)
	brokerClient := &fakeBroker{open: true}
	notifier := &fakeNotifier{}
	loader := &marketdata.Loader{}
	locks := locking.NewManager()

	s := New(Config{Environment: EnvironmentProd, ConfirmationWait: time.Millisecond}, nil, flag, led, loader, brokerClient, notifier, locks, clk, zerolog.Nop())

	// Force a known weekend instant by overriding clk indirectly is not
	// possible without a settable clock; instead exercise the market-closed
	// branch, which every non-open broker state reaches regardless of day.
	s.marketClock = &fakeBroker{open: false}
	s.dailyRebalanceTick(context.Background())
	require.False(t, flag.RebalancedToday())
}

func TestExecuteRebalance_WritesFlagOnSuccess(t *testing.T) {
	flag, led, clk := newTestDeps(t)
	brokerClient := &fakeBroker{open: true, account: broker.Account{Equity: 0}}
	notifier := &fakeNotifier{}
	loader := &marketdata.Loader{}
	locks := locking.NewManager()

	fleet := []FleetMember{fakeMember{name: "alpha"}}
	s := New(Config{Environment: EnvironmentProd}, fleet, flag, led, loader, brokerClient, notifier, locks, clk, zerolog.Nop())

	s.executeRebalance(context.Background())
	require.True(t, flag.RebalancedToday())
}

func TestExecuteRebalance_DoesNotWriteFlagOnFailure(t *testing.T) {
	flag, led, clk := newTestDeps(t)
	brokerClient := &fakeBroker{open: true}
	notifier := &fakeNotifier{}
	loader := &marketdata.Loader{}
	locks := locking.NewManager()

	fleet := []FleetMember{fakeMember{name: "alpha", failErr: errTest}}
	s := New(Config{Environment: EnvironmentProd}, fleet, flag, led, loader, brokerClient, notifier, locks, clk, zerolog.Nop())

	s.executeRebalance(context.Background())
	require.False(t, flag.RebalancedToday())
	require.Equal(t, 1, notifier.errorsSent)
}

var errTest = errors.New("strategy failed")
