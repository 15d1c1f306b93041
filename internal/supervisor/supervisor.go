// Package supervisor wires the scheduler (C10) to the rebalance fleet,
// the ledger, and the notification port, reifying what the source
// keeps as process-global singletons into fields of one value
// constructed at startup.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/clock"
	"github.com/aristath/momentum-rebalancer/internal/ledger"
	"github.com/aristath/momentum-rebalancer/internal/livestrategy"
	"github.com/aristath/momentum-rebalancer/internal/locking"
	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/internal/notify"
	"github.com/aristath/momentum-rebalancer/internal/rebalanceflag"
	"github.com/aristath/momentum-rebalancer/internal/scheduler"
	"github.com/aristath/momentum-rebalancer/internal/strategy"
)

// ErrRebalanceComposite is the composite error raised when any
// strategy in the fleet fails its top-level rebalance.
var ErrRebalanceComposite = errors.New("one or more strategies failed to rebalance")

const rebalanceIntervalTradingDays = 22

// RebalanceResult normalizes the outcome of one fleet member's
// rebalance for notification and logging purposes.
type RebalanceResult struct {
	Name   string
	Closed []string
	Opened []string
}

// FleetMember is anything the supervisor can rebalance: a single
// sub-account strategy (C7) or the three-bucket live strategy (C9).
type FleetMember interface {
	StrategyName() string
	RunRebalance(ctx context.Context) (RebalanceResult, error)
}

// StrategyMember adapts *strategy.Strategy (C7) to FleetMember.
type StrategyMember struct{ S *strategy.Strategy }

func (m StrategyMember) StrategyName() string { return m.S.Name() }
func (m StrategyMember) RunRebalance(ctx context.Context) (RebalanceResult, error) {
	summary, err := m.S.Rebalance(ctx)
	if summary == nil {
		return RebalanceResult{Name: m.S.Name()}, err
	}
	return RebalanceResult{Name: m.S.Name(), Closed: summary.Closed, Opened: summary.Opened}, err
}

// LiveStrategyMember adapts *livestrategy.Strategy (C9) to FleetMember.
type LiveStrategyMember struct {
	Name_ string
	S     *livestrategy.Strategy
}

func (m LiveStrategyMember) StrategyName() string { return m.Name_ }
func (m LiveStrategyMember) RunRebalance(ctx context.Context) (RebalanceResult, error) {
	summary, err := m.S.Rebalance(ctx)
	result := RebalanceResult{Name: m.Name_}
	if summary != nil {
		for _, b := range summary.Buckets {
			result.Closed = append(result.Closed, b.Closed...)
			result.Opened = append(result.Opened, b.Opened...)
		}
	}
	return result, err
}

// Config controls environment-dependent behavior.
type Config struct {
	Environment      string // "local" or "prod"
	ConfirmationWait time.Duration
}

const (
	EnvironmentLocal = "local"
	EnvironmentProd  = "prod"
)

// Supervisor owns the cron scheduler and every cross-job dependency:
// the fleet, the ledger, the market-data cache, the rebalance flag,
// the locking manager, and the notification port.
type Supervisor struct {
	cfg     Config
	cron    *scheduler.Scheduler
	fleet   []FleetMember
	flag    *rebalanceflag.Store
	led     *ledger.Ledger
	loader  *marketdata.Loader
	marketClock broker.Client
	notifier notify.Notifier
	locks   *locking.Manager
	clk     *clock.Clock
	log     zerolog.Logger

	confirm chan bool
}

func New(cfg Config, fleet []FleetMember, flag *rebalanceflag.Store, led *ledger.Ledger, loader *marketdata.Loader, marketClock broker.Client, notifier notify.Notifier, locks *locking.Manager, clk *clock.Clock, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		cron:        scheduler.New(log),
		fleet:       fleet,
		flag:        flag,
		led:         led,
		loader:      loader,
		marketClock: marketClock,
		notifier:    notifier,
		locks:       locks,
		clk:         clk,
		log:         log.With().Str("component", "supervisor").Logger(),
		confirm:     make(chan bool, 1),
	}
}

// Approve answers an outstanding confirmation request. A no-op if
// nothing is awaiting an answer.
func (s *Supervisor) Approve() {
	select {
	case s.confirm <- true:
	default:
	}
}

// Reject answers an outstanding confirmation request with a decline;
// the pending rebalance is then skipped. Only an unanswered request
// falls back to executing once the confirmation wait times out. A
// no-op if nothing is awaiting an answer.
func (s *Supervisor) Reject() {
	select {
	case s.confirm <- false:
	default:
	}
}

// Start registers the three cron jobs (daily rebalance, post-close
// snapshot, hourly integrity watchdog), starts the cron scheduler, and
// then runs the startup pass.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.cron.AddJob("CRON_TZ=America/New_York 0 0 10 * * MON-FRI", dailyRebalanceJob{s: s, ctx: ctx}); err != nil {
		return fmt.Errorf("failed to register daily rebalance job: %w", err)
	}
	if err := s.cron.AddJob("CRON_TZ=America/New_York 0 30 16 * * MON-FRI", postCloseSnapshotJob{s: s, ctx: ctx}); err != nil {
		return fmt.Errorf("failed to register post-close snapshot job: %w", err)
	}
	if err := s.cron.AddJob("0 0 * * * *", integrityWatchdogJob{s: s, ctx: ctx}); err != nil {
		return fmt.Errorf("failed to register integrity watchdog job: %w", err)
	}

	s.cron.Start()

	s.runStartup(ctx)
	return nil
}

// Stop drains the scheduler, letting any in-flight job complete.
func (s *Supervisor) Stop() {
	s.cron.Stop()
}

// JobStatus exposes each registered cron job's last observed run, for
// the admin server's health surface.
func (s *Supervisor) JobStatus() map[string]scheduler.RunRecord {
	return s.cron.Status()
}

func (s *Supervisor) runStartup(ctx context.Context) {
	if _, err := s.loader.Load(ctx, nil); err != nil {
		s.log.Warn().Err(err).Msg("startup market-data prewarm failed")
	}

	clk, err := s.marketClock.GetClock(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read broker clock at startup")
		return
	}
	s.log.Info().Bool("market_open", clk.IsOpen).Msg("startup market status")

	if clk.IsOpen {
		s.triggerRebalance(ctx)
	}
}

type dailyRebalanceJob struct {
	s   *Supervisor
	ctx context.Context
}

func (j dailyRebalanceJob) Name() string { return "daily-rebalance" }
func (j dailyRebalanceJob) Run() error {
	j.s.dailyRebalanceTick(j.ctx)
	return nil
}

// dailyRebalanceTick checks the weekend/market-open/countdown
// preconditions in order, then either requests confirmation (local)
// or executes directly (prod).
func (s *Supervisor) dailyRebalanceTick(ctx context.Context) {
	now := s.clk.Now()
	if !clock.IsWeekday(now) {
		s.log.Debug().Msg("closed: weekend")
		return
	}
	if s.flag.RebalancedToday() {
		return
	}

	mc, err := s.marketClock.GetClock(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read broker clock, skipping tick")
		return
	}
	if !mc.IsOpen {
		hour := now.Hour()
		if hour >= 9 && hour < 16 {
			s.log.Info().Msg("closed: holiday")
		} else {
			s.log.Debug().Msg("closed: outside market hours")
		}
		return
	}

	lastDate, hasLast := s.flag.LastDate()
	daysUntil := rebalanceIntervalTradingDays
	if hasLast {
		daysUntil = rebalanceIntervalTradingDays - clock.TradingDaysBetween(lastDate, now)
		if daysUntil < 0 {
			daysUntil = 0
		}
	}
	if daysUntil != 0 {
		nextDate := now.AddDate(0, 0, daysUntil).Format("2006-01-02")
		if err := s.notifier.SendCountdown(ctx, daysUntil, nextDate); err != nil {
			s.log.Warn().Err(err).Msg("failed to send countdown notification")
		}
		return
	}

	s.triggerRebalance(ctx)
}

func (s *Supervisor) triggerRebalance(ctx context.Context) {
	if s.cfg.Environment == EnvironmentLocal {
		previews := s.buildPreviews(ctx)
		awaits, err := s.notifier.SendConfirmationRequest(ctx, previews)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to send confirmation request")
		}
		if awaits {
			select {
			case approved := <-s.confirm:
				if !approved {
					s.log.Info().Msg("rebalance rejected by confirmation response")
					return
				}
			case <-time.After(s.cfg.ConfirmationWait):
				s.log.Warn().Msg("confirmation wait timed out, executing as fallback")
			case <-ctx.Done():
				return
			}
		}
	}

	s.executeRebalance(ctx)
}

func (s *Supervisor) buildPreviews(ctx context.Context) []notify.Preview {
	previews := make([]notify.Preview, 0, len(s.fleet))
	for _, member := range s.fleet {
		previews = append(previews, notify.Preview{Strategy: member.StrategyName()})
	}
	return previews
}

func (s *Supervisor) executeRebalance(ctx context.Context) {
	if err := s.locks.Acquire("rebalance"); err != nil {
		s.log.Warn().Err(err).Msg("rebalance already in progress, skipping tick")
		return
	}
	defer s.locks.Release("rebalance")

	var failures []error
	var previews []notify.Preview
	for _, member := range s.fleet {
		result, err := member.RunRebalance(ctx)
		previews = append(previews, notify.Preview{Strategy: result.Name, Closed: result.Closed, Opened: result.Opened})
		if err != nil {
			s.log.Error().Err(err).Str("strategy", result.Name).Msg("strategy rebalance failed")
			failures = append(failures, fmt.Errorf("%s: %w", result.Name, err))
		}
	}

	if err := s.notifier.SendRebalancePreview(ctx, previews); err != nil {
		s.log.Warn().Err(err).Msg("failed to send rebalance preview")
	}

	if len(failures) > 0 {
		composite := fmt.Errorf("%w: %v", ErrRebalanceComposite, errors.Join(failures...))
		if err := s.notifier.SendError(ctx, "rebalance failed", composite.Error(), false); err != nil {
			s.log.Warn().Err(err).Msg("failed to send error notification")
		}
		return
	}

	if err := s.flag.WriteToday(); err != nil {
		s.log.Error().Err(err).Msg("failed to write rebalance flag after successful rebalance")
	}
}

type postCloseSnapshotJob struct {
	s   *Supervisor
	ctx context.Context
}

func (j postCloseSnapshotJob) Name() string { return "post-close-snapshot" }
func (j postCloseSnapshotJob) Run() error {
	if !clock.IsWeekday(j.s.clk.Now()) {
		return nil
	}
	if err := j.s.led.Snapshot(j.s.clk.Now()); err != nil {
		j.s.log.Error().Err(err).Msg("post-close snapshot failed")
		return err
	}
	return nil
}

type integrityWatchdogJob struct {
	s   *Supervisor
	ctx context.Context
}

func (j integrityWatchdogJob) Name() string { return "integrity-watchdog" }
func (j integrityWatchdogJob) Run() error {
	account, err := j.s.marketClock.GetAccount(j.ctx)
	if err != nil {
		j.s.log.Warn().Err(err).Msg("integrity watchdog: failed to read broker account")
		return err
	}
	ok, msg := j.s.led.VerifyIntegrity(account)
	if !ok {
		if sendErr := j.s.notifier.SendError(j.ctx, "integrity watchdog failed", msg, false); sendErr != nil {
			j.s.log.Warn().Err(sendErr).Msg("failed to send integrity error notification")
		}
		return fmt.Errorf("integrity check failed: %s", msg)
	}
	return nil
}
