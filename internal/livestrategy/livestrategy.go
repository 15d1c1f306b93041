// Package livestrategy drives one brokerage account as three virtual
// ledger buckets (C9): low, medium, and high risk.
package livestrategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/clock"
	"github.com/aristath/momentum-rebalancer/internal/executor"
	"github.com/aristath/momentum-rebalancer/internal/ledger"
	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/internal/momentum"
	"github.com/aristath/momentum-rebalancer/internal/tradability"
)

// ErrReconciliationFailed is raised when the post-rebalance integrity
// check exceeds the $1 tolerance.
var ErrReconciliationFailed = errors.New("reconciliation failed")

// Loader abstracts C3's Load.
type Loader interface {
	Load(ctx context.Context, tickers []string) (marketdata.BarHistory, error)
}

// Ledger is the subset of *ledger.Ledger the live strategy drives.
type Ledger interface {
	ProcessPending() error
	Allocations() (map[ledger.Bucket]ledger.BucketAllocation, error)
	Distribute(bucket ledger.Bucket, side ledger.Side, ticker string, totalShares, price float64) error
	VerifyIntegrity(acct broker.Account) (bool, string)
	Snapshot(date time.Time) error
	BucketTickers(bucket ledger.Bucket) ([]string, error)
}

// Config maps each bucket to its dedicated universe and basket size.
type Config struct {
	TopN      int
	Universes map[ledger.Bucket][]string
}

// Strategy orchestrates the three-bucket live account.
type Strategy struct {
	cfg      Config
	broker   broker.Client
	ledger   Ledger
	loader   Loader
	executor *executor.Executor
	clk      *clock.Clock
	log      zerolog.Logger

	lastKnownAccount broker.Account
}

func New(cfg Config, brokerClient broker.Client, led Ledger, loader Loader, exec *executor.Executor, clk *clock.Clock, log zerolog.Logger) *Strategy {
	return &Strategy{
		cfg:      cfg,
		broker:   brokerClient,
		ledger:   led,
		loader:   loader,
		executor: exec,
		clk:      clk,
		log:      log.With().Str("component", "livestrategy").Logger(),
	}
}

// BucketSummary reports what one bucket did during a rebalance.
type BucketSummary struct {
	Bucket ledger.Bucket
	Basket []string
	Closed []string
	Opened []string
	Skip   string
}

// Summary reports the outcome of the live-account rebalance across all
// three buckets.
type Summary struct {
	Buckets []BucketSummary
}

// Rebalance implements §4.9's five steps.
func (s *Strategy) Rebalance(ctx context.Context) (*Summary, error) {
	if err := s.ledger.ProcessPending(); err != nil {
		return nil, fmt.Errorf("process pending operations: %w", err)
	}

	allocations, err := s.fallbackAllocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute allocations: %w", err)
	}

	summary := &Summary{}
	for _, bucket := range ledger.AllBuckets {
		bucketSummary, err := s.rebalanceBucket(ctx, bucket, allocations[bucket].Total)
		if err != nil {
			return summary, err
		}
		summary.Buckets = append(summary.Buckets, *bucketSummary)
	}

	ok, msg := s.ledger.VerifyIntegrity(s.lastKnownAccount)
	if !ok {
		return summary, fmt.Errorf("%w: %s", ErrReconciliationFailed, msg)
	}

	if err := s.ledger.Snapshot(s.clk.Now()); err != nil {
		return summary, fmt.Errorf("snapshot: %w", err)
	}

	return summary, nil
}

// fallbackAllocations returns the ledger's own allocations; if the
// ledger reports no capital anywhere (no registry / no active
// investors), falls back to splitting broker equity by default weights
// per §4.9 step 2.
func (s *Strategy) fallbackAllocations(ctx context.Context) (map[ledger.Bucket]ledger.BucketAllocation, error) {
	allocs, err := s.ledger.Allocations()
	if err != nil {
		return nil, err
	}

	var total float64
	for _, a := range allocs {
		total += a.Total
	}
	if total > 0 {
		return allocs, nil
	}

	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account for fallback allocation: %w", err)
	}
	s.lastKnownAccount = account

	fallback := make(map[ledger.Bucket]ledger.BucketAllocation, len(ledger.AllBuckets))
	for _, b := range ledger.AllBuckets {
		fallback[b] = ledger.BucketAllocation{Total: account.Equity * ledger.DefaultAllocation[b]}
	}
	return fallback, nil
}

func (s *Strategy) rebalanceBucket(ctx context.Context, bucket ledger.Bucket, capital float64) (*BucketSummary, error) {
	out := &BucketSummary{Bucket: bucket}
	if capital <= 0 {
		out.Skip = "no capital allocated to bucket"
		s.log.Warn().Str("bucket", string(bucket)).Msg(out.Skip)
		return out, nil
	}

	universe := s.cfg.Universes[bucket]
	history, err := s.loader.Load(ctx, universe)
	if err != nil {
		return out, fmt.Errorf("%s: load market data: %w", bucket, err)
	}

	basket := momentum.Select(history, universe, s.cfg.TopN)
	filtered := tradability.Filter(ctx, s.broker, basket, s.log)
	out.Basket = filtered.Tradable

	// Informational only: the ledger's own view of current bucket
	// holdings. Actual close/open decisions use broker fact (step e),
	// not this set, to avoid ledger drift desynchronizing execution.
	if _, err := s.ledger.BucketTickers(bucket); err != nil {
		s.log.Warn().Err(err).Str("bucket", string(bucket)).Msg("failed to read ledger-reported bucket tickers")
	}

	positions, err := s.broker.GetAllPositions(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: get positions: %w", bucket, err)
	}
	s.lastKnownAccount, err = s.broker.GetAccount(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: get account: %w", bucket, err)
	}

	current := make(map[string]bool, len(positions))
	qtyBySymbol := make(map[string]float64, len(positions))
	for _, p := range positions {
		current[p.Symbol] = true
		qtyBySymbol[p.Symbol] = p.Qty
	}
	basketSet := make(map[string]bool, len(filtered.Tradable))
	for _, t := range filtered.Tradable {
		basketSet[t] = true
	}

	var toClose, toOpen []string
	for symbol := range current {
		if !basketSet[symbol] {
			toClose = append(toClose, symbol)
		}
	}
	for _, t := range filtered.Tradable {
		if !current[t] {
			toOpen = append(toOpen, t)
		}
	}

	if len(toClose) > 0 {
		closeResults := s.executor.Close(ctx, toClose)
		for _, r := range closeResults {
			out.Closed = append(out.Closed, r.Ticker)
			if r.Err != nil {
				s.log.Warn().Err(r.Err).Str("ticker", r.Ticker).Msg("close failed")
				continue
			}
			quote, err := s.broker.GetLastTrade(ctx, r.Ticker)
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", r.Ticker).Msg("failed to read last trade price for distribution")
				continue
			}
			if err := s.ledger.Distribute(bucket, ledger.SideSell, r.Ticker, qtyBySymbol[r.Ticker], quote.Price); err != nil {
				s.log.Warn().Err(err).Str("ticker", r.Ticker).Msg("distribution failed")
			}
		}
		if err := s.executor.SettleAfterClose(ctx); err != nil {
			return out, fmt.Errorf("%s: settlement wait interrupted: %w", bucket, err)
		}
	}

	if len(toOpen) > 0 {
		perPosition := capital / float64(len(toOpen))
		if perPosition < 1 {
			s.log.Warn().Float64("per_position", perPosition).Str("bucket", string(bucket)).Msg("insufficient capital per position, refusing to open positions")
			return out, nil
		}

		priceHints := make(map[string]float64, len(toOpen))
		for _, ticker := range toOpen {
			quote, err := s.broker.GetLastTrade(ctx, ticker)
			if err == nil {
				priceHints[ticker] = quote.Price
			}
		}

		openResults := s.executor.Open(ctx, toOpen, perPosition, priceHints, filtered.Fractionable)
		for _, r := range openResults {
			if r.Skipped {
				continue
			}
			out.Opened = append(out.Opened, r.Ticker)
			if r.Err != nil {
				s.log.Warn().Err(r.Err).Str("ticker", r.Ticker).Msg("open failed")
				continue
			}
			if err := s.ledger.Distribute(bucket, ledger.SideBuy, r.Ticker, r.FilledShares, r.FilledPrice); err != nil {
				s.log.Warn().Err(err).Str("ticker", r.Ticker).Msg("distribution failed")
			}
		}
	}

	return out, nil
}
