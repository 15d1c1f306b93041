// Package strategy implements the single-account strategy (C7):
// selector -> diff vs. broker positions -> executor, for one
// brokerage sub-account.
package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/internal/executor"
	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/internal/momentum"
	"github.com/aristath/momentum-rebalancer/internal/tradability"
)

// ErrRebalanceFailed is the composite error escalated when a
// strategy-level (not merely per-order) failure occurs during rebalance.
var ErrRebalanceFailed = fmt.Errorf("rebalance failed")

// Loader abstracts C3's Load so a strategy can be tested without a real
// cache/provider pair.
type Loader interface {
	Load(ctx context.Context, tickers []string) (marketdata.BarHistory, error)
}

// Config identifies one strategy instance: its universe and basket size.
type Config struct {
	Name     string
	Universe []string
	TopN     int
}

// Strategy orchestrates one brokerage sub-account.
type Strategy struct {
	cfg      Config
	broker   broker.Client
	loader   Loader
	executor *executor.Executor
	log      zerolog.Logger
}

// New builds a Strategy for one sub-account.
func New(cfg Config, brokerClient broker.Client, loader Loader, exec *executor.Executor, log zerolog.Logger) *Strategy {
	return &Strategy{
		cfg:      cfg,
		broker:   brokerClient,
		loader:   loader,
		executor: exec,
		log:      log.With().Str("component", "strategy").Str("strategy", cfg.Name).Logger(),
	}
}

func (s *Strategy) Name() string { return s.cfg.Name }

// Summary reports what a rebalance did, for the notification port.
type Summary struct {
	Basket    []string
	Closed    []string
	Opened    []string
	OrderErrs []error
}

// Rebalance implements §4.7's five steps.
func (s *Strategy) Rebalance(ctx context.Context) (*Summary, error) {
	history, err := s.loader.Load(ctx, s.cfg.Universe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: load market data: %v", ErrRebalanceFailed, s.cfg.Name, err)
	}

	basket := momentum.Select(history, s.cfg.Universe, s.cfg.TopN)
	filtered := tradability.Filter(ctx, s.broker, basket, s.log)

	positions, err := s.broker.GetAllPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: get positions: %v", ErrRebalanceFailed, s.cfg.Name, err)
	}

	current := make(map[string]bool, len(positions))
	for _, p := range positions {
		current[p.Symbol] = true
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

	summary := &Summary{Basket: filtered.Tradable}

	if len(toClose) > 0 {
		closeResults := s.executor.Close(ctx, toClose)
		for _, r := range closeResults {
			summary.Closed = append(summary.Closed, r.Ticker)
			if r.Err != nil {
				summary.OrderErrs = append(summary.OrderErrs, r.Err)
			}
		}
		if err := s.executor.SettleAfterClose(ctx); err != nil {
			return summary, fmt.Errorf("%w: %s: settlement wait interrupted: %v", ErrRebalanceFailed, s.cfg.Name, err)
		}
	}

	if len(toOpen) > 0 {
		account, err := s.broker.GetAccount(ctx)
		if err != nil {
			return summary, fmt.Errorf("%w: %s: get account: %v", ErrRebalanceFailed, s.cfg.Name, err)
		}
		if account.Cash <= 0 {
			s.log.Warn().Float64("cash", account.Cash).Msg("insufficient funds, refusing to open positions")
			return summary, nil
		}
		perPosition := account.Cash / float64(len(toOpen))
		if perPosition < 1 {
			s.log.Warn().Float64("per_position", perPosition).Msg("insufficient funds per position, refusing to open positions")
			return summary, nil
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
			summary.Opened = append(summary.Opened, r.Ticker)
			if r.Err != nil {
				summary.OrderErrs = append(summary.OrderErrs, r.Err)
			}
		}
	}

	return summary, nil
}
