// Package executor implements the order executor (C6): close-position
// and market-buy operations, with a best-effort fill poll for
// live-account executions.
package executor

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
)

// Config controls settlement delay and fill-poll cadence.
type Config struct {
	SettlementDelay  time.Duration
	FillPollAttempts int
	FillPollInterval time.Duration
}

// Executor issues close and open orders against one broker.Client.
type Executor struct {
	client broker.Client
	cfg    Config
	log    zerolog.Logger
}

// New builds an Executor for one broker client.
func New(client broker.Client, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{client: client, cfg: cfg, log: log.With().Str("component", "executor").Logger()}
}

// CloseResult is the outcome of liquidating one ticker.
type CloseResult struct {
	Ticker string
	Err    error
}

// Close liquidates each ticker's position entirely. Per-ticker failures
// are logged and collected; the batch never short-circuits.
func (e *Executor) Close(ctx context.Context, tickers []string) []CloseResult {
	results := make([]CloseResult, 0, len(tickers))
	for _, ticker := range tickers {
		err := e.client.ClosePosition(ctx, ticker)
		if err != nil {
			e.log.Error().Err(err).Str("ticker", ticker).Msg("close position failed")
		}
		results = append(results, CloseResult{Ticker: ticker, Err: err})
	}
	return results
}

// SettleAfterClose waits the configured settlement delay, honoring
// context cancellation.
func (e *Executor) SettleAfterClose(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.SettlementDelay):
		return nil
	}
}

// OpenResult is the outcome of one buy order, including the price and
// quantity actually used to attribute the trade downstream.
type OpenResult struct {
	Ticker       string
	Skipped      bool
	Err          error
	FilledPrice  float64
	FilledShares float64
}

// Open submits a market BUY per ticker, sized by notional for
// fractionable tickers and by floored integer quantity otherwise.
// Refuses (returns no results) if cashPerPosition < 1.
func (e *Executor) Open(ctx context.Context, tickers []string, cashPerPosition float64, priceHints map[string]float64, fractionable map[string]bool) []OpenResult {
	if cashPerPosition < 1 {
		e.log.Warn().Float64("cash_per_position", cashPerPosition).Msg("refusing to open positions, cash per position below $1")
		return nil
	}

	results := make([]OpenResult, 0, len(tickers))
	for _, ticker := range tickers {
		results = append(results, e.openOne(ctx, ticker, cashPerPosition, priceHints[ticker], fractionable[ticker]))
	}
	return results
}

func (e *Executor) openOne(ctx context.Context, ticker string, cashPerPosition, priceHint float64, isFractionable bool) OpenResult {
	req := broker.OrderRequest{
		Symbol:      ticker,
		Side:        broker.SideBuy,
		Type:        broker.OrderTypeMarket,
		TimeInForce: broker.TimeInForceDay,
	}

	if isFractionable {
		req.Notional = math.Round(cashPerPosition*100) / 100
	} else {
		if priceHint <= 0 {
			e.log.Warn().Str("ticker", ticker).Msg("no price hint for non-fractionable ticker, skipping")
			return OpenResult{Ticker: ticker, Skipped: true}
		}
		qty := math.Floor(cashPerPosition / priceHint)
		if qty < 1 {
			e.log.Warn().Str("ticker", ticker).Float64("qty", qty).Msg("computed quantity below 1, skipping")
			return OpenResult{Ticker: ticker, Skipped: true}
		}
		req.Qty = qty
	}

	ack, err := e.client.SubmitOrder(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Str("ticker", ticker).Msg("submit order failed")
		return OpenResult{Ticker: ticker, Err: err}
	}

	price, shares, filled := e.pollFill(ctx, ack.ID)
	if !filled {
		// Fallback: (price_hint, cash/price_hint) per §4.6.
		price = priceHint
		if price <= 0 {
			price = cashPerPosition
		}
		shares = cashPerPosition / price
	}

	return OpenResult{Ticker: ticker, FilledPrice: price, FilledShares: shares}
}

// pollFill polls the order by id up to FillPollAttempts times at
// FillPollInterval, returning the filled price/qty once both are set.
func (e *Executor) pollFill(ctx context.Context, orderID string) (price, shares float64, filled bool) {
	for attempt := 0; attempt < e.cfg.FillPollAttempts; attempt++ {
		status, err := e.client.GetOrderByID(ctx, orderID)
		if err == nil && status.FilledAvgPrice != nil && status.FilledQty != nil {
			return *status.FilledAvgPrice, *status.FilledQty, true
		}

		select {
		case <-ctx.Done():
			return 0, 0, false
		case <-time.After(e.cfg.FillPollInterval):
		}
	}
	return 0, 0, false
}
