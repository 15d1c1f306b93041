// Package broker defines the brokerage API contract the rebalancer
// consumes (spec §6) as a Go interface, independent of any concrete
// brokerage vendor.
package broker

import (
	"context"
	"time"
)

// Clock reports whether the broker considers the market open right now.
type Clock struct {
	IsOpen bool
}

// Account holds the cash/equity figures used for sizing and reconciliation.
type Account struct {
	Cash           float64
	Equity         float64
	PortfolioValue float64
}

// Position is one open holding as reported by the broker.
type Position struct {
	Symbol       string
	Qty          float64
	MarketValue  float64
	UnrealizedPL float64
}

// Asset carries the tradability metadata the filter (C5) consults.
type Asset struct {
	Symbol       string
	Status       string
	Tradable     bool
	Fractionable bool
}

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is always market for this system; kept as a field for
// forward-compatible broker implementations.
type OrderType string

const OrderTypeMarket OrderType = "market"

// TimeInForce is always day for this system.
type TimeInForce string

const TimeInForceDay TimeInForce = "day"

// OrderRequest describes a market buy sized by either notional cash
// amount (fractionable tickers) or integer quantity (non-fractionable).
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
	Qty         float64 // set for integer-share orders; zero means use Notional
	Notional    float64 // set for notional orders; zero means use Qty
}

// OrderAck is the broker's immediate acknowledgement of a submitted order.
type OrderAck struct {
	ID string
}

// OrderStatus is the result of polling an order by id. FilledAvgPrice and
// FilledQty are nil until the order has (partially) filled.
type OrderStatus struct {
	ID              string
	FilledAvgPrice  *float64
	FilledQty       *float64
}

// Quote is a best-effort last-trade price lookup used when an order's
// fill price cannot be determined in time.
type Quote struct {
	Symbol string
	Price  float64
	AsOf   time.Time
}

// Client is the brokerage API surface consumed by this system. A
// concrete implementation wraps one brokerage account's credentials;
// distinct strategy instances hold distinct Client values to reach
// distinct sub-accounts.
type Client interface {
	GetClock(ctx context.Context) (Clock, error)
	GetAccount(ctx context.Context) (Account, error)
	GetAllPositions(ctx context.Context) ([]Position, error)
	GetAsset(ctx context.Context, symbol string) (Asset, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	GetOrderByID(ctx context.Context, id string) (OrderStatus, error)
	ClosePosition(ctx context.Context, symbol string) error
	GetLastTrade(ctx context.Context, symbol string) (Quote, error)
}
