// Package alpaca implements broker.Client against an Alpaca-shaped
// trading API (market order by notional or qty, day time-in-force,
// get_clock/get_account/get_all_positions/get_asset/get_order_by_id),
// mirroring the request/response shape the original strategy code
// submitted (MarketOrderRequest with notional or qty, side, type=market,
// time_in_force=day).
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
	"github.com/aristath/momentum-rebalancer/pkg/httpjson"
)

// Client adapts one Alpaca-shaped account (paper or live) to broker.Client.
type Client struct {
	http *httpjson.Client
}

// Config describes one brokerage sub-account's credentials and endpoint.
type Config struct {
	BaseURL   string
	APIKeyID  string
	APISecret string
	Timeout   time.Duration
}

// New builds a Client for one brokerage sub-account.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: httpjson.New(cfg.BaseURL, timeout, log, "alpaca")}
}

func (c *Client) authHeaders(cfg Config) map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     cfg.APIKeyID,
		"APCA-API-SECRET-KEY": cfg.APISecret,
	}
}

type clockResponse struct {
	IsOpen bool `json:"is_open"`
}

func (c *Client) GetClock(ctx context.Context) (broker.Clock, error) {
	var resp clockResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/clock", nil, nil, &resp); err != nil {
		return broker.Clock{}, fmt.Errorf("get clock: %w", err)
	}
	return broker.Clock{IsOpen: resp.IsOpen}, nil
}

type accountResponse struct {
	Cash           string `json:"cash"`
	Equity         string `json:"equity"`
	PortfolioValue string `json:"portfolio_value"`
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var resp accountResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/account", nil, nil, &resp); err != nil {
		return broker.Account{}, fmt.Errorf("get account: %w", err)
	}
	cash, _ := parseFloat(resp.Cash)
	equity, _ := parseFloat(resp.Equity)
	pv, _ := parseFloat(resp.PortfolioValue)
	return broker.Account{Cash: cash, Equity: equity, PortfolioValue: pv}, nil
}

type positionResponse struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

func (c *Client) GetAllPositions(ctx context.Context) ([]broker.Position, error) {
	var resp []positionResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/positions", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get all positions: %w", err)
	}

	positions := make([]broker.Position, 0, len(resp))
	for _, p := range resp {
		qty, _ := parseFloat(p.Qty)
		mv, _ := parseFloat(p.MarketValue)
		upl, _ := parseFloat(p.UnrealizedPL)
		positions = append(positions, broker.Position{
			Symbol:       p.Symbol,
			Qty:          qty,
			MarketValue:  mv,
			UnrealizedPL: upl,
		})
	}
	return positions, nil
}

type assetResponse struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Tradable     bool   `json:"tradable"`
	Fractionable bool   `json:"fractionable"`
}

func (c *Client) GetAsset(ctx context.Context, symbol string) (broker.Asset, error) {
	var resp assetResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/assets/"+symbol, nil, nil, &resp); err != nil {
		return broker.Asset{}, fmt.Errorf("get asset %s: %w", symbol, err)
	}
	return broker.Asset{
		Symbol:       resp.Symbol,
		Status:       resp.Status,
		Tradable:     resp.Tradable,
		Fractionable: resp.Fractionable,
	}, nil
}

type orderRequestBody struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	TimeInForce string  `json:"time_in_force"`
	Qty         *string `json:"qty,omitempty"`
	Notional    *string `json:"notional,omitempty"`
}

type orderResponse struct {
	ID             string  `json:"id"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	FilledQty      *string `json:"filled_qty"`
}

func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	body := orderRequestBody{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Type:        string(req.Type),
		TimeInForce: string(req.TimeInForce),
	}
	if req.Notional > 0 {
		v := fmt.Sprintf("%.2f", req.Notional)
		body.Notional = &v
	} else {
		v := fmt.Sprintf("%g", req.Qty)
		body.Qty = &v
	}

	var resp orderResponse
	if err := c.http.DoJSON(ctx, "POST", "/v2/orders", nil, body, &resp); err != nil {
		return broker.OrderAck{}, fmt.Errorf("submit order %s: %w", req.Symbol, err)
	}
	return broker.OrderAck{ID: resp.ID}, nil
}

func (c *Client) GetOrderByID(ctx context.Context, id string) (broker.OrderStatus, error) {
	var resp orderResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/orders/"+id, nil, nil, &resp); err != nil {
		return broker.OrderStatus{}, fmt.Errorf("get order %s: %w", id, err)
	}

	status := broker.OrderStatus{ID: resp.ID}
	if resp.FilledAvgPrice != nil {
		if v, err := parseFloat(*resp.FilledAvgPrice); err == nil {
			status.FilledAvgPrice = &v
		}
	}
	if resp.FilledQty != nil {
		if v, err := parseFloat(*resp.FilledQty); err == nil {
			status.FilledQty = &v
		}
	}
	return status, nil
}

func (c *Client) ClosePosition(ctx context.Context, symbol string) error {
	if err := c.http.DoJSON(ctx, "DELETE", "/v2/positions/"+symbol, nil, nil, nil); err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	return nil
}

type lastTradeResponse struct {
	Trade struct {
		Price float64 `json:"p"`
	} `json:"trade"`
}

func (c *Client) GetLastTrade(ctx context.Context, symbol string) (broker.Quote, error) {
	var resp lastTradeResponse
	if err := c.http.DoJSON(ctx, "GET", "/v2/stocks/"+symbol+"/trades/latest", nil, nil, &resp); err != nil {
		return broker.Quote{}, fmt.Errorf("get last trade %s: %w", symbol, err)
	}
	return broker.Quote{Symbol: symbol, Price: resp.Trade.Price, AsOf: time.Now()}, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

var _ broker.Client = (*Client)(nil)
