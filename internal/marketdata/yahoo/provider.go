// Package yahoo adapts the Yahoo Finance chart endpoint to
// marketdata.Provider, including conversion of exchange-suffixed
// tickers to Yahoo symbols.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/pkg/httpjson"
)

// Provider downloads daily adjusted closes per ticker from the Yahoo
// Finance chart API.
type Provider struct {
	http *httpjson.Client
}

// New builds a Provider with the given request timeout.
func New(log zerolog.Logger, timeout time.Duration) *Provider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Provider{http: httpjson.New("https://query1.finance.yahoo.com", timeout, log, "yahoo-marketdata")}
}

// ToProviderSymbol converts an internal ticker (possibly carrying a
// ".US"/".JP"-style exchange suffix) to the symbol Yahoo expects.
func ToProviderSymbol(symbol string) string {
	if strings.HasSuffix(symbol, ".US") {
		return strings.TrimSuffix(symbol, ".US")
	}
	if strings.HasSuffix(symbol, ".JP") {
		return strings.TrimSuffix(symbol, ".JP") + ".T"
	}
	return symbol
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// Download fetches daily adjusted closes for each ticker individually
// (the chart endpoint is single-symbol) and assembles a BarHistory.
// Tickers that error out or return no data are simply absent from the
// result, matching the "missing column" contract C3 relies on.
func (p *Provider) Download(ctx context.Context, tickers []string, period string) (marketdata.BarHistory, error) {
	history := marketdata.BarHistory{Series: make(map[string][]marketdata.PricePoint)}

	for _, ticker := range tickers {
		points, err := p.downloadOne(ctx, ticker, period)
		if err != nil {
			continue
		}
		if len(points) > 0 {
			history.Series[ticker] = points
		}
	}

	return history, nil
}

func (p *Provider) downloadOne(ctx context.Context, ticker, period string) ([]marketdata.PricePoint, error) {
	symbol := ToProviderSymbol(ticker)
	path := fmt.Sprintf("/v8/finance/chart/%s?range=%s&interval=1d", symbol, period)

	var resp chartResponse
	if err := p.http.DoJSON(ctx, "GET", path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("download chart for %s: %w", ticker, err)
	}

	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Adjclose) == 0 {
		return nil, fmt.Errorf("no chart data for %s", ticker)
	}

	result := resp.Chart.Result[0]
	closes := result.Indicators.Adjclose[0].Adjclose

	points := make([]marketdata.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, marketdata.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}

	return points, nil
}

var _ marketdata.Provider = (*Provider)(nil)
