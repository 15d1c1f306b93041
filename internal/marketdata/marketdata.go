// Package marketdata implements the bulk daily-bar cache and loader
// (C3): a single shared download of the full union universe, with
// per-attempt residual retry and a time-bounded on-disk snapshot.
package marketdata

import (
	"context"
	"fmt"
	"time"
)

// PricePoint is one ticker's adjusted close on one calendar date.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// BarHistory is a dense-by-ticker bar matrix. Absent cells are simply
// missing from a ticker's slice rather than represented as NaN — this
// sidesteps the original's MultiIndex column-orientation ambiguity
// entirely (documented in SPEC_FULL.md §9).
type BarHistory struct {
	Series map[string][]PricePoint
}

// Tickers returns the set of tickers present in the history, in no
// particular order.
func (b BarHistory) Tickers() []string {
	tickers := make([]string, 0, len(b.Series))
	for t := range b.Series {
		tickers = append(tickers, t)
	}
	return tickers
}

// FirstLastClose returns a ticker's first and last retained close, and
// whether both are present (non-absent).
func (b BarHistory) FirstLastClose(ticker string) (first, last float64, ok bool) {
	points := b.Series[ticker]
	if len(points) == 0 {
		return 0, 0, false
	}
	return points[0].Close, points[len(points)-1].Close, true
}

// ErrDataUnavailable is returned when zero tickers could be retrieved,
// or the result contains no usable close data at all.
var ErrDataUnavailable = fmt.Errorf("no usable market data retrieved")

// Provider downloads adjusted daily closes for a ticker set over a
// look-back period. Missing tickers are simply absent from the result.
type Provider interface {
	Download(ctx context.Context, tickers []string, period string) (BarHistory, error)
}

// merge concatenates src into dst, ticker by ticker (column-wise
// concatenation across retry attempts, per §4.3).
func merge(dst, src BarHistory) BarHistory {
	if dst.Series == nil {
		dst.Series = make(map[string][]PricePoint)
	}
	for ticker, points := range src.Series {
		dst.Series[ticker] = points
	}
	return dst
}

// missingTickers returns the subset of expected with no non-absent
// close values in history.
func missingTickers(expected []string, history BarHistory) []string {
	missing := make([]string, 0)
	for _, ticker := range expected {
		points, ok := history.Series[ticker]
		if !ok || len(points) == 0 {
			missing = append(missing, ticker)
		}
	}
	return missing
}
