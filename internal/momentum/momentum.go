// Package momentum implements the ranking core (C4): given a universe
// and bar history, produce the top-N symbols by trailing total return.
package momentum

import (
	"sort"

	"github.com/aristath/momentum-rebalancer/internal/marketdata"
)

type candidate struct {
	ticker string
	ret    float64
}

// Select ranks tickers present in both universe and history by
// last_close/first_close - 1 over the full retained window, descending,
// ties broken by ticker name ascending, and returns the top n (or fewer
// if fewer are eligible). Tickers missing a first or last close are
// dropped before ranking.
func Select(history marketdata.BarHistory, universe []string, n int) []string {
	candidates := make([]candidate, 0, len(universe))

	for _, ticker := range universe {
		first, last, ok := history.FirstLastClose(ticker)
		if !ok || first == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			ticker: ticker,
			ret:    last/first - 1,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ret != candidates[j].ret {
			return candidates[i].ret > candidates[j].ret
		}
		return candidates[i].ticker < candidates[j].ticker
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].ticker
	}
	return out
}
