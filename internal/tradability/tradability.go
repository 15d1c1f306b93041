// Package tradability implements the asset-tradability filter (C5):
// query the broker's asset metadata per ticker and keep only those
// that are active and tradable, recording fractionability for sizing.
package tradability

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/broker"
)

const maxConcurrentLookups = 8

// Result is the outcome of filtering one basket of tickers.
type Result struct {
	Tradable     []string
	Fractionable map[string]bool
}

// Filter queries broker.GetAsset for each ticker concurrently (bounded)
// and keeps those with status "active" and tradable true, regardless of
// fractionability. A per-ticker lookup failure is logged and the ticker
// is retained pessimistically, with fractionable recorded as unknown
// (false), matching §4.5.
func Filter(ctx context.Context, client broker.Client, tickers []string, log zerolog.Logger) Result {
	log = log.With().Str("component", "tradability").Logger()

	type lookup struct {
		ticker       string
		keep         bool
		fractionable bool
	}

	results := make([]lookup, len(tickers))
	sem := make(chan struct{}, maxConcurrentLookups)
	var wg sync.WaitGroup

	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			asset, err := client.GetAsset(ctx, ticker)
			if err != nil {
				log.Warn().Err(err).Str("ticker", ticker).Msg("asset lookup failed, retaining pessimistically")
				results[i] = lookup{ticker: ticker, keep: true, fractionable: false}
				return
			}

			keep := asset.Status == "active" && asset.Tradable
			results[i] = lookup{ticker: ticker, keep: keep, fractionable: asset.Fractionable}
		}(i, ticker)
	}
	wg.Wait()

	out := Result{Fractionable: make(map[string]bool)}
	for _, r := range results {
		if !r.keep {
			continue
		}
		out.Tradable = append(out.Tradable, r.ticker)
		out.Fractionable[r.ticker] = r.fractionable
	}
	return out
}
