package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// sequenceProvider returns one canned BarHistory per call, in order,
// regardless of the requested ticker list, so tests can script
// residual-retry attempts precisely.
type sequenceProvider struct {
	responses []BarHistory
	calls     [][]string
	errs      []error
}

func (p *sequenceProvider) Download(ctx context.Context, tickers []string, period string) (BarHistory, error) {
	i := len(p.calls)
	p.calls = append(p.calls, append([]string(nil), tickers...))
	if i < len(p.errs) && p.errs[i] != nil {
		return BarHistory{}, p.errs[i]
	}
	return p.responses[i], nil
}

func points(closes ...float64) []PricePoint {
	out := make([]PricePoint, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestDownloadWithResidualRetry_SeedScenario5(t *testing.T) {
	// Universe of 500 tickers; attempt 1 returns 480; attempt 2 (missing
	// 20) returns 18 more; attempt 3 (max, residual 2) returns 0 more.
	universe := make([]string, 500)
	for i := range universe {
		universe[i] = tickerName(i)
	}

	attempt1 := BarHistory{Series: make(map[string][]PricePoint)}
	for i := 0; i < 480; i++ {
		attempt1.Series[universe[i]] = points(100, 110)
	}

	attempt2 := BarHistory{Series: make(map[string][]PricePoint)}
	for i := 480; i < 498; i++ {
		attempt2.Series[universe[i]] = points(100, 110)
	}

	attempt3 := BarHistory{Series: make(map[string][]PricePoint)}

	provider := &sequenceProvider{responses: []BarHistory{attempt1, attempt2, attempt3}}
	loader := NewLoader(LoaderConfig{
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		EnableRetry: true,
		Period:      "1y",
	}, provider, zerolog.Nop())

	history, err := loader.downloadWithResidualRetry(context.Background(), universe)
	require.NoError(t, err)
	require.Len(t, history.Series, 498)
	require.Len(t, provider.calls, 3)
	require.Len(t, provider.calls[1], 20)
	require.Len(t, provider.calls[2], 2)
}

func TestDownloadWithResidualRetry_FailsOnlyWhenNothingRetrieved(t *testing.T) {
	provider := &sequenceProvider{responses: []BarHistory{{Series: map[string][]PricePoint{}}}}
	loader := NewLoader(LoaderConfig{MaxRetries: 1, RetryDelay: time.Millisecond, EnableRetry: false}, provider, zerolog.Nop())

	_, err := loader.downloadWithResidualRetry(context.Background(), []string{"AAPL"})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func tickerName(i int) string {
	return "T" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
