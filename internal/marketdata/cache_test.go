package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad_CacheRoundTripWithinTTL(t *testing.T) {
	dir := t.TempDir()
	history := BarHistory{Series: map[string][]PricePoint{
		"AAPL": points(100, 110, 120),
	}}
	provider := &sequenceProvider{responses: []BarHistory{history}}

	loader := NewLoader(LoaderConfig{
		CacheDir:    dir,
		ValidityTTL: time.Hour,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		EnableRetry: false,
		Period:      "1y",
	}, provider, zerolog.Nop())

	first, err := loader.Load(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, history.Series, first.Series)
	require.Len(t, provider.calls, 1)

	second, err := loader.Load(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, first.Series, second.Series)
	// Still only one download call: the second Load was served from cache.
	require.Len(t, provider.calls, 1)
}

func TestLoad_ExpiredCacheTriggersRedownload(t *testing.T) {
	dir := t.TempDir()
	history := BarHistory{Series: map[string][]PricePoint{"AAPL": points(100)}}
	provider := &sequenceProvider{responses: []BarHistory{history, history}}

	loader := NewLoader(LoaderConfig{
		CacheDir:    dir,
		ValidityTTL: 0, // always expired
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		EnableRetry: false,
	}, provider, zerolog.Nop())

	_, err := loader.Load(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, provider.calls, 2)
}
