package momentum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/momentum-rebalancer/internal/marketdata"
)

func pts(closes ...float64) []marketdata.PricePoint {
	out := make([]marketdata.PricePoint, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = marketdata.PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestSelect_RanksDescendingByTotalReturn(t *testing.T) {
	history := marketdata.BarHistory{Series: map[string][]marketdata.PricePoint{
		"AAA": pts(100, 150), // +50%
		"BBB": pts(100, 120), // +20%
		"CCC": pts(100, 90),  // -10%
	}}

	result := Select(history, []string{"AAA", "BBB", "CCC"}, 2)
	require.Equal(t, []string{"AAA", "BBB"}, result)
}

func TestSelect_TiesBrokenByTickerNameAscending(t *testing.T) {
	history := marketdata.BarHistory{Series: map[string][]marketdata.PricePoint{
		"ZEBRA": pts(100, 110),
		"APPLE": pts(100, 110),
	}}

	result := Select(history, []string{"ZEBRA", "APPLE"}, 2)
	require.Equal(t, []string{"APPLE", "ZEBRA"}, result)
}

func TestSelect_DropsTickersMissingFirstOrLastClose(t *testing.T) {
	history := marketdata.BarHistory{Series: map[string][]marketdata.PricePoint{
		"AAA": pts(100, 110),
	}}

	// BBB isn't in history at all (absent column).
	result := Select(history, []string{"AAA", "BBB"}, 5)
	require.Equal(t, []string{"AAA"}, result)
}

func TestSelect_ReturnsFewerThanNWhenUniverseSmaller(t *testing.T) {
	history := marketdata.BarHistory{Series: map[string][]marketdata.PricePoint{
		"AAA": pts(100, 110),
	}}

	result := Select(history, []string{"AAA"}, 50)
	require.Equal(t, []string{"AAA"}, result)
}

func TestSelect_DeterministicAcrossRuns(t *testing.T) {
	history := marketdata.BarHistory{Series: map[string][]marketdata.PricePoint{
		"AAA": pts(100, 150),
		"BBB": pts(100, 120),
	}}
	universe := []string{"AAA", "BBB"}

	first := Select(history, universe, 2)
	second := Select(history, universe, 2)
	require.Equal(t, first, second)
}
