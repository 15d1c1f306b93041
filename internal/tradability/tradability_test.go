package tradability

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/momentum-rebalancer/internal/broker"
)

type fakeClient struct {
	assets map[string]broker.Asset
	errs   map[string]error
}

func (f *fakeClient) GetClock(ctx context.Context) (broker.Clock, error) { return broker.Clock{}, nil }
func (f *fakeClient) GetAccount(ctx context.Context) (broker.Account, error) {
	return broker.Account{}, nil
}
func (f *fakeClient) GetAllPositions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakeClient) GetAsset(ctx context.Context, symbol string) (broker.Asset, error) {
	if err, ok := f.errs[symbol]; ok {
		return broker.Asset{}, err
	}
	return f.assets[symbol], nil
}
func (f *fakeClient) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{}, nil
}
func (f *fakeClient) GetOrderByID(ctx context.Context, id string) (broker.OrderStatus, error) {
	return broker.OrderStatus{}, nil
}
func (f *fakeClient) ClosePosition(ctx context.Context, symbol string) error { return nil }
func (f *fakeClient) GetLastTrade(ctx context.Context, symbol string) (broker.Quote, error) {
	return broker.Quote{}, nil
}

var _ broker.Client = (*fakeClient)(nil)

func TestFilter_KeepsActiveTradableAndDropsOthers(t *testing.T) {
	client := &fakeClient{assets: map[string]broker.Asset{
		"AAPL": {Symbol: "AAPL", Status: "active", Tradable: true, Fractionable: true},
		"OLD1": {Symbol: "OLD1", Status: "inactive", Tradable: false},
		"MSFT": {Symbol: "MSFT", Status: "active", Tradable: true, Fractionable: false},
	}}

	result := Filter(context.Background(), client, []string{"AAPL", "OLD1", "MSFT"}, zerolog.Nop())

	require.ElementsMatch(t, []string{"AAPL", "MSFT"}, result.Tradable)
	require.True(t, result.Fractionable["AAPL"])
	require.False(t, result.Fractionable["MSFT"])
}

func TestFilter_RetainsPessimisticallyOnLookupError(t *testing.T) {
	client := &fakeClient{
		assets: map[string]broker.Asset{},
		errs:   map[string]error{"FLAKY": fmt.Errorf("timeout")},
	}

	result := Filter(context.Background(), client, []string{"FLAKY"}, zerolog.Nop())

	require.Equal(t, []string{"FLAKY"}, result.Tradable)
	require.False(t, result.Fractionable["FLAKY"])
}
