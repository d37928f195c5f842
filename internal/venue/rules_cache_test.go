package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/market"
)

type countingRulesGateway struct {
	Gateway

	rules map[string]InstrumentRules
	err   error
	calls int
}

func (g *countingRulesGateway) InstrumentRules(ctx context.Context, instrument string) (InstrumentRules, error) {
	g.calls++
	if g.err != nil {
		return InstrumentRules{}, g.err
	}
	return g.rules[instrument], nil
}

func (g *countingRulesGateway) RecentCandles(ctx context.Context, instrument, timeframe string, limit int) ([]market.Candle, error) {
	return nil, nil
}

func TestRulesCacheFetchesOnce(t *testing.T) {
	gw := &countingRulesGateway{rules: map[string]InstrumentRules{
		"DOGEUSDT": {
			Instrument:        "DOGEUSDT",
			PricePrecision:    5,
			QuantityPrecision: 0,
			MinNotional:       decimal.NewFromInt(5),
		},
	}}
	cache := NewRulesCache(gw)

	for i := 0; i < 3; i++ {
		rules, err := cache.Get(context.Background(), "DOGEUSDT")
		require.NoError(t, err)
		assert.Equal(t, int32(5), rules.PricePrecision)
	}
	assert.Equal(t, 1, gw.calls)
}

func TestRulesCacheNormalizesKey(t *testing.T) {
	gw := &countingRulesGateway{rules: map[string]InstrumentRules{
		"DOGEUSDT": {Instrument: "DOGEUSDT"},
	}}
	cache := NewRulesCache(gw)

	_, err := cache.Get(context.Background(), " dogeusdt ")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls)
}

func TestRulesCacheDoesNotCacheErrors(t *testing.T) {
	gw := &countingRulesGateway{err: errors.New("exchange info unavailable")}
	cache := NewRulesCache(gw)

	_, err := cache.Get(context.Background(), "DOGEUSDT")
	require.Error(t, err)
	_, err = cache.Get(context.Background(), "DOGEUSDT")
	require.Error(t, err)
	assert.Equal(t, 2, gw.calls)

	// Once the venue recovers the next call succeeds and memoizes.
	gw.err = nil
	gw.rules = map[string]InstrumentRules{"DOGEUSDT": {Instrument: "DOGEUSDT"}}
	_, err = cache.Get(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3, gw.calls)
}
