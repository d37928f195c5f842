package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/venue"
)

func testAccountConfig() AccountConfig {
	return AccountConfig{
		Instrument:         "DOGEUSDT",
		Leverage:           5,
		WalletAllocation:   0.5,
		ChartTimeframe:     "1h",
		VolatilityLookback: 14,
	}
}

func testLadderConfig() LadderConfig {
	return LadderConfig{
		{Tier: TierTakeProfit, VolMultiple: 1, CloseFraction: fraction(50)},
		{Tier: TierTakeProfit, VolMultiple: 2},
		{Tier: TierTrailingStop, VolMultiple: 1.5},
	}
}

func newTestExecutor(gw *stubGateway, est VolatilityEstimator) *Executor {
	e := NewExecutor(gw, venue.NewRulesCache(gw), est)
	e.fillDelay = 0
	return e
}

func TestHandleSignalHappyPath(t *testing.T) {
	gw := newStubGateway()
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	require.Equal(t, StatusSuccess, out.Status, out.Message)
	assert.InDelta(t, 10, out.FilledPrice, 1e-9)

	// Entry plus three exit legs.
	require.Len(t, gw.submitted, 4)
	entry := gw.submitted[0]
	assert.Equal(t, venue.OrderMarket, entry.Kind)
	assert.Equal(t, venue.SideBuy, entry.Side)
	// (1000 * 0.5 * 5) / 10 = 250.
	assert.Equal(t, "250", entry.Quantity.String())

	assert.Equal(t, []int{5}, gw.leverageCalls)
	assert.Equal(t, 1, gw.cancelCalls)

	require.Len(t, out.Legs, 3)
	for _, leg := range out.Legs {
		assert.True(t, leg.Placed, leg.Kind)
	}
}

func TestHandleSignalDuplicateIsIgnored(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{
		Instrument: "DOGEUSDT",
		Side:       venue.PositionLong,
		Quantity:   25,
		EntryPrice: 9.5,
	}
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, gw.submitted)
	assert.Zero(t, gw.balanceCalls)
}

func TestHandleSignalOppositeFlipsPosition(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{
		Instrument: "DOGEUSDT",
		Side:       venue.PositionShort,
		Quantity:   25,
		EntryPrice: 9.5,
	}
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	require.Equal(t, StatusSuccess, out.Status, out.Message)
	assert.Contains(t, out.Message, "closed opposing position")

	// First submission closes the short, second opens the long.
	require.GreaterOrEqual(t, len(gw.submitted), 2)
	closing := gw.submitted[0]
	assert.Equal(t, venue.SideBuy, closing.Side)
	assert.True(t, closing.ReduceOnly)
	assert.Equal(t, venue.OrderMarket, gw.submitted[1].Kind)
	assert.False(t, gw.submitted[1].ReduceOnly)
}

func TestHandleSignalInvalidConfigIgnored(t *testing.T) {
	gw := newStubGateway()
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	cfg := testAccountConfig()
	cfg.WalletAllocation = 0

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		cfg, testLadderConfig())

	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, gw.submitted)
}

func TestHandleSignalInsufficientFundsFails(t *testing.T) {
	gw := newStubGateway()
	gw.balance = 0
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, gw.submitted)
}

func TestHandleSignalFillConfirmExhaustion(t *testing.T) {
	gw := newStubGateway()
	gw.order = venue.Order{Status: "NEW", AvgFillPrice: 0}
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "no fill price")
	assert.Equal(t, 5, gw.orderCalls)
	// The entry went out; no exit legs did.
	assert.Len(t, gw.submitted, 1)
}

func TestHandleSignalLegRejectionIsIsolated(t *testing.T) {
	gw := newStubGateway()
	rejected := errors.New("order would immediately trigger")
	gw.submitErr = func(ins venue.OrderInstruction) error {
		if ins.Kind == venue.OrderTrailingStopMarket {
			return rejected
		}
		return nil
	}
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	// The run still succeeds; the rejection is reported on its leg only.
	require.Equal(t, StatusSuccess, out.Status, out.Message)
	require.Len(t, out.Legs, 3)
	var placed, failedLegs int
	for _, leg := range out.Legs {
		if leg.Placed {
			placed++
		} else {
			failedLegs++
			assert.Contains(t, leg.Reason, "immediately trigger")
		}
	}
	assert.Equal(t, 2, placed)
	assert.Equal(t, 1, failedLegs)
}

func TestHandleSignalReferenceOverrides(t *testing.T) {
	gw := newStubGateway()
	gw.priceErr = errors.New("price lookup should not run")
	exec := newTestExecutor(gw, fixedVolatility{err: errors.New("estimator should not run")})

	out := exec.HandleSignal(context.Background(),
		Signal{
			Direction:           DirectionLong,
			Instrument:          "DOGEUSDT",
			ReferencePrice:      10,
			ReferenceVolatility: 0.2,
		},
		testAccountConfig(), testLadderConfig())

	require.Equal(t, StatusSuccess, out.Status, out.Message)
	assert.Equal(t, "250", gw.submitted[0].Quantity.String())
}

func TestHandleSignalEstimatorFailureFallsBack(t *testing.T) {
	gw := newStubGateway()
	exec := newTestExecutor(gw, fixedVolatility{err: errors.New("klines unavailable")})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong, Instrument: "DOGEUSDT"},
		testAccountConfig(), testLadderConfig())

	// Estimator failure degrades the ladder pricing, it never aborts the run.
	require.Equal(t, StatusSuccess, out.Status, out.Message)
	require.Len(t, gw.submitted, 4)
	// Fallback volatility is 1% of the 10.0 entry: first take-profit at 10.1.
	assert.Equal(t, "10.1", gw.submitted[1].StopPrice.String())
}

func TestHandleSignalFlatten(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{
		Instrument: "DOGEUSDT",
		Side:       venue.PositionLong,
		Quantity:   25,
		EntryPrice: 9.5,
	}
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionFlatten, Instrument: "DOGEUSDT"},
		AccountConfig{}, nil)

	require.Equal(t, StatusSuccess, out.Status, out.Message)
	assert.Contains(t, out.Message, "position closed")
	assert.Equal(t, 1, gw.cancelCalls)
	require.Len(t, gw.submitted, 1)
	assert.True(t, gw.submitted[0].ReduceOnly)
}

func TestHandleSignalMissingInstrumentIgnored(t *testing.T) {
	gw := newStubGateway()
	exec := newTestExecutor(gw, fixedVolatility{value: 0.2})

	out := exec.HandleSignal(context.Background(),
		Signal{Direction: DirectionLong}, testAccountConfig(), testLadderConfig())

	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, gw.submitted)
}
