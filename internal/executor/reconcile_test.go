package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/venue"
)

func TestReconcileNoPosition(t *testing.T) {
	gw := newStubGateway()
	r := NewReconciler(gw)

	res, err := r.Reconcile(context.Background(), DirectionLong, "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, res.Proceed)
	assert.False(t, res.ClosedExisting)
	assert.Empty(t, gw.submitted)
}

func TestReconcileSameSideIsNoOp(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{Instrument: "DOGEUSDT", Side: venue.PositionLong, Quantity: 25, EntryPrice: 0.2}
	r := NewReconciler(gw)

	// Duplicate-direction delivery must stay a no-op however often the
	// queue redelivers it.
	for i := 0; i < 3; i++ {
		res, err := r.Reconcile(context.Background(), DirectionLong, "DOGEUSDT")
		require.NoError(t, err)
		assert.False(t, res.Proceed)
	}
	assert.Empty(t, gw.submitted)
}

func TestReconcileOppositeSideClosesFirst(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{Instrument: "DOGEUSDT", Side: venue.PositionShort, Quantity: 25, EntryPrice: 0.2}
	r := NewReconciler(gw)

	res, err := r.Reconcile(context.Background(), DirectionLong, "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, res.Proceed)
	assert.True(t, res.ClosedExisting)

	require.Len(t, gw.submitted, 1)
	close := gw.submitted[0]
	assert.Equal(t, venue.SideBuy, close.Side)
	assert.Equal(t, venue.OrderMarket, close.Kind)
	assert.True(t, close.ReduceOnly)
	assert.Equal(t, "25", close.Quantity.String())
}

func TestReconcileCloseFailurePropagates(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{Instrument: "DOGEUSDT", Side: venue.PositionShort, Quantity: 25}
	gw.submitErr = func(venue.OrderInstruction) error { return errors.New("rejected") }
	r := NewReconciler(gw)

	res, err := r.Reconcile(context.Background(), DirectionLong, "DOGEUSDT")
	require.Error(t, err)
	assert.Equal(t, KindVenueFatal, KindOf(err))
	assert.False(t, res.Proceed)
}

func TestReconcileFlattenDirectionRejected(t *testing.T) {
	r := NewReconciler(newStubGateway())
	_, err := r.Reconcile(context.Background(), DirectionFlatten, "DOGEUSDT")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFlattenClosesPositionAndOrders(t *testing.T) {
	gw := newStubGateway()
	gw.position = &venue.Position{Instrument: "DOGEUSDT", Side: venue.PositionLong, Quantity: 40}
	r := NewReconciler(gw)

	had, err := r.Flatten(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, had)
	assert.Equal(t, 1, gw.cancelCalls)
	require.Len(t, gw.submitted, 1)
	assert.Equal(t, venue.SideSell, gw.submitted[0].Side)
	assert.True(t, gw.submitted[0].ReduceOnly)
}

func TestFlattenWithoutPosition(t *testing.T) {
	gw := newStubGateway()
	r := NewReconciler(gw)

	had, err := r.Flatten(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.False(t, had)
	assert.Equal(t, 1, gw.cancelCalls)
	assert.Empty(t, gw.submitted)
}

func TestFlattenCancelFailureStillCloses(t *testing.T) {
	gw := newStubGateway()
	gw.cancelErr = errors.New("rate limited")
	gw.position = &venue.Position{Instrument: "DOGEUSDT", Side: venue.PositionShort, Quantity: 15}
	r := NewReconciler(gw)

	had, err := r.Flatten(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, had)
	require.Len(t, gw.submitted, 1)
}
