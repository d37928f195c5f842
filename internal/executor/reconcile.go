package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"riptide/internal/logger"
	"riptide/internal/venue"
)

// ReconcileResult says whether a signal may proceed to open a position, and
// whether an opposing position was closed to make room.
type ReconcileResult struct {
	Proceed        bool
	ClosedExisting bool
}

// Reconciler decides what an incoming signal means given the venue's
// current, authoritative position state. Duplicate same-direction signals
// become no-ops, which makes signal handling safe under at-least-once
// delivery.
type Reconciler struct {
	gateway venue.Gateway
}

func NewReconciler(gateway venue.Gateway) *Reconciler {
	return &Reconciler{gateway: gateway}
}

// Reconcile inspects the remote position for the signal's instrument. With
// no position it proceeds; with a matching position it declines; with an
// opposing position it closes it reduce-only and then proceeds.
func (r *Reconciler) Reconcile(ctx context.Context, direction Direction, instrument string) (ReconcileResult, error) {
	want, ok := direction.PositionSide()
	if !ok {
		return ReconcileResult{}, newError(KindValidation, "direction %s does not open a position", direction)
	}
	pos, err := r.gateway.Position(ctx, instrument)
	if err != nil {
		return ReconcileResult{}, wrapError(KindVenueFatal, err, "reading position for %s", instrument)
	}
	if pos == nil {
		logger.Infof("reconcile: no existing position for %s, proceeding", instrument)
		return ReconcileResult{Proceed: true}, nil
	}
	if pos.Side == want {
		logger.Infof("reconcile: ignoring %s signal, %s position already open on %s", direction, pos.Side, instrument)
		return ReconcileResult{}, nil
	}

	logger.Infof("reconcile: opposing %s position on %s, closing %.8f before new entry", pos.Side, instrument, pos.Quantity)
	_, err = r.gateway.SubmitOrder(ctx, venue.OrderInstruction{
		Instrument: instrument,
		Side:       pos.Side.CloseSide(),
		Kind:       venue.OrderMarket,
		Quantity:   decimal.NewFromFloat(pos.Quantity),
		ReduceOnly: true,
	})
	if err != nil {
		// Without a confirmed flat state a new entry must not go out.
		return ReconcileResult{}, wrapError(KindVenueFatal, err, "closing opposing %s position on %s", pos.Side, instrument)
	}
	return ReconcileResult{Proceed: true, ClosedExisting: true}, nil
}

// Flatten cancels all open orders for the instrument and closes any open
// position reduce-only. It reports whether a position was found. It never
// opens anything.
func (r *Reconciler) Flatten(ctx context.Context, instrument string) (bool, error) {
	if err := r.gateway.CancelAllOrders(ctx, instrument); err != nil {
		logger.Warnf("flatten: cancelling open orders for %s failed: %v", instrument, err)
	}
	pos, err := r.gateway.Position(ctx, instrument)
	if err != nil {
		return false, wrapError(KindVenueFatal, err, "reading position for %s", instrument)
	}
	if pos == nil {
		logger.Infof("flatten: no open position for %s", instrument)
		return false, nil
	}
	_, err = r.gateway.SubmitOrder(ctx, venue.OrderInstruction{
		Instrument: instrument,
		Side:       pos.Side.CloseSide(),
		Kind:       venue.OrderMarket,
		Quantity:   decimal.NewFromFloat(pos.Quantity),
		ReduceOnly: true,
	})
	if err != nil {
		return true, wrapError(KindVenueFatal, err, "closing %s position on %s", pos.Side, instrument)
	}
	logger.Infof("flatten: closed %s position of %.8f on %s", pos.Side, pos.Quantity, instrument)
	return true, nil
}
