package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"riptide/internal/logger"
	"riptide/internal/venue"
)

// Sweeper heals the half-states a crashed or partially failed run can leave
// behind: orders without a position, or a position without orders. Both
// operations re-read venue state on every call and are safe to invoke on an
// arbitrary, possibly duplicate, schedule.
type Sweeper struct {
	gateway venue.Gateway
}

func NewSweeper(gateway venue.Gateway) *Sweeper {
	return &Sweeper{gateway: gateway}
}

// CancelOrdersIfNoPosition cancels all open orders for the instrument, but
// only when no position exists. Returns whether a cancel was issued.
func (s *Sweeper) CancelOrdersIfNoPosition(ctx context.Context, instrument string) (bool, error) {
	pos, err := s.gateway.Position(ctx, instrument)
	if err != nil {
		return false, wrapError(KindVenueFatal, err, "reading position for %s", instrument)
	}
	if pos != nil {
		logger.Infof("sweep: open %s position on %s, orders left alone", pos.Side, instrument)
		return false, nil
	}
	if err := s.gateway.CancelAllOrders(ctx, instrument); err != nil {
		return false, wrapError(KindVenueFatal, err, "cancelling orders for %s", instrument)
	}
	logger.Infof("sweep: cancelled all open orders for %s, no position found", instrument)
	return true, nil
}

// ClosePositionIfNoOpenOrders closes the instrument's position reduce-only,
// but only when no open orders exist. Returns whether a close was issued.
func (s *Sweeper) ClosePositionIfNoOpenOrders(ctx context.Context, instrument string) (bool, error) {
	orders, err := s.gateway.OpenOrders(ctx, instrument)
	if err != nil {
		return false, wrapError(KindVenueFatal, err, "listing open orders for %s", instrument)
	}
	if len(orders) > 0 {
		logger.Infof("sweep: %d open order(s) on %s, position left alone", len(orders), instrument)
		return false, nil
	}
	pos, err := s.gateway.Position(ctx, instrument)
	if err != nil {
		return false, wrapError(KindVenueFatal, err, "reading position for %s", instrument)
	}
	if pos == nil {
		logger.Infof("sweep: nothing to close on %s", instrument)
		return false, nil
	}
	_, err = s.gateway.SubmitOrder(ctx, venue.OrderInstruction{
		Instrument: instrument,
		Side:       pos.Side.CloseSide(),
		Kind:       venue.OrderMarket,
		Quantity:   decimal.NewFromFloat(pos.Quantity),
		ReduceOnly: true,
	})
	if err != nil {
		return false, wrapError(KindVenueFatal, err, "closing unprotected %s position on %s", pos.Side, instrument)
	}
	logger.Infof("sweep: closed unprotected %s position of %.8f on %s", pos.Side, pos.Quantity, instrument)
	return true, nil
}
