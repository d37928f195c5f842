package executor

import (
	"context"
	"time"

	"riptide/internal/logger"
	"riptide/internal/venue"
)

const (
	defaultQuoteAsset   = "USDT"
	fillConfirmAttempts = 5
	fillConfirmDelay    = 500 * time.Millisecond
)

// VolatilityEstimator yields a scalar volatility figure for an instrument.
// A (0, nil) return means no estimate is available and the caller should
// fall back.
type VolatilityEstimator interface {
	Estimate(ctx context.Context, instrument, timeframe string, lookback int) (float64, error)
}

// Executor sequences one signal into a managed position: reconcile, size,
// enter, confirm the fill, then attach the exit ladder. Each run is a single
// synchronous call chain; correctness under duplicate delivery comes from
// re-reading venue state at every decision point, not from in-process locks.
type Executor struct {
	gateway    venue.Gateway
	rules      *venue.RulesCache
	estimator  VolatilityEstimator
	reconciler *Reconciler

	quoteAsset   string
	fillAttempts int
	fillDelay    time.Duration
}

func NewExecutor(gateway venue.Gateway, rules *venue.RulesCache, estimator VolatilityEstimator) *Executor {
	return &Executor{
		gateway:      gateway,
		rules:        rules,
		estimator:    estimator,
		reconciler:   NewReconciler(gateway),
		quoteAsset:   defaultQuoteAsset,
		fillAttempts: fillConfirmAttempts,
		fillDelay:    fillConfirmDelay,
	}
}

// SetQuoteAsset overrides the balance asset used for sizing.
func (e *Executor) SetQuoteAsset(asset string) {
	if asset != "" {
		e.quoteAsset = asset
	}
}

// HandleSignal runs the full orchestration for one signal and always returns
// a structured outcome; remote errors never escape it.
func (e *Executor) HandleSignal(ctx context.Context, sig Signal, cfg AccountConfig, ladder LadderConfig) Outcome {
	if sig.Instrument == "" {
		return ignored("signal has no instrument")
	}
	if sig.Direction == DirectionFlatten {
		return e.flatten(ctx, sig.Instrument)
	}
	entrySide, ok := sig.Direction.EntrySide()
	if !ok {
		return ignored("signal direction %s is not tradeable", sig.Direction)
	}
	if err := cfg.Validate(); err != nil {
		return ignored("%v", err)
	}
	if err := ladder.Validate(); err != nil {
		return ignored("%v", err)
	}

	res, err := e.reconciler.Reconcile(ctx, sig.Direction, sig.Instrument)
	if err != nil {
		return failed(err)
	}
	if !res.Proceed {
		return ignored("%s signal ignored, matching position already open on %s", sig.Direction, sig.Instrument)
	}

	rules, err := e.rules.Get(ctx, sig.Instrument)
	if err != nil {
		return failed(wrapError(KindVenueFatal, err, "loading instrument rules for %s", sig.Instrument))
	}
	balance, err := e.gateway.Balance(ctx, e.quoteAsset)
	if err != nil {
		return failed(wrapError(KindVenueFatal, err, "reading %s balance", e.quoteAsset))
	}
	price := sig.ReferencePrice
	if price <= 0 {
		price, err = e.gateway.CurrentPrice(ctx, sig.Instrument)
		if err != nil {
			return failed(wrapError(KindVenueFatal, err, "reading price for %s", sig.Instrument))
		}
	}
	quantity, err := OrderQuantity(balance, cfg.WalletAllocation, cfg.Leverage, price, rules)
	if err != nil {
		return failed(err)
	}
	logger.Infof("sizing: balance %.2f %s, price %.8f -> quantity %s %s",
		balance, e.quoteAsset, price, quantity, sig.Instrument)

	// Stale exit orders from a previous position would fire against the
	// new one. Best effort: an empty book is not a failure.
	if err := e.gateway.CancelAllOrders(ctx, sig.Instrument); err != nil {
		logger.Warnf("cancel stale orders for %s failed, continuing: %v", sig.Instrument, err)
	}
	if err := e.gateway.SetLeverage(ctx, sig.Instrument, cfg.Leverage); err != nil {
		return failed(wrapError(KindVenueFatal, err, "setting leverage for %s", sig.Instrument))
	}

	orderID, err := e.gateway.SubmitOrder(ctx, venue.OrderInstruction{
		Instrument: sig.Instrument,
		Side:       entrySide,
		Kind:       venue.OrderMarket,
		Quantity:   quantity,
	})
	if err != nil {
		return failed(wrapError(KindVenueFatal, err, "submitting %s entry for %s", entrySide, sig.Instrument))
	}
	logger.Infof("entry: %s market order %d submitted for %s %s", entrySide, orderID, quantity, sig.Instrument)

	entryPrice, err := e.confirmFill(ctx, sig.Instrument, orderID)
	if err != nil {
		// Without a confirmed entry price no exit can be priced.
		return failed(err)
	}
	logger.Infof("entry: order %d filled at average price %.8f", orderID, entryPrice)

	volatility := sig.ReferenceVolatility
	if volatility <= 0 {
		volatility, err = e.estimator.Estimate(ctx, sig.Instrument, cfg.ChartTimeframe, cfg.VolatilityLookback)
		if err != nil {
			logger.Warnf("volatility estimate for %s failed, ladder will use fallback: %v", sig.Instrument, err)
			volatility = 0
		}
	}

	instructions, legs := BuildLadder(LadderInput{
		Instrument: sig.Instrument,
		EntrySide:  entrySide,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Volatility: volatility,
		Rules:      rules,
	}, ladder)
	legs = append(legs, e.submitLegs(ctx, instructions)...)

	msg := "opened " + sig.Direction.String() + " position on " + sig.Instrument
	if res.ClosedExisting {
		msg = "closed opposing position, then " + msg
	}
	return Outcome{
		Status:      StatusSuccess,
		Message:     msg,
		FilledPrice: entryPrice,
		Legs:        legs,
	}
}

func (e *Executor) flatten(ctx context.Context, instrument string) Outcome {
	had, err := e.reconciler.Flatten(ctx, instrument)
	if err != nil {
		return failed(err)
	}
	if !had {
		return Outcome{Status: StatusSuccess, Message: "orders cancelled, no open position to close on " + instrument}
	}
	return Outcome{Status: StatusSuccess, Message: "orders cancelled and position closed on " + instrument}
}

// confirmFill polls the entry order until the venue reports a positive
// average fill price. The attempt count is fixed: when it runs out the run
// fails, it never blocks indefinitely.
func (e *Executor) confirmFill(ctx context.Context, instrument string, orderID int64) (float64, error) {
	for attempt := 0; attempt < e.fillAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, wrapError(KindVenueFatal, ctx.Err(), "confirming fill of order %d", orderID)
			case <-time.After(e.fillDelay):
			}
		}
		order, err := e.gateway.Order(ctx, instrument, orderID)
		if err != nil {
			logger.Warnf("fill confirm attempt %d for order %d: %v", attempt+1, orderID, err)
			continue
		}
		if order.AvgFillPrice > 0 {
			return order.AvgFillPrice, nil
		}
	}
	return 0, newError(KindVenueFatal, "no fill price for order %d after %d attempts", orderID, e.fillAttempts)
}

// submitLegs places each ladder leg independently. One leg's rejection never
// cancels or retries its siblings; the position may end up with fewer
// protective orders than configured.
func (e *Executor) submitLegs(ctx context.Context, instructions []venue.OrderInstruction) []LegResult {
	results := make([]LegResult, 0, len(instructions))
	for _, ins := range instructions {
		leg := LegResult{
			Kind:         ins.Kind.String(),
			Quantity:     qtyFloat(ins.Quantity),
			Price:        qtyFloat(ins.StopPrice),
			CallbackRate: qtyFloat(ins.CallbackRate),
		}
		if _, err := e.gateway.SubmitOrder(ctx, ins); err != nil {
			logger.Errorf("ladder: %s leg for %s rejected: %v", ins.Kind, ins.Instrument, err)
			leg.Reason = err.Error()
		} else {
			leg.Placed = true
		}
		results = append(results, leg)
	}
	return results
}
