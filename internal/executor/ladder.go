package executor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"riptide/internal/logger"
	"riptide/internal/venue"
)

// When no usable volatility estimate exists the ladder is priced off 1% of
// the entry price instead of being abandoned.
const volatilityFallbackFraction = 0.01

// Binance floors trailing-stop callback rates at 0.1%.
var minCallbackRate = decimal.NewFromFloat(0.1)

// LadderInput carries everything the builder needs about the freshly opened
// position.
type LadderInput struct {
	Instrument string
	EntrySide  venue.Side
	EntryPrice float64
	Quantity   decimal.Decimal
	Volatility float64
	Rules      venue.InstrumentRules
}

// BuildLadder constructs the exit-order ladder for a filled entry: partial
// take-profits in config order, an optional final take-profit on the
// remainder, and either a trailing stop or fixed stop-loss legs. Legs whose
// notional falls below the venue minimum are skipped and reported, not
// redistributed. The returned instructions are ready to submit; skipped legs
// come back as results with a reason.
func BuildLadder(in LadderInput, cfg LadderConfig) ([]venue.OrderInstruction, []LegResult) {
	vol := in.Volatility
	if vol <= 0 {
		vol = in.EntryPrice * volatilityFallbackFraction
		logger.Warnf("ladder: no usable volatility for %s, falling back to %.8f (1%% of entry)", in.Instrument, vol)
	}

	b := ladderBuilder{
		in:        in,
		exitSide:  in.EntrySide.Opposite(),
		entry:     decimal.NewFromFloat(in.EntryPrice),
		vol:       decimal.NewFromFloat(vol),
		remaining: in.Quantity,
	}

	b.takeProfits(cfg)
	if !b.trailingStop(cfg) {
		b.stopLosses(cfg)
	}
	return b.instructions, b.skipped
}

type ladderBuilder struct {
	in        LadderInput
	exitSide  venue.Side
	entry     decimal.Decimal
	vol       decimal.Decimal
	remaining decimal.Decimal

	instructions []venue.OrderInstruction
	skipped      []LegResult
}

// profitPrice offsets the entry price in the profitable direction for the
// position being closed; lossPrice offsets toward the loss side.
func (b *ladderBuilder) profitPrice(mult float64) decimal.Decimal {
	offset := b.vol.Mul(decimal.NewFromFloat(mult))
	if b.in.EntrySide == venue.SideBuy {
		return b.entry.Add(offset).Round(b.in.Rules.PricePrecision)
	}
	return b.entry.Sub(offset).Round(b.in.Rules.PricePrecision)
}

func (b *ladderBuilder) lossPrice(mult float64) decimal.Decimal {
	offset := b.vol.Mul(decimal.NewFromFloat(mult))
	if b.in.EntrySide == venue.SideBuy {
		return b.entry.Sub(offset).Round(b.in.Rules.PricePrecision)
	}
	return b.entry.Add(offset).Round(b.in.Rules.PricePrecision)
}

func (b *ladderBuilder) clearsMinNotional(kind venue.OrderKind, qty, price decimal.Decimal) bool {
	if !qty.IsZero() && qty.Mul(price).GreaterThanOrEqual(b.in.Rules.MinNotional) {
		return true
	}
	reason := fmt.Sprintf("notional %s below venue minimum %s", qty.Mul(price), b.in.Rules.MinNotional)
	if qty.IsZero() {
		reason = fmt.Sprintf("quantity rounds to zero at precision %d", b.in.Rules.QuantityPrecision)
	}
	logger.Warnf("ladder: skipping %s leg for %s: %s", kind, b.in.Instrument, reason)
	b.skipped = append(b.skipped, LegResult{
		Kind:     kind.String(),
		Quantity: qtyFloat(qty),
		Price:    qtyFloat(price),
		Reason:   reason,
	})
	return false
}

func (b *ladderBuilder) takeProfits(cfg LadderConfig) {
	for _, entry := range cfg {
		if entry.Tier != TierTakeProfit || entry.CloseFraction == nil {
			continue
		}
		frac := decimal.NewFromFloat(*entry.CloseFraction).Div(decimal.NewFromInt(100))
		qty := b.in.Quantity.Mul(frac).RoundFloor(b.in.Rules.QuantityPrecision)
		price := b.profitPrice(entry.VolMultiple)
		if !b.clearsMinNotional(venue.OrderTakeProfitMarket, qty, price) {
			continue
		}
		b.instructions = append(b.instructions, venue.OrderInstruction{
			Instrument: b.in.Instrument,
			Side:       b.exitSide,
			Kind:       venue.OrderTakeProfitMarket,
			Quantity:   qty,
			StopPrice:  price,
		})
		// Only submitted legs reduce the remainder; skipped fractions
		// are forfeited, not redistributed.
		b.remaining = b.remaining.Sub(qty)
	}

	for _, entry := range cfg {
		if entry.Tier != TierTakeProfit || entry.CloseFraction != nil {
			continue
		}
		if b.remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
		qty := b.remaining.RoundFloor(b.in.Rules.QuantityPrecision)
		price := b.profitPrice(entry.VolMultiple)
		if !b.clearsMinNotional(venue.OrderTakeProfitMarket, qty, price) {
			return
		}
		b.instructions = append(b.instructions, venue.OrderInstruction{
			Instrument: b.in.Instrument,
			Side:       b.exitSide,
			Kind:       venue.OrderTakeProfitMarket,
			Quantity:   qty,
			StopPrice:  price,
		})
		return
	}
}

// trailingStop emits the trailing leg and reports whether one was
// configured. The leg is sized to the original entry quantity, not the
// post-take-profit remainder: it acts as a position-wide safety net and the
// venue's reduce-only flag caps it at whatever is actually still open.
func (b *ladderBuilder) trailingStop(cfg LadderConfig) bool {
	for _, entry := range cfg {
		if entry.Tier != TierTrailingStop {
			continue
		}
		rate := b.vol.
			Mul(decimal.NewFromFloat(entry.VolMultiple)).
			Div(b.entry).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		if rate.LessThan(minCallbackRate) {
			rate = minCallbackRate
		}
		b.instructions = append(b.instructions, venue.OrderInstruction{
			Instrument:   b.in.Instrument,
			Side:         b.exitSide,
			Kind:         venue.OrderTrailingStopMarket,
			Quantity:     b.in.Quantity,
			CallbackRate: rate,
			ReduceOnly:   true,
		})
		return true
	}
	return false
}

// stopLosses mirrors the take-profit pass on the loss side. Only used when
// no trailing stop is configured.
func (b *ladderBuilder) stopLosses(cfg LadderConfig) {
	remaining := b.in.Quantity
	for _, entry := range cfg {
		if entry.Tier != TierStopLoss || entry.CloseFraction == nil {
			continue
		}
		frac := decimal.NewFromFloat(*entry.CloseFraction).Div(decimal.NewFromInt(100))
		qty := b.in.Quantity.Mul(frac).RoundFloor(b.in.Rules.QuantityPrecision)
		price := b.lossPrice(entry.VolMultiple)
		if !b.clearsMinNotional(venue.OrderStopMarket, qty, price) {
			continue
		}
		b.instructions = append(b.instructions, venue.OrderInstruction{
			Instrument: b.in.Instrument,
			Side:       b.exitSide,
			Kind:       venue.OrderStopMarket,
			Quantity:   qty,
			StopPrice:  price,
			ReduceOnly: true,
		})
		remaining = remaining.Sub(qty)
	}

	for _, entry := range cfg {
		if entry.Tier != TierStopLoss || entry.CloseFraction != nil {
			continue
		}
		if remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
		qty := remaining.RoundFloor(b.in.Rules.QuantityPrecision)
		price := b.lossPrice(entry.VolMultiple)
		if !b.clearsMinNotional(venue.OrderStopMarket, qty, price) {
			return
		}
		b.instructions = append(b.instructions, venue.OrderInstruction{
			Instrument: b.in.Instrument,
			Side:       b.exitSide,
			Kind:       venue.OrderStopMarket,
			Quantity:   qty,
			StopPrice:  price,
			ReduceOnly: true,
		})
		return
	}
}

func qtyFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
