package executor

import (
	"github.com/shopspring/decimal"

	"riptide/internal/venue"
)

// OrderQuantity computes the entry order size from the available balance,
// the configured allocation fraction, and leverage, floored at the
// instrument's quantity precision. There is no automatic scaling: a result
// that rounds to zero or fails the minimum notional is a hard stop and the
// caller must adjust allocation or leverage.
func OrderQuantity(balance, allocation float64, leverage int, price float64, rules venue.InstrumentRules) (decimal.Decimal, error) {
	if balance <= 0 {
		return decimal.Zero, newError(KindInsufficientFunds, "available balance is zero")
	}
	if allocation <= 0 || allocation > 1 {
		return decimal.Zero, newError(KindValidation, "allocation %.4f outside (0,1]", allocation)
	}
	if leverage <= 0 {
		return decimal.Zero, newError(KindValidation, "leverage must be positive, got %d", leverage)
	}
	if price <= 0 {
		return decimal.Zero, newError(KindValidation, "price must be positive, got %.8f", price)
	}

	raw := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(allocation)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price))
	// Floor, never half-up: the venue rejects quantities above the
	// precision-truncated maximum.
	qty := raw.RoundFloor(rules.QuantityPrecision)
	if qty.IsZero() {
		return decimal.Zero, newError(KindInsufficientFunds, "computed quantity rounds to zero at precision %d", rules.QuantityPrecision)
	}
	notional := qty.Mul(decimal.NewFromFloat(price))
	if notional.LessThan(rules.MinNotional) {
		return decimal.Zero, newError(KindInsufficientFunds,
			"notional %s below venue minimum %s; raise allocation or leverage", notional, rules.MinNotional)
	}
	return qty, nil
}
