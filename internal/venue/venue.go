// Package venue defines a typed facade over the derivatives venue's remote
// API. The concrete Binance implementation lives in venue/binance.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"riptide/internal/market"
)

// Side is the order side sent to the venue.
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the inverse order side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide is the direction of a held position.
type PositionSide int

const (
	PositionLong PositionSide = iota + 1
	PositionShort
)

func (p PositionSide) String() string {
	switch p {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// CloseSide returns the order side that reduces this position.
func (p PositionSide) CloseSide() Side {
	if p == PositionLong {
		return SideSell
	}
	return SideBuy
}

// OrderKind selects the venue order type.
type OrderKind int

const (
	OrderMarket OrderKind = iota + 1
	OrderTakeProfitMarket
	OrderStopMarket
	OrderTrailingStopMarket
)

func (k OrderKind) String() string {
	switch k {
	case OrderMarket:
		return "MARKET"
	case OrderTakeProfitMarket:
		return "TAKE_PROFIT_MARKET"
	case OrderStopMarket:
		return "STOP_MARKET"
	case OrderTrailingStopMarket:
		return "TRAILING_STOP_MARKET"
	default:
		return "UNKNOWN"
	}
}

// Position is a snapshot of venue-held state. It is re-fetched at every
// decision point, never cached locally.
type Position struct {
	Instrument string
	Side       PositionSide
	Quantity   float64
	EntryPrice float64
}

// InstrumentRules carries the precision and minimum-notional constraints an
// instrument's orders must satisfy.
type InstrumentRules struct {
	Instrument        string
	PricePrecision    int32
	QuantityPrecision int32
	MinNotional       decimal.Decimal
}

// Order is the venue's view of a submitted order.
type Order struct {
	ID           int64
	Instrument   string
	Status       string
	AvgFillPrice float64
}

// OrderInstruction is a single order to submit. Quantity and prices are
// expected to already be rounded to the instrument's precisions.
type OrderInstruction struct {
	Instrument   string
	Side         Side
	Kind         OrderKind
	Quantity     decimal.Decimal
	StopPrice    decimal.Decimal // trigger price for TP/SL kinds
	CallbackRate decimal.Decimal // percent, trailing stop only
	ReduceOnly   bool
}

// Gateway is the remote venue API surface the execution core depends on.
type Gateway interface {
	Balance(ctx context.Context, asset string) (float64, error)
	// Position returns nil when the instrument is flat.
	Position(ctx context.Context, instrument string) (*Position, error)
	OpenOrders(ctx context.Context, instrument string) ([]Order, error)
	// CancelAllOrders succeeds when there is nothing to cancel.
	CancelAllOrders(ctx context.Context, instrument string) error
	SetLeverage(ctx context.Context, instrument string, leverage int) error
	SubmitOrder(ctx context.Context, ins OrderInstruction) (int64, error)
	Order(ctx context.Context, instrument string, orderID int64) (Order, error)
	InstrumentRules(ctx context.Context, instrument string) (InstrumentRules, error)
	CurrentPrice(ctx context.Context, instrument string) (float64, error)
	RecentCandles(ctx context.Context, instrument, timeframe string, limit int) ([]market.Candle, error)
}
