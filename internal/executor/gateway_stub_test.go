package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"riptide/internal/market"
	"riptide/internal/venue"
)

// stubGateway is an in-memory venue.Gateway with per-call knobs. Submitted
// instructions are recorded so tests can assert on what went out.
type stubGateway struct {
	balance     float64
	balanceErr  error
	position    *venue.Position
	positionErr error
	openOrders  []venue.Order
	ordersErr   error
	cancelErr   error
	leverageErr error
	price       float64
	priceErr    error
	rules       venue.InstrumentRules
	rulesErr    error
	order       venue.Order
	orderErr    error
	candles     []market.Candle
	candlesErr  error

	submitErr func(ins venue.OrderInstruction) error

	submitted     []venue.OrderInstruction
	cancelCalls   int
	leverageCalls []int
	positionCalls int
	orderCalls    int
	balanceCalls  int
	nextOrderID   int64
}

var _ venue.Gateway = (*stubGateway)(nil)

func newStubGateway() *stubGateway {
	return &stubGateway{
		balance: 1000,
		price:   10,
		rules: venue.InstrumentRules{
			Instrument:        "DOGEUSDT",
			PricePrecision:    2,
			QuantityPrecision: 0,
			MinNotional:       decimal.NewFromInt(5),
		},
		order: venue.Order{Status: "FILLED", AvgFillPrice: 10},
	}
}

func (g *stubGateway) Balance(ctx context.Context, asset string) (float64, error) {
	g.balanceCalls++
	return g.balance, g.balanceErr
}

func (g *stubGateway) Position(ctx context.Context, instrument string) (*venue.Position, error) {
	g.positionCalls++
	return g.position, g.positionErr
}

func (g *stubGateway) OpenOrders(ctx context.Context, instrument string) ([]venue.Order, error) {
	return g.openOrders, g.ordersErr
}

func (g *stubGateway) CancelAllOrders(ctx context.Context, instrument string) error {
	g.cancelCalls++
	return g.cancelErr
}

func (g *stubGateway) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	g.leverageCalls = append(g.leverageCalls, leverage)
	return g.leverageErr
}

func (g *stubGateway) SubmitOrder(ctx context.Context, ins venue.OrderInstruction) (int64, error) {
	if g.submitErr != nil {
		if err := g.submitErr(ins); err != nil {
			return 0, err
		}
	}
	g.submitted = append(g.submitted, ins)
	g.nextOrderID++
	return g.nextOrderID, nil
}

func (g *stubGateway) Order(ctx context.Context, instrument string, orderID int64) (venue.Order, error) {
	g.orderCalls++
	return g.order, g.orderErr
}

func (g *stubGateway) InstrumentRules(ctx context.Context, instrument string) (venue.InstrumentRules, error) {
	return g.rules, g.rulesErr
}

func (g *stubGateway) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	return g.price, g.priceErr
}

func (g *stubGateway) RecentCandles(ctx context.Context, instrument, timeframe string, limit int) ([]market.Candle, error) {
	return g.candles, g.candlesErr
}

// fixedVolatility is a VolatilityEstimator returning a constant.
type fixedVolatility struct {
	value float64
	err   error
}

func (f fixedVolatility) Estimate(ctx context.Context, instrument, timeframe string, lookback int) (float64, error) {
	return f.value, f.err
}

func fraction(v float64) *float64 { return &v }
