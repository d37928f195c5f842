// Package binance implements venue.Gateway on the Binance USDⓈ-M futures
// REST API via the go-binance SDK.
package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/venue"
)

const maxKlineLimit = 1500

// Binance rejects cancel-all with -2011 when the instrument has no open
// orders; the gateway treats that as a clean no-op.
const codeNoOpenOrders = -2011

type Client struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
}

var _ venue.Gateway = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Client{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSecond), 1),
	}, nil
}

func (c *Client) throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *Client) Balance(ctx context.Context, asset string) (float64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	asset = strings.ToUpper(strings.TrimSpace(asset))
	balances, err := c.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching balances: %w", err)
	}
	for _, b := range balances {
		if b != nil && strings.EqualFold(b.Asset, asset) {
			return parseFloat(b.AvailableBalance), nil
		}
	}
	return 0, nil
}

func (c *Client) Position(ctx context.Context, instrument string) (*venue.Position, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	symbol := cleanSymbol(instrument)
	risks, err := c.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching position risk for %s: %w", symbol, err)
	}
	for _, r := range risks {
		if r == nil || !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := venue.PositionLong
		if amt < 0 {
			side = venue.PositionShort
		}
		return &venue.Position{
			Instrument: symbol,
			Side:       side,
			Quantity:   math.Abs(amt),
			EntryPrice: parseFloat(r.EntryPrice),
		}, nil
	}
	return nil, nil
}

func (c *Client) OpenOrders(ctx context.Context, instrument string) ([]venue.Order, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	symbol := cleanSymbol(instrument)
	orders, err := c.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open orders for %s: %w", symbol, err)
	}
	out := make([]venue.Order, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		out = append(out, venue.Order{
			ID:           o.OrderID,
			Instrument:   symbol,
			Status:       string(o.Status),
			AvgFillPrice: parseFloat(o.AvgPrice),
		})
	}
	return out, nil
}

func (c *Client) CancelAllOrders(ctx context.Context, instrument string) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	symbol := cleanSymbol(instrument)
	err := c.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoOpenOrders {
			logger.Debugf("binance: no open orders to cancel for %s", symbol)
			return nil
		}
		return fmt.Errorf("cancelling open orders for %s: %w", symbol, err)
	}
	return nil
}

func (c *Client) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	symbol := cleanSymbol(instrument)
	_, err := c.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("setting leverage %dx for %s: %w", leverage, symbol, err)
	}
	return nil
}

func (c *Client) SubmitOrder(ctx context.Context, ins venue.OrderInstruction) (int64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	symbol := cleanSymbol(ins.Instrument)
	svc := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(ins.Side)).
		Type(orderType(ins.Kind)).
		NewClientOrderID(newClientOrderID())
	if !ins.Quantity.IsZero() {
		svc = svc.Quantity(ins.Quantity.String())
	}
	if !ins.StopPrice.IsZero() {
		svc = svc.StopPrice(ins.StopPrice.String())
	}
	if !ins.CallbackRate.IsZero() {
		svc = svc.CallbackRate(ins.CallbackRate.String())
	}
	if ins.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("submitting %s %s order for %s: %w", ins.Side, ins.Kind, symbol, err)
	}
	return resp.OrderID, nil
}

func (c *Client) Order(ctx context.Context, instrument string, orderID int64) (venue.Order, error) {
	if err := c.throttle(ctx); err != nil {
		return venue.Order{}, err
	}
	symbol := cleanSymbol(instrument)
	o, err := c.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return venue.Order{}, fmt.Errorf("fetching order %d for %s: %w", orderID, symbol, err)
	}
	return venue.Order{
		ID:           o.OrderID,
		Instrument:   symbol,
		Status:       string(o.Status),
		AvgFillPrice: parseFloat(o.AvgPrice),
	}, nil
}

func (c *Client) InstrumentRules(ctx context.Context, instrument string) (venue.InstrumentRules, error) {
	if err := c.throttle(ctx); err != nil {
		return venue.InstrumentRules{}, err
	}
	symbol := cleanSymbol(instrument)
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return venue.InstrumentRules{}, fmt.Errorf("fetching exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}
		rules := venue.InstrumentRules{
			Instrument:        symbol,
			PricePrecision:    int32(s.PricePrecision),
			QuantityPrecision: int32(s.QuantityPrecision),
		}
		if f := s.MinNotionalFilter(); f != nil {
			rules.MinNotional, _ = decimal.NewFromString(f.Notional)
		}
		return rules, nil
	}
	return venue.InstrumentRules{}, fmt.Errorf("instrument %s not found in exchange info", symbol)
}

func (c *Client) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	symbol := cleanSymbol(instrument)
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching price for %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, symbol) {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no price returned for %s", symbol)
}

func (c *Client) RecentCandles(ctx context.Context, instrument, timeframe string, limit int) ([]market.Candle, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	symbol := cleanSymbol(instrument)
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		return nil, fmt.Errorf("timeframe is required")
	}
	kls, err := c.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s %s: %w", symbol, timeframe, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func orderSide(side venue.Side) futures.SideType {
	if side == venue.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func orderType(kind venue.OrderKind) futures.OrderType {
	switch kind {
	case venue.OrderTakeProfitMarket:
		return futures.OrderTypeTakeProfitMarket
	case venue.OrderStopMarket:
		return futures.OrderTypeStopMarket
	case venue.OrderTrailingStopMarket:
		return futures.OrderTypeTrailingStopMarket
	default:
		return futures.OrderTypeMarket
	}
}

func newClientOrderID() string {
	return "rpt" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func cleanSymbol(instrument string) string {
	s := strings.ToUpper(strings.TrimSpace(instrument))
	return strings.NewReplacer("/", "", ":", "", "-", "").Replace(s)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
