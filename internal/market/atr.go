package market

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"riptide/internal/logger"
)

// fetchBuffer is added on top of the lookback so the moving average has
// settled by the time it reaches the candles we actually read.
const fetchBuffer = 100

// CandleSource supplies recent candles, newest last. The final candle is
// assumed to still be forming.
type CandleSource interface {
	RecentCandles(ctx context.Context, instrument, timeframe string, limit int) ([]Candle, error)
}

// ATREstimator derives an average-true-range volatility figure for an
// instrument from its recent candles.
type ATREstimator struct {
	source CandleSource
}

func NewATREstimator(source CandleSource) *ATREstimator {
	return &ATREstimator{source: source}
}

// Estimate returns the ATR over lookback periods, read at the last closed
// candle. It returns (0, nil) when too few closed candles exist; callers are
// expected to fall back rather than abort.
func (e *ATREstimator) Estimate(ctx context.Context, instrument, timeframe string, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, fmt.Errorf("atr: lookback must be positive, got %d", lookback)
	}
	candles, err := e.source.RecentCandles(ctx, instrument, timeframe, lookback+fetchBuffer)
	if err != nil {
		return 0, fmt.Errorf("atr: fetching candles for %s: %w", instrument, err)
	}
	if len(candles) < 2 {
		logger.Warnf("atr: %s %s returned %d candles, not enough for ATR(%d)", instrument, timeframe, len(candles), lookback)
		return 0, nil
	}

	// Drop the newest candle: it is still open and would skew the range.
	closed := candles[:len(candles)-1]
	if len(closed) < lookback+1 {
		logger.Warnf("atr: %s %s has only %d closed candles, need %d", instrument, timeframe, len(closed), lookback+1)
		return 0, nil
	}

	highs := make([]float64, len(closed))
	lows := make([]float64, len(closed))
	closes := make([]float64, len(closed))
	for i, c := range closed {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	series := talib.Atr(highs, lows, closes, lookback)
	atr := series[len(series)-1]
	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr <= 0 {
		return 0, nil
	}
	return atr, nil
}
