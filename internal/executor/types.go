// Package executor turns directional trading signals into managed futures
// positions: it reconciles against venue state, sizes the entry, and attaches
// a volatility-scaled ladder of exit orders.
package executor

import (
	"fmt"
	"strings"

	"riptide/internal/venue"
)

// Direction is the intent carried by an inbound signal.
type Direction int

const (
	DirectionLong Direction = iota + 1
	DirectionShort
	DirectionFlatten
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "Long"
	case DirectionShort:
		return "Short"
	case DirectionFlatten:
		return "Flatten"
	default:
		return "Unknown"
	}
}

// ParseDirection accepts the webhook vocabulary: long/short plus the
// close/flatten aliases.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return DirectionLong, nil
	case "short", "sell":
		return DirectionShort, nil
	case "close", "flatten", "flat":
		return DirectionFlatten, nil
	default:
		return 0, newError(KindValidation, "unknown signal direction %q", raw)
	}
}

// EntrySide maps a directional signal to the order side that opens it.
// Flatten has no entry side.
func (d Direction) EntrySide() (venue.Side, bool) {
	switch d {
	case DirectionLong:
		return venue.SideBuy, true
	case DirectionShort:
		return venue.SideSell, true
	default:
		return 0, false
	}
}

// PositionSide maps a directional signal to the position side it implies.
func (d Direction) PositionSide() (venue.PositionSide, bool) {
	switch d {
	case DirectionLong:
		return venue.PositionLong, true
	case DirectionShort:
		return venue.PositionShort, true
	default:
		return 0, false
	}
}

// Signal is one parsed inbound trading signal. Reference fields are optional
// caller-supplied overrides for the market price and volatility lookups.
type Signal struct {
	Direction           Direction
	Instrument          string
	ReferencePrice      float64
	ReferenceVolatility float64
}

// AccountConfig is the per-instrument trading configuration supplied with
// each request.
type AccountConfig struct {
	Instrument         string  `json:"instrument"`
	Leverage           int     `json:"leverage"`
	WalletAllocation   float64 `json:"wallet_allocation"`
	ChartTimeframe     string  `json:"chart_timeframe"`
	VolatilityLookback int     `json:"volatility_lookback"`
}

func (c AccountConfig) Validate() error {
	if strings.TrimSpace(c.Instrument) == "" {
		return newError(KindValidation, "trading config: instrument is required")
	}
	if c.Leverage <= 0 {
		return newError(KindValidation, "trading config: leverage must be positive, got %d", c.Leverage)
	}
	if c.WalletAllocation <= 0 || c.WalletAllocation > 1 {
		return newError(KindValidation, "trading config: wallet_allocation %.4f outside (0,1]", c.WalletAllocation)
	}
	if strings.TrimSpace(c.ChartTimeframe) == "" {
		return newError(KindValidation, "trading config: chart_timeframe is required")
	}
	if c.VolatilityLookback <= 0 {
		return newError(KindValidation, "trading config: volatility_lookback must be positive, got %d", c.VolatilityLookback)
	}
	return nil
}

// LadderTier selects the exit order family a ladder entry belongs to.
type LadderTier int

const (
	TierTakeProfit LadderTier = iota + 1
	TierStopLoss
	TierTrailingStop
)

func (t LadderTier) String() string {
	switch t {
	case TierTakeProfit:
		return "tp"
	case TierStopLoss:
		return "sl"
	case TierTrailingStop:
		return "tsl"
	default:
		return "unknown"
	}
}

func ParseLadderTier(raw string) (LadderTier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tp", "take_profit":
		return TierTakeProfit, nil
	case "sl", "stop_loss":
		return TierStopLoss, nil
	case "tsl", "trailing_stop", "trailing":
		return TierTrailingStop, nil
	default:
		return 0, newError(KindValidation, "unknown ladder tier %q", raw)
	}
}

// LadderEntry is one configured exit leg. A nil CloseFraction marks the
// final leg of its tier: it consumes whatever quantity the partial legs left.
type LadderEntry struct {
	Tier          LadderTier
	VolMultiple   float64
	CloseFraction *float64 // percent in (0,100]
}

// LadderConfig is the ordered set of exit legs for an instrument.
type LadderConfig []LadderEntry

func (l LadderConfig) Validate() error {
	sumTP := 0.0
	finals := map[LadderTier]int{}
	for i, entry := range l {
		if entry.VolMultiple < 0 {
			return newError(KindValidation, "ladder entry #%d: vol_multiple must be >= 0", i+1)
		}
		if entry.CloseFraction == nil {
			finals[entry.Tier]++
			if finals[entry.Tier] > 1 {
				return newError(KindValidation, "ladder: more than one final %s leg", entry.Tier)
			}
			continue
		}
		frac := *entry.CloseFraction
		if frac <= 0 || frac > 100 {
			return newError(KindValidation, "ladder entry #%d: close_fraction %.2f outside (0,100]", i+1, frac)
		}
		if entry.Tier == TierTrailingStop {
			return newError(KindValidation, "ladder entry #%d: trailing stop cannot carry a close_fraction", i+1)
		}
		if entry.Tier == TierTakeProfit {
			sumTP += frac
		}
	}
	if sumTP > 100 {
		return newError(KindValidation, "ladder: take-profit close fractions sum to %.2f, above 100", sumTP)
	}
	return nil
}

// Status is the terminal state of one orchestration run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusIgnored Status = "ignored"
	StatusFailed  Status = "failed"
)

// LegResult records the fate of one exit leg.
type LegResult struct {
	Kind         string  `json:"kind"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price,omitempty"`
	CallbackRate float64 `json:"callback_rate,omitempty"`
	Placed       bool    `json:"placed"`
	Reason       string  `json:"reason,omitempty"`
}

// Outcome is the caller-visible summary of a signal-handling run.
type Outcome struct {
	Status      Status      `json:"status"`
	Message     string      `json:"message"`
	FilledPrice float64     `json:"filled_price,omitempty"`
	Legs        []LegResult `json:"legs,omitempty"`
}

func ignored(format string, v ...any) Outcome {
	return Outcome{Status: StatusIgnored, Message: fmt.Sprintf(format, v...)}
}

func failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Message: err.Error()}
}
