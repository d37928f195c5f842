package tradehttp

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"riptide/internal/executor"
	"riptide/internal/scheduler"
	"riptide/internal/store"
)

type handlers struct {
	exec    *executor.Executor
	sweeper *executor.Sweeper
	store   *store.Store
}

// handleSignal accepts either the bare-text webhook body ("Long", "Short",
// "Close") with the symbol in a query parameter, or a JSON object
// {"signal","symbol","reference_price","reference_volatility"}.
func (h *handlers) handleSignal(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable body"})
		return
	}

	sig := executor.Signal{Instrument: strings.TrimSpace(c.Query("symbol"))}
	rawSignal := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) && gjson.GetBytes(body, "signal").Exists() {
		parsed := gjson.ParseBytes(body)
		rawSignal = parsed.Get("signal").String()
		if s := strings.TrimSpace(parsed.Get("symbol").String()); s != "" {
			sig.Instrument = s
		}
		sig.ReferencePrice = parsed.Get("reference_price").Float()
		sig.ReferenceVolatility = parsed.Get("reference_volatility").Float()
	}

	direction, err := executor.ParseDirection(rawSignal)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": executor.StatusIgnored, "message": err.Error()})
		return
	}
	sig.Direction = direction
	if sig.Instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "symbol is required"})
		return
	}

	cfg, ladder, outcome, ok := h.loadTradingInputs(c, sig)
	if !ok {
		c.JSON(http.StatusOK, outcome)
		return
	}

	out := h.exec.HandleSignal(c.Request.Context(), sig, cfg, ladder)
	status := http.StatusOK
	if out.Status == executor.StatusFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, out)
}

// loadTradingInputs pulls the per-instrument config and ladder. Missing
// records surface as an ignored outcome, matching the validation taxonomy.
// A flatten signal needs neither.
func (h *handlers) loadTradingInputs(c *gin.Context, sig executor.Signal) (executor.AccountConfig, executor.LadderConfig, executor.Outcome, bool) {
	if sig.Direction == executor.DirectionFlatten {
		return executor.AccountConfig{}, nil, executor.Outcome{}, true
	}
	ctx := c.Request.Context()
	cfg, err := h.store.TradingConfig(ctx, sig.Instrument)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return executor.AccountConfig{}, nil,
				executor.Outcome{Status: executor.StatusIgnored, Message: "no trading config for " + sig.Instrument}, false
		}
		return executor.AccountConfig{}, nil,
			executor.Outcome{Status: executor.StatusFailed, Message: err.Error()}, false
	}
	ladder, err := h.store.Ladder(ctx, sig.Instrument)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return executor.AccountConfig{}, nil,
				executor.Outcome{Status: executor.StatusIgnored, Message: "no exit ladder configured for " + sig.Instrument}, false
		}
		return executor.AccountConfig{}, nil,
			executor.Outcome{Status: executor.StatusFailed, Message: err.Error()}, false
	}
	return cfg, ladder, executor.Outcome{}, true
}

func (h *handlers) handleSweepCancelOrders(c *gin.Context) {
	symbol, ok := sweepSymbol(c)
	if !ok {
		return
	}
	cancelled, err := h.sweeper.CancelOrdersIfNoPosition(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "cancelled": cancelled})
}

func (h *handlers) handleSweepClosePosition(c *gin.Context) {
	symbol, ok := sweepSymbol(c)
	if !ok {
		return
	}
	closed, err := h.sweeper.ClosePositionIfNoOpenOrders(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "closed": closed})
}

func sweepSymbol(c *gin.Context) (string, bool) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		body, _ := io.ReadAll(c.Request.Body)
		symbol = strings.TrimSpace(gjson.GetBytes(body, "symbol").String())
	}
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "symbol is required"})
		return "", false
	}
	return symbol, true
}

func (h *handlers) handleGetConfig(c *gin.Context) {
	cfg, err := h.store.TradingConfig(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "no trading config"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *handlers) handlePutConfig(c *gin.Context) {
	var cfg executor.AccountConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	cfg.Instrument = strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if _, ok := scheduler.ParseIntervalDuration(cfg.ChartTimeframe); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "chart_timeframe is not a valid interval"})
		return
	}
	if err := h.store.SaveTradingConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type ladderEntryDTO struct {
	Tier          string   `json:"tier"`
	VolMultiple   float64  `json:"vol_multiple"`
	CloseFraction *float64 `json:"close_fraction"`
}

func (h *handlers) handleGetLadder(c *gin.Context) {
	ladder, err := h.store.Ladder(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "no ladder configured"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	out := make([]ladderEntryDTO, 0, len(ladder))
	for _, entry := range ladder {
		out = append(out, ladderEntryDTO{
			Tier:          entry.Tier.String(),
			VolMultiple:   entry.VolMultiple,
			CloseFraction: entry.CloseFraction,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) handlePutLadder(c *gin.Context) {
	var payload []ladderEntryDTO
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	ladder := make(executor.LadderConfig, 0, len(payload))
	for _, dto := range payload {
		tier, err := executor.ParseLadderTier(dto.Tier)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		ladder = append(ladder, executor.LadderEntry{
			Tier:          tier,
			VolMultiple:   dto.VolMultiple,
			CloseFraction: dto.CloseFraction,
		})
	}
	if err := h.store.ReplaceLadder(c.Request.Context(), c.Param("symbol"), ladder); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(c.Param("symbol")), "entries": len(ladder)})
}
