package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"trading-simulator/internal/breaker"
	"trading-simulator/internal/execution"
	"trading-simulator/internal/model"
	"trading-simulator/internal/portfolio"
	"trading-simulator/internal/simulation"

	"github.com/gin-gonic/gin"
)

// HealthCheck handles GET /health
func (h *APIHandler) HealthCheck(c *gin.Context) {
	if h.health != nil {
		h.health.ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// GetSnapshot handles GET /api/v1/snapshot
func (h *APIHandler) GetSnapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	snap, err := h.sim.Snapshot(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetCandles handles GET /api/v1/candles
func (h *APIHandler) GetCandles(c *gin.Context) {
	h.withSnapshot(c, func(s simulation.Snapshot) any {
		return gin.H{"price": s.Price, "candles": s.Candles}
	})
}

// GetIndicators handles GET /api/v1/indicators. Each reading carries its
// display form next to the raw value.
func (h *APIHandler) GetIndicators(c *gin.Context) {
	h.withSnapshot(c, func(s simulation.Snapshot) any {
		out := make([]gin.H, 0, len(s.Indicators))
		for _, ind := range s.Indicators {
			out = append(out, gin.H{"indicator": ind, "display": ind.Value.Format()})
		}
		return gin.H{"indicators": out, "decision": s.Decision, "signal": s.Signal}
	})
}

// GetPositions handles GET /api/v1/positions
func (h *APIHandler) GetPositions(c *gin.Context) {
	h.withSnapshot(c, func(s simulation.Snapshot) any {
		return gin.H{"active": s.Positions, "history": s.History}
	})
}

// GetStats handles GET /api/v1/stats
func (h *APIHandler) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	st, err := h.sim.Stats(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":        st,
		"balance":      model.FormatCurrency(st.Balance),
		"equity":       model.FormatCurrency(st.Equity),
		"profitFactor": st.ProfitFactor.String(),
	})
}

// GetSettings handles GET /api/v1/settings
func (h *APIHandler) GetSettings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	st, err := h.sim.Settings(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetBroker handles GET /api/v1/broker
func (h *APIHandler) GetBroker(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected": h.sim.BrokerConnected()})
}

// OpenPosition handles POST /api/v1/positions
func (h *APIHandler) OpenPosition(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}
	dir, err := h.validator.Direction(req.Direction)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	p, err := h.sim.OpenPosition(ctx, dir)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ClosePosition handles DELETE /api/v1/positions/:id
func (h *APIHandler) ClosePosition(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	p, err := h.sim.ClosePosition(ctx, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Reset handles POST /api/v1/reset
func (h *APIHandler) Reset(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	notice, err := h.sim.Reset(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, notice)
}

// SetAutoTrading handles PUT /api/v1/autotrade
func (h *APIHandler) SetAutoTrading(c *gin.Context) {
	var req AutoTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	if err := h.sim.SetAutoTrading(ctx, *req.Enabled); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"autoTrading": *req.Enabled})
}

// UpdateSettings handles PATCH /api/v1/settings
func (h *APIHandler) UpdateSettings(c *gin.Context) {
	var patch SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	// The merge runs against the settings as they are when it is applied.
	next, err := h.sim.PatchSettings(ctx, func(cur model.Settings) (model.Settings, error) {
		return h.validator.Settings(cur, patch)
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}

// ConnectBroker handles POST /api/v1/broker/connect
func (h *APIHandler) ConnectBroker(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	if err := h.sim.ConnectBroker(ctx, req.Endpoint); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "endpoint": req.Endpoint})
}

// DisconnectBroker handles POST /api/v1/broker/disconnect
func (h *APIHandler) DisconnectBroker(c *gin.Context) {
	h.sim.DisconnectBroker()
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

// SubmitBrokerOrder handles POST /api/v1/broker/orders. The simulated
// account is not touched; the response carries the broker's verdict.
func (h *APIHandler) SubmitBrokerOrder(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}
	dir, err := h.validator.Direction(req.Direction)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	order, err := h.sim.SubmitBrokerOrder(ctx, dir)
	if err != nil && order.Symbol == "" {
		h.handleError(c, err)
		return
	}
	status := http.StatusCreated
	if !order.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, order)
}

// GetJournalTrades handles GET /api/v1/journal/trades
func (h *APIHandler) GetJournalTrades(c *gin.Context) {
	limit, err := h.validator.Limit(c.Query("limit"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	trades, err := h.journal.RecentTrades(ctx, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

// GetJournalSummary handles GET /api/v1/journal/summary
func (h *APIHandler) GetJournalSummary(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	sum, err := h.journal.Summarize(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *APIHandler) withSnapshot(c *gin.Context, view func(simulation.Snapshot) any) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	snap, err := h.sim.Snapshot(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view(snap))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, portfolio.ErrCapacityExceeded),
		errors.Is(err, simulation.ErrSymbolLocked),
		errors.Is(err, execution.ErrNotConnected):
		return http.StatusConflict, err.Error()
	case errors.Is(err, simulation.ErrPositionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrInvalidSettings),
		errors.Is(err, portfolio.ErrInvalidOrder),
		errors.Is(err, execution.ErrInvalidEndpoint):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, simulation.ErrNoBroker):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, simulation.ErrStopped),
		errors.Is(err, breaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// handleError logs the error and sends the mapped HTTP response
func (h *APIHandler) handleError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	h.respondError(c, err, status, msg)
}

// handleValidationError handles validation errors specifically
func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.respondError(c, err, http.StatusBadRequest, err.Error())
}

func (h *APIHandler) respondError(c *gin.Context, err error, status int, msg string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "API error",
		slog.String("request_id", requestID),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", status),
	)

	c.JSON(status, gin.H{
		"error":      msg,
		"request_id": requestID,
	})
}
