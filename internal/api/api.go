// Package api exposes the simulation session over HTTP: read-only queries
// plus the user commands (open, close, reset, auto-trading, settings, broker).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"trading-simulator/internal/auth"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
	"trading-simulator/internal/simulation"
	"trading-simulator/internal/store/sqlite"

	"github.com/gin-gonic/gin"
)

const (
	DefaultTimeout      = 10 * time.Second
	ServiceName         = "trading-simulator"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
	TOTPHeaderKey       = "X-TOTP-Code"
)

// Simulator is the session surface the API drives.
type Simulator interface {
	Snapshot(ctx context.Context) (simulation.Snapshot, error)
	Settings(ctx context.Context) (model.Settings, error)
	Stats(ctx context.Context) (model.AccountStats, error)
	OpenPosition(ctx context.Context, dir model.Direction) (model.Position, error)
	ClosePosition(ctx context.Context, id string) (model.Position, error)
	Reset(ctx context.Context) (model.ResetNotice, error)
	SetAutoTrading(ctx context.Context, on bool) error
	PatchSettings(ctx context.Context, patch func(model.Settings) (model.Settings, error)) (model.Settings, error)
	ConnectBroker(ctx context.Context, endpoint string) error
	DisconnectBroker()
	BrokerConnected() bool
	SubmitBrokerOrder(ctx context.Context, dir model.Direction) (model.BrokerOrder, error)
}

// Journal is the read side of the trade journal.
type Journal interface {
	RecentTrades(ctx context.Context, limit int) ([]sqlite.TradeRecord, error)
	Summarize(ctx context.Context) (sqlite.Summary, error)
}

// APIHandler handles HTTP requests using Gin framework
type APIHandler struct {
	sim       Simulator
	journal   Journal
	guard     *auth.Guard
	health    http.Handler
	stream    http.Handler
	validator *Validator
	logger    *slog.Logger
}

// Option configures an APIHandler.
type Option func(*APIHandler)

// WithJournal enables the /journal endpoints.
func WithJournal(j Journal) Option { return func(h *APIHandler) { h.journal = j } }

// WithGuard requires a TOTP code on every mutating endpoint.
func WithGuard(g *auth.Guard) Option { return func(h *APIHandler) { h.guard = g } }

// WithHealth serves h at /health instead of the static liveness reply.
func WithHealth(hh http.Handler) Option { return func(h *APIHandler) { h.health = hh } }

// WithStream mounts the websocket event stream at /ws.
func WithStream(s http.Handler) Option { return func(h *APIHandler) { h.stream = s } }

// NewAPIHandler creates a new API handler
func NewAPIHandler(sim Simulator, opts ...Option) *APIHandler {
	h := &APIHandler{
		sim:       sim,
		validator: NewValidator(),
		logger:    logger.Component("api"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(requestLogger(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)
	if h.stream != nil {
		router.GET("/ws", gin.WrapH(h.stream))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/snapshot", h.GetSnapshot)
	v1.GET("/candles", h.GetCandles)
	v1.GET("/indicators", h.GetIndicators)
	v1.GET("/positions", h.GetPositions)
	v1.GET("/stats", h.GetStats)
	v1.GET("/settings", h.GetSettings)
	v1.GET("/broker", h.GetBroker)
	if h.journal != nil {
		v1.GET("/journal/trades", h.GetJournalTrades)
		v1.GET("/journal/summary", h.GetJournalSummary)
	}

	cmd := v1.Group("", totpMiddleware(h.guard))
	cmd.POST("/positions", h.OpenPosition)
	cmd.DELETE("/positions/:id", h.ClosePosition)
	cmd.POST("/reset", h.Reset)
	cmd.PUT("/autotrade", h.SetAutoTrading)
	cmd.PATCH("/settings", h.UpdateSettings)
	cmd.POST("/broker/connect", h.ConnectBroker)
	cmd.POST("/broker/disconnect", h.DisconnectBroker)
	cmd.POST("/broker/orders", h.SubmitBrokerOrder)

	return router
}

// Server wraps the router in an http.Server with graceful shutdown.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer creates the HTTP server for addr.
func (h *APIHandler) NewServer(addr string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h.SetupRoutes(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: h.logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info("api server starting", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", slog.Any("error", err))
		}
	}()
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
