package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trading-simulator/internal/breaker"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/portfolio"
)

// GuardedBroker bounds every remote call with a timeout and trips a circuit
// breaker on repeated connectivity failures. Rejections, validation errors
// and calls made while disconnected do not count as failures.
type GuardedBroker struct {
	inner   Broker
	br      *breaker.Breaker
	timeout time.Duration
	log     *slog.Logger
}

// NewGuardedBroker wraps inner. A nil breaker gets 5 failures / 30s.
func NewGuardedBroker(inner Broker, timeout time.Duration, br *breaker.Breaker) *GuardedBroker {
	if br == nil {
		br = breaker.New(5, 30*time.Second)
	}
	br.Counts = countsAsOutage
	return &GuardedBroker{
		inner:   inner,
		br:      br,
		timeout: timeout,
		log:     logger.Component("broker"),
	}
}

func countsAsOutage(err error) bool {
	switch {
	case errors.Is(err, ErrRejected),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrInvalidEndpoint),
		errors.Is(err, portfolio.ErrInvalidOrder),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Breaker exposes the breaker for state reporting.
func (g *GuardedBroker) Breaker() *breaker.Breaker { return g.br }

func (g *GuardedBroker) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *GuardedBroker) Connect(ctx context.Context, endpoint string) error {
	ctx, cancel := g.bounded(ctx)
	defer cancel()
	err := g.br.Execute(func() error { return g.inner.Connect(ctx, endpoint) })
	if err != nil {
		g.log.Warn("connect failed", "endpoint", endpoint, "error", err)
	}
	return err
}

func (g *GuardedBroker) Disconnect()       { g.inner.Disconnect() }
func (g *GuardedBroker) IsConnected() bool { return g.inner.IsConnected() }

func (g *GuardedBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	ctx, cancel := g.bounded(ctx)
	defer cancel()

	var res OrderResult
	err := g.br.Execute(func() error {
		var err error
		res, err = g.inner.SubmitOrder(ctx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			res = OrderResult{Status: StatusError, Message: err.Error()}
		}
		g.log.Warn("order failed", "symbol", req.Symbol, "direction", req.Direction, "error", err)
	}
	return res, err
}
