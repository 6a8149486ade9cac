package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-simulator/internal/logger"
)

// PaperConfig tunes the simulated terminal.
type PaperConfig struct {
	ConnectLatency time.Duration // 1s in the demo terminal
	OrderLatency   time.Duration // 1.5s in the demo terminal
	RejectRate     float64       // fraction of orders refused, [0,1]
	Seed           int64
}

// DefaultPaperConfig mirrors the demo terminal's timings.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		ConnectLatency: time.Second,
		OrderLatency:   1500 * time.Millisecond,
		Seed:           1,
	}
}

// Fill is an order the paper terminal accepted.
type Fill struct {
	OrderID  string       `json:"orderId"`
	Request  OrderRequest `json:"request"`
	FilledAt time.Time    `json:"filledAt"`
}

// PaperBroker simulates a remote terminal without network calls.
// Safe for concurrent use.
type PaperBroker struct {
	cfg PaperConfig
	log *slog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
	endpoint  string
	fills     []Fill
}

// NewPaperBroker creates a disconnected paper terminal.
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	return &PaperBroker{
		cfg:   cfg,
		log:   logger.Component("paper_broker"),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		fills: make([]Fill, 0, 64),
	}
}

// Connect succeeds for any http or https endpoint after ConnectLatency.
func (p *PaperBroker) Connect(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if err := sleep(ctx, p.cfg.ConnectLatency); err != nil {
		return err
	}

	p.mu.Lock()
	p.connected = true
	p.endpoint = endpoint
	p.mu.Unlock()
	p.log.Info("connected", "endpoint", endpoint)
	return nil
}

// Disconnect drops the session. Idempotent.
func (p *PaperBroker) Disconnect() {
	p.mu.Lock()
	was := p.connected
	p.connected = false
	p.mu.Unlock()
	if was {
		p.log.Info("disconnected", "endpoint", p.endpoint)
	}
}

// IsConnected reports whether Connect succeeded and Disconnect was not called.
func (p *PaperBroker) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SubmitOrder places req after OrderLatency. A RejectRate share of orders is
// refused with ErrRejected.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if !p.IsConnected() {
		return OrderResult{Status: StatusError, Message: ErrNotConnected.Error()}, ErrNotConnected
	}
	if err := req.Validate(); err != nil {
		return OrderResult{Status: StatusError, Message: err.Error()}, err
	}
	if err := sleep(ctx, p.cfg.OrderLatency); err != nil {
		return OrderResult{Status: StatusError, Message: err.Error()}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return OrderResult{Status: StatusError, Message: ErrNotConnected.Error()}, ErrNotConnected
	}
	if p.rng.Float64() < p.cfg.RejectRate {
		p.log.Warn("order rejected", "symbol", req.Symbol, "direction", req.Direction, "volume", req.Volume)
		return OrderResult{Status: StatusRejected, Message: "rejected by terminal"}, ErrRejected
	}

	id := "PAPER-" + uuid.NewString()
	p.fills = append(p.fills, Fill{OrderID: id, Request: req, FilledAt: time.Now()})
	p.log.Info("order placed",
		"order_id", id, "symbol", req.Symbol, "direction", req.Direction,
		"volume", req.Volume, "sl", req.StopLoss, "tp", req.TakeProfit)
	return OrderResult{Success: true, OrderID: id, Status: StatusPlaced}, nil
}

// Fills returns a snapshot of all accepted orders.
func (p *PaperBroker) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
