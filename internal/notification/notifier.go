// Package notification delivers alerts about notable simulation events
// (capacity rejections, closes, broker failures) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel      `json:"level"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Event   model.EventType `json:"event,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Component("notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, alert.Title,
		slog.String("message", alert.Message),
		slog.String("event", string(alert.Event)),
		slog.Uint64("seq", alert.Seq),
	)
	return nil
}

// Multi sends each alert to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertFor maps an event to an alert. Routine events (candles, indicator
// refreshes, mark-to-market updates) produce none.
func AlertFor(ev model.Event) (Alert, bool) {
	a := Alert{Event: ev.Type, Seq: ev.Seq}
	switch d := ev.Data.(type) {
	case model.CapacityNotice:
		a.Level = AlertWarning
		a.Title = "Position limit reached"
		a.Message = fmt.Sprintf("%s entry refused: %d of %d positions open", d.Direction, d.Open, d.Max)

	case model.ClosedTrade:
		p := d.Position
		if p.CloseReason == model.CloseReset {
			return Alert{}, false
		}
		a.Level = AlertInfo
		if p.CloseReason == model.CloseStopLoss {
			a.Level = AlertWarning
		}
		a.Title = fmt.Sprintf("%s %s closed (%s)", p.Symbol, p.Direction, p.CloseReason)
		a.Message = fmt.Sprintf("P&L %s, balance %s", model.FormatCurrency(p.ProfitLoss), model.FormatCurrency(d.Balance))

	case model.BrokerOrder:
		if d.Success {
			return Alert{}, false
		}
		a.Level = AlertCritical
		a.Title = "Broker order failed"
		a.Message = fmt.Sprintf("%s %s %.2f: %s", d.Direction, d.Symbol, d.Volume, d.Error)

	case model.ResetNotice:
		a.Level = AlertInfo
		a.Title = "Simulation reset"
		a.Message = fmt.Sprintf("%d open positions discarded", len(d.Discarded))

	default:
		return Alert{}, false
	}
	return a, true
}

// Dispatcher turns events into alerts and sends them, one at a time, with a
// per-send timeout. Delivery failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *slog.Logger

	// OnError is called for every failed delivery (for metrics).
	OnError func(err error)
}

// NewDispatcher creates a Dispatcher. timeout <= 0 defaults to 10s.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout, log: logger.Component("notify")}
}

// Run consumes events until ctx is cancelled or ch is closed.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev model.Event) {
	alert, ok := AlertFor(ev)
	if !ok {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.Send(sendCtx, alert); err != nil {
		d.log.Warn("alert delivery failed", slog.String("title", alert.Title), slog.Any("error", err))
		if d.OnError != nil {
			d.OnError(err)
		}
	}
}
