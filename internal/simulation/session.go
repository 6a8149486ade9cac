package simulation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-simulator/internal/execution"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
	"trading-simulator/internal/scheduler"
	"trading-simulator/internal/strategy"
)

// ErrStopped is returned by Session calls after Stop, or before Start.
var ErrStopped = errors.New("session stopped")

// ErrNoBroker is returned by broker commands when no broker is attached.
var ErrNoBroker = errors.New("no broker attached")

// Task names registered with the scheduler.
const (
	TaskCandle     = "candle"
	TaskIndicators = "indicators"
	TaskPositions  = "positions"
	TaskAutoTrade  = "autotrade"
)

// Observer receives timing signals the event stream does not carry.
type Observer interface {
	ObserveRefresh(d time.Duration)
	ObserveStaleTick(task string)
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id used in logs. Defaults to a random UUID.
func WithID(id string) Option { return func(s *Session) { s.id = id } }

// WithBroker attaches the execution collaborator.
func WithBroker(b execution.Broker, timeout time.Duration) Option {
	return func(s *Session) {
		s.broker = b
		s.brokerTimeout = timeout
	}
}

// WithObserver reports refresh durations and dropped stale ticks.
func WithObserver(o Observer) Option { return func(s *Session) { s.obs = o } }

type message struct {
	epoch uint64 // 0 for commands, which are never stale
	task  string
	fn    func()
}

// Session owns an Engine on one actor goroutine. Periodic tasks and API
// calls post messages to the actor; the engine is only ever touched there.
//
// Each periodic message is tagged with the epoch it was scheduled in. Reset
// and disabling auto-trading cancel the affected tasks and bump the epoch
// before changing state, so a tick already queued from before is dropped
// instead of mutating the new state.
type Session struct {
	id            string
	cfg           Config
	eng           *Engine
	sched         *scheduler.Scheduler
	broker        execution.Broker
	brokerTimeout time.Duration
	obs           Observer
	log           *slog.Logger

	inbox chan message
	epoch uint64 // actor-owned

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	started   chan struct{}
	wg        sync.WaitGroup // in-flight broker calls
}

// NewSession builds the engine. Call Start to begin ticking.
func NewSession(cfg Config, pub model.EventPublisher, opts ...Option) (*Session, error) {
	eng, err := NewEngine(cfg, pub)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		eng:     eng,
		sched:   scheduler.New(),
		inbox:   make(chan message, 64),
		epoch:   1,
		done:    make(chan struct{}),
		started: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.Component("session").With("session_id", s.id)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start launches the actor and the periodic tasks. Subsequent calls are no-ops.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}
		ctx, s.cancel = context.WithCancel(ctx)
		s.scheduleAll()
		go s.loop(ctx)
		close(s.started)
		s.log.Info("session started",
			"symbol", s.eng.settings.Symbol,
			"candle_every", s.cfg.CandleInterval,
			"indicators_every", s.cfg.IndicatorInterval,
			"positions_every", s.cfg.PositionInterval)
	})
}

// Stop cancels every task, stops the actor and waits for in-flight broker
// calls. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.sched.Stop()
		select {
		case <-s.started:
			s.cancel()
			<-s.done
		default:
			close(s.done)
		}
		s.wg.Wait()
		s.log.Info("session stopped")
	})
}

// Done is closed once the actor exits.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.inbox:
			if m.epoch != 0 && m.epoch != s.epoch {
				s.log.Debug("stale tick dropped", "task", m.task, "epoch", m.epoch, "current", s.epoch)
				if s.obs != nil {
					s.obs.ObserveStaleTick(m.task)
				}
				continue
			}
			m.fn()
		}
	}
}

// scheduleAll registers the cadences for the current epoch. Runs before the
// actor starts or on the actor goroutine.
func (s *Session) scheduleAll() {
	s.every(TaskCandle, s.cfg.CandleInterval, func() { s.eng.AdvanceCandle() })
	s.every(TaskIndicators, s.cfg.IndicatorInterval, s.refresh)
	s.every(TaskPositions, s.cfg.PositionInterval, func() { s.eng.MarkToMarket() })
	s.scheduleAutoTrade()
}

func (s *Session) scheduleAutoTrade() {
	st := s.eng.settings
	if !st.AutoTrading {
		s.sched.Cancel(TaskAutoTrade)
		return
	}
	s.every(TaskAutoTrade, st.TradingInterval, s.autoTrade)
}

func (s *Session) every(name string, interval time.Duration, fn func()) {
	epoch := s.epoch
	err := s.sched.Every(name, interval, func(ctx context.Context) {
		select {
		case s.inbox <- message{epoch: epoch, task: name, fn: fn}:
		case <-ctx.Done():
		}
	})
	if err != nil && !errors.Is(err, scheduler.ErrStopped) {
		s.log.Error("schedule failed", "task", name, "error", err)
	}
}

func (s *Session) refresh() {
	start := time.Now()
	s.eng.RefreshIndicators()
	if s.obs != nil {
		s.obs.ObserveRefresh(time.Since(start))
	}
}

func (s *Session) autoTrade() {
	sig, p, err := s.eng.EvaluateAutoTrade()
	if err != nil || p == nil {
		return
	}
	s.log.Info("auto-trade entry", "action", sig.Action, "confidence", sig.Confidence, "reason", sig.Reason)
	if s.eng.settings.BrokerMirror {
		s.mirror(p.Direction)
	}
}

// mirror submits an order for dir to the broker in the background. The
// outcome is published as an event; the simulation never waits on it.
func (s *Session) mirror(dir model.Direction) {
	if s.broker == nil || !s.broker.IsConnected() {
		return
	}
	req, err := execution.BuildOrder(dir, s.eng.Price(), s.eng.settings, s.eng.Balance())
	if err != nil {
		s.eng.RecordBrokerOrder(execution.Record(req, execution.OrderResult{}, err))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.submit(req)
		rec := execution.Record(req, res, err)
		_ = s.post(context.Background(), func() { s.eng.RecordBrokerOrder(rec) })
	}()
}

func (s *Session) submit(req execution.OrderRequest) (execution.OrderResult, error) {
	ctx := context.Background()
	if s.brokerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.brokerTimeout)
		defer cancel()
	}
	return s.broker.SubmitOrder(ctx, req)
}

// post enqueues fn as a command without waiting for it to run.
func (s *Session) post(ctx context.Context, fn func()) error {
	select {
	case s.inbox <- message{fn: fn}:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the actor and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	select {
	case <-s.started:
	case <-s.done:
		return ErrStopped
	default:
		return ErrStopped
	}
	finished := make(chan struct{})
	if err := s.post(ctx, func() { fn(); close(finished) }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		// The actor may have run fn just before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Queries ──

// Snapshot returns a consistent copy of the engine state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() { snap = s.eng.Snapshot() })
	return snap, err
}

// Settings returns the active settings.
func (s *Session) Settings(ctx context.Context) (model.Settings, error) {
	var st model.Settings
	err := s.do(ctx, func() { st = s.eng.Settings() })
	return st, err
}

// Stats returns the account statistics.
func (s *Session) Stats(ctx context.Context) (model.AccountStats, error) {
	var st model.AccountStats
	err := s.do(ctx, func() { st = s.eng.Stats() })
	return st, err
}

// ── Commands ──

// OpenPosition opens a position at the live price.
func (s *Session) OpenPosition(ctx context.Context, dir model.Direction) (model.Position, error) {
	var (
		p      model.Position
		opnErr error
	)
	if err := s.do(ctx, func() { p, opnErr = s.eng.OpenPosition(dir) }); err != nil {
		return model.Position{}, err
	}
	return p, opnErr
}

// ClosePosition closes an open position at its last mark.
func (s *Session) ClosePosition(ctx context.Context, id string) (model.Position, error) {
	var (
		p        model.Position
		closeErr error
	)
	if err := s.do(ctx, func() { p, closeErr = s.eng.ClosePosition(id) }); err != nil {
		return model.Position{}, err
	}
	return p, closeErr
}

// Reset cancels every periodic task, bumps the epoch, resets the engine and
// reschedules, all in one actor step.
func (s *Session) Reset(ctx context.Context) (model.ResetNotice, error) {
	var notice model.ResetNotice
	err := s.do(ctx, func() {
		s.sched.CancelAll()
		s.epoch++
		notice = s.eng.Reset()
		s.scheduleAll()
	})
	return notice, err
}

// SetAutoTrading toggles the auto-trader. Turning it off cancels the task and
// invalidates any evaluation already queued.
func (s *Session) SetAutoTrading(ctx context.Context, on bool) error {
	return s.do(ctx, func() {
		if !on {
			s.sched.Cancel(TaskAutoTrade)
			s.epoch++
			s.eng.SetAutoTrading(false)
			s.scheduleAll()
			return
		}
		s.eng.SetAutoTrading(true)
		s.scheduleAutoTrade()
	})
}

// PatchSettings hands the current settings to patch, then validates and
// applies its result in the same actor step, rescheduling the auto-trader
// when its toggle or interval changed. A toggle made while the patch was in
// flight is either seen by it or lands after it.
func (s *Session) PatchSettings(ctx context.Context, patch func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	var (
		next     model.Settings
		applyErr error
	)
	err := s.do(ctx, func() {
		prev := s.eng.Settings()
		if next, applyErr = patch(prev); applyErr != nil {
			return
		}
		if applyErr = s.eng.UpdateSettings(next); applyErr != nil {
			return
		}
		switch {
		case prev.AutoTrading && !next.AutoTrading:
			s.sched.Cancel(TaskAutoTrade)
			s.epoch++
			s.scheduleAll()
		case next.AutoTrading && (!prev.AutoTrading || prev.TradingInterval != next.TradingInterval):
			s.scheduleAutoTrade()
		}
		next = s.eng.Settings()
	})
	if err != nil {
		return model.Settings{}, err
	}
	if applyErr != nil {
		return model.Settings{}, applyErr
	}
	return next, nil
}

// Step runs one of each cadence in order: candle, indicators, positions and,
// when enabled, the auto-trader. Used by the backtest driver and tests.
func (s *Session) Step(ctx context.Context) (MarkReport, strategy.Signal, error) {
	var (
		rep MarkReport
		sig strategy.Signal
	)
	err := s.do(ctx, func() {
		s.eng.AdvanceCandle()
		s.refresh()
		rep = s.eng.MarkToMarket()
		if s.eng.settings.AutoTrading {
			sig, _, _ = s.eng.EvaluateAutoTrade()
		}
	})
	return rep, sig, err
}

// ── Broker ──

// ConnectBroker connects the attached broker.
func (s *Session) ConnectBroker(ctx context.Context, endpoint string) error {
	if s.broker == nil {
		return ErrNoBroker
	}
	return s.broker.Connect(ctx, endpoint)
}

// DisconnectBroker disconnects the attached broker.
func (s *Session) DisconnectBroker() {
	if s.broker != nil {
		s.broker.Disconnect()
	}
}

// BrokerConnected reports the broker's connection state.
func (s *Session) BrokerConnected() bool {
	return s.broker != nil && s.broker.IsConnected()
}

// SubmitBrokerOrder sends an order sized from the current simulated account
// to the broker and waits for the outcome. The outcome is published but no
// simulated position is opened or changed.
func (s *Session) SubmitBrokerOrder(ctx context.Context, dir model.Direction) (model.BrokerOrder, error) {
	if s.broker == nil {
		return model.BrokerOrder{}, ErrNoBroker
	}
	var (
		req      execution.OrderRequest
		buildErr error
	)
	if err := s.do(ctx, func() {
		req, buildErr = execution.BuildOrder(dir, s.eng.Price(), s.eng.settings, s.eng.Balance())
	}); err != nil {
		return model.BrokerOrder{}, err
	}
	if buildErr != nil {
		return model.BrokerOrder{}, buildErr
	}

	if s.brokerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.brokerTimeout)
		defer cancel()
	}
	res, err := s.broker.SubmitOrder(ctx, req)
	rec := execution.Record(req, res, err)
	_ = s.post(context.Background(), func() { s.eng.RecordBrokerOrder(rec) })
	return rec, err
}
