// Package simulation drives one simulated trading account: a synthetic
// candle window, indicator refreshes, the auto-trader and the position book.
//
// Engine is the state machine. It is not safe for concurrent use; Session
// owns an Engine on a single actor goroutine and serializes every periodic
// tick, query and command through it.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"trading-simulator/internal/indicator"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/marketdata/synth"
	"trading-simulator/internal/model"
	"trading-simulator/internal/portfolio"
	"trading-simulator/internal/ringbuf"
	"trading-simulator/internal/strategy"
)

var (
	// ErrPositionNotFound is returned when closing an id that is not open.
	ErrPositionNotFound = portfolio.ErrPositionNotFound
	// ErrSymbolLocked is returned when changing the symbol with positions open.
	ErrSymbolLocked = errors.New("cannot change symbol with open positions")
)

// Snapshot is a consistent copy of everything the engine exposes.
type Snapshot struct {
	Seq        uint64             `json:"seq"`
	Price      float64            `json:"price"`
	Candles    []model.Candle     `json:"candles"`
	Indicators []model.Indicator  `json:"indicators"`
	Decision   model.Decision     `json:"decision"`
	Signal     strategy.Signal    `json:"signal"`
	Positions  []model.Position   `json:"positions"`
	History    []model.Position   `json:"history"`
	Stats      model.AccountStats `json:"stats"`
	Settings   model.Settings     `json:"settings"`
}

// MarkReport summarizes one position tick.
type MarkReport struct {
	Price    float64
	Marked   []portfolio.MarkResult
	Closed   []model.Position
	Partials int
}

// Engine holds the full state of one simulation.
type Engine struct {
	cfg      Config
	settings model.Settings
	now      func() time.Time
	pub      model.EventPublisher
	log      *slog.Logger

	gen    *synth.Generator
	window *ringbuf.Window
	price  float64

	indicators *indicator.Engine
	agg        *strategy.Aggregator
	trader     strategy.AutoTrader
	book       *portfolio.Book

	snapshot []model.Indicator
	decision model.Decision
	signal   strategy.Signal
	seq      uint64
}

// NewEngine validates cfg and builds an engine with a freshly generated
// window and an initial indicator snapshot. Events go to pub (may be nil).
func NewEngine(cfg Config, pub model.EventPublisher) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if pub == nil {
		pub = model.PublisherFunc(func(model.Event) {})
	}
	e := &Engine{
		cfg:        cfg,
		settings:   cloneSettings(cfg.Settings),
		now:        cfg.Now,
		pub:        pub,
		log:        logger.Component("simulation"),
		indicators: indicator.NewEngine(cfg.Indicators),
		agg:        strategy.NewAggregator(cfg.Weights),
		book:       portfolio.NewBook(cfg.InitialBalance),
	}
	e.seedMarket()
	e.compute()
	return e, nil
}

// seedMarket regenerates the candle window for the current symbol.
func (e *Engine) seedMarket() {
	sc := e.cfg.synthConfig(e.settings.Symbol)
	sc.StartTime = e.now().Unix() - int64(e.cfg.WindowSize)*stepOf(sc)
	e.gen = synth.New(sc, rand.New(rand.NewSource(e.cfg.Seed)))
	e.window = ringbuf.FromSlice(e.cfg.WindowSize,
		e.gen.GenerateCandles(e.cfg.WindowSize, e.cfg.Volatility, e.cfg.Trend))
	last, _ := e.window.Last()
	e.price = last.Close
}

func stepOf(sc synth.Config) int64 {
	if sc.Step > 0 {
		return sc.Step
	}
	return synth.DefaultConfig().Step
}

func (e *Engine) compute() {
	e.snapshot = e.indicators.Compute(e.window.Slice(), e.settings.Indicators)
	e.decision = e.agg.Analyze(e.snapshot)
}

func (e *Engine) publish(typ model.EventType, data any) {
	e.seq++
	e.pub.Publish(model.Event{Type: typ, Seq: e.seq, TS: e.now(), Data: data})
}

// AdvanceCandle appends one candle and evicts the oldest. The live price
// snaps to the new close.
func (e *Engine) AdvanceCandle() model.Candle {
	c := e.gen.Advance(e.window, e.cfg.Volatility, e.cfg.Trend)
	e.price = c.Close
	e.publish(model.EventCandle, model.CandleUpdate{Candle: c, Price: e.price})
	return c
}

// RefreshIndicators recomputes every enabled indicator from the full window
// and re-runs the aggregator.
func (e *Engine) RefreshIndicators() ([]model.Indicator, model.Decision) {
	e.compute()
	e.publish(model.EventIndicators, e.Indicators())
	e.publish(model.EventDecision, e.decision)
	return e.Indicators(), e.decision
}

// MarkToMarket samples one live price, marks every open position at it,
// and only then evaluates and closes exits.
func (e *Engine) MarkToMarket() MarkReport {
	e.price = e.gen.NextPrice(e.price, e.cfg.LiveVolatility)
	rep := MarkReport{Price: e.price}
	if len(e.book.Active()) == 0 {
		return rep
	}

	price := e.price
	rep.Marked = e.book.MarkAll(func(model.Position) float64 { return price }, e.settings)
	for _, m := range rep.Marked {
		if m.Tick.PartialTP {
			rep.Partials++
			e.publish(model.EventPartialTP, model.PartialTakeProfit{
				Position:  m.Position,
				Level:     m.Position.TakeProfitHits,
				ClosedQty: m.Tick.ClosedQty,
				Realized:  m.Tick.Realized,
			})
			e.log.Info("partial take-profit",
				"id", m.Position.ID, "level", m.Position.TakeProfitHits,
				"closed_qty", m.Tick.ClosedQty, "realized", m.Tick.Realized)
			continue
		}
		e.publish(model.EventPositionUpdate, m.Position)
	}

	for _, ex := range e.book.Exits(e.settings) {
		closed, err := e.close(ex.ID, ex.Reason)
		if err != nil {
			continue
		}
		rep.Closed = append(rep.Closed, closed)
	}
	if len(rep.Closed) == 0 {
		e.publish(model.EventStats, e.book.Stats())
	}
	return rep
}

// EvaluateAutoTrade runs the auto-trader over the current decision and
// opens a position when it signals an entry. Returns the signal, and the
// opened position when one was opened.
func (e *Engine) EvaluateAutoTrade() (strategy.Signal, *model.Position, error) {
	if !e.settings.AutoTrading {
		e.signal = strategy.Signal{Action: strategy.ActionHold, Reason: "Auto-trading disabled"}
		return e.signal, nil, nil
	}
	e.signal = e.trader.Evaluate(e.decision, e.settings)
	if !e.signal.Entry() {
		e.log.Debug("auto-trade hold", "reason", e.signal.Reason)
		return e.signal, nil, nil
	}
	p, err := e.OpenPosition(e.signal.Direction)
	if err != nil {
		return e.signal, nil, err
	}
	return e.signal, &p, nil
}

// OpenPosition opens a position at the live price. At capacity it publishes a
// capacity notice and returns portfolio.ErrCapacityExceeded.
func (e *Engine) OpenPosition(dir model.Direction) (model.Position, error) {
	p, err := e.book.Open(dir, e.price, e.settings, e.now())
	if err != nil {
		if errors.Is(err, portfolio.ErrCapacityExceeded) {
			e.publish(model.EventCapacity, model.CapacityNotice{
				Direction: dir,
				Open:      len(e.book.Active()),
				Max:       e.settings.EffectiveMaxTrades(),
			})
			e.log.Warn("position refused", "direction", dir, "error", err)
		}
		return model.Position{}, err
	}
	e.publish(model.EventPositionOpened, p)
	e.publish(model.EventStats, e.book.Stats())
	e.log.Info("position opened",
		"id", p.ID, "direction", p.Direction, "entry", p.EntryPrice,
		"qty", p.Quantity, "sl", p.StopLoss, "tp", p.TakeProfit)
	return p, nil
}

// ClosePosition closes an open position at its last mark.
func (e *Engine) ClosePosition(id string) (model.Position, error) {
	return e.close(id, model.CloseManual)
}

func (e *Engine) close(id string, reason model.CloseReason) (model.Position, error) {
	closed, stats, err := e.book.Close(id, reason, e.now())
	if err != nil {
		return model.Position{}, err
	}
	e.publish(model.EventPositionClosed, model.ClosedTrade{Position: closed, Balance: stats.Balance, Stats: stats})
	e.publish(model.EventStats, stats)
	e.log.Info("position closed",
		"id", closed.ID, "reason", reason, "pnl", closed.ProfitLoss, "balance", stats.Balance)
	return closed, nil
}

// Reset discards every position and the trade history, restores the starting
// balance and the configured settings, and regenerates the market. Event
// sequence numbers restart, so the reset notice carries Seq 1.
func (e *Engine) Reset() model.ResetNotice {
	now := e.now()
	discarded := e.book.Active()
	for i := range discarded {
		discarded[i].Status = model.StatusClosed
		discarded[i].CloseReason = model.CloseReset
		discarded[i].ClosedAt = now
	}

	e.book.Reset()
	e.settings = cloneSettings(e.cfg.Settings)
	e.seedMarket()
	e.compute()
	e.signal = strategy.Signal{}
	e.seq = 0

	notice := model.ResetNotice{Discarded: discarded, Stats: e.book.Stats()}
	e.publish(model.EventReset, notice)
	e.log.Info("simulation reset", "discarded", len(discarded), "balance", notice.Stats.Balance)
	return notice
}

// UpdateSettings validates and applies s. A symbol change regenerates the
// market and is refused while positions are open.
func (e *Engine) UpdateSettings(s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	symbolChanged := s.Symbol != e.settings.Symbol
	if symbolChanged && len(e.book.Active()) > 0 {
		return fmt.Errorf("%w: %d open", ErrSymbolLocked, len(e.book.Active()))
	}
	e.settings = cloneSettings(s)
	if symbolChanged {
		e.seedMarket()
	}
	e.compute()
	e.publish(model.EventSettings, e.Settings())
	return nil
}

// SetAutoTrading toggles the auto-trader.
func (e *Engine) SetAutoTrading(on bool) {
	if e.settings.AutoTrading == on {
		return
	}
	e.settings.AutoTrading = on
	e.publish(model.EventSettings, e.Settings())
}

// RecordBrokerOrder publishes the outcome of a mirrored broker order.
// Simulated state is not touched.
func (e *Engine) RecordBrokerOrder(o model.BrokerOrder) {
	e.publish(model.EventBrokerOrder, o)
}

// Price is the live price positions are marked at.
func (e *Engine) Price() float64 { return e.price }

// Settings returns a copy of the active settings.
func (e *Engine) Settings() model.Settings { return cloneSettings(e.settings) }

// Candles returns a copy of the window, oldest first.
func (e *Engine) Candles() []model.Candle { return e.window.Slice() }

// Indicators returns a copy of the last indicator snapshot.
func (e *Engine) Indicators() []model.Indicator {
	return append([]model.Indicator(nil), e.snapshot...)
}

// Decision returns the last aggregate decision.
func (e *Engine) Decision() model.Decision { return e.decision }

// Positions returns the open positions.
func (e *Engine) Positions() []model.Position { return e.book.Active() }

// History returns the closed positions.
func (e *Engine) History() []model.Position { return e.book.History() }

// Stats returns the account statistics.
func (e *Engine) Stats() model.AccountStats { return e.book.Stats() }

// Balance returns the realized balance.
func (e *Engine) Balance() float64 { return e.book.Balance() }

// Snapshot copies the whole observable state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Seq:        e.seq,
		Price:      e.price,
		Candles:    e.Candles(),
		Indicators: e.Indicators(),
		Decision:   e.decision,
		Signal:     e.signal,
		Positions:  e.Positions(),
		History:    e.History(),
		Stats:      e.Stats(),
		Settings:   e.Settings(),
	}
}

func cloneSettings(s model.Settings) model.Settings {
	s.Indicators = s.Indicators.Clone()
	return s
}
