// Package portfolio simulates the position lifecycle: risk-based entry
// sizing, mark-to-market with a partial take-profit ladder, exit evaluation
// and account statistics.
//
// The free functions (Open, Tick, ShouldExit, Close, ComputeStats) are pure.
// Book owns one account's active positions, history and balance; it does no
// locking and must be driven from a single goroutine.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"trading-simulator/internal/model"
)

// ErrPositionNotFound is returned when an id is not in the active set.
var ErrPositionNotFound = errors.New("position not found")

// Close finalizes p at its current mark and returns the closed position, the
// new balance (balance + p.ProfitLoss) and statistics recomputed from history
// plus the closed trade. remaining is the active set without p.
func Close(p model.Position, history []model.Position, balance float64, remaining []model.Position, reason model.CloseReason, now time.Time) (model.Position, float64, model.AccountStats) {
	p.Status = model.StatusClosed
	p.CloseReason = reason
	p.ClosedAt = now

	newBalance := balance + p.ProfitLoss
	full := make([]model.Position, 0, len(history)+1)
	full = append(full, history...)
	full = append(full, p)
	return p, newBalance, ComputeStats(full, newBalance, remaining)
}

// MarkResult is one position's outcome of a mark-to-market pass.
type MarkResult struct {
	Position model.Position
	Tick     TickResult
}

// Exit is a position selected for closing by an exit pass.
type Exit struct {
	ID     string
	Reason model.CloseReason
}

// Book is one simulated account.
type Book struct {
	initial float64
	balance float64
	active  []model.Position // open order
	history []model.Position // close order
	stats   model.AccountStats
}

// NewBook creates an account with the given starting balance.
func NewBook(initialBalance float64) *Book {
	return &Book{
		initial: initialBalance,
		balance: initialBalance,
		stats:   model.InitialStats(initialBalance),
	}
}

// Open sizes and adds a new position.
func (b *Book) Open(dir model.Direction, price float64, s model.Settings, now time.Time) (model.Position, error) {
	p, err := Open(dir, price, s, b.balance, len(b.active), now)
	if err != nil {
		return model.Position{}, err
	}
	b.active = append(b.active, p)
	b.refresh()
	return p, nil
}

// MarkAll ticks every open position at the price returned by priceFor.
// All positions are marked before any exit is evaluated.
func (b *Book) MarkAll(priceFor func(p model.Position) float64, s model.Settings) []MarkResult {
	out := make([]MarkResult, 0, len(b.active))
	for i := range b.active {
		res := Tick(&b.active[i], priceFor(b.active[i]), s)
		out = append(out, MarkResult{Position: b.active[i], Tick: res})
	}
	b.refresh()
	return out
}

// Exits lists the open positions ShouldExit selects, in open order.
func (b *Book) Exits(s model.Settings) []Exit {
	var out []Exit
	for i := range b.active {
		if ok, reason := ShouldExit(&b.active[i], s); ok {
			out = append(out, Exit{ID: b.active[i].ID, Reason: reason})
		}
	}
	return out
}

// Close moves the position to history, credits its ProfitLoss to the balance
// and recomputes statistics.
func (b *Book) Close(id string, reason model.CloseReason, now time.Time) (model.Position, model.AccountStats, error) {
	idx := b.index(id)
	if idx < 0 {
		return model.Position{}, b.Stats(), fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	remaining := make([]model.Position, 0, len(b.active)-1)
	remaining = append(remaining, b.active[:idx]...)
	remaining = append(remaining, b.active[idx+1:]...)

	closed, balance, stats := Close(b.active[idx], b.history, b.balance, remaining, reason, now)
	b.active = remaining
	b.history = append(b.history, closed)
	b.balance = balance
	b.stats = stats
	return closed, stats, nil
}

// Get returns an open position by id.
func (b *Book) Get(id string) (model.Position, bool) {
	if idx := b.index(id); idx >= 0 {
		return b.active[idx], true
	}
	return model.Position{}, false
}

// Active returns a copy of the open positions.
func (b *Book) Active() []model.Position {
	return append([]model.Position(nil), b.active...)
}

// History returns a copy of the closed positions.
func (b *Book) History() []model.Position {
	return append([]model.Position(nil), b.history...)
}

// Balance returns the realized account balance.
func (b *Book) Balance() float64 { return b.balance }

// Stats returns the current account statistics.
func (b *Book) Stats() model.AccountStats { return b.stats }

// Reset restores the starting balance and drops all positions and history.
func (b *Book) Reset() {
	b.balance = b.initial
	b.active = nil
	b.history = nil
	b.stats = model.InitialStats(b.initial)
}

// refresh keeps openPositions and equity in step with the active set.
func (b *Book) refresh() {
	b.stats.OpenPositions = len(b.active)
	b.stats.Equity = Equity(b.balance, b.active)
}

func (b *Book) index(id string) int {
	for i := range b.active {
		if b.active[i].ID == id {
			return i
		}
	}
	return -1
}
