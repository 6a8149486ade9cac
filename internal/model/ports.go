package model

import "context"

// ── Output Port Interfaces ──
// These decouple the simulation from its sinks (websocket fan-out, Redis,
// SQLite). None of them feed state back into the engine.

// EventPublisher receives every state transition of a session.
// Publish must not block the caller.
type EventPublisher interface {
	Publish(ev Event)
}

// TradeJournal records closed trades.
type TradeJournal interface {
	// RecordTrade persists one closed trade. Errors are reported, never retried.
	RecordTrade(ctx context.Context, t ClosedTrade) error

	// Close releases underlying resources.
	Close() error
}

// PublisherFunc adapts a plain function to EventPublisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// MultiPublisher fans an event out to several publishers in order.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}
