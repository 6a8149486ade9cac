// Package bus fans simulation events out to independent consumers
// (websocket clients, Redis, the trade journal, metrics).
package bus

import (
	"context"
	"log/slog"
	"sync"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
)

// FanOut broadcasts events to N subscriber channels. If a subscriber's
// channel is full the event is dropped for that subscriber only, so a slow
// consumer never blocks the simulation.
type FanOut struct {
	mu      sync.RWMutex
	outputs map[int]*subscriber
	nextID  int
	bufSize int
	closed  bool
	log     *slog.Logger

	// OnDrop is called when an event is dropped for a subscriber.
	OnDrop func(name string, ev model.Event)
}

type subscriber struct {
	name string
	ch   chan model.Event
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &FanOut{
		outputs: make(map[int]*subscriber),
		bufSize: outputBufferSize,
		log:     logger.Component("bus"),
	}
}

// Subscribe registers a named consumer. The returned cancel func removes it
// and closes its channel.
func (f *FanOut) Subscribe(name string) (<-chan model.Event, func()) {
	sub := &subscriber{name: name, ch: make(chan model.Event, f.bufSize)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.outputs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if s, ok := f.outputs[id]; ok {
				delete(f.outputs, id)
				close(s.ch)
			}
			f.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (f *FanOut) Publish(ev model.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.outputs {
		select {
		case sub.ch <- ev:
		default:
			if f.OnDrop != nil {
				f.OnDrop(sub.name, ev)
			} else {
				f.log.Warn("subscriber full, dropping event", "subscriber", sub.name, "type", ev.Type, "seq", ev.Seq)
			}
		}
	}
}

// Run publishes everything read from input until ctx is cancelled or input
// is closed, then closes all subscriber channels.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Event) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			f.Publish(ev)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel. Idempotent.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.outputs {
		close(sub.ch)
		delete(f.outputs, id)
	}
}

// ChannelStat is one subscriber's (length, capacity), used for saturation
// reporting.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns the fill level of every subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(f.outputs))
	for _, sub := range f.outputs {
		stats = append(stats, ChannelStat{Name: sub.name, Len: len(sub.ch), Cap: cap(sub.ch)})
	}
	return stats
}
