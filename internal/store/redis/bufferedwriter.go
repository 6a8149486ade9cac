package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"trading-simulator/internal/breaker"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
)

// EventWriter is the write side of Writer, split out for the buffered wrapper.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev model.Event) error
}

// BufferedWriter wraps an EventWriter with a circuit breaker.
// While the circuit is open, events are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer EventWriter
	cb     *breaker.Breaker
	ctx    context.Context
	log    *slog.Logger

	mu     sync.Mutex
	buffer []model.Event
	maxBuf int // max buffered events before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when an event is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered events
	OnError  func(err error) // called when a write fails with the circuit closed
}

// NewBufferedWriter creates a BufferedWriter wrapping w.
func NewBufferedWriter(ctx context.Context, w EventWriter, cb *breaker.Breaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		log:    logger.Component("redis-buffer"),
		buffer: make([]model.Event, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush when the circuit closes. The hook runs under the breaker lock.
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to breaker.State) {
		if prev != nil {
			prev(from, to)
		}
		if to == breaker.StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Publish implements model.EventPublisher. It performs network I/O, so it
// belongs behind a bus subscription, never on the engine goroutine.
func (bw *BufferedWriter) Publish(ev model.Event) {
	_ = bw.Write(ev)
}

// Write sends ev through the circuit breaker. If the circuit is open the
// event is buffered and nil is returned.
func (bw *BufferedWriter) Write(ev model.Event) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteEvent(bw.ctx, ev)
	})
	if errors.Is(err, breaker.ErrCircuitOpen) {
		bw.bufferEvent(ev)
		return nil
	}
	if err != nil && bw.OnError != nil {
		bw.OnError(err)
	}
	return err
}

// Run writes events from ch until ctx is cancelled or ch is closed.
func (bw *BufferedWriter) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := bw.Write(ev); err != nil {
				bw.log.Warn("write failed", slog.String("event", string(ev.Type)), slog.Any("error", err))
			}
		}
	}
}

func (bw *BufferedWriter) bufferEvent(ev model.Event) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, ev)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered events through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.Event, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, ev := range toFlush {
		if err := bw.writer.WriteEvent(bw.ctx, ev); err != nil {
			bw.log.Warn("flush write failed", slog.String("event", string(ev.Type)), slog.Any("error", err))
			continue
		}
		flushed++
	}

	bw.log.Info("flushed buffered events", slog.Int("count", flushed), slog.Int("buffered", len(toFlush)))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
