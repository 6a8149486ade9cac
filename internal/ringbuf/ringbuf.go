// Package ringbuf provides a fixed-length FIFO window of model.Candle.
// Pushing onto a full window evicts the oldest candle. The window is owned
// by a single goroutine; it does no locking.
package ringbuf

import "trading-simulator/internal/model"

// Window is a fixed-capacity circular buffer of candles, oldest first.
type Window struct {
	buf   []model.Candle
	head  int // index of the oldest candle
	count int
}

// New creates a window holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// FromSlice builds a window of the given capacity holding the newest candles of cs.
func FromSlice(capacity int, cs []model.Candle) *Window {
	w := New(capacity)
	for _, c := range cs {
		w.Push(c)
	}
	return w
}

// Push appends a candle. Returns true if the oldest candle was evicted to make room.
func (w *Window) Push(c model.Candle) bool {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = c
		w.count++
		return false
	}
	w.buf[w.head] = c
	w.head = (w.head + 1) % len(w.buf)
	return true
}

// Last returns the newest candle.
func (w *Window) Last() (model.Candle, bool) {
	if w.count == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.head+w.count-1)%len(w.buf)], true
}

// Slice returns a copy of the window contents, oldest first.
func (w *Window) Slice() []model.Candle {
	out := make([]model.Candle, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the current number of candles.
func (w *Window) Len() int { return w.count }
