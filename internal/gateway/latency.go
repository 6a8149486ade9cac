package gateway

import (
	"slices"
	"sync"
	"time"
)

// LatencySummary describes how long events took from the engine clock to the
// websocket broadcast.
type LatencySummary struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// LatencyTracker keeps the last N delivery latencies. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	window  []time.Duration
	next    int
	wrapped bool
}

// NewLatencyTracker creates a tracker over the last size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 4096
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Record adds a sample. Negative samples come from clock skew and are ignored.
func (lt *LatencyTracker) Record(d time.Duration) {
	if d < 0 {
		return
	}
	lt.mu.Lock()
	lt.window[lt.next] = d
	lt.next++
	if lt.next == len(lt.window) {
		lt.next, lt.wrapped = 0, true
	}
	lt.mu.Unlock()
}

// Count returns the number of retained samples.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.count()
}

func (lt *LatencyTracker) count() int {
	if lt.wrapped {
		return len(lt.window)
	}
	return lt.next
}

// Summary returns nearest-rank percentiles over the retained samples.
func (lt *LatencyTracker) Summary() LatencySummary {
	lt.mu.Lock()
	sorted := slices.Clone(lt.window[:lt.count()])
	lt.mu.Unlock()

	if len(sorted) == 0 {
		return LatencySummary{}
	}
	slices.Sort(sorted)
	rank := func(p float64) time.Duration {
		i := int(p*float64(len(sorted))+0.5) - 1
		return sorted[max(0, min(i, len(sorted)-1))]
	}
	return LatencySummary{
		Count: len(sorted),
		P50:   rank(0.50),
		P95:   rank(0.95),
		P99:   rank(0.99),
		Max:   sorted[len(sorted)-1],
	}
}
