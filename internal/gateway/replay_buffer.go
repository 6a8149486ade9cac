package gateway

import "sync"

type replayEntry struct {
	Seq  uint64
	Data []byte // pre-built envelope
}

// ReplayBuffer keeps the most recent envelopes for clients that reconnect
// with ?since. Hub seqs are dense, so seq s lives in slot s % capacity and
// the retained range is always [first, last].
type ReplayBuffer struct {
	mu    sync.RWMutex
	slots [][]byte
	first uint64
	last  uint64 // 0 while empty
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ReplayBuffer{slots: make([][]byte, capacity)}
}

// Push stores the envelope for seq. A seq that does not follow the last one
// starts a new range. data must not be mutated afterwards.
func (rb *ReplayBuffer) Push(seq uint64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.last == 0 || seq != rb.last+1 {
		rb.first = seq
	}
	rb.last = seq
	rb.slots[seq%uint64(len(rb.slots))] = data
	if n := uint64(len(rb.slots)); rb.last-rb.first+1 > n {
		rb.first = rb.last - n + 1
	}
}

// Since returns the envelopes after seq `after`, oldest first. ok is false
// when some of them were already evicted and the caller needs a snapshot.
func (rb *ReplayBuffer) Since(after uint64) (entries []replayEntry, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.last == 0 || after >= rb.last {
		return nil, true
	}
	if after+1 < rb.first {
		return nil, false
	}
	entries = make([]replayEntry, 0, rb.last-after)
	for s := after + 1; s <= rb.last; s++ {
		entries = append(entries, replayEntry{Seq: s, Data: rb.slots[s%uint64(len(rb.slots))]})
	}
	return entries, true
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.last == 0 {
		return 0
	}
	return int(rb.last - rb.first + 1)
}
