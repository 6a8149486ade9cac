package gateway

import "testing"

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := uint64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got, ok := rb.Since(6)
	if !ok {
		t.Fatal("Since(6) should be complete")
	}
	if len(got) != 4 {
		t.Fatalf("Since(6): expected 4, got %d", len(got))
	}
	for i, e := range got {
		if want := uint64(i) + 7; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}

	if got, ok := rb.Since(10); !ok || len(got) != 0 {
		t.Errorf("Since(latest) = %d entries, ok=%v; want 0, true", len(got), ok)
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5) // tiny buffer

	// Push 8 entries; the first 3 are evicted
	for i := uint64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got, ok := rb.Since(3)
	if !ok || len(got) != 5 {
		t.Fatalf("Since(3): got %d entries ok=%v, want 5 true", len(got), ok)
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("range = [%d..%d], want [4..8]", got[0].Seq, got[4].Seq)
	}

	// Seq 3 was overwritten: a client that last saw 2 has a gap.
	if _, ok := rb.Since(2); ok {
		t.Error("Since(2) should report a gap")
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	got, ok := rb.Since(0)
	if !ok || len(got) != 0 {
		t.Fatalf("empty buffer: got %d entries ok=%v", len(got), ok)
	}
}
