package ringbuf

import (
	"testing"

	"trading-simulator/internal/model"
)

func c(close float64) model.Candle {
	return model.Candle{Time: int64(close), Open: close, High: close, Low: close, Close: close}
}

func TestWindow_PushUntilFull(t *testing.T) {
	w := New(3)

	for i, p := range []float64{1, 2, 3} {
		if w.Push(c(p)) {
			t.Fatalf("push %d should not evict", i)
		}
	}
	if w.Len() != 3 {
		t.Fatalf("expected full window of 3, got len=%d", w.Len())
	}

	last, ok := w.Last()
	if !ok || last.Close != 3 {
		t.Fatalf("expected last close 3, got %v ok=%v", last.Close, ok)
	}
}

func TestWindow_FIFOEviction(t *testing.T) {
	w := New(3)
	for _, p := range []float64{1, 2, 3} {
		w.Push(c(p))
	}

	if !w.Push(c(4)) {
		t.Fatal("push onto full window should evict")
	}
	if w.Len() != 3 {
		t.Fatalf("length must stay fixed, got %d", w.Len())
	}

	got := model.Closes(w.Slice())
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v (window %v)", i, want[i], got[i], got)
		}
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(4)
	for i := 0; i < 23; i++ {
		w.Push(c(float64(i)))
	}
	got := w.Slice()
	if len(got) != 4 {
		t.Fatalf("expected 4 candles, got %d", len(got))
	}
	for i, cd := range got {
		if cd.Close != float64(19+i) {
			t.Fatalf("index %d: expected %d, got %v", i, 19+i, cd.Close)
		}
	}
}

func TestWindow_SliceIsCopy(t *testing.T) {
	w := FromSlice(2, []model.Candle{c(1), c(2), c(3)})
	s := w.Slice()
	s[0].Close = 99

	if first := w.Slice()[0]; first.Close != 2 {
		t.Fatalf("mutating Slice() result leaked into window: %v", first.Close)
	}
}

func TestWindow_EmptyLast(t *testing.T) {
	if _, ok := New(2).Last(); ok {
		t.Fatal("Last on empty window should fail")
	}
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := New(0)
	w.Push(c(1))
	if !w.Push(c(2)) || w.Len() != 1 {
		t.Errorf("New(0) should hold one candle, len=%d", w.Len())
	}
}
