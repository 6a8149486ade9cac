package breaker

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

// fakeClock lets tests step past the reset timeout without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(maxFailures, reset)
	b.now = clk.now
	return b, clk
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3, time.Second)
	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", b.CurrentState())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.CurrentState())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("expected rejection without calling fn, got %v (called=%v)", err, called)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errFail })
	if b.CurrentState() != StateClosed {
		t.Errorf("non-consecutive failures should not trip, got %v", b.CurrentState())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	var transitions []string
	b.OnStateChange = func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) }

	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })
	clk.advance(time.Second)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed after successful trial call, got %v", b.CurrentState())
	}
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)

	b.Execute(func() error { return errFail })
	if b.CurrentState() != StateOpen {
		t.Errorf("expected open after failed trial call, got %v", b.CurrentState())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected reopened breaker to reject, got %v", err)
	}
}

func TestBreaker_CountsFilter(t *testing.T) {
	errBusiness := errors.New("rejected")
	b, _ := newTestBreaker(1, time.Second)
	b.Counts = func(err error) bool { return !errors.Is(err, errBusiness) }

	if err := b.Execute(func() error { return errBusiness }); err != errBusiness {
		t.Fatalf("expected business error passed through, got %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("filtered error must not trip, got %v", b.CurrentState())
	}
	b.Execute(func() error { return errFail })
	if b.CurrentState() != StateOpen {
		t.Errorf("counted error should trip, got %v", b.CurrentState())
	}
}
