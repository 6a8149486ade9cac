package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery_RunsPeriodically(t *testing.T) {
	s := New()
	defer s.Stop()

	var n atomic.Int32
	require.NoError(t, s.Every("tick", 5*time.Millisecond, func(context.Context) { n.Add(1) }))

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"tick"}, s.Names())
	iv, ok := s.Interval("tick")
	assert.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, iv)
}

func TestCancel_NoCallsAfterReturn(t *testing.T) {
	s := New()
	defer s.Stop()

	var n atomic.Int32
	require.NoError(t, s.Every("tick", time.Millisecond, func(context.Context) { n.Add(1) }))
	assert.Eventually(t, func() bool { return n.Load() > 0 }, time.Second, time.Millisecond)

	assert.True(t, s.Cancel("tick"))
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, n.Load())
	assert.Empty(t, s.Names())
	assert.False(t, s.Cancel("tick"))
}

func TestCancel_UnblocksTaskWaitingOnContext(t *testing.T) {
	s := New()
	defer s.Stop()

	started := make(chan struct{}, 1)
	require.NoError(t, s.Every("blocked", time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
	}))
	<-started

	done := make(chan struct{})
	go func() {
		s.Cancel("blocked")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cancel did not return")
	}
}

func TestEvery_ReplacesSameName(t *testing.T) {
	s := New()
	defer s.Stop()

	var first, second atomic.Int32
	require.NoError(t, s.Every("job", time.Millisecond, func(context.Context) { first.Add(1) }))
	require.NoError(t, s.Every("job", time.Millisecond, func(context.Context) { second.Add(1) }))

	frozen := first.Load()
	assert.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, frozen, first.Load())
	assert.Equal(t, []string{"job"}, s.Names())
}

func TestEvery_Errors(t *testing.T) {
	s := New()
	err := s.Every("bad", 0, func(context.Context) {})
	assert.True(t, errors.Is(err, ErrInvalidInterval))

	s.Stop()
	err = s.Every("late", time.Second, func(context.Context) {})
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestCancelAll_KeepsSchedulerUsable(t *testing.T) {
	s := New()
	defer s.Stop()

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, s.Every(name, time.Hour, func(context.Context) {}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())

	s.CancelAll()
	assert.Empty(t, s.Names())
	assert.NoError(t, s.Every("a", time.Hour, func(context.Context) {}))
}
