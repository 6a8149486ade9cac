// Package scheduler runs named, cancellable periodic tasks.
//
// Each task owns a ticker goroutine. Cancel and Stop wait for the task's
// goroutine to exit, so once they return no further invocation can start.
// Task functions must return promptly when their context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trading-simulator/internal/logger"
)

var (
	// ErrStopped is returned by Every after Stop.
	ErrStopped = errors.New("scheduler stopped")
	// ErrInvalidInterval is returned for non-positive intervals.
	ErrInvalidInterval = errors.New("interval must be positive")
)

type task struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Scheduler owns a set of periodic tasks keyed by name.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
	log     *slog.Logger
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		tasks: make(map[string]*task),
		log:   logger.Component("scheduler"),
	}
}

// Every runs fn every interval under name until cancelled. An existing task
// with the same name is cancelled first. The first call happens one interval
// after registration; ticks that fall due while fn is still running are dropped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidInterval, name, interval)
	}
	s.Cancel(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{interval: interval, cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = t
	go run(ctx, t, fn)

	s.log.Debug("task scheduled", "task", name, "interval", interval)
	return nil
}

func run(ctx context.Context, t *task, fn func(ctx context.Context)) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick and a cancel can be ready together; cancel wins.
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}

// Cancel stops the named task and waits for it to exit. Reports whether a
// task by that name existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	s.log.Debug("task cancelled", "task", name)
	return true
}

// CancelAll stops every task and waits for all of them. The scheduler stays
// usable.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Stop cancels every task and rejects further registrations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.CancelAll()
}

// Names lists the running tasks, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Interval returns the period of a running task.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return 0, false
	}
	return t.interval, true
}
