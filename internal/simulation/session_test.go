package simulation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-simulator/internal/execution"
	"trading-simulator/internal/model"
)

type countingObserver struct {
	mu      sync.Mutex
	refresh int
	stale   map[string]int
}

func (o *countingObserver) ObserveRefresh(time.Duration) {
	o.mu.Lock()
	o.refresh++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveStaleTick(task string) {
	o.mu.Lock()
	if o.stale == nil {
		o.stale = map[string]int{}
	}
	o.stale[task]++
	o.mu.Unlock()
}

func (o *countingObserver) staleCount(task string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale[task]
}

// idleConfig never ticks on its own within a test's lifetime.
func idleConfig() Config {
	cfg := testConfig()
	cfg.CandleInterval = time.Hour
	cfg.IndicatorInterval = time.Hour
	cfg.PositionInterval = time.Hour
	return cfg
}

func startSession(t *testing.T, cfg Config, opts ...Option) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := NewSession(cfg, rec, opts...)
	require.NoError(t, err)
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s, rec
}

func TestSession_StoppedAndUnstarted(t *testing.T) {
	s, err := NewSession(idleConfig(), nil)
	require.NoError(t, err)

	_, err = s.Snapshot(context.Background())
	assert.True(t, errors.Is(err, ErrStopped), "before start: %v", err)

	s.Start(context.Background())
	_, err = s.Snapshot(context.Background())
	require.NoError(t, err)

	s.Stop()
	s.Stop()
	_, err = s.Snapshot(context.Background())
	assert.True(t, errors.Is(err, ErrStopped))
	assert.Empty(t, s.sched.Names())
}

func TestSession_SchedulesCadences(t *testing.T) {
	s, _ := startSession(t, idleConfig())
	assert.Equal(t, []string{TaskCandle, TaskIndicators, TaskPositions}, s.sched.Names())

	ctx := context.Background()
	require.NoError(t, s.SetAutoTrading(ctx, true))
	assert.Contains(t, s.sched.Names(), TaskAutoTrade)
	iv, _ := s.sched.Interval(TaskAutoTrade)
	assert.Equal(t, 15*time.Second, iv)

	_, err := s.PatchSettings(ctx, func(st model.Settings) (model.Settings, error) {
		st.TradingInterval = 30 * time.Second
		return st, nil
	})
	require.NoError(t, err)
	iv, _ = s.sched.Interval(TaskAutoTrade)
	assert.Equal(t, 30*time.Second, iv)

	require.NoError(t, s.SetAutoTrading(ctx, false))
	assert.NotContains(t, s.sched.Names(), TaskAutoTrade)
	assert.Len(t, s.sched.Names(), 3, "base cadences survive")
}

func TestSession_PatchKeepsConcurrentAutoTradeOff(t *testing.T) {
	s, _ := startSession(t, idleConfig())
	ctx := context.Background()
	require.NoError(t, s.SetAutoTrading(ctx, true))

	entered := make(chan struct{})
	release := make(chan struct{})
	patched := make(chan error, 1)
	go func() {
		_, err := s.PatchSettings(ctx, func(st model.Settings) (model.Settings, error) {
			close(entered)
			<-release
			st.RiskPercentage = 2
			return st, nil
		})
		patched <- err
	}()

	// The toggle is issued while the patch holds the settings it read.
	<-entered
	toggled := make(chan error, 1)
	go func() { toggled <- s.SetAutoTrading(ctx, false) }()
	time.Sleep(10 * time.Millisecond)
	close(release)

	require.NoError(t, <-patched)
	require.NoError(t, <-toggled)

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, st.AutoTrading, "the patch must not revive auto-trading")
	assert.Equal(t, 2.0, st.RiskPercentage)
	assert.NotContains(t, s.sched.Names(), TaskAutoTrade)
}

func TestSession_PatchErrorLeavesSettings(t *testing.T) {
	s, _ := startSession(t, idleConfig())
	ctx := context.Background()
	before, err := s.Settings(ctx)
	require.NoError(t, err)

	boom := errors.New("rejected")
	_, err = s.PatchSettings(ctx, func(st model.Settings) (model.Settings, error) {
		st.RiskPercentage = 7
		return st, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.PatchSettings(ctx, func(st model.Settings) (model.Settings, error) {
		st.RiskPercentage = -1
		return st, nil
	})
	assert.ErrorIs(t, err, model.ErrInvalidSettings)

	after, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.RiskPercentage, after.RiskPercentage)
}

func TestSession_TicksDriveEngine(t *testing.T) {
	cfg := testConfig()
	cfg.CandleInterval = 2 * time.Millisecond
	cfg.IndicatorInterval = 5 * time.Millisecond
	cfg.PositionInterval = time.Millisecond
	obs := &countingObserver{}
	s, rec := startSession(t, cfg, WithObserver(obs))

	assert.Eventually(t, func() bool {
		return rec.count(model.EventCandle) >= 3 && rec.count(model.EventIndicators) >= 1
	}, 2*time.Second, time.Millisecond)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Candles, 100)
	obs.mu.Lock()
	assert.Positive(t, obs.refresh)
	obs.mu.Unlock()
}

func TestSession_StaleTicksDropped(t *testing.T) {
	obs := &countingObserver{}
	s, _ := startSession(t, idleConfig(), WithObserver(obs))

	ran := false
	s.inbox <- message{epoch: 99, task: TaskPositions, fn: func() { ran = true }}
	_, err := s.Snapshot(context.Background()) // processed after the stale message
	require.NoError(t, err)

	assert.False(t, ran)
	assert.Equal(t, 1, obs.staleCount(TaskPositions))
}

func TestSession_ResetInvalidatesQueuedTicks(t *testing.T) {
	s, rec := startSession(t, idleConfig())
	ctx := context.Background()

	_, err := s.OpenPosition(ctx, model.Long)
	require.NoError(t, err)

	// A tick scheduled before the reset, still sitting in the inbox.
	oldEpoch := uint64(1)
	ran := false
	notice, err := s.Reset(ctx)
	require.NoError(t, err)
	s.inbox <- message{epoch: oldEpoch, task: TaskCandle, fn: func() { ran = true }}

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Len(t, notice.Discarded, 1)
	assert.Empty(t, snap.Positions)
	assert.Equal(t, 10000.0, snap.Stats.Balance)
	assert.Equal(t, uint64(1), snap.Seq)

	evs := rec.all()
	last := evs[len(evs)-1]
	assert.Equal(t, model.EventReset, last.Type)
	assert.Equal(t, uint64(1), last.Seq)
	assert.Equal(t, []string{TaskCandle, TaskIndicators, TaskPositions}, s.sched.Names())
}

func TestSession_CommandsSerialized(t *testing.T) {
	cfg := testConfig()
	cfg.CandleInterval = time.Millisecond
	cfg.PositionInterval = time.Millisecond
	cfg.Settings.MaxTrades = 1000
	s, _ := startSession(t, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := model.Long
			if i%2 == 1 {
				dir = model.Short
			}
			if p, err := s.OpenPosition(ctx, dir); err == nil && i%4 == 0 {
				_, _ = s.ClosePosition(ctx, p.ID)
			}
			_, _ = s.Snapshot(ctx)
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(snap.Positions), snap.Stats.OpenPositions)
	assert.Equal(t, 20, len(snap.Positions)+len(snap.History))
}

func TestSession_Step(t *testing.T) {
	s, rec := startSession(t, idleConfig())
	ctx := context.Background()
	before, _ := s.Snapshot(ctx)

	_, sig, err := s.Step(ctx)
	require.NoError(t, err)
	assert.Empty(t, sig.Action, "auto-trading off")

	after, _ := s.Snapshot(ctx)
	assert.Equal(t, before.Candles[99].Time+60, after.Candles[99].Time)
	assert.Equal(t, []model.EventType{model.EventCandle, model.EventIndicators, model.EventDecision}, rec.types())
}

func TestSession_SubmitBrokerOrderLeavesStateAlone(t *testing.T) {
	broker := execution.NewPaperBroker(execution.PaperConfig{Seed: 1})
	s, rec := startSession(t, idleConfig(), WithBroker(broker, time.Second))
	ctx := context.Background()

	_, err := s.SubmitBrokerOrder(ctx, model.Long)
	assert.True(t, errors.Is(err, execution.ErrNotConnected))
	_, _ = s.Snapshot(ctx) // drain the failure event

	require.NoError(t, s.ConnectBroker(ctx, "http://localhost:9000"))
	assert.True(t, s.BrokerConnected())

	rec.reset()
	order, err := s.SubmitBrokerOrder(ctx, model.Short)
	require.NoError(t, err)
	assert.True(t, order.Success)
	assert.True(t, strings.HasPrefix(order.OrderID, "PAPER-"), order.OrderID)
	assert.Equal(t, model.Short, order.Direction)

	snap, _ := s.Snapshot(ctx)
	assert.Empty(t, snap.Positions)
	assert.Equal(t, 10000.0, snap.Stats.Balance)
	assert.Equal(t, 1, rec.count(model.EventBrokerOrder))

	s.DisconnectBroker()
	assert.False(t, s.BrokerConnected())
}

func TestSession_NoBroker(t *testing.T) {
	s, _ := startSession(t, idleConfig())
	ctx := context.Background()
	_, err := s.SubmitBrokerOrder(ctx, model.Long)
	assert.ErrorIs(t, err, ErrNoBroker)
	assert.ErrorIs(t, s.ConnectBroker(ctx, "http://x"), ErrNoBroker)
	assert.False(t, s.BrokerConnected())
}

func TestSession_MirrorPublishesOutcome(t *testing.T) {
	broker := execution.NewPaperBroker(execution.PaperConfig{Seed: 1})
	require.NoError(t, broker.Connect(context.Background(), "http://localhost"))
	s, rec := startSession(t, idleConfig(), WithBroker(broker, time.Second))

	require.NoError(t, s.do(context.Background(), func() { s.mirror(model.Long) }))

	assert.Eventually(t, func() bool { return rec.count(model.EventBrokerOrder) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, broker.Fills(), 1)
}
