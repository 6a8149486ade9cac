package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trading-simulator/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func closed(id string, pnl float64, reason model.CloseReason) model.ClosedTrade {
	return model.ClosedTrade{
		Position: model.Position{
			ID:              id,
			Symbol:          "BTCUSD",
			Direction:       model.Long,
			Status:          model.StatusClosed,
			EntryPrice:      100,
			CurrentPrice:    100 + pnl/10,
			Quantity:        10,
			InitialQuantity: 10,
			ProfitLoss:      pnl,
			Timestamp:       t0,
			ClosedAt:        t0.Add(time.Minute),
			CloseReason:     reason,
		},
		Balance: 10000 + pnl,
	}
}

func open(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	w, err := New(WriterConfig{DBPath: path, Session: "s1"})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func TestRecordTrade(t *testing.T) {
	w, r := open(t)
	ctx := context.Background()

	var commits int
	w.OnCommit = func(rows int, _ time.Duration) { commits += rows }

	require.NoError(t, w.RecordTrade(ctx, closed("a", 50, model.CloseTakeProfit)))
	require.NoError(t, w.RecordTrade(ctx, closed("b", -20, model.CloseStopLoss)))
	// Same position twice is ignored.
	require.NoError(t, w.RecordTrade(ctx, closed("a", 50, model.CloseTakeProfit)))
	// Reset discards never reach the journal.
	require.NoError(t, w.RecordTrade(ctx, closed("c", 5, model.CloseReset)))

	trades, err := r.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "b", trades[0].PositionID)
	assert.Equal(t, "stop_loss", trades[0].Reason)
	assert.Equal(t, "a", trades[1].PositionID)
	assert.InDelta(t, 105.0, trades[1].ExitPrice, 1e-9)
	assert.InDelta(t, 10050.0, trades[1].BalanceAfter, 1e-9)
	assert.True(t, trades[1].ClosedAt.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 2, commits)

	sum, err := r.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Trades)
	assert.InDelta(t, 30.0, sum.NetPnL, 1e-9)
}

func TestRunBatchesEvents(t *testing.T) {
	w, r := open(t)

	ch := make(chan model.Event, 8)
	ch <- model.Event{Type: model.EventStats, Data: model.AccountStats{}}
	ch <- model.Event{Type: model.EventPositionClosed, Data: closed("a", 10, model.CloseManual)}
	ch <- model.Event{Type: model.EventBrokerOrder, TS: t0, Data: model.BrokerOrder{
		Direction: model.Long, Symbol: "BTCUSD", Volume: 2.5, Success: true, OrderID: "PAPER-1",
	}}
	ch <- model.Event{Type: model.EventBrokerOrder, TS: t0, Data: model.BrokerOrder{
		Direction: model.Short, Symbol: "BTCUSD", Volume: 1, Error: "rejected",
	}}
	ch <- model.Event{Type: model.EventPositionClosed, Data: closed("z", 3, model.CloseReset)}
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	sum, err := r.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Trades: 1, NetPnL: 10, Orders: 2, Rejected: 1}, sum)
}

func TestRecentTradesEmpty(t *testing.T) {
	_, r := open(t)
	trades, err := r.RecentTrades(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
