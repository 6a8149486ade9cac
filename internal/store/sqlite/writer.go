// Package sqlite is the write-only audit journal of closed trades and broker
// orders. The simulation never reads it back.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite journal.
type WriterConfig struct {
	DBPath  string // path to SQLite database file, e.g. "data/journal.db"
	Session string // tag stored with every row
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It also implements model.TradeJournal for direct, unbatched writes.
type Writer struct {
	db      *sql.DB
	session string
	log     *slog.Logger

	mu sync.Mutex

	// OnCommit is called after each committed batch (for metrics).
	OnCommit func(rows int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	w := &Writer{db: db, session: cfg.Session, log: logger.Component("journal")}
	w.log.Info("opened database", slog.String("path", cfg.DBPath))
	return w, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS closed_trades (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session        TEXT    NOT NULL,
			position_id    TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			direction      TEXT    NOT NULL,
			entry_price    REAL    NOT NULL,
			exit_price     REAL    NOT NULL,
			quantity       REAL    NOT NULL,
			initial_qty    REAL    NOT NULL,
			profit_loss    REAL    NOT NULL,
			realized_pnl   REAL    NOT NULL,
			tp_hits        INTEGER NOT NULL,
			reason         TEXT    NOT NULL,
			balance_after  REAL    NOT NULL,
			opened_at      INTEGER NOT NULL,
			closed_at      INTEGER NOT NULL,
			UNIQUE (session, position_id)
		);
		CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at);

		CREATE TABLE IF NOT EXISTS broker_orders (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session     TEXT    NOT NULL,
			order_id    TEXT,
			symbol      TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			volume      REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			success     INTEGER NOT NULL,
			error       TEXT,
			created_at  INTEGER NOT NULL
		);
	`)
	return err
}

// RecordTrade inserts one closed trade. Reset discards are not trades and
// are skipped.
func (w *Writer) RecordTrade(ctx context.Context, t model.ClosedTrade) error {
	if t.Position.CloseReason == model.CloseReset {
		return nil
	}
	return w.insertBatch(ctx, []model.Event{{Type: model.EventPositionClosed, TS: t.Position.ClosedAt, Data: t}})
}

// Run reads events and journals closed trades and broker orders in batched
// transactions. Flushes every batchSize rows OR every flushDelay, whichever
// first. Other event types are ignored. Blocks until ctx is cancelled or ch
// is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Event) {
	batch := make([]model.Event, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The run context may already be done; the final flush still commits.
		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Error("batch insert failed", slog.Int("rows", len(batch)), slog.Any("error", err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-ch:
			if !ok {
				flush()
				return
			}
			if !journaled(ev) {
				continue
			}
			batch = append(batch, ev)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func journaled(ev model.Event) bool {
	switch d := ev.Data.(type) {
	case model.ClosedTrade:
		return d.Position.CloseReason != model.CloseReset
	case model.BrokerOrder:
		return true
	}
	return false
}

// insertBatch writes the batch in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, events []model.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO closed_trades (session, position_id, symbol, direction, entry_price, exit_price,
			quantity, initial_qty, profit_loss, realized_pnl, tp_hits, reason, balance_after, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer tradeStmt.Close()

	orderStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO broker_orders (session, order_id, symbol, direction, volume, stop_loss, take_profit, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer orderStmt.Close()

	rows := 0
	for _, ev := range events {
		switch d := ev.Data.(type) {
		case model.ClosedTrade:
			p := d.Position
			_, err = tradeStmt.ExecContext(ctx, w.session, p.ID, p.Symbol, string(p.Direction),
				p.EntryPrice, p.CurrentPrice, p.Quantity, p.InitialQuantity, p.ProfitLoss, p.RealizedPnL,
				p.TakeProfitHits, string(p.CloseReason), d.Balance, p.Timestamp.UnixMilli(), p.ClosedAt.UnixMilli())
		case model.BrokerOrder:
			_, err = orderStmt.ExecContext(ctx, w.session, d.OrderID, d.Symbol, string(d.Direction),
				d.Volume, d.StopLoss, d.TakeProfit, d.Success, d.Error, ev.TS.UnixMilli())
		default:
			continue
		}
		if err != nil {
			tx.Rollback()
			return err
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	took := time.Since(start)
	w.log.Debug("committed", slog.Int("rows", rows), slog.Duration("took", took))
	if w.OnCommit != nil {
		w.OnCommit(rows, took)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
