package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TradeRecord is one row of closed_trades.
type TradeRecord struct {
	ID           int64     `json:"id"`
	Session      string    `json:"session"`
	PositionID   string    `json:"positionId"`
	Symbol       string    `json:"symbol"`
	Direction    string    `json:"direction"`
	EntryPrice   float64   `json:"entryPrice"`
	ExitPrice    float64   `json:"exitPrice"`
	ProfitLoss   float64   `json:"profitLoss"`
	Reason       string    `json:"reason"`
	BalanceAfter float64   `json:"balanceAfter"`
	ClosedAt     time.Time `json:"closedAt"`
}

// Summary aggregates the journal.
type Summary struct {
	Trades   int     `json:"trades"`
	NetPnL   float64 `json:"netPnl"`
	Orders   int     `json:"orders"`
	Rejected int     `json:"rejected"`
}

// Reader provides read-only access to the journal for the audit endpoint.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// RecentTrades returns the last limit trades, newest first.
func (r *Reader) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session, position_id, symbol, direction, entry_price, exit_price,
			profit_loss, reason, balance_after, closed_at
		FROM closed_trades
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query closed_trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var closedMs int64
		if err := rows.Scan(&t.ID, &t.Session, &t.PositionID, &t.Symbol, &t.Direction, &t.EntryPrice,
			&t.ExitPrice, &t.ProfitLoss, &t.Reason, &t.BalanceAfter, &closedMs); err != nil {
			return nil, fmt.Errorf("sqlite scan closed_trades: %w", err)
		}
		t.ClosedAt = time.UnixMilli(closedMs).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Summarize counts trades and broker orders.
func (r *Reader) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(profit_loss), 0) FROM closed_trades`,
	).Scan(&s.Trades, &s.NetPnL)
	if err != nil {
		return s, fmt.Errorf("sqlite summarize trades: %w", err)
	}
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) FROM broker_orders`,
	).Scan(&s.Orders, &s.Rejected)
	if err != nil {
		return s, fmt.Errorf("sqlite summarize orders: %w", err)
	}
	return s, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
