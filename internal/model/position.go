package model

import "time"

// Direction is the side of a simulated position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is long or short.
func (d Direction) Valid() bool { return d == Long || d == Short }

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// DirectionFor maps a buy/sell decision onto a position direction.
func DirectionFor(side SignalSide) (Direction, bool) {
	switch side {
	case SignalBuy:
		return Long, true
	case SignalSell:
		return Short, true
	}
	return "", false
}

// PositionStatus is open until the position is moved to history.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason records why a position left the active set.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseManual     CloseReason = "manual"
	// CloseReset marks positions discarded by a simulation reset. They are
	// never credited to the balance.
	CloseReset CloseReason = "reset"
)

// Position is one simulated trade.
//
// Quantity only ever decreases (partial take-profits). ProfitLoss is the total
// P&L of the trade: RealizedPnL locked in by partial take-profits plus the open
// P&L of the remaining quantity at CurrentPrice.
type Position struct {
	ID                string         `json:"id"`
	Symbol            string         `json:"symbol"`
	Direction         Direction      `json:"direction"`
	Status            PositionStatus `json:"status"`
	EntryPrice        float64        `json:"entryPrice"`
	CurrentPrice      float64        `json:"currentPrice"`
	Quantity          float64        `json:"quantity"`
	InitialQuantity   float64        `json:"initialQuantity"`
	ProfitLoss        float64        `json:"profitLoss"`
	ProfitLossPercent float64        `json:"profitLossPercent"`
	RealizedPnL       float64        `json:"realizedPnL"`
	StopLoss          float64        `json:"stopLoss"`
	TakeProfit        float64        `json:"takeProfit"`
	InitialTakeProfit float64        `json:"initialTakeProfit"`
	TakeProfitHits    int            `json:"takeProfitHits"`
	Timestamp         time.Time      `json:"timestamp"`
	ClosedAt          time.Time      `json:"closedAt,omitempty"`
	CloseReason       CloseReason    `json:"closeReason,omitempty"`
}

// OpenPnL returns the P&L of the remaining quantity at CurrentPrice.
func (p *Position) OpenPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity * p.Direction.Sign()
}
