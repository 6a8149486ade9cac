package model

import (
	"encoding/json"
	"time"
)

// EventType names what changed in a simulation session.
type EventType string

const (
	EventCandle         EventType = "candle"
	EventIndicators     EventType = "indicators"
	EventDecision       EventType = "decision"
	EventPositionOpened EventType = "position_opened"
	EventPositionUpdate EventType = "position_updated"
	EventPartialTP      EventType = "partial_take_profit"
	EventPositionClosed EventType = "position_closed"
	EventStats          EventType = "stats"
	EventCapacity       EventType = "capacity_exceeded"
	EventReset          EventType = "reset"
	EventSettings       EventType = "settings"
	EventBrokerOrder    EventType = "broker_order"
)

// Event is one published state transition. Seq increases by one per event
// within a session and restarts at 1 after a reset.
type Event struct {
	Type EventType `json:"type"`
	Seq  uint64    `json:"seq"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data,omitempty"`
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ClosedTrade is the record handed to trade journals when a position closes.
type ClosedTrade struct {
	Position Position     `json:"position"`
	Balance  float64      `json:"balance"`
	Stats    AccountStats `json:"stats"`
}

// CandleUpdate is the payload of EventCandle.
type CandleUpdate struct {
	Candle Candle  `json:"candle"`
	Price  float64 `json:"price"`
}

// PartialTakeProfit is the payload of EventPartialTP.
type PartialTakeProfit struct {
	Position  Position `json:"position"`
	Level     int      `json:"level"`
	ClosedQty float64  `json:"closedQty"`
	Realized  float64  `json:"realized"`
}

// CapacityNotice is the payload of EventCapacity: an open request was
// refused because the concurrent-position cap is reached.
type CapacityNotice struct {
	Direction Direction `json:"direction"`
	Open      int       `json:"open"`
	Max       int       `json:"max"`
}

// ResetNotice is the payload of EventReset.
type ResetNotice struct {
	Discarded []Position   `json:"discarded,omitempty"`
	Stats     AccountStats `json:"stats"`
}

// BrokerOrder is the payload of EventBrokerOrder: the outcome of mirroring
// an order to the execution collaborator. It never changes simulated state.
type BrokerOrder struct {
	Direction  Direction `json:"direction"`
	Symbol     string    `json:"symbol"`
	Volume     float64   `json:"volume"`
	StopLoss   float64   `json:"stopLoss"`
	TakeProfit float64   `json:"takeProfit"`
	Success    bool      `json:"success"`
	OrderID    string    `json:"orderId,omitempty"`
	Error      string    `json:"error,omitempty"`
}
