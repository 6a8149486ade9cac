// Package execution is the trade-execution collaborator: an opaque, possibly
// failing remote broker the simulation can mirror orders to.
//
// Nothing in this package touches simulated state. A failed, rejected or
// timed-out order is reported to the caller and never retried here.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-simulator/internal/model"
	"trading-simulator/internal/portfolio"
)

var (
	// ErrNotConnected is returned by SubmitOrder before Connect succeeds.
	ErrNotConnected = errors.New("broker not connected")
	// ErrInvalidEndpoint is returned by Connect for non-http(s) endpoints.
	ErrInvalidEndpoint = errors.New("invalid broker endpoint")
	// ErrRejected is returned when the broker refuses an order.
	ErrRejected = errors.New("order rejected")
)

// Broker is the remote trading terminal.
type Broker interface {
	Connect(ctx context.Context, endpoint string) error
	Disconnect()
	IsConnected() bool
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// OrderRequest is a market order with attached stop-loss and take-profit.
type OrderRequest struct {
	Direction  model.Direction `json:"direction"`
	Symbol     string          `json:"symbol"`
	Volume     float64         `json:"volume"`
	StopLoss   float64         `json:"stopLoss"`
	TakeProfit float64         `json:"takeProfit"`
}

// Validate checks the request before it goes on the wire.
func (r OrderRequest) Validate() error {
	switch {
	case !r.Direction.Valid():
		return fmt.Errorf("%w: direction %q", portfolio.ErrInvalidOrder, r.Direction)
	case r.Symbol == "":
		return fmt.Errorf("%w: empty symbol", portfolio.ErrInvalidOrder)
	case !(r.Volume > 0):
		return fmt.Errorf("%w: volume %v", portfolio.ErrInvalidOrder, r.Volume)
	}
	return nil
}

// OrderResult represents the outcome of an order placement.
type OrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status"` // PLACED, REJECTED, ERROR
	Message string `json:"message,omitempty"`
}

const (
	StatusPlaced   = "PLACED"
	StatusRejected = "REJECTED"
	StatusError    = "ERROR"
)

// minVolume is the smallest lot the terminal accepts.
var minVolume = decimal.NewFromFloat(0.01)

// BuildOrder derives a broker order from the same risk sizing the simulation
// uses: stop-loss and take-profit levels match a simulated entry at price, and
// volume is riskAmount / (price * 0.01) rounded to two decimals.
func BuildOrder(dir model.Direction, price float64, s model.Settings, balance float64) (OrderRequest, error) {
	sz, err := portfolio.Size(dir, price, s, balance)
	if err != nil {
		return OrderRequest{}, err
	}
	vol := decimal.NewFromFloat(sz.RiskAmount).
		Div(decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(0.01))).
		Round(2)
	if vol.LessThan(minVolume) {
		vol = minVolume
	}
	return OrderRequest{
		Direction:  dir,
		Symbol:     s.Symbol,
		Volume:     vol.InexactFloat64(),
		StopLoss:   sz.StopLoss,
		TakeProfit: sz.TakeProfit,
	}, nil
}

// Record converts an order outcome into the event payload published by the
// simulation.
func Record(req OrderRequest, res OrderResult, err error) model.BrokerOrder {
	out := model.BrokerOrder{
		Direction:  req.Direction,
		Symbol:     req.Symbol,
		Volume:     req.Volume,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Success:    err == nil && res.Success,
		OrderID:    res.OrderID,
	}
	if err != nil {
		out.Error = err.Error()
	} else if !res.Success {
		out.Error = res.Message
	}
	return out
}
