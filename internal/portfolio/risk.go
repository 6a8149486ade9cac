package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"trading-simulator/internal/model"
)

var (
	// ErrCapacityExceeded is returned when the open-position cap is reached.
	ErrCapacityExceeded = errors.New("max open positions reached")
	// ErrInvalidOrder is returned for unusable direction, price or balance.
	ErrInvalidOrder = errors.New("invalid order")
)

// Sizing is the risk arithmetic behind one entry.
type Sizing struct {
	RiskAmount  float64 `json:"riskAmount"`
	RiskPerUnit float64 `json:"riskPerUnit"`
	Quantity    float64 `json:"quantity"`
	StopLoss    float64 `json:"stopLoss"`
	TakeProfit  float64 `json:"takeProfit"`
}

// Size computes risk-based sizing: risk balance*risk% per trade, stop-loss
// offset against the direction, quantity = risk / |price - stop|.
func Size(dir model.Direction, price float64, s model.Settings, balance float64) (Sizing, error) {
	if !dir.Valid() {
		return Sizing{}, fmt.Errorf("%w: direction %q", ErrInvalidOrder, dir)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return Sizing{}, fmt.Errorf("%w: price %v", ErrInvalidOrder, price)
	}
	if !(balance > 0) {
		return Sizing{}, fmt.Errorf("%w: balance %v", ErrInvalidOrder, balance)
	}

	sign := dir.Sign()
	sz := Sizing{
		RiskAmount: balance * s.RiskPercentage / 100,
		StopLoss:   price * (1 - sign*s.StopLossPercent/100),
		TakeProfit: price * (1 + sign*s.TakeProfitPercent/100),
	}
	sz.RiskPerUnit = math.Abs(price - sz.StopLoss)
	if !(sz.RiskPerUnit > 0) || !(sz.RiskAmount > 0) {
		return Sizing{}, fmt.Errorf("%w: degenerate risk (amount %v, per unit %v)", ErrInvalidOrder, sz.RiskAmount, sz.RiskPerUnit)
	}
	sz.Quantity = sz.RiskAmount / sz.RiskPerUnit
	return sz, nil
}

// Open creates a new position at price. It fails with ErrCapacityExceeded
// when openCount already reaches the effective max-trades cap.
func Open(dir model.Direction, price float64, s model.Settings, balance float64, openCount int, now time.Time) (model.Position, error) {
	if limit := s.EffectiveMaxTrades(); openCount >= limit {
		return model.Position{}, fmt.Errorf("%w: %d/%d open", ErrCapacityExceeded, openCount, limit)
	}
	sz, err := Size(dir, price, s, balance)
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{
		ID:                uuid.NewString(),
		Symbol:            s.Symbol,
		Direction:         dir,
		Status:            model.StatusOpen,
		EntryPrice:        price,
		CurrentPrice:      price,
		Quantity:          sz.Quantity,
		InitialQuantity:   sz.Quantity,
		StopLoss:          sz.StopLoss,
		TakeProfit:        sz.TakeProfit,
		InitialTakeProfit: sz.TakeProfit,
		Timestamp:         now,
	}, nil
}
