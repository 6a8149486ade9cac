package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-simulator/internal/model"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

var errInvalidDirection = errors.New("direction must be long/buy or short/sell")

// Validator turns request payloads into engine arguments.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator { return &Validator{} }

// Direction accepts long/buy and short/sell, case-insensitive.
func (v *Validator) Direction(s string) (model.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return model.Long, nil
	case "short", "sell":
		return model.Short, nil
	}
	return "", fmt.Errorf("%w: %q", errInvalidDirection, s)
}

// Limit parses an optional positive row limit, capped at maxJournalLimit.
func (v *Validator) Limit(s string) (int, error) {
	if s == "" {
		return defaultJournalLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", s)
	}
	if n > maxJournalLimit {
		n = maxJournalLimit
	}
	return n, nil
}

// Settings applies a partial update to cur and validates the result.
func (v *Validator) Settings(cur model.Settings, p SettingsPatch) (model.Settings, error) {
	next := cur
	next.Indicators = cur.Indicators.Clone()

	if p.Symbol != nil {
		next.Symbol = strings.ToUpper(strings.TrimSpace(*p.Symbol))
		if next.Symbol == "" {
			return cur, fmt.Errorf("%w: symbol must not be empty", model.ErrInvalidSettings)
		}
	}
	setFloat(&next.RiskPercentage, p.RiskPercentage)
	setFloat(&next.StopLossPercent, p.StopLossPercent)
	setFloat(&next.TakeProfitPercent, p.TakeProfitPercent)
	setFloat(&next.PartialTakePercentage, p.PartialTakePercentage)
	setFloat(&next.MinSignalStrength, p.MinSignalStrength)
	setInt(&next.MaxTakeProfit, p.MaxTakeProfit)
	setInt(&next.MaxTrades, p.MaxTrades)
	setInt(&next.ConfirmationCount, p.ConfirmationCount)
	if p.AutoTrading != nil {
		next.AutoTrading = *p.AutoTrading
	}
	if p.BrokerMirror != nil {
		next.BrokerMirror = *p.BrokerMirror
	}
	if p.TradingIntervalSeconds != nil {
		next.TradingInterval = time.Duration(*p.TradingIntervalSeconds * float64(time.Second))
	}
	if len(p.Indicators) > 0 {
		if next.Indicators == nil {
			next.Indicators = model.AllIndicators()
		}
		for name, on := range p.Indicators {
			next.Indicators[model.IndicatorKind(strings.ToUpper(name))] = on
		}
	}

	if err := next.Validate(); err != nil {
		return cur, err
	}
	return next, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
