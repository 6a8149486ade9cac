package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSettings is wrapped by every Settings.Validate failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the user-tunable trading knobs. The engine consumes them but
// never mutates them.
type Settings struct {
	Symbol string `json:"symbol"`

	RiskPercentage        float64 `json:"riskPercentage"`
	StopLossPercent       float64 `json:"stopLossPercent"`
	TakeProfitPercent     float64 `json:"takeProfitPercent"`
	PartialTakePercentage float64 `json:"partialTakePercentage"`
	MaxTakeProfit         int     `json:"maxTakeProfit"`
	// MaxTrades caps concurrent open positions. 0 derives it from RiskPercentage.
	MaxTrades int `json:"maxTrades"`

	AutoTrading       bool          `json:"autoTrading"`
	MinSignalStrength float64       `json:"minSignalStrength"`
	ConfirmationCount int           `json:"confirmationCount"`
	TradingInterval   time.Duration `json:"tradingInterval"`

	Indicators EnabledIndicators `json:"indicators"`

	// BrokerMirror forwards auto-trade entries to the execution collaborator.
	BrokerMirror bool `json:"brokerMirror"`
}

// EnabledIndicators toggles each indicator kind on or off.
type EnabledIndicators map[IndicatorKind]bool

// AllIndicators returns a set with every known kind enabled.
func AllIndicators() EnabledIndicators {
	return EnabledIndicators{
		KindSMA:       true,
		KindEMA:       true,
		KindRSI:       true,
		KindMACD:      true,
		KindBollinger: true,
		KindPSAR:      true,
	}
}

// Enabled reports whether kind is switched on. A nil set enables everything.
func (e EnabledIndicators) Enabled(kind IndicatorKind) bool {
	if e == nil {
		return true
	}
	return e[kind]
}

// Clone returns an independent copy.
func (e EnabledIndicators) Clone() EnabledIndicators {
	if e == nil {
		return nil
	}
	out := make(EnabledIndicators, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// DefaultSettings are the trading knobs a new session starts with.
func DefaultSettings() Settings {
	return Settings{
		Symbol:                "BTCUSD",
		RiskPercentage:        5,
		StopLossPercent:       2,
		TakeProfitPercent:     4,
		PartialTakePercentage: 30,
		MaxTakeProfit:         3,
		MinSignalStrength:     0.7,
		ConfirmationCount:     3,
		TradingInterval:       15 * time.Second,
		Indicators:            AllIndicators(),
	}
}

// EffectiveMaxTrades is MaxTrades, or floor(100/RiskPercentage) when unset.
func (s Settings) EffectiveMaxTrades() int {
	if s.MaxTrades > 0 {
		return s.MaxTrades
	}
	if s.RiskPercentage <= 0 {
		return 1
	}
	n := int(math.Floor(100 / s.RiskPercentage))
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks every knob against its allowed range.
func (s Settings) Validate() error {
	switch {
	case s.RiskPercentage <= 0 || s.RiskPercentage > 100:
		return fmt.Errorf("%w: riskPercentage %.2f out of (0,100]", ErrInvalidSettings, s.RiskPercentage)
	case s.StopLossPercent <= 0 || s.StopLossPercent >= 100:
		return fmt.Errorf("%w: stopLossPercent %.2f out of (0,100)", ErrInvalidSettings, s.StopLossPercent)
	case s.TakeProfitPercent <= 0:
		return fmt.Errorf("%w: takeProfitPercent must be positive", ErrInvalidSettings)
	case s.PartialTakePercentage < 0 || s.PartialTakePercentage >= 100:
		return fmt.Errorf("%w: partialTakePercentage %.2f out of [0,100)", ErrInvalidSettings, s.PartialTakePercentage)
	case s.MaxTakeProfit < 1:
		return fmt.Errorf("%w: maxTakeProfit must be >= 1", ErrInvalidSettings)
	case s.MaxTrades < 0:
		return fmt.Errorf("%w: maxTrades must be >= 0", ErrInvalidSettings)
	case s.MinSignalStrength < 0 || s.MinSignalStrength > 1:
		return fmt.Errorf("%w: minSignalStrength %.2f out of [0,1]", ErrInvalidSettings, s.MinSignalStrength)
	case s.ConfirmationCount < 1 || s.ConfirmationCount > 6:
		return fmt.Errorf("%w: confirmationCount %d out of [1,6]", ErrInvalidSettings, s.ConfirmationCount)
	case s.TradingInterval < time.Second:
		return fmt.Errorf("%w: tradingInterval must be at least 1s", ErrInvalidSettings)
	}
	for k := range s.Indicators {
		switch k {
		case KindSMA, KindEMA, KindRSI, KindMACD, KindBollinger, KindPSAR:
		default:
			return fmt.Errorf("%w: unknown indicator %q", ErrInvalidSettings, k)
		}
	}
	return nil
}
