package simulation

import (
	"fmt"
	"time"

	"trading-simulator/internal/indicator"
	"trading-simulator/internal/marketdata/synth"
	"trading-simulator/internal/model"
	"trading-simulator/internal/strategy"
)

// Config fixes everything about a session that Settings does not cover.
type Config struct {
	InitialBalance float64
	WindowSize     int     // candles kept in the sliding window
	Volatility     float64 // per-candle move scale (0.01 == ±0.5% around the bias)
	LiveVolatility float64 // price walk between candles, used to mark positions
	Trend          float64 // added to every candle's fractional change
	Seed           int64

	Synth      synth.Config // StartPrice 0 picks one from the symbol
	Indicators []indicator.IndicatorConfig
	Weights    strategy.Weights
	Settings   model.Settings

	CandleInterval    time.Duration
	IndicatorInterval time.Duration
	PositionInterval  time.Duration

	// Now stamps positions and events. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig runs a 100-candle window with 3s candles, 15s
// indicator refresh, 1s position ticks.
func DefaultConfig() Config {
	return Config{
		InitialBalance:    10000,
		WindowSize:        100,
		Volatility:        0.01,
		LiveVolatility:    0.005,
		Seed:              1,
		Synth:             synth.Config{Bias: 0.02},
		Indicators:        indicator.DefaultConfigs(),
		Weights:           strategy.DefaultWeights(),
		Settings:          model.DefaultSettings(),
		CandleInterval:    3 * time.Second,
		IndicatorInterval: 15 * time.Second,
		PositionInterval:  time.Second,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case !(c.InitialBalance > 0):
		return fmt.Errorf("simulation: initial balance must be positive, got %v", c.InitialBalance)
	case c.WindowSize < 2:
		return fmt.Errorf("simulation: window size must be at least 2, got %d", c.WindowSize)
	case c.Volatility < 0 || c.LiveVolatility < 0:
		return fmt.Errorf("simulation: volatility must not be negative")
	case c.CandleInterval <= 0 || c.IndicatorInterval <= 0 || c.PositionInterval <= 0:
		return fmt.Errorf("simulation: cadences must be positive")
	}
	if err := indicator.ValidateConfigs(c.Indicators); err != nil {
		return err
	}
	return c.Settings.Validate()
}

func (c Config) synthConfig(symbol string) synth.Config {
	sc := c.Synth
	if sc.StartPrice <= 0 {
		sc.StartPrice = synth.StartPriceFor(symbol)
	}
	return sc
}
