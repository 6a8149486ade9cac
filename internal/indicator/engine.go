package indicator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"trading-simulator/internal/model"
)

// IndicatorConfig specifies a single indicator to compute.
type IndicatorConfig struct {
	Type   model.IndicatorKind
	Period int // SMA/EMA/RSI/BOLLINGER window; MACD slow period

	Fast   int     // MACD fast period
	Signal int     // MACD signal period
	K      float64 // BOLLINGER stddev multiplier
	Step   float64 // PSAR acceleration step
	Max    float64 // PSAR acceleration cap
}

// DefaultConfigs is the standard indicator set.
func DefaultConfigs() []IndicatorConfig {
	return []IndicatorConfig{
		{Type: model.KindSMA, Period: 50},
		{Type: model.KindEMA, Period: 9},
		{Type: model.KindRSI, Period: 14},
		{Type: model.KindMACD, Fast: 12, Period: 26, Signal: 9},
		{Type: model.KindBollinger, Period: 20, K: 2},
		{Type: model.KindPSAR, Step: 0.02, Max: 0.2},
	}
}

// MinCandles is the number of candles after which the indicator is Ready.
func (c IndicatorConfig) MinCandles() int {
	switch c.Type {
	case model.KindRSI:
		return c.Period + 1
	case model.KindMACD:
		return c.Period + c.Signal - 1
	case model.KindPSAR:
		return 2
	}
	return c.Period
}

func (c IndicatorConfig) build() Indicator {
	switch c.Type {
	case model.KindEMA:
		return NewEMA(c.Period)
	case model.KindRSI:
		return NewRSI(c.Period)
	case model.KindMACD:
		return NewMACD(c.Fast, c.Period, c.Signal)
	case model.KindBollinger:
		return NewBollinger(c.Period, c.K)
	case model.KindPSAR:
		return NewParabolicSAR(c.Step, c.Max)
	default:
		return NewSMA(c.Period)
	}
}

func (c IndicatorConfig) unit() model.Unit {
	switch c.Type {
	case model.KindRSI:
		return model.UnitOscillator
	case model.KindMACD:
		return model.UnitSpread
	}
	return model.UnitPrice
}

// ErrInvalidConfig is wrapped by ValidateConfigs and ParseSpecs failures.
var ErrInvalidConfig = errors.New("invalid indicator config")

// ValidateConfigs checks types and parameters of every config.
func ValidateConfigs(cfgs []IndicatorConfig) error {
	for i, c := range cfgs {
		var err error
		switch c.Type {
		case model.KindSMA, model.KindEMA, model.KindRSI:
			if c.Period < 1 {
				err = fmt.Errorf("period %d must be >= 1", c.Period)
			}
		case model.KindMACD:
			if c.Fast < 1 || c.Signal < 1 || c.Period <= c.Fast {
				err = fmt.Errorf("need 1 <= fast < slow and signal >= 1, got %d/%d/%d", c.Fast, c.Period, c.Signal)
			}
		case model.KindBollinger:
			if c.Period < 2 || c.K <= 0 {
				err = fmt.Errorf("need period >= 2 and k > 0, got %d/%v", c.Period, c.K)
			}
		case model.KindPSAR:
			if c.Step <= 0 || c.Max < c.Step {
				err = fmt.Errorf("need 0 < step <= max, got %v/%v", c.Step, c.Max)
			}
		default:
			err = fmt.Errorf("unknown type %q", c.Type)
		}
		if err != nil {
			return fmt.Errorf("%w: #%d %s: %v", ErrInvalidConfig, i, c.Type, err)
		}
	}
	return nil
}

// ParseSpecs parses "TYPE:ARGS,..." into configs. Multiple arguments are
// separated by '/': "SMA:50,EMA:9,RSI:14,MACD:12/26/9,BOLLINGER:20/2,PSAR:0.02/0.2".
// An empty string yields DefaultConfigs.
func ParseSpecs(s string) ([]IndicatorConfig, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultConfigs(), nil
	}

	var cfgs []IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConfig, part)
		}
		typ := model.IndicatorKind(strings.ToUpper(strings.TrimSpace(tokens[0])))
		args, err := parseArgs(tokens[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidConfig, part, err)
		}

		c := IndicatorConfig{Type: typ}
		switch {
		case typ == model.KindMACD && len(args) == 3:
			c.Fast, c.Period, c.Signal = int(args[0]), int(args[1]), int(args[2])
		case typ == model.KindBollinger && len(args) == 2:
			c.Period, c.K = int(args[0]), args[1]
		case typ == model.KindPSAR && len(args) == 2:
			c.Step, c.Max = args[0], args[1]
		case (typ == model.KindSMA || typ == model.KindEMA || typ == model.KindRSI) && len(args) == 1:
			c.Period = int(args[0])
		default:
			return nil, fmt.Errorf("%w: %q: wrong argument count", ErrInvalidConfig, part)
		}
		cfgs = append(cfgs, c)
	}
	if err := ValidateConfigs(cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}

func parseArgs(s string) ([]float64, error) {
	parts := strings.Split(s, "/")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Engine scores a candle window against a fixed indicator set.
// Stateless between calls; safe for concurrent use.
type Engine struct {
	configs []IndicatorConfig
}

// NewEngine creates an engine. A nil or empty config list uses DefaultConfigs.
func NewEngine(configs []IndicatorConfig) *Engine {
	if len(configs) == 0 {
		configs = DefaultConfigs()
	}
	return &Engine{configs: configs}
}

// Configs returns a copy of the engine's indicator set.
func (e *Engine) Configs() []IndicatorConfig {
	return append([]IndicatorConfig(nil), e.configs...)
}

// Compute replays candles (oldest first) into fresh indicator instances and
// returns one scored Indicator per enabled config, in config order.
// Indicators without enough history come back as N/A and neutral.
func (e *Engine) Compute(candles []model.Candle, enabled model.EnabledIndicators) []model.Indicator {
	out := make([]model.Indicator, 0, len(e.configs))
	var close float64
	if n := len(candles); n > 0 {
		close = candles[n-1].Close
	}

	for _, cfg := range e.configs {
		if !enabled.Enabled(cfg.Type) {
			continue
		}
		ind := cfg.build()
		for _, c := range candles {
			ind.Update(c)
		}
		if !ind.Ready() {
			out = append(out, model.Indicator{
				Kind:        cfg.Type,
				Name:        ind.Name(),
				Value:       model.NA(cfg.unit()),
				Signal:      model.SignalNeutral,
				Description: fmt.Sprintf("Needs %d candles, have %d", cfg.MinCandles(), len(candles)),
			})
			continue
		}
		out = append(out, score(cfg.Type, ind, close))
	}
	return out
}

func score(kind model.IndicatorKind, ind Indicator, close float64) model.Indicator {
	switch v := ind.(type) {
	case *RSI:
		return scoreRSI(v.Name(), v.Value())
	case *MACD:
		return scoreMACD(v, close)
	case *Bollinger:
		return scoreBollinger(v)
	case *ParabolicSAR:
		return scoreSAR(v, close)
	default:
		return scoreMA(kind, ind.Name(), ind.Value(), close)
	}
}
