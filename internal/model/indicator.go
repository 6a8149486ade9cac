package model

// SignalSide is the directional opinion of an indicator or a decision.
type SignalSide string

const (
	SignalBuy     SignalSide = "buy"
	SignalSell    SignalSide = "sell"
	SignalNeutral SignalSide = "neutral"
)

// IndicatorKind identifies the technical method behind an Indicator.
type IndicatorKind string

const (
	KindSMA       IndicatorKind = "SMA"
	KindEMA       IndicatorKind = "EMA"
	KindRSI       IndicatorKind = "RSI"
	KindMACD      IndicatorKind = "MACD"
	KindBollinger IndicatorKind = "BOLLINGER"
	KindPSAR      IndicatorKind = "PSAR"
)

// IsTrend reports whether the kind is a trend-following moving average.
func (k IndicatorKind) IsTrend() bool {
	return k == KindSMA || k == KindEMA
}

// Unit tags what a Reading's number means, which drives formatting.
type Unit string

const (
	UnitPrice      Unit = "price"      // same scale as the candle closes
	UnitOscillator Unit = "oscillator" // bounded 0-100
	UnitSpread     Unit = "spread"     // signed difference of two prices
)

// Reading is a tagged numeric indicator value. Valid=false means the window
// was too short for the indicator's period (rendered as "N/A").
type Reading struct {
	Number float64 `json:"number"`
	Valid  bool    `json:"valid"`
	Unit   Unit    `json:"unit"`
}

// NA returns an invalid reading of the given unit.
func NA(unit Unit) Reading {
	return Reading{Unit: unit}
}

// Indicator is one scored indicator output, recomputed from the full candle
// window on every refresh.
type Indicator struct {
	Kind     IndicatorKind `json:"kind"`
	Name     string        `json:"name"` // e.g. "SMA(50)", "MACD(12,26,9)"
	Value    Reading       `json:"value"`
	Signal   SignalSide    `json:"signal"`
	Strength float64       `json:"strength"` // [0,1]

	// Extreme is set for RSI past 70/30 and for closes outside the Bollinger bands.
	Extreme bool `json:"extreme,omitempty"`
	// Crossover is set when the MACD histogram or the SAR trend flipped on the last candle.
	Crossover bool `json:"crossover,omitempty"`

	Description string `json:"description,omitempty"`
}

// Decision is the aggregate verdict over an indicator set. Ephemeral.
type Decision struct {
	Decision       SignalSide `json:"decision"`
	Confidence     float64    `json:"confidence"` // [0,1]
	ConfirmedCount int        `json:"confirmedCount"`
	Reason         string     `json:"reason"`
}

// NeutralDecision is the zero-information verdict.
func NeutralDecision(reason string) Decision {
	return Decision{Decision: SignalNeutral, Reason: reason}
}
