package indicator

import (
	"fmt"
	"math"

	"trading-simulator/internal/model"
)

// Scoring constants. Each heuristic is monotonic: the further price sits past
// the triggering level, the higher the strength.
const (
	maBase     = 0.3
	maPerPct   = 0.2 // strength per 1% distance from the average
	maCap      = 0.9
	rsiUpper   = 70.0
	rsiLower   = 30.0
	rsiBase    = 0.5
	rsiSpan    = 60.0 // RSI points past the band per +1.0 strength
	rsiCap     = 0.95
	macdNorm   = 0.002 // histogram normalised against 0.2% of price
	macdCap    = 0.9
	bbOutside  = 0.7
	bbPerWidth = 0.5
	bbCap      = 0.95
	sarBase    = 0.4
	sarPerPct  = 0.1
	sarCap     = 0.8
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func valid(v float64, unit model.Unit) model.Reading {
	return model.Reading{Number: v, Valid: true, Unit: unit}
}

// scoreMA rates a moving average: price above it is a buy, below a sell.
func scoreMA(kind model.IndicatorKind, name string, ma, close float64) model.Indicator {
	out := model.Indicator{Kind: kind, Name: name, Value: valid(ma, model.UnitPrice), Signal: model.SignalNeutral}
	if ma <= 0 {
		return out
	}
	devPct := (close - ma) / ma * 100
	switch {
	case devPct > 0:
		out.Signal = model.SignalBuy
		out.Description = fmt.Sprintf("Price %.2f%% above %s", devPct, name)
	case devPct < 0:
		out.Signal = model.SignalSell
		out.Description = fmt.Sprintf("Price %.2f%% below %s", -devPct, name)
	default:
		out.Description = "Price at " + name
		return out
	}
	out.Strength = clamp(maBase+math.Abs(devPct)*maPerPct, 0, maCap)
	return out
}

// scoreRSI: overbought is a sell, oversold a buy, anything between is neutral.
func scoreRSI(name string, v float64) model.Indicator {
	out := model.Indicator{Kind: model.KindRSI, Name: name, Value: valid(v, model.UnitOscillator), Signal: model.SignalNeutral}
	switch {
	case v > rsiUpper:
		out.Signal = model.SignalSell
		out.Strength = clamp(rsiBase+(v-rsiUpper)/rsiSpan, 0, rsiCap)
		out.Extreme = true
		out.Description = "Overbought"
	case v < rsiLower:
		out.Signal = model.SignalBuy
		out.Strength = clamp(rsiBase+(rsiLower-v)/rsiSpan, 0, rsiCap)
		out.Extreme = true
		out.Description = "Oversold"
	default:
		out.Description = "Neutral momentum"
	}
	return out
}

// scoreMACD takes its side from the histogram sign.
func scoreMACD(m *MACD, close float64) model.Indicator {
	hist := m.Histogram()
	out := model.Indicator{
		Kind:      model.KindMACD,
		Name:      m.Name(),
		Value:     valid(m.Value(), model.UnitSpread),
		Signal:    model.SignalNeutral,
		Crossover: m.Crossed(),
	}
	out.Description = fmt.Sprintf("MACD %.4f, signal %.4f, histogram %.4f", m.Value(), m.Signal(), hist)
	norm := math.Abs(close) * macdNorm
	if norm == 0 || hist == 0 {
		return out
	}
	if hist > 0 {
		out.Signal = model.SignalBuy
	} else {
		out.Signal = model.SignalSell
	}
	out.Strength = clamp(math.Abs(hist)/norm, 0, macdCap)
	return out
}

// scoreBollinger: a close outside the bands is an extreme mean-reversion
// signal; inside, a weaker lean scaled by distance from the middle.
func scoreBollinger(b *Bollinger) model.Indicator {
	upper, middle, lower := b.Bands()
	out := model.Indicator{
		Kind:        model.KindBollinger,
		Name:        b.Name(),
		Value:       valid(middle, model.UnitPrice),
		Signal:      model.SignalNeutral,
		Description: fmt.Sprintf("Upper %s, lower %s", model.FormatPrice(upper), model.FormatPrice(lower)),
	}
	pos, ok := b.Position()
	if !ok || pos == 0 {
		return out
	}
	abs := math.Abs(pos)
	if pos > 0 {
		out.Signal = model.SignalSell
	} else {
		out.Signal = model.SignalBuy
	}
	if abs > 1 {
		out.Extreme = true
		out.Strength = clamp(bbOutside+(abs-1)*bbPerWidth, 0, bbCap)
		return out
	}
	out.Strength = clamp(abs*bbPerWidth, 0, bbCap)
	return out
}

// scoreSAR follows the SAR trend; strength grows with the distance to the stop.
func scoreSAR(p *ParabolicSAR, close float64) model.Indicator {
	out := model.Indicator{
		Kind:      model.KindPSAR,
		Name:      p.Name(),
		Value:     valid(p.Value(), model.UnitPrice),
		Crossover: p.Flipped(),
	}
	if p.Long() {
		out.Signal = model.SignalBuy
		out.Description = "Uptrend"
	} else {
		out.Signal = model.SignalSell
		out.Description = "Downtrend"
	}
	if p.Flipped() {
		out.Description += " (reversal)"
	}
	if close > 0 {
		distPct := math.Abs(close-p.Value()) / close * 100
		out.Strength = clamp(sarBase+distPct*sarPerPct, 0, sarCap)
	}
	return out
}
