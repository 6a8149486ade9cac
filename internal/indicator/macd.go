package indicator

import (
	"fmt"

	"trading-simulator/internal/model"
)

// MACD tracks EMA(fast) - EMA(slow), its EMA(signal) and the histogram.
// The signal EMA only receives MACD-line values once the slow EMA is ready.
type MACD struct {
	fast, slow, signal *EMA
	fp, sp, gp         int

	line     float64
	hist     float64
	prevHist float64
	histN    int
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
		fp:     fast,
		sp:     slow,
		gp:     signal,
	}
}

func (m *MACD) Name() string { return fmt.Sprintf("MACD(%d,%d,%d)", m.fp, m.sp, m.gp) }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Add(candle.Close)
	m.slow.Add(candle.Close)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Add(m.line)
	if !m.signal.Ready() {
		return
	}
	m.prevHist = m.hist
	m.hist = m.line - m.signal.Value()
	m.histN++
}

// Value is the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Signal is the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram is MACD line minus signal line.
func (m *MACD) Histogram() float64 { return m.hist }

// Crossed reports whether the histogram changed sign on the last update.
func (m *MACD) Crossed() bool {
	if m.histN < 2 {
		return false
	}
	return (m.prevHist <= 0 && m.hist > 0) || (m.prevHist >= 0 && m.hist < 0)
}

// Ready is true once the histogram is defined.
func (m *MACD) Ready() bool { return m.signal.Ready() }
