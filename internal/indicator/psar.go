package indicator

import (
	"fmt"
	"math"
	"strconv"

	"trading-simulator/internal/model"
)

// ParabolicSAR is Wilder's stop-and-reverse. Unlike the window indicators it
// carries trend state across the whole history, so it must see every candle
// from the start of the series.
type ParabolicSAR struct {
	step, max float64

	count   int
	long    bool
	sar     float64 // level the latest candle was tested against
	next    float64 // level for the following candle
	ep      float64 // extreme point of the current trend
	af      float64
	flipped bool

	prevHigh, prevLow float64
}

// NewParabolicSAR creates a SAR with the given acceleration step and cap.
func NewParabolicSAR(step, max float64) *ParabolicSAR {
	return &ParabolicSAR{step: step, max: max}
}

func (p *ParabolicSAR) Name() string {
	return fmt.Sprintf("PSAR(%s,%s)",
		strconv.FormatFloat(p.step, 'f', -1, 64), strconv.FormatFloat(p.max, 'f', -1, 64))
}

func (p *ParabolicSAR) Update(c model.Candle) {
	p.count++
	p.flipped = false

	if p.count == 2 {
		// Short only when the low fell further than the high rose.
		down := p.prevLow - c.Low
		up := c.High - p.prevHigh
		p.long = !(down > 0 && down > up)
		if p.long {
			p.next, p.ep = p.prevLow, c.High
		} else {
			p.next, p.ep = p.prevHigh, c.Low
		}
		p.af = p.step
		// The seeding candle is also the first one tested.
		p.prevHigh, p.prevLow = c.High, c.Low
	}
	if p.count >= 2 {
		p.advance(c)
	}

	p.prevHigh, p.prevLow = c.High, c.Low
}

func (p *ParabolicSAR) advance(c model.Candle) {
	p.sar = p.next

	if p.long {
		if c.Low <= p.sar {
			// New SAR is the old extreme, never below the last two highs.
			p.sar = math.Max(p.ep, math.Max(p.prevHigh, c.High))
			p.reverse(c.Low)
			p.next = math.Max(p.sar+p.af*(p.ep-p.sar), math.Max(p.prevHigh, c.High))
			return
		}
		if c.High > p.ep {
			p.ep = c.High
			p.af = math.Min(p.af+p.step, p.max)
		}
		// SAR may never sit above the prior two lows.
		p.next = math.Min(p.sar+p.af*(p.ep-p.sar), math.Min(p.prevLow, c.Low))
		return
	}

	if c.High >= p.sar {
		p.sar = math.Min(p.ep, math.Min(p.prevLow, c.Low))
		p.reverse(c.High)
		p.next = math.Min(p.sar+p.af*(p.ep-p.sar), math.Min(p.prevLow, c.Low))
		return
	}
	if c.Low < p.ep {
		p.ep = c.Low
		p.af = math.Min(p.af+p.step, p.max)
	}
	p.next = math.Max(p.sar+p.af*(p.ep-p.sar), math.Max(p.prevHigh, c.High))
}

func (p *ParabolicSAR) reverse(newEP float64) {
	p.long = !p.long
	p.ep = newEP
	p.af = p.step
	p.flipped = true
}

// Value is the current SAR level.
func (p *ParabolicSAR) Value() float64 { return p.sar }
func (p *ParabolicSAR) Ready() bool    { return p.count >= 2 }

// Long reports whether the current trend is up.
func (p *ParabolicSAR) Long() bool { return p.long }

// Flipped reports whether the last candle reversed the trend.
func (p *ParabolicSAR) Flipped() bool { return p.flipped }
