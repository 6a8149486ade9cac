package indicator

import (
	"fmt"
	"strconv"

	"trading-simulator/internal/model"
)

// Bollinger computes SMA(period) ± k population standard deviations.
type Bollinger struct {
	mid   *SMA
	k     float64
	close float64
}

// NewBollinger creates bands over period closes at k standard deviations.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{mid: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%s)", b.mid.period, strconv.FormatFloat(b.k, 'f', -1, 64))
}

func (b *Bollinger) Update(candle model.Candle) {
	b.mid.Add(candle.Close)
	b.close = candle.Close
}

// Value is the middle band.
func (b *Bollinger) Value() float64 { return b.mid.Value() }
func (b *Bollinger) Ready() bool    { return b.mid.Ready() }

// Bands returns upper, middle and lower.
func (b *Bollinger) Bands() (upper, middle, lower float64) {
	middle = b.mid.Value()
	w := b.k * b.mid.StdDev()
	return middle + w, middle, middle - w
}

// Position returns (close - middle) / half-width: ±1 at the bands, beyond
// ±1 outside them. ok is false when the bands have zero width.
func (b *Bollinger) Position() (pos float64, ok bool) {
	upper, middle, _ := b.Bands()
	half := upper - middle
	if !b.Ready() || half <= 0 {
		return 0, false
	}
	return (b.close - middle) / half, true
}
