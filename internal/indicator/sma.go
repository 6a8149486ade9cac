package indicator

import (
	"fmt"
	"math"

	"trading-simulator/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA(%d)", s.period) }

func (s *SMA) Update(candle model.Candle) { s.Add(candle.Close) }

// Add feeds a raw value.
func (s *SMA) Add(x float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = x
	s.sum += x
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the window.
// Returns 0 until Ready.
func (s *SMA) StdDev() float64 {
	if !s.Ready() {
		return 0
	}
	var ss float64
	for _, v := range s.buf {
		d := v - s.current
		ss += d * d
	}
	return math.Sqrt(ss / float64(s.period))
}
