// Package synth generates synthetic OHLCV candles with a biased random walk.
//
// Each step opens at the previous close and moves the close by
// (u - 0.5 + Bias) * volatility + trend, u uniform in [0,1). A positive Bias
// gives the walk a small upward long-run drift.
package synth

import (
	"math"
	"math/rand"
	"strings"

	"trading-simulator/internal/model"
	"trading-simulator/internal/ringbuf"
)

// minPrice floors every generated price so the walk never reaches zero.
const minPrice = 1e-6

// Config tunes the walk. Zero fields take the defaults from DefaultConfig.
type Config struct {
	StartPrice float64
	Bias       float64 // added to the centred uniform draw (0.02 == "u - 0.48")
	WickFactor float64 // high/low widen by up to open*volatility*WickFactor
	VolumeMin  int64
	VolumeSpan int64 // volume uniform in [VolumeMin, VolumeMin+VolumeSpan)
	Step       int64 // seconds between candle times
	StartTime  int64 // unix seconds of the first candle
}

// DefaultConfig is the demo feed: 60s candles biased slightly upward.
func DefaultConfig() Config {
	return Config{
		StartPrice: 100,
		Bias:       0.02,
		WickFactor: 0.5,
		VolumeMin:  500,
		VolumeSpan: 1000,
		Step:       60,
	}
}

// Generator produces candles from a seeded random source.
// Not safe for concurrent use.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New creates a generator. A nil rng is replaced by one seeded with 1.
func New(cfg Config, rng *rand.Rand) *Generator {
	def := DefaultConfig()
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = def.StartPrice
	}
	if cfg.WickFactor <= 0 {
		cfg.WickFactor = def.WickFactor
	}
	if cfg.VolumeMin <= 0 {
		cfg.VolumeMin = def.VolumeMin
	}
	if cfg.VolumeSpan <= 0 {
		cfg.VolumeSpan = def.VolumeSpan
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Generator{cfg: cfg, rng: rng}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// GenerateCandles returns count candles, oldest first, starting at StartPrice.
func (g *Generator) GenerateCandles(count int, volatility, trend float64) []model.Candle {
	if count <= 0 {
		return nil
	}
	out := make([]model.Candle, 0, count)
	prev := model.Candle{
		Time:  g.cfg.StartTime - g.cfg.Step,
		Close: g.cfg.StartPrice,
	}
	for i := 0; i < count; i++ {
		prev = g.Next(prev, volatility, trend)
		out = append(out, prev)
	}
	return out
}

// Next derives the candle that follows prev.
func (g *Generator) Next(prev model.Candle, volatility, trend float64) model.Candle {
	open := prev.Close
	if open <= 0 {
		open = g.cfg.StartPrice
	}
	change := (g.rng.Float64()-0.5+g.cfg.Bias)*volatility + trend
	close := floor(open * (1 + change))

	wick := open * math.Abs(volatility) * g.cfg.WickFactor * g.rng.Float64()
	high := math.Max(open, close) + wick
	low := floor(math.Min(open, close) - wick)

	return model.Candle{
		Time:   prev.Time + g.cfg.Step,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: g.cfg.VolumeMin + g.rng.Int63n(g.cfg.VolumeSpan),
	}
}

// Advance appends one candle to the window, evicting the oldest when full.
// An empty window is seeded from StartPrice.
func (g *Generator) Advance(w *ringbuf.Window, volatility, trend float64) model.Candle {
	prev, ok := w.Last()
	if !ok {
		prev = model.Candle{Time: g.cfg.StartTime - g.cfg.Step, Close: g.cfg.StartPrice}
	}
	c := g.Next(prev, volatility, trend)
	w.Push(c)
	return c
}

// NextPrice walks a live price by (u - 0.5 + Bias) * volatility.
// Used between candles to mark open positions.
func (g *Generator) NextPrice(price, volatility float64) float64 {
	if price <= 0 {
		price = g.cfg.StartPrice
	}
	return floor(price * (1 + (g.rng.Float64()-0.5+g.cfg.Bias)*volatility))
}

func floor(p float64) float64 {
	if p < minPrice || math.IsNaN(p) {
		return minPrice
	}
	return p
}

// StartPriceFor picks a plausible opening price for a symbol.
func StartPriceFor(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "BTC"):
		return 20000
	case strings.Contains(s, "ETH"):
		return 1800
	case strings.Contains(s, "JPY"):
		return 150
	case strings.Contains(s, "EUR"), strings.Contains(s, "GBP"):
		return 1.10
	case isStockTicker(s):
		return 120
	}
	return 100
}

// isStockTicker treats short all-letter symbols (AAPL, MSFT) as equities.
func isStockTicker(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
