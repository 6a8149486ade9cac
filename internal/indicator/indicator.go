// Package indicator provides technical indicator calculations over candle data.
//
// Every indicator is a streaming state machine: feed candles oldest first with
// Update, read Value once Ready. The Engine replays a whole candle window into
// fresh instances on every refresh, so no state survives between refreshes.
package indicator

import "trading-simulator/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator label (e.g., "SMA(50)", "MACD(12,26,9)").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current primary value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
