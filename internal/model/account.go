package model

import "github.com/shopspring/decimal"

// ProfitFactor is gross profit / gross loss over closed trades. When there
// are winning trades but no losing ones the ratio is undefined and Unbounded
// is set instead of storing a magic number.
type ProfitFactor struct {
	Ratio     float64 `json:"ratio"`
	Unbounded bool    `json:"unbounded"`
}

// NewProfitFactor derives the factor from gross profit and gross loss (both >= 0).
func NewProfitFactor(grossProfit, grossLoss float64) ProfitFactor {
	if grossLoss > 0 {
		return ProfitFactor{Ratio: grossProfit / grossLoss}
	}
	if grossProfit > 0 {
		return ProfitFactor{Unbounded: true}
	}
	return ProfitFactor{}
}

// String renders "∞" for the unbounded case, otherwise two decimals.
func (pf ProfitFactor) String() string {
	if pf.Unbounded {
		return "∞"
	}
	return decimal.NewFromFloat(pf.Ratio).StringFixed(2)
}

// AccountStats is recomputed from the full trade history on every close.
// Equity additionally tracks open P&L on every mark-to-market.
type AccountStats struct {
	Balance       float64      `json:"balance"`
	Equity        float64      `json:"equity"`
	OpenPositions int          `json:"openPositions"`
	WinRate       float64      `json:"winRate"` // percent
	ProfitFactor  ProfitFactor `json:"profitFactor"`

	TotalTrades int     `json:"totalTrades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GrossProfit float64 `json:"grossProfit"`
	GrossLoss   float64 `json:"grossLoss"`
	RealizedPnL float64 `json:"realizedPnL"`
}

// InitialStats is the account state before any trade.
func InitialStats(balance float64) AccountStats {
	return AccountStats{Balance: balance, Equity: balance}
}
