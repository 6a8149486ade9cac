package portfolio

import "trading-simulator/internal/model"

// tpExtension is the fraction of the original entry-to-target distance the
// take-profit moves on each partial hit.
const tpExtension = 0.5

// TickResult reports what a mark-to-market step did to a position.
type TickResult struct {
	PartialTP     bool    // a partial take-profit was taken
	ClosedQty     float64 // quantity taken off by the partial
	Realized      float64 // P&L locked in by the partial
	TargetReached bool    // final take-profit level hit; close on the exit pass
}

// Tick marks a position to price and applies the take-profit ladder.
//
// When price reaches the target and fewer than MaxTakeProfit levels were hit,
// the hit counter increments. Below the final level the position sheds
// PartialTakePercentage of its quantity at price, moves the stop to break-even
// and extends the target by half the original entry-to-target distance. The
// final level leaves the position intact for ShouldExit to close.
func Tick(p *model.Position, price float64, s model.Settings) TickResult {
	var res TickResult
	if p.Status != model.StatusOpen || !(price > 0) {
		return res
	}
	p.CurrentPrice = price

	sign := p.Direction.Sign()
	reached := (price-p.TakeProfit)*sign >= 0
	if reached && p.TakeProfitHits < s.MaxTakeProfit {
		p.TakeProfitHits++
		if p.TakeProfitHits < s.MaxTakeProfit {
			res.PartialTP = true
			res.ClosedQty = p.Quantity * s.PartialTakePercentage / 100
			res.Realized = (price - p.EntryPrice) * res.ClosedQty * sign
			p.RealizedPnL += res.Realized
			p.Quantity -= res.ClosedQty
			p.StopLoss = p.EntryPrice
			p.TakeProfit += sign * tpExtension * abs(p.InitialTakeProfit-p.EntryPrice)
		} else {
			res.TargetReached = true
		}
	}

	p.ProfitLoss = p.RealizedPnL + p.OpenPnL()
	p.ProfitLossPercent = (price - p.EntryPrice) * sign / p.EntryPrice * 100
	return res
}

// ShouldExit reports whether a position must close, and why: the stop was
// crossed, or every take-profit level was hit.
func ShouldExit(p *model.Position, s model.Settings) (bool, model.CloseReason) {
	if p.Status != model.StatusOpen {
		return false, ""
	}
	if p.TakeProfitHits >= s.MaxTakeProfit {
		return true, model.CloseTakeProfit
	}
	if (p.CurrentPrice-p.StopLoss)*p.Direction.Sign() <= 0 {
		return true, model.CloseStopLoss
	}
	return false, ""
}

// ComputeStats derives account statistics from the full trade history.
// Wins are trades with ProfitLoss > 0, losses < 0; break-even trades count
// toward the total only.
func ComputeStats(history []model.Position, balance float64, active []model.Position) model.AccountStats {
	st := model.AccountStats{
		Balance:       balance,
		OpenPositions: len(active),
		TotalTrades:   len(history),
	}
	for _, h := range history {
		switch {
		case h.ProfitLoss > 0:
			st.Wins++
			st.GrossProfit += h.ProfitLoss
		case h.ProfitLoss < 0:
			st.Losses++
			st.GrossLoss += -h.ProfitLoss
		}
		st.RealizedPnL += h.ProfitLoss
	}
	if st.TotalTrades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
	}
	st.ProfitFactor = model.NewProfitFactor(st.GrossProfit, st.GrossLoss)
	st.Equity = Equity(balance, active)
	return st
}

// Equity is balance plus the P&L of every open position.
func Equity(balance float64, active []model.Position) float64 {
	eq := balance
	for i := range active {
		eq += active[i].ProfitLoss
	}
	return eq
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
