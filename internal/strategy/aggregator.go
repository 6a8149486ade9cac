// Package strategy turns a scored indicator set into a trading decision.
//
// The Aggregator weighs buy and sell indicators against each other; the
// AutoTrader decides whether a decision is strong enough to act on.
package strategy

import (
	"fmt"
	"log/slog"
	"strings"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
)

// Weights are the aggregator's tuning knobs. Only their relative ordering
// matters; exact values are heuristics.
type Weights struct {
	Threshold float64 // confidence must be strictly above this to act
	Cap       float64 // confidence never exceeds this

	TrendBoost         float64 // SMA/EMA majority agrees with a side
	RSIBoost           float64 // RSI overbought/oversold on its own side
	MACDThreshold      float64
	MACDBoost          float64
	BollingerThreshold float64
	BollingerBoost     float64
	SARBoost           float64
}

// DefaultWeights returns the default tuning.
func DefaultWeights() Weights {
	return Weights{
		Threshold:          0.6,
		Cap:                0.95,
		TrendBoost:         0.1,
		RSIBoost:           0.15,
		MACDThreshold:      0.5,
		MACDBoost:          0.1,
		BollingerThreshold: 0.6,
		BollingerBoost:     0.1,
		SARBoost:           0.1,
	}
}

// Aggregator converts indicators into a Decision. Stateless.
type Aggregator struct {
	w   Weights
	log *slog.Logger
}

// NewAggregator creates an aggregator with the given weights.
func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{w: w, log: logger.Component("strategy")}
}

// Weights returns the aggregator's tuning.
func (a *Aggregator) Weights() Weights { return a.w }

// side accumulates one half of the partition.
type side struct {
	names      []string
	strength   float64
	conditions []string
}

func (s *side) add(ind model.Indicator) {
	s.names = append(s.names, ind.Name)
	s.strength += ind.Strength
}

func (s *side) mean() float64 {
	if len(s.names) == 0 {
		return 0
	}
	return s.strength / float64(len(s.names))
}

// Analyze partitions indicators by signal, averages strength per side, applies
// the boosts and picks a side only when it has strictly more indicators and a
// confidence strictly above the threshold. Anything else is neutral.
func (a *Aggregator) Analyze(inds []model.Indicator) model.Decision {
	var buy, sell side
	trendBuy, trendSell := 0, 0

	for _, ind := range inds {
		switch ind.Signal {
		case model.SignalBuy:
			buy.add(ind)
			if ind.Kind.IsTrend() {
				trendBuy++
			}
		case model.SignalSell:
			sell.add(ind)
			if ind.Kind.IsTrend() {
				trendSell++
			}
		}
	}
	if len(buy.names) == 0 && len(sell.names) == 0 {
		return model.NeutralDecision("No directional signals")
	}

	buyConf, sellConf := buy.mean(), sell.mean()
	boost := func(sig model.SignalSide, v float64, cond string) {
		switch sig {
		case model.SignalBuy:
			buyConf += v
			if cond != "" {
				buy.conditions = append(buy.conditions, cond)
			}
		case model.SignalSell:
			sellConf += v
			if cond != "" {
				sell.conditions = append(sell.conditions, cond)
			}
		}
	}

	switch {
	case trendBuy > trendSell:
		boost(model.SignalBuy, a.w.TrendBoost, "")
	case trendSell > trendBuy:
		boost(model.SignalSell, a.w.TrendBoost, "")
	}

	for _, ind := range inds {
		switch ind.Kind {
		case model.KindRSI:
			if ind.Extreme {
				cond := "RSI overbought"
				if ind.Signal == model.SignalBuy {
					cond = "RSI oversold"
				}
				boost(ind.Signal, a.w.RSIBoost, cond)
			}
		case model.KindMACD:
			if ind.Strength > a.w.MACDThreshold {
				boost(ind.Signal, a.w.MACDBoost, "")
			}
			if ind.Crossover {
				boost(ind.Signal, 0, "MACD crossover")
			}
		case model.KindBollinger:
			if ind.Strength > a.w.BollingerThreshold {
				boost(ind.Signal, a.w.BollingerBoost, "Bollinger extreme")
			}
		case model.KindPSAR:
			cond := ""
			if ind.Crossover {
				cond = "SAR reversal"
			}
			boost(ind.Signal, a.w.SARBoost, cond)
		}
	}

	nb, ns := len(buy.names), len(sell.names)
	var d model.Decision
	switch {
	case nb > ns && buyConf > a.w.Threshold:
		d = a.decide(model.SignalBuy, buyConf, &buy)
	case ns > nb && sellConf > a.w.Threshold:
		d = a.decide(model.SignalSell, sellConf, &sell)
	case nb == ns:
		d = model.NeutralDecision(fmt.Sprintf("Mixed signals (%d buy / %d sell)", nb, ns))
	default:
		lead, conf := "buy", buyConf
		if ns > nb {
			lead, conf = "sell", sellConf
		}
		d = model.NeutralDecision(fmt.Sprintf("Weak %s confidence %.2f (needs > %.2f)", lead, conf, a.w.Threshold))
	}

	a.log.Debug("decision",
		"decision", d.Decision,
		"confidence", d.Confidence,
		"confirmed", d.ConfirmedCount,
		"buy", nb, "sell", ns,
		"buy_conf", buyConf, "sell_conf", sellConf,
	)
	return d
}

func (a *Aggregator) decide(sig model.SignalSide, conf float64, s *side) model.Decision {
	if conf > a.w.Cap {
		conf = a.w.Cap
	}
	label := "Buy"
	if sig == model.SignalSell {
		label = "Sell"
	}
	reason := label + ": " + strings.Join(s.names, ", ")
	if len(s.conditions) > 0 {
		reason += "; " + strings.Join(s.conditions, ", ")
	}
	return model.Decision{
		Decision:       sig,
		Confidence:     conf,
		ConfirmedCount: len(s.names),
		Reason:         reason,
	}
}
