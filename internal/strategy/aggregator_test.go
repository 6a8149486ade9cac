package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trading-simulator/internal/model"
)

func ind(kind model.IndicatorKind, name string, sig model.SignalSide, strength float64) model.Indicator {
	return model.Indicator{
		Kind:     kind,
		Name:     name,
		Value:    model.Reading{Number: 1, Valid: true, Unit: model.UnitPrice},
		Signal:   sig,
		Strength: strength,
	}
}

func TestAnalyze_EmptyIsNeutral(t *testing.T) {
	a := NewAggregator(DefaultWeights())

	for _, inds := range [][]model.Indicator{
		nil,
		{ind(model.KindRSI, "RSI(14)", model.SignalNeutral, 0), ind(model.KindSMA, "SMA(50)", model.SignalNeutral, 0)},
	} {
		d := a.Analyze(inds)
		assert.Equal(t, model.SignalNeutral, d.Decision)
		assert.Zero(t, d.Confidence)
		assert.Zero(t, d.ConfirmedCount)
	}
}

func TestAnalyze_BuyWithBoosts(t *testing.T) {
	macd := ind(model.KindMACD, "MACD(12,26,9)", model.SignalBuy, 0.6)
	macd.Crossover = true
	inds := []model.Indicator{
		ind(model.KindSMA, "SMA(50)", model.SignalBuy, 0.7),
		ind(model.KindEMA, "EMA(9)", model.SignalBuy, 0.7),
		ind(model.KindRSI, "RSI(14)", model.SignalNeutral, 0),
		macd,
		ind(model.KindBollinger, "BB(20,2)", model.SignalNeutral, 0),
		ind(model.KindPSAR, "PSAR(0.02,0.2)", model.SignalBuy, 0.5),
	}

	d := NewAggregator(DefaultWeights()).Analyze(inds)

	// mean 0.625 + trend 0.1 + MACD 0.1 + SAR 0.1
	assert.Equal(t, model.SignalBuy, d.Decision)
	assert.InDelta(t, 0.925, d.Confidence, 1e-9)
	assert.Equal(t, 4, d.ConfirmedCount)
	assert.Equal(t, "Buy: SMA(50), EMA(9), MACD(12,26,9), PSAR(0.02,0.2); MACD crossover", d.Reason)
}

func TestAnalyze_ConfidenceCapped(t *testing.T) {
	rsi := ind(model.KindRSI, "RSI(14)", model.SignalBuy, 0.8)
	rsi.Extreme = true
	inds := []model.Indicator{
		ind(model.KindSMA, "SMA(50)", model.SignalBuy, 0.7),
		ind(model.KindEMA, "EMA(9)", model.SignalBuy, 0.7),
		rsi,
		ind(model.KindMACD, "MACD(12,26,9)", model.SignalBuy, 0.6),
		ind(model.KindPSAR, "PSAR(0.02,0.2)", model.SignalBuy, 0.5),
	}

	d := NewAggregator(DefaultWeights()).Analyze(inds)
	assert.Equal(t, model.SignalBuy, d.Decision)
	assert.Equal(t, 0.95, d.Confidence)
	assert.Equal(t, 5, d.ConfirmedCount)
	assert.Contains(t, d.Reason, "RSI oversold")
}

func TestAnalyze_SellWithRSIOverbought(t *testing.T) {
	rsi := ind(model.KindRSI, "RSI(14)", model.SignalSell, 0.6)
	rsi.Extreme = true
	inds := []model.Indicator{
		ind(model.KindSMA, "SMA(50)", model.SignalSell, 0.5),
		ind(model.KindEMA, "EMA(9)", model.SignalSell, 0.5),
		rsi,
		ind(model.KindBollinger, "BB(20,2)", model.SignalBuy, 0.2),
	}

	d := NewAggregator(DefaultWeights()).Analyze(inds)

	// mean (0.5+0.5+0.6)/3 + trend 0.1 + RSI 0.15
	assert.Equal(t, model.SignalSell, d.Decision)
	assert.InDelta(t, 0.78333, d.Confidence, 1e-4)
	assert.Equal(t, 3, d.ConfirmedCount)
	assert.Contains(t, d.Reason, "RSI overbought")
	assert.Contains(t, d.Reason, "Sell: ")
}

func TestAnalyze_TieIsNeutral(t *testing.T) {
	inds := []model.Indicator{
		ind(model.KindSMA, "SMA(50)", model.SignalBuy, 0.9),
		ind(model.KindMACD, "MACD(12,26,9)", model.SignalBuy, 0.9),
		ind(model.KindEMA, "EMA(9)", model.SignalSell, 0.9),
		ind(model.KindPSAR, "PSAR(0.02,0.2)", model.SignalSell, 0.8),
	}

	d := NewAggregator(DefaultWeights()).Analyze(inds)
	assert.Equal(t, model.SignalNeutral, d.Decision)
	assert.Zero(t, d.Confidence)
	assert.Zero(t, d.ConfirmedCount)
	assert.Contains(t, d.Reason, "Mixed")
}

func TestAnalyze_ThresholdBoundaryIsNeutral(t *testing.T) {
	// Bollinger at exactly 0.6 gets no boost, so confidence sits on the threshold.
	inds := []model.Indicator{ind(model.KindBollinger, "BB(20,2)", model.SignalBuy, 0.6)}

	d := NewAggregator(DefaultWeights()).Analyze(inds)
	assert.Equal(t, model.SignalNeutral, d.Decision)
	assert.Contains(t, d.Reason, "Weak buy")
}

func TestAnalyze_CustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.Threshold = 0.3
	inds := []model.Indicator{ind(model.KindSMA, "SMA(50)", model.SignalSell, 0.35)}

	assert.Equal(t, model.SignalNeutral, NewAggregator(DefaultWeights()).Analyze(inds).Decision)

	d := NewAggregator(w).Analyze(inds)
	assert.Equal(t, model.SignalSell, d.Decision)
	// 0.35 + trend boost 0.1
	assert.InDelta(t, 0.45, d.Confidence, 1e-9)
}
