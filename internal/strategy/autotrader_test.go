package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trading-simulator/internal/model"
)

func TestAutoTrader_Evaluate(t *testing.T) {
	s := model.DefaultSettings() // min strength 0.7, 3 confirmations

	cases := []struct {
		name string
		d    model.Decision
		want Action
		dir  model.Direction
	}{
		{"neutral", model.NeutralDecision("mixed"), ActionHold, ""},
		{"weak", model.Decision{Decision: model.SignalBuy, Confidence: 0.69, ConfirmedCount: 5}, ActionHold, ""},
		{"few confirmations", model.Decision{Decision: model.SignalBuy, Confidence: 0.9, ConfirmedCount: 2}, ActionHold, ""},
		{"buy at minimum", model.Decision{Decision: model.SignalBuy, Confidence: 0.7, ConfirmedCount: 3, Reason: "Buy: SMA(50), EMA(9), MACD(12,26,9)"}, ActionBuy, model.Long},
		{"sell", model.Decision{Decision: model.SignalSell, Confidence: 0.85, ConfirmedCount: 4, Reason: "Sell: SMA(50), EMA(9), RSI(14), PSAR(0.02,0.2)"}, ActionSell, model.Short},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := AutoTrader{}.Evaluate(tc.d, s)
			assert.Equal(t, tc.want, sig.Action)
			assert.Equal(t, tc.dir, sig.Direction)
			assert.Equal(t, tc.want != ActionHold, sig.Entry())
			assert.NotEmpty(t, sig.Reason)
		})
	}
}
