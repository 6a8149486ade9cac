package strategy

import (
	"fmt"

	"trading-simulator/internal/model"
)

// Action represents what the auto-trader wants to do with a decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the auto-trader's verdict on one decision.
type Signal struct {
	Action     Action          `json:"action"`
	Direction  model.Direction `json:"direction,omitempty"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
}

// Entry reports whether the signal asks for a new position.
func (s Signal) Entry() bool { return s.Action != ActionHold }

// AutoTrader gates decisions against the user's auto-trading settings.
type AutoTrader struct{}

// Evaluate returns an entry signal only when the decision is directional,
// its confidence reaches MinSignalStrength and at least ConfirmationCount
// indicators agree. Auto-trading being off is the caller's concern.
func (AutoTrader) Evaluate(d model.Decision, s model.Settings) Signal {
	hold := func(reason string) Signal {
		return Signal{Action: ActionHold, Confidence: d.Confidence, Reason: reason}
	}

	dir, ok := model.DirectionFor(d.Decision)
	if !ok {
		return hold("Neutral decision: " + d.Reason)
	}
	if d.Confidence < s.MinSignalStrength {
		return hold(fmt.Sprintf("Confidence %.2f below minimum %.2f", d.Confidence, s.MinSignalStrength))
	}
	if d.ConfirmedCount < s.ConfirmationCount {
		return hold(fmt.Sprintf("%d confirmations, need %d", d.ConfirmedCount, s.ConfirmationCount))
	}

	action := ActionBuy
	if dir == model.Short {
		action = ActionSell
	}
	return Signal{
		Action:     action,
		Direction:  dir,
		Confidence: d.Confidence,
		Reason:     d.Reason,
	}
}
