package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trading-simulator/internal/model"
)

// Command is a client request. Mutating actions need Code when the hub has
// an enabled TOTP guard.
//
//	{"type":"command","id":"7","action":"open_position","direction":"long","code":"123456"}
type Command struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Action     string `json:"action"`
	Direction  string `json:"direction,omitempty"`
	PositionID string `json:"positionId,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	Code       string `json:"code,omitempty"`
	Ping       int64  `json:"ping,omitempty"`
}

// Result answers a Command with the same ID.
type Result struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Data     any    `json:"data,omitempty"`
	Ping     int64  `json:"ping,omitempty"`
	ServerTS int64  `json:"serverTs,omitempty"`
}

const (
	ActionSnapshot      = "snapshot"
	ActionOpenPosition  = "open_position"
	ActionClosePosition = "close_position"
	ActionReset         = "reset"
	ActionAutoTrading   = "auto_trading"
)

func (h *Hub) execute(ctx context.Context, cmd Command) Result {
	if cmd.Type == "ping" {
		return Result{Type: "pong", OK: true, Ping: cmd.Ping, ServerTS: time.Now().UnixMilli()}
	}
	if cmd.Type != "command" {
		return Result{Type: "error", ID: cmd.ID, Error: fmt.Sprintf("unknown message type %q", cmd.Type)}
	}

	res := Result{Type: "result", ID: cmd.ID}
	data, err := h.dispatch(ctx, cmd)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Data = data
	return res
}

func (h *Hub) dispatch(ctx context.Context, cmd Command) (any, error) {
	if cmd.Action == ActionSnapshot {
		return h.cmd.Snapshot(ctx)
	}
	if err := h.guard.Verify(cmd.Code); err != nil {
		return nil, err
	}

	switch cmd.Action {
	case ActionOpenPosition:
		dir, err := parseDirection(cmd.Direction)
		if err != nil {
			return nil, err
		}
		return h.cmd.OpenPosition(ctx, dir)
	case ActionClosePosition:
		if cmd.PositionID == "" {
			return nil, fmt.Errorf("positionId is required")
		}
		return h.cmd.ClosePosition(ctx, cmd.PositionID)
	case ActionReset:
		return h.cmd.Reset(ctx)
	case ActionAutoTrading:
		if cmd.Enabled == nil {
			return nil, fmt.Errorf("enabled is required")
		}
		return map[string]bool{"autoTrading": *cmd.Enabled}, h.cmd.SetAutoTrading(ctx, *cmd.Enabled)
	}
	return nil, fmt.Errorf("unknown action %q", cmd.Action)
}

func parseDirection(s string) (model.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return model.Long, nil
	case "short", "sell":
		return model.Short, nil
	}
	return "", fmt.Errorf("direction must be long or short, got %q", s)
}
