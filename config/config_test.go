package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SEED", "7")
	c := Load()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "BTCUSD", c.Symbol)
	assert.Equal(t, 10000.0, c.InitialBalance)
	assert.Equal(t, 3*time.Second, c.CandleInterval)
	assert.Equal(t, int64(7), c.Seed)
	assert.Empty(t, c.RedisAddr)
	assert.False(t, c.AutoTrading)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYMBOL", "eurusd")
	t.Setenv("INITIAL_BALANCE", "2500.5")
	t.Setenv("WINDOW_SIZE", "60")
	t.Setenv("CANDLE_INTERVAL", "500ms")
	t.Setenv("AUTO_TRADING", "true")
	t.Setenv("BROKER_REJECT_RATE", "0.25")
	t.Setenv("SEED", "3")

	c := Load()
	assert.Equal(t, 2500.5, c.InitialBalance)
	assert.Equal(t, 60, c.WindowSize)
	assert.Equal(t, 500*time.Millisecond, c.CandleInterval)
	assert.True(t, c.AutoTrading)

	sc, err := c.Simulation()
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", sc.Settings.Symbol)
	assert.True(t, sc.Settings.AutoTrading)
	assert.Equal(t, 60, sc.WindowSize)
	assert.Equal(t, int64(3), sc.Seed)

	pc := c.Paper()
	assert.Equal(t, 0.25, pc.RejectRate)
	assert.Equal(t, int64(3), pc.Seed)
}

func TestLoad_InvalidFallsBack(t *testing.T) {
	t.Setenv("WINDOW_SIZE", "many")
	t.Setenv("VOLATILITY", "high")
	t.Setenv("CANDLE_INTERVAL", "3")
	t.Setenv("AUTO_TRADING", "sometimes")

	c := Load()
	assert.Equal(t, 100, c.WindowSize)
	assert.Equal(t, 0.01, c.Volatility)
	assert.Equal(t, 3*time.Second, c.CandleInterval)
	assert.False(t, c.AutoTrading)
}

func TestSimulation_RejectsBadValues(t *testing.T) {
	t.Setenv("INITIAL_BALANCE", "-5")
	_, err := Load().Simulation()
	require.Error(t, err)
}
