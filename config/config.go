// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-simulator/internal/execution"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/simulation"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Service
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	SessionID   string

	// Market
	Symbol         string
	InitialBalance float64
	WindowSize     int
	Volatility     float64
	LiveVolatility float64
	Trend          float64
	Bias           float64
	Seed           int64

	// Cadences
	CandleInterval    time.Duration
	IndicatorInterval time.Duration
	PositionInterval  time.Duration

	AutoTrading bool

	// Sinks. Empty address/path disables the sink.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JournalPath   string

	// Paper broker
	BrokerEndpoint       string
	BrokerConnectLatency time.Duration
	BrokerOrderLatency   time.Duration
	BrokerRejectRate     float64
	BrokerTimeout        time.Duration

	// Guards mutating API/WS commands when set.
	TOTPSecret string

	// Alerts
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SessionID:   getEnv("SESSION_ID", "default"),

		Symbol:         getEnv("SYMBOL", "BTCUSD"),
		InitialBalance: getEnvFloat("INITIAL_BALANCE", 10000),
		WindowSize:     getEnvInt("WINDOW_SIZE", 100),
		Volatility:     getEnvFloat("VOLATILITY", 0.01),
		LiveVolatility: getEnvFloat("LIVE_VOLATILITY", 0.005),
		Trend:          getEnvFloat("TREND", 0),
		Bias:           getEnvFloat("BIAS", 0.02),
		Seed:           int64(getEnvInt("SEED", int(time.Now().UnixNano()%1_000_000))),

		CandleInterval:    getEnvDuration("CANDLE_INTERVAL", 3*time.Second),
		IndicatorInterval: getEnvDuration("INDICATOR_INTERVAL", 15*time.Second),
		PositionInterval:  getEnvDuration("POSITION_INTERVAL", time.Second),

		AutoTrading: getEnvBool("AUTO_TRADING", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		JournalPath:   getEnv("JOURNAL_PATH", ""),

		BrokerEndpoint:       getEnv("BROKER_ENDPOINT", ""),
		BrokerConnectLatency: getEnvDuration("BROKER_CONNECT_LATENCY", time.Second),
		BrokerOrderLatency:   getEnvDuration("BROKER_ORDER_LATENCY", 1500*time.Millisecond),
		BrokerRejectRate:     getEnvFloat("BROKER_REJECT_RATE", 0),
		BrokerTimeout:        getEnvDuration("BROKER_TIMEOUT", 5*time.Second),

		TOTPSecret: getEnv("TOTP_SECRET", ""),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// Simulation builds the engine configuration, starting from the defaults.
func (c *Config) Simulation() (simulation.Config, error) {
	sc := simulation.DefaultConfig()
	sc.InitialBalance = c.InitialBalance
	sc.WindowSize = c.WindowSize
	sc.Volatility = c.Volatility
	sc.LiveVolatility = c.LiveVolatility
	sc.Trend = c.Trend
	sc.Seed = c.Seed
	sc.Synth.Bias = c.Bias
	sc.CandleInterval = c.CandleInterval
	sc.IndicatorInterval = c.IndicatorInterval
	sc.PositionInterval = c.PositionInterval
	sc.Settings.Symbol = strings.ToUpper(c.Symbol)
	sc.Settings.AutoTrading = c.AutoTrading
	if err := sc.Validate(); err != nil {
		return simulation.Config{}, fmt.Errorf("config: %w", err)
	}
	return sc, nil
}

// Paper returns the paper broker settings.
func (c *Config) Paper() execution.PaperConfig {
	pc := execution.DefaultPaperConfig()
	pc.ConnectLatency = c.BrokerConnectLatency
	pc.OrderLatency = c.BrokerOrderLatency
	pc.RejectRate = c.BrokerRejectRate
	pc.Seed = c.Seed
	return pc
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnInvalid(key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalid(key, v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(key, v)
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warnInvalid(key, v)
		return fallback
	}
	return b
}

func warnInvalid(key, value string) {
	logger.Component("config").Warn("invalid value, using default",
		slog.String("key", key), slog.String("value", value))
}
