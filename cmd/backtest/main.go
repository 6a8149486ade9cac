// cmd/backtest runs a headless simulation: a seeded market advanced candle by
// candle on a virtual clock with the auto-trader enabled, then prints the
// account summary. Identical flags and seed reproduce the same run.
//
// Usage:
//
//	go run ./cmd/backtest --steps=2000 --seed=42 --symbol=ETHUSD --strength=0.6
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/marketdata/synth"
	"trading-simulator/internal/model"
	"trading-simulator/internal/simulation"
	sqlitestore "trading-simulator/internal/store/sqlite"
)

// idle keeps the session's own cadences out of the way; Step drives the run.
const idle = 24 * time.Hour

type tally struct {
	entries  int
	partials int
	closes   map[model.CloseReason]int
	refused  int
}

func main() {
	steps := flag.Int("steps", 1000, "Candles to simulate")
	seed := flag.Int64("seed", 1, "Market seed")
	symbol := flag.String("symbol", "BTCUSD", "Instrument symbol")
	balance := flag.Float64("balance", 10000, "Initial balance")
	volatility := flag.Float64("volatility", 0.01, "Per-candle volatility")
	trend := flag.Float64("trend", 0, "Per-candle trend added to every move")
	strength := flag.Float64("strength", 0.7, "Minimum signal strength for auto entries")
	confirmations := flag.Int("confirmations", 3, "Required agreeing indicators")
	risk := flag.Float64("risk", 5, "Risk percentage per trade")
	journal := flag.String("journal", "", "Optional SQLite path to record closed trades")
	verbose := flag.Bool("v", false, "Log every engine event")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.Init("backtest", level)

	cfg := simulation.DefaultConfig()
	cfg.InitialBalance = *balance
	cfg.Seed = *seed
	cfg.Volatility = *volatility
	cfg.Trend = *trend
	cfg.CandleInterval, cfg.IndicatorInterval, cfg.PositionInterval = idle, idle, idle
	cfg.Settings.Symbol = strings.ToUpper(*symbol)
	cfg.Settings.MinSignalStrength = *strength
	cfg.Settings.ConfirmationCount = *confirmations
	cfg.Settings.RiskPercentage = *risk
	cfg.Settings.AutoTrading = true
	cfg.Settings.TradingInterval = idle

	// Virtual clock: one candle step per Step call.
	step := time.Duration(synth.DefaultConfig().Step) * time.Second
	var clock atomic.Int64
	clock.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	cfg.Now = func() time.Time { return time.Unix(0, clock.Load()).UTC() }

	t := tally{closes: make(map[model.CloseReason]int)}
	pubs := model.MultiPublisher{model.PublisherFunc(func(ev model.Event) {
		switch ev.Type {
		case model.EventPositionOpened:
			t.entries++
		case model.EventPartialTP:
			t.partials++
		case model.EventCapacity:
			t.refused++
		case model.EventPositionClosed:
			if ct, ok := ev.Data.(model.ClosedTrade); ok {
				t.closes[ct.Position.CloseReason]++
			}
		}
		if *verbose {
			log.Debug("event", slog.String("type", string(ev.Type)), slog.Uint64("seq", ev.Seq))
		}
	})}

	var jw *sqlitestore.Writer
	if *journal != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *journal, Session: fmt.Sprintf("backtest-%d", *seed)})
		if err != nil {
			log.Error("journal open failed", slog.Any("error", err))
			os.Exit(1)
		}
		jw = w
		defer jw.Close()
		pubs = append(pubs, model.PublisherFunc(func(ev model.Event) {
			if ct, ok := ev.Data.(model.ClosedTrade); ok {
				if err := jw.RecordTrade(context.Background(), ct); err != nil {
					log.Warn("journal write failed", slog.Any("error", err))
				}
			}
		}))
	}

	sess, err := simulation.NewSession(cfg, pubs, simulation.WithID(fmt.Sprintf("backtest-%d", *seed)))
	if err != nil {
		log.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess.Start(ctx)
	defer sess.Stop()

	start := time.Now()
	done := 0
	for ; done < *steps; done++ {
		if ctx.Err() != nil {
			break
		}
		clock.Add(int64(step))
		if _, _, err := sess.Step(ctx); err != nil {
			log.Error("step failed", slog.Int("step", done), slog.Any("error", err))
			break
		}
	}
	elapsed := time.Since(start)

	stats, err := sess.Stats(context.Background())
	if err != nil {
		log.Error("stats unavailable", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", cfg.Settings.Symbol)
	fmt.Printf("║  Candles:           %-16d ║\n", done)
	fmt.Printf("║  Entries:           %-16d ║\n", t.entries)
	fmt.Printf("║  Refused (cap):     %-16d ║\n", t.refused)
	fmt.Printf("║  Partial TPs:       %-16d ║\n", t.partials)
	fmt.Printf("║  Closed trades:     %-16d ║\n", stats.TotalTrades)
	fmt.Printf("║    stop loss:       %-16d ║\n", t.closes[model.CloseStopLoss])
	fmt.Printf("║    take profit:     %-16d ║\n", t.closes[model.CloseTakeProfit])
	fmt.Printf("║  Still open:        %-16d ║\n", stats.OpenPositions)
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", stats.WinRate))
	fmt.Printf("║  Profit factor:     %-16s ║\n", stats.ProfitFactor.String())
	fmt.Printf("║  Realized P&L:      %-16s ║\n", model.FormatCurrency(stats.RealizedPnL))
	fmt.Printf("║  Balance:           %-16s ║\n", model.FormatCurrency(stats.Balance))
	fmt.Printf("║  Equity:            %-16s ║\n", model.FormatCurrency(stats.Equity))
	fmt.Printf("║  Wall time:         %-16s ║\n", elapsed.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}
