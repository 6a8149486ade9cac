// cmd/simd runs one simulation session as a service: REST API and websocket
// stream on HTTP_ADDR, Prometheus metrics and health on METRICS_ADDR, and the
// optional Redis mirror, SQLite journal and alert sinks.
//
// Usage:
//
//	SYMBOL=ETHUSD AUTO_TRADING=true go run ./cmd/simd
//	go run ./cmd/simd --gen-totp
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-simulator/config"
	"trading-simulator/internal/api"
	"trading-simulator/internal/auth"
	"trading-simulator/internal/breaker"
	"trading-simulator/internal/execution"
	"trading-simulator/internal/gateway"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/marketdata/bus"
	"trading-simulator/internal/metrics"
	"trading-simulator/internal/model"
	"trading-simulator/internal/notification"
	"trading-simulator/internal/simulation"
	redisstore "trading-simulator/internal/store/redis"
	sqlitestore "trading-simulator/internal/store/sqlite"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
)

const (
	busBuffer       = 1024
	reportInterval  = 5 * time.Second
	livenessEvery   = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	genTOTP := flag.Bool("gen-totp", false, "print a new TOTP secret for TOTP_SECRET and exit")
	flag.Parse()

	cfg := config.Load()
	log := logger.Init("simd", logger.ParseLevel(cfg.LogLevel))

	if *genTOTP {
		secret, url, err := auth.GenerateSecret("trading-simulator", cfg.SessionID)
		if err != nil {
			log.Error("totp generation failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("TOTP_SECRET=%s\n%s\n", secret, url)
		return
	}

	simCfg, err := cfg.Simulation()
	if err != nil {
		log.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics, health, event bus ──
	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	fan := bus.New(busBuffer)
	fan.OnDrop = m.FanoutDrop

	pub := model.MultiPublisher{
		m,
		fan,
		model.PublisherFunc(func(ev model.Event) {
			if ev.Type == model.EventCandle {
				health.SetLastCandleTime(ev.TS)
			}
		}),
	}

	// ── Execution collaborator ──
	brokerBreaker := breaker.New(5, 30*time.Second)
	brokerBreaker.OnStateChange = m.BreakerHook("broker")
	broker := execution.NewGuardedBroker(execution.NewPaperBroker(cfg.Paper()), cfg.BrokerTimeout, brokerBreaker)

	sess, err := simulation.NewSession(simCfg, pub,
		simulation.WithID(cfg.SessionID),
		simulation.WithBroker(broker, cfg.BrokerTimeout),
		simulation.WithObserver(m),
	)
	if err != nil {
		log.Error("session init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// ── Sinks ──
	rdb := startRedis(ctx, cfg, fan, m, health)
	journalDB, journalReader := startJournal(ctx, cfg, fan, m, health)
	startAlerts(ctx, cfg, fan, m)

	// ── Websocket gateway + REST API ──
	guard := auth.NewGuard(cfg.TOTPSecret)
	if guard.Enabled() {
		log.Info("TOTP guard enabled for commands")
	}
	hub := gateway.NewHub(sess, guard)
	hub.OnClients = func(n int) {
		m.WSClients.Set(float64(n))
		health.SetWSClients(n)
	}
	wsCh, _ := fan.Subscribe("ws")
	go hub.Run(ctx, wsCh)

	opts := []api.Option{api.WithGuard(guard), api.WithHealth(health), api.WithStream(hub)}
	if journalReader != nil {
		opts = append(opts, api.WithJournal(journalReader))
		defer journalReader.Close()
	}
	gin.SetMode(gin.ReleaseMode)
	apiSrv := api.NewAPIHandler(sess, opts...).NewServer(cfg.HTTPAddr)
	apiSrv.Start()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	health.StartLivenessChecker(ctx, rdb, journalDB, livenessEvery)
	go report(ctx, fan, hub, m, health, sess)

	// ── Run ──
	sess.Start(ctx)
	health.SetSessionRunning(true)

	if cfg.BrokerEndpoint != "" {
		go func() {
			if err := sess.ConnectBroker(ctx, cfg.BrokerEndpoint); err != nil {
				log.Warn("broker connect failed", slog.String("endpoint", cfg.BrokerEndpoint), slog.Any("error", err))
				return
			}
			log.Info("broker connected", slog.String("endpoint", cfg.BrokerEndpoint))
		}()
	}

	log.Info("simd running",
		slog.String("session", sess.ID()),
		slog.String("http", cfg.HTTPAddr),
		slog.String("metrics", cfg.MetricsAddr),
	)

	select {
	case <-ctx.Done():
	case <-sess.Done():
		log.Error("session exited unexpectedly")
	}

	// ── Shutdown ──
	log.Info("shutting down")
	health.SetSessionRunning(false)
	sess.Stop()
	sess.DisconnectBroker()
	fan.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiSrv.Stop(shutdownCtx); err != nil {
		log.Warn("api shutdown", slog.Any("error", err))
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", slog.Any("error", err))
	}
}

// startRedis mirrors events to Redis behind a circuit breaker. Redis is
// optional: a failed connect is logged and the service runs without it.
func startRedis(ctx context.Context, cfg *config.Config, fan *bus.FanOut, m *metrics.Metrics, health *metrics.HealthStatus) *goredis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	log := logger.Component("simd")
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Session:  cfg.SessionID,
	})
	if err != nil {
		log.Warn("redis disabled", slog.Any("error", err))
		return nil
	}
	health.EnableRedis()
	health.SetRedisConnected(true)
	w.OnWrite = func(d time.Duration) { m.RedisWriteDur.Observe(d.Seconds()) }

	cb := breaker.New(5, 10*time.Second)
	cb.OnStateChange = m.BreakerHook("redis")
	bw := redisstore.NewBufferedWriter(ctx, w, cb, 10000)
	bw.OnError = func(error) { m.PublishFailures.WithLabelValues("redis").Inc() }

	ch, _ := fan.Subscribe("redis")
	go func() {
		bw.Run(ctx, ch)
		w.Close()
	}()
	return w.Client()
}

// startJournal records closed trades and broker orders to SQLite.
func startJournal(ctx context.Context, cfg *config.Config, fan *bus.FanOut, m *metrics.Metrics, health *metrics.HealthStatus) (*sql.DB, *sqlitestore.Reader) {
	if cfg.JournalPath == "" {
		return nil, nil
	}
	log := logger.Component("simd")
	jw, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.JournalPath, Session: cfg.SessionID})
	if err != nil {
		log.Warn("journal disabled", slog.Any("error", err))
		return nil, nil
	}
	health.EnableJournal()
	health.SetSQLiteOK(true)
	jw.OnCommit = func(_ int, took time.Duration) { m.SQLiteCommitDur.Observe(took.Seconds()) }

	ch, _ := fan.Subscribe("journal")
	go func() {
		jw.Run(ctx, ch)
		jw.Close()
	}()

	reader, err := sqlitestore.NewReader(cfg.JournalPath)
	if err != nil {
		log.Warn("journal reader unavailable", slog.Any("error", err))
		return jw.DB(), nil
	}
	return jw.DB(), reader
}

// startAlerts routes notable events to the log and any configured webhook or
// Telegram chat.
func startAlerts(ctx context.Context, cfg *config.Config, fan *bus.FanOut, m *metrics.Metrics) {
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	d := notification.NewDispatcher(notifiers, 10*time.Second)
	d.OnError = func(error) { m.PublishFailures.WithLabelValues("notify").Inc() }

	ch, _ := fan.Subscribe("notify")
	go d.Run(ctx, ch)
}

// report refreshes gauges that are sampled rather than event-driven.
func report(ctx context.Context, fan *bus.FanOut, hub *gateway.Hub, m *metrics.Metrics, health *metrics.HealthStatus, sess *simulation.Session) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReportChannels(fan.ChannelStats())
			if st := hub.Stats(); st.Latency.Count > 0 {
				m.ReportDeliveryLatency(st.Latency.P50, st.Latency.P95, st.Latency.P99)
			}
			health.SetBrokerConnected(sess.BrokerConnected())
		}
	}
}
