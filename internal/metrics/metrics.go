// Package metrics exposes Prometheus collectors for the simulator and the
// /healthz endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-simulator/internal/breaker"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/marketdata/bus"
	"trading-simulator/internal/model"
)

// Metrics holds all Prometheus metrics for a simulator process.
type Metrics struct {
	CandlesTotal        prometheus.Counter
	IndicatorRefreshDur prometheus.Histogram
	DecisionsTotal      *prometheus.CounterVec // labels: decision

	// Position lifecycle
	PositionsOpened    *prometheus.CounterVec // labels: direction
	PositionsClosed    *prometheus.CounterVec // labels: reason
	PartialTakeProfits prometheus.Counter
	CapacityRejections prometheus.Counter
	Resets             prometheus.Counter

	// Account
	Balance       prometheus.Gauge
	Equity        prometheus.Gauge
	OpenPositions prometheus.Gauge
	WinRate       prometheus.Gauge

	// Scheduling
	StaleTicks *prometheus.CounterVec // labels: task

	// Execution collaborator
	BrokerOrders *prometheus.CounterVec // labels: outcome

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	WSClients            prometheus.Gauge
	WSDeliveryLatency    *prometheus.GaugeVec // labels: quantile

	// Sinks
	RedisWriteDur     prometheus.Histogram
	SQLiteCommitDur   prometheus.Histogram
	PublishFailures   *prometheus.CounterVec // labels: sink
	BreakerState      *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	BreakerTripsTotal *prometheus.CounterVec // labels: breaker
}

// NewMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_candles_total",
			Help: "Synthetic candles generated",
		}),
		IndicatorRefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_indicator_refresh_duration_seconds",
			Help:    "Time to recompute all indicators and the decision",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_decisions_total",
			Help: "Aggregate decisions by side",
		}, []string{"decision"}),

		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_positions_opened_total",
			Help: "Positions opened by direction",
		}, []string{"direction"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_positions_closed_total",
			Help: "Positions closed by reason",
		}, []string{"reason"}),
		PartialTakeProfits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_partial_take_profits_total",
			Help: "Partial take-profit levels taken",
		}),
		CapacityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_capacity_rejections_total",
			Help: "Open requests refused at the concurrent-position cap",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_resets_total",
			Help: "Simulation resets",
		}),

		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_balance",
			Help: "Realized account balance",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_equity",
			Help: "Balance plus open P&L",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_open_positions",
			Help: "Currently open positions",
		}),
		WinRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_win_rate_percent",
			Help: "Winning share of closed trades",
		}),

		StaleTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_stale_ticks_total",
			Help: "Periodic ticks dropped because a reset or auto-trade stop superseded them",
		}, []string{"task"}),

		BrokerOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_broker_orders_total",
			Help: "Orders mirrored to the broker by outcome",
		}, []string{"outcome"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_fanout_drops_total",
			Help: "Events dropped by the bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_ws_clients",
			Help: "Connected websocket clients",
		}),

		WSDeliveryLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_ws_delivery_latency_seconds",
			Help: "Engine timestamp to websocket broadcast, over recent events",
		}, []string{"quantile"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_sqlite_commit_duration_seconds",
			Help:    "Trade journal batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_publish_failures_total",
			Help: "Failed writes per sink",
		}, []string{"sink"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.IndicatorRefreshDur,
		m.DecisionsTotal,
		m.PositionsOpened,
		m.PositionsClosed,
		m.PartialTakeProfits,
		m.CapacityRejections,
		m.Resets,
		m.Balance,
		m.Equity,
		m.OpenPositions,
		m.WinRate,
		m.StaleTicks,
		m.BrokerOrders,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.WSClients,
		m.WSDeliveryLatency,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.PublishFailures,
		m.BreakerState,
		m.BreakerTripsTotal,
	)
	return m
}

// Publish updates counters and gauges from a simulation event. Metrics is an
// EventPublisher so it can sit directly on the engine's publisher chain.
func (m *Metrics) Publish(ev model.Event) {
	switch d := ev.Data.(type) {
	case model.CandleUpdate:
		m.CandlesTotal.Inc()
	case model.Decision:
		m.DecisionsTotal.WithLabelValues(string(d.Decision)).Inc()
	case model.Position:
		if ev.Type == model.EventPositionOpened {
			m.PositionsOpened.WithLabelValues(string(d.Direction)).Inc()
		}
	case model.PartialTakeProfit:
		m.PartialTakeProfits.Inc()
	case model.ClosedTrade:
		m.PositionsClosed.WithLabelValues(string(d.Position.CloseReason)).Inc()
	case model.CapacityNotice:
		m.CapacityRejections.Inc()
	case model.AccountStats:
		m.setAccount(d)
	case model.ResetNotice:
		m.Resets.Inc()
		for _, p := range d.Discarded {
			m.PositionsClosed.WithLabelValues(string(p.CloseReason)).Inc()
		}
		m.setAccount(d.Stats)
	case model.BrokerOrder:
		outcome := "placed"
		if !d.Success {
			outcome = "failed"
		}
		m.BrokerOrders.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) setAccount(st model.AccountStats) {
	m.Balance.Set(st.Balance)
	m.Equity.Set(st.Equity)
	m.OpenPositions.Set(float64(st.OpenPositions))
	m.WinRate.Set(st.WinRate)
}

// ObserveRefresh records one indicator refresh.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	m.IndicatorRefreshDur.Observe(d.Seconds())
}

// ObserveStaleTick counts a superseded periodic tick.
func (m *Metrics) ObserveStaleTick(task string) {
	m.StaleTicks.WithLabelValues(task).Inc()
}

// FanoutDrop is a bus.FanOut OnDrop hook.
func (m *Metrics) FanoutDrop(subscriber string, _ model.Event) {
	m.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
}

// ReportChannels sets the saturation gauge for every bus subscriber.
func (m *Metrics) ReportChannels(stats []bus.ChannelStat) {
	for _, s := range stats {
		if s.Cap == 0 {
			continue
		}
		m.ChannelSaturationPct.WithLabelValues(s.Name).Set(float64(s.Len) / float64(s.Cap) * 100)
	}
}

// ReportDeliveryLatency sets the websocket delivery latency quantiles.
func (m *Metrics) ReportDeliveryLatency(p50, p95, p99 time.Duration) {
	m.WSDeliveryLatency.WithLabelValues("0.5").Set(p50.Seconds())
	m.WSDeliveryLatency.WithLabelValues("0.95").Set(p95.Seconds())
	m.WSDeliveryLatency.WithLabelValues("0.99").Set(p99.Seconds())
}

// BreakerHook returns an OnStateChange callback tracking the named breaker.
func (m *Metrics) BreakerHook(name string) func(from, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(breaker.StateClosed))
	return func(from, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTripsTotal.WithLabelValues(name).Inc()
		}
	}
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves the
// default registry.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	log := logger.Component("metrics")
	go func() {
		log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
