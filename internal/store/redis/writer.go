// Package redis mirrors simulation events to Redis: every event is published
// on a Pub/Sub channel, snapshot-style events are kept as "latest" keys and
// closed trades are appended to a capped stream. Nothing is read back.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Closed trades kept in the stream (approximate trim).
	tradesMaxLen     = 5000
	defaultLatestTTL = 30 * time.Minute
	defaultPrefix    = "sim"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key namespace, default "sim"
	Session  string // session id embedded in every key
}

// Keys builds channel and key names for one session.
type Keys struct {
	Prefix  string
	Session string
}

func (k Keys) prefix() string {
	if k.Prefix == "" {
		return defaultPrefix
	}
	return k.Prefix
}

// Channel is the Pub/Sub channel for an event type, e.g. "pub:sim:s1:candle".
func (k Keys) Channel(t model.EventType) string {
	return "pub:" + k.prefix() + ":" + k.Session + ":" + string(t)
}

// Latest is the key holding the most recent event of type t.
func (k Keys) Latest(t model.EventType) string {
	return k.prefix() + ":latest:" + k.Session + ":" + string(t)
}

// Trades is the stream of closed trades.
func (k Keys) Trades() string {
	return k.prefix() + ":trades:" + k.Session
}

// keepsLatest reports whether the event type describes current state, as
// opposed to a one-off transition.
func keepsLatest(t model.EventType) bool {
	switch t {
	case model.EventCandle, model.EventIndicators, model.EventDecision,
		model.EventStats, model.EventSettings:
		return true
	}
	return false
}

// Writer pipelines event writes to Redis.
type Writer struct {
	client *goredis.Client
	keys   Keys
	log    *slog.Logger

	// OnWrite is called with the duration of every pipeline round trip.
	OnWrite func(d time.Duration)
}

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := NewWithClient(client, cfg)
	w.log.Info("connected", slog.String("addr", cfg.Addr))
	return w, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	return &Writer{
		client: client,
		keys:   Keys{Prefix: cfg.Prefix, Session: cfg.Session},
		log:    logger.Component("redis"),
	}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Keys returns the naming scheme in use.
func (w *Writer) Keys() Keys { return w.keys }

// WriteEvent publishes ev in a single pipeline: PUBLISH always, SET latest for
// state events and XADD for closed trades.
func (w *Writer) WriteEvent(ctx context.Context, ev model.Event) error {
	data := string(ev.JSON())
	start := time.Now()

	pipe := w.client.Pipeline()
	pipe.Publish(ctx, w.keys.Channel(ev.Type), data)
	if keepsLatest(ev.Type) {
		pipe.Set(ctx, w.keys.Latest(ev.Type), data, defaultLatestTTL)
	}
	if ev.Type == model.EventPositionClosed {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: w.keys.Trades(),
			MaxLen: tradesMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
	}

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("redis pipeline %s#%d: %w", ev.Type, ev.Seq, err)
	}
	return nil
}

// Run writes events from ch until ctx is cancelled or ch is closed.
// Failures are logged and the event is dropped.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := w.WriteEvent(ctx, ev); err != nil {
				w.log.Warn("write failed", slog.Any("error", err))
			}
		}
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
