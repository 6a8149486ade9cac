// Package gateway streams simulation events to browser clients over
// WebSocket and accepts user commands on the same connection.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"trading-simulator/internal/auth"
	"trading-simulator/internal/logger"
	"trading-simulator/internal/model"
	"trading-simulator/internal/simulation"

	"github.com/gorilla/websocket"
)

// Commander is the session surface reachable from a websocket client.
type Commander interface {
	Snapshot(ctx context.Context) (simulation.Snapshot, error)
	OpenPosition(ctx context.Context, dir model.Direction) (model.Position, error)
	ClosePosition(ctx context.Context, id string) (model.Position, error)
	Reset(ctx context.Context) (model.ResetNotice, error)
	SetAutoTrading(ctx context.Context, on bool) error
}

// Hub manages WebSocket clients and fans session events out to them.
// Every broadcast gets a hub-wide seq that, unlike the session's event seq,
// survives resets; clients reconnect with ?since=<seq> to backfill.
type Hub struct {
	cmd      Commander
	guard    *auth.Guard
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     uint64

	replay  *ReplayBuffer
	Latency *LatencyTracker

	// OnClients is called with the client count after every (un)register.
	OnClients func(n int)
}

// NewHub creates a Hub. guard may be nil.
func NewHub(cmd Commander, guard *auth.Guard) *Hub {
	return &Hub{
		cmd:   cmd,
		guard: guard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		log:     logger.Component("gateway"),
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(1000),
		Latency: NewLatencyTracker(4096),
	}
}

// Run broadcasts events from ch until ctx is cancelled or ch is closed,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, ch <-chan model.Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Broadcast wraps ev in an envelope and queues it for every client. Slow
// clients whose queue is full miss the message; they can backfill on
// reconnect.
func (h *Hub) Broadcast(ev model.Event) {
	if !ev.TS.IsZero() {
		h.Latency.Record(time.Since(ev.TS))
	}
	payload := ev.JSON()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	buf := envelope("event", seq, payload)
	h.replay.Push(seq, buf)
	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
		}
	}
	h.mu.Unlock()
}

// envelope builds {"type":..,"seq":..,"data":..} by hand; data is already JSON.
func envelope(typ string, seq uint64, data []byte) []byte {
	buf := make([]byte, 0, len(data)+48)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendUint(buf, seq, 10)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		since, _ = strconv.ParseUint(s, 10, 64)
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since uint64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		log:  h.log,
	}
	conn.EnableWriteCompression(true)

	// Registration and backlog are queued under the lock so no broadcast can
	// slip between them.
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	backfilled := false
	if since > 0 {
		if entries, ok := h.replay.Since(since); ok {
			for _, e := range entries {
				select {
				case client.send <- e.Data:
				default:
				}
			}
			backfilled = true
		}
	}
	seq := h.seq
	h.mu.Unlock()

	h.log.Info("ws client connected", slog.Int("clients", count), slog.Bool("backfilled", backfilled))
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	if !backfilled {
		client.sendSnapshot(seq)
	}
	go client.readPump()
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients int            `json:"clients"`
	Seq     uint64         `json:"seq"`
	Replay  int            `json:"replay"`
	Latency LatencySummary `json:"latency"`
}

// Stats reports clients, the last seq, replay depth and delivery latency.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	st := Stats{Clients: len(h.clients), Seq: h.seq}
	h.mu.RUnlock()
	st.Replay = h.replay.Len()
	st.Latency = h.Latency.Summary()
	return st
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last broadcast.
func (h *Hub) Seq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

// queue sends a message to one client without blocking.
func (h *Hub) queue(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"type": "error", "error": err.Error()})
	}
	return b
}
