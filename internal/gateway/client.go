package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	commandTimeout = 10 * time.Second
)

// Client represents a single WebSocket peer.
//
// A new client without a usable ?since receives one "snapshot" message,
// queued after registration; live "event" messages may arrive before it, so
// clients drop events whose data.seq is not newer than the snapshot's.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *slog.Logger
}

func (c *Client) sendSnapshot(seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	snap, err := c.hub.cmd.Snapshot(ctx)
	if err != nil {
		c.hub.queue(c, mustJSON(Result{Type: "error", Error: err.Error()}))
		return
	}
	c.hub.queue(c, envelope("snapshot", seq, mustJSON(snap)))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: queued messages share one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		c.log.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read error", slog.Any("error", err))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.hub.queue(c, mustJSON(Result{Type: "error", Error: "invalid message: " + err.Error()}))
			continue
		}

		// Commands run in arrival order; the session serializes them anyway.
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		res := c.hub.execute(ctx, cmd)
		cancel()
		c.hub.queue(c, mustJSON(res))
	}
}
