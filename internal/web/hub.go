package web

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	clientBufferSize    = 64
	broadcastBufferSize = 256
)

// hub fans encoded events out to every connected websocket client. Only the
// Run goroutine touches the client set.
type hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

func newHub() *hub {
	return &hub{
		clients:    map[*client]struct{}{},
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

func (h *hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			logger.Debug("event stream client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			logger.Debug("event stream client disconnected", "clients", len(h.clients))

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
					logger.Warn("dropped slow event stream client")
				}
			}
		}
	}
}

// BroadcastJSON queues v for every client. Messages are dropped when the hub
// falls behind.
func (h *hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	select {
	case h.broadcast <- data:
	default:
		logger.Warn("event stream broadcast queue full, dropping message")
	}
	return nil
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(h *hub, conn *websocket.Conn) *client {
	return &client{hub: h, conn: conn, send: make(chan []byte, clientBufferSize)}
}

// serve registers the client and blocks until the connection closes. The
// connection is recycled once the handler returns, so serve also waits for
// the writer to stop.
func (c *client) serve(ctx context.Context) {
	select {
	case c.hub.register <- c:
	case <-ctx.Done():
		return
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.writePump(done)
	}()

	c.readPump(ctx)
	close(done)
	<-stopped
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only listen; reading detects disconnects and handles pongs.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump returns when done is closed, when the hub closes the send
// channel or when a write fails. A failed write closes the connection so the
// reader stops as well.
func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				_ = c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
