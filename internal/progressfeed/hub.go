// Package progressfeed is a JWT-gated WebSocket adapter that exposes
// the core's progress reporter signature, (percent int, message
// string), to external subscribers for one run. The core itself never
// imports this package or knows it exists (spec.md §5: "the core
// never emits events through any UI mechanism").
package progressfeed

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Event is one progress update broadcast to every subscriber.
type Event struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Client is one subscribed WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Event

	id    string
	runID string
}

func newClient(id, runID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan Event, sendBufferSize), id: id, runID: runID}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
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

// readPump only drains the connection to detect client disconnects;
// the progress feed is one-directional (the core never accepts
// commands back from a subscriber).
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub fans progress events out to every client subscribed to one
// run. One Hub belongs to exactly one batch.Driver run.
type Hub struct {
	runID string

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	logger zerolog.Logger
	mu     sync.RWMutex
}

func NewHub(runID string, logger zerolog.Logger) *Hub {
	return &Hub{
		runID:      runID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		logger:     logger,
	}
}

// Run is the hub's event loop; call it in its own goroutine before
// the batch starts.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", client.id).Msg("progress client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					h.logger.Warn().Str("client_id", client.id).Msg("progress client buffer full, dropping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Reporter returns a (percent, message) func suitable for
// batch.Driver.Run's report parameter. It is non-blocking: it
// only enqueues onto a buffered channel and never touches core state.
func (h *Hub) Reporter() func(percent int, message string) {
	return func(percent int, message string) {
		select {
		case h.broadcast <- Event{Percent: percent, Message: message}:
		default:
			h.logger.Warn().Msg("progress hub broadcast channel full, dropping event")
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
