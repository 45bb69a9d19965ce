// Package posestream serves animation frames and pipeline events to an
// external renderer over websocket, plus a small HTTP control surface.
package posestream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/animator"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/metrics"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Renderers only send control frames.
	maxMessageSize = 4096

	broadcastBuffer = 64
)

// Frame types.
const (
	FramePose  = "pose"
	FrameEvent = "event"
)

var upgrader = websocket.Upgrader{
	// The server binds to loopback by default and renderers are often
	// served from another origin.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Frame is one message sent to renderers.
type Frame struct {
	Type  string         `json:"type"`
	Pose  *animator.Pose `json:"pose,omitempty"`
	Event *bus.Event     `json:"event,omitempty"`
}

// Hub fans frames out to connected renderers. Slow clients lose frames
// instead of slowing the animator down.
type Hub struct {
	logger     zerolog.Logger
	writeWait  time.Duration
	sendBuffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan Frame
	done       chan struct{}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger zerolog.Logger, writeWait time.Duration, sendBuffer int) *Hub {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Hub{
		logger:     logger.With().Str("component", "pose-hub").Logger(),
		writeWait:  writeWait,
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Frame, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			metrics.PoseClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.PoseClients.Set(float64(n))
			h.logger.Info().Str("remote", c.remote).Int("clients", n).Msg("Renderer connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.PoseClients.Set(float64(n))
			h.logger.Info().Str("remote", c.remote).Int("clients", n).Msg("Renderer disconnected")

		case f := <-h.broadcast:
			data, err := json.Marshal(f)
			if err != nil {
				h.logger.Error().Err(err).Str("type", f.Type).Msg("Failed to encode frame")
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Dropped; the next pose supersedes it.
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) enqueue(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		h.logger.Debug().Str("type", f.Type).Msg("Broadcast queue full, dropping frame")
	}
}

// WritePose broadcasts an animation frame. It never blocks.
func (h *Hub) WritePose(p animator.Pose) {
	h.enqueue(Frame{Type: FramePose, Pose: &p})
}

// Attach forwards every bus event to renderers and returns a function that
// detaches the hub.
func (h *Hub) Attach(b *bus.Bus) (detach func()) {
	return b.SubscribeMultiple(bus.AllEventTypes, func(e bus.Event) {
		h.enqueue(Frame{Type: FrameEvent, Event: &e})
	})
}

// Count returns the number of connected renderers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		remote: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// readPump discards incoming messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("remote", c.remote).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug().Err(err).Str("remote", c.remote).Msg("Failed to write frame")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
