// Package statusws exposes the gateway's metrics counter snapshots and
// §4.7 metadata-change notices over a WebSocket, for dashboards that want
// push updates instead of polling /metrics. Grounded on
// dbehnke-dmr-nexus/pkg/web/websocket.go's hub (register/unregister/
// broadcast channels, per-client buffered writer goroutine), with the
// CAN-bridge-specific event helpers replaced by frame-stats and
// metadata events.
package statusws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one JSON message pushed to every connected client.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func (e *Event) marshal() ([]byte, error) { return json.Marshal(e) }

type client struct {
	id       string
	conn     *websocket.Conn
	messages chan []byte
}

// Hub manages WebSocket client connections and fans out Events.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	log        *slog.Logger
}

// NewHub builds a Hub; Run must be started in its own goroutine.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.messages)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			data, err := event.marshal()
			if err != nil {
				h.log.Error("statusws_marshal_error", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.messages <- data:
				default:
					h.log.Warn("statusws_client_buffer_full", "client_id", c.id)
				}
			}
			h.mu.RUnlock()
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.messages)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues event for delivery to every connected client.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("statusws_broadcast_full", "event_type", event.Type)
	}
}

// BroadcastStats pushes a "stats" event carrying data (typically a
// metrics.Snapshot or equivalent struct).
func (h *Hub) BroadcastStats(data interface{}) {
	h.Broadcast(Event{Type: "stats", Data: data})
}

// BroadcastMetaChange pushes a "meta_change" event (typically a
// wire.MetaData).
func (h *Hub) BroadcastMetaChange(data interface{}) {
	h.Broadcast(Event{Type: "meta_change", Data: data})
}

// Count returns the number of connected WebSocket clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler returns an http.Handler that upgrades incoming requests to
// WebSocket connections and registers them with the hub.
func (h *Hub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		c := &client{id: r.RemoteAddr, conn: conn, messages: make(chan []byte, 256)}
		h.register <- c

		go func() {
			defer func() {
				h.unregister <- c
				_ = c.conn.Close()
			}()
			c.conn.SetReadLimit(1024)
			for {
				if _, _, err := c.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for msg := range c.messages {
				_ = c.conn.WriteMessage(websocket.TextMessage, msg)
			}
		}()
	})
}
