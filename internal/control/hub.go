package control

import (
	"sync"

	"github.com/sdrfec/gateway/internal/logging"
	"github.com/sdrfec/gateway/internal/metrics"
)

// BackpressurePolicy governs what happens when a client's outbound
// queue is full: drop the newest notice, or kick the slow client.
type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Client is one connected command-channel subscriber. Notices pushed to
// Out are pre-encoded lines (stats snapshots, metadata-change notices)
// ready to write to the socket.
type Client struct {
	Out       chan string
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans out broadcast notices (periodic stats, metadata changes) to
// every connected command-channel client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	if prev == 0 && cur == 1 {
		logging.L().Info("control_clients_first_connected")
	}
}

// Remove unregisters a client; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetControlClients(cur)
	if existed && cur == 0 {
		logging.L().Info("control_clients_last_disconnected")
	}
}

// Broadcast sends a notice line to all connected clients honoring the
// backpressure policy.
func (h *Hub) Broadcast(notice string) {
	clients := h.Snapshot()
	metrics.SetControlClients(len(clients))
	for _, c := range clients {
		select {
		case c.Out <- notice:
		default:
			if h.Policy == PolicyKick {
				c.Close()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
