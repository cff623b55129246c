package hub

import (
	"sync"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

func (p BackpressurePolicy) String() string {
	if p == PolicyKick {
		return "kick"
	}
	return "drop"
}

// Client is one consumer of received frames.
type Client struct {
	Out       chan can.Frame
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient allocates a client with an outbound queue of buf frames.
func NewClient(buf int) *Client {
	return &Client{Out: make(chan can.Frame, buf), Closed: make(chan struct{})}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() { c.closeOnce.Do(func() { close(c.Closed) }) }

// Hub fans frames read from the CAN channel out to every client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(n)
	if n == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters and closes a client; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(n)
	if existed && n == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Broadcast queues fr on every client honoring the backpressure policy and
// returns how many clients accepted it.
func (h *Hub) Broadcast(fr can.Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		select {
		case c.Out <- fr:
			delivered++
			continue
		default:
		}
		if h.Policy == PolicyKick {
			metrics.IncHubKick()
			c.Close() // writer exits; server removes it on disconnect
		} else {
			metrics.IncHubDrop()
		}
	}
	return delivered
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); defer h.mu.RUnlock(); return len(h.clients) }
