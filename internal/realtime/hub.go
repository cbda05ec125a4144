// Package realtime pushes dashboard updates to connected browsers over WebSocket.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events exchanged with dashboard clients.
const (
	EventDashboardUpdate = "dashboard_update"
	EventQuery           = "query"
	EventOrganizations   = "organizations"
	EventPing            = "ping"
	EventPong            = "pong"
	EventError           = "error"
)

// Hub tracks connected dashboard viewers and fans messages out to them.
// Sends never block: a viewer whose buffer is full misses the message and
// catches up with the next update.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(count))
	h.logger.Debug("dashboard viewer connected", zap.String("client_id", c.ID), zap.Int("viewers", count))
}

// Unregister removes a client and closes its send buffer. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.WSConnections.Set(float64(count))
	h.logger.Debug("dashboard viewer disconnected", zap.String("client_id", c.ID), zap.Int("viewers", count))
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	// Held for the sends so Unregister cannot close a buffer mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(clientID string, event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Error("encode message", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ViewerCount returns the number of connected clients.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newMessage(event string, payload interface{}) (WSMessage, error) {
	var data []byte
	switch v := payload.(type) {
	case nil:
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return WSMessage{}, err
		}
	}
	return WSMessage{Event: event, Data: data}, nil
}
