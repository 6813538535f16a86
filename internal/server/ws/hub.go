// Package ws pushes chat events to connected websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

// Hub tracks live connections per user. One user may hold several.
type Hub struct {
	log *logger.Logger

	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliver    chan models.Event
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:        log.With("service", "Hub"),
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan models.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return nil
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.UserID] == nil {
				h.clients[c.UserID] = make(map[*Client]bool)
			}
			h.clients[c.UserID][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
		case ev := <-h.deliver:
			h.broadcast(ev)
		}
	}
}

// Deliver queues ev for its recipients. It is the bus forwarder callback.
func (h *Hub) Deliver(ev models.Event) {
	select {
	case h.deliver <- ev:
	default:
		h.log.Warn("push queue full, dropping event", "type", ev.Type)
	}
}

// Register reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Online reports how many connections userID currently holds.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) broadcast(ev models.Event) {
	data, err := json.Marshal(ev.Push())
	if err != nil {
		h.log.Error("marshal push", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range ev.Recipients {
		for c := range h.clients[userID] {
			select {
			case c.Send <- data:
			default:
				h.log.Warn("slow client dropped", "user_id", userID)
				h.remove(c)
			}
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.remove(c)
		}
	}
}
