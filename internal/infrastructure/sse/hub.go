package sse

import (
	"sync"

	"github.com/creaturederby/derby/internal/domain/event"
)

// Hub manages stream clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*event.Client
}

var _ event.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*event.Client),
	}
}

func (h *Hub) Register(client *event.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers msg to every interested client without blocking.
func (h *Hub) Publish(msg *event.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Wants(msg) {
			trySend(c, msg)
		}
	}
}

func (h *Hub) SendToClient(clientID string, msg *event.Message) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return event.ErrClientNotFound
	}
	if !trySend(c, msg) {
		return event.ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *event.Client, msg *event.Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
