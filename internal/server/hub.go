package server

import (
	"sync"

	"github.com/koscakluka/ema-duplex/core/events"
)

// Hub fans the events of one session out to every connection of its user.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[ch]; !ok {
		return
	}
	delete(h.clients, ch)
	close(ch)
}

// Broadcast never blocks; a client whose buffer is full misses msg.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			logger.Warn("dropped event for slow client")
		}
	}
}

func (h *Hub) BroadcastEvent(event events.Event) {
	payload, err := events.Marshal(event)
	if err != nil {
		logger.Error("event marshal error", "kind", event.Kind(), "error", err)
		return
	}
	h.Broadcast(payload)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
