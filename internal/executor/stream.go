package executor

import (
	"sync"

	"github.com/ocilxc/lxc-deployer/internal/models"
)

// Hub fans execution messages out to live subscribers. Slow subscribers
// drop messages rather than stall the run; they recover by polling, where
// Merge reconciles by index.
type Hub struct {
	mu      sync.RWMutex
	streams map[string][]chan models.ExecuteMessage
}

func NewHub() *Hub {
	return &Hub{streams: make(map[string][]chan models.ExecuteMessage)}
}

func groupKey(app, task string) string { return app + "/" + task }

// Subscribe returns a channel receiving the group's messages as they are
// appended.
func (h *Hub) Subscribe(app, task string) chan models.ExecuteMessage {
	ch := make(chan models.ExecuteMessage, 100)

	h.mu.Lock()
	key := groupKey(app, task)
	h.streams[key] = append(h.streams[key], ch)
	h.mu.Unlock()

	return ch
}

// Unsubscribe detaches and closes a subscriber channel.
func (h *Hub) Unsubscribe(app, task string, ch chan models.ExecuteMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := groupKey(app, task)
	channels := h.streams[key]
	for i, c := range channels {
		if c == ch {
			h.streams[key] = append(channels[:i], channels[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.streams[key]) == 0 {
		delete(h.streams, key)
	}
}

// Broadcast delivers a message to every subscriber without blocking.
func (h *Hub) Broadcast(app, task string, m models.ExecuteMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.streams[groupKey(app, task)] {
		select {
		case ch <- m:
		default:
		}
	}
}
