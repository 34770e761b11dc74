// Package progress fans out per-message terminal events to dashboard
// subscribers. Delivery is best-effort: a slow or absent subscriber
// never blocks or fails the pipeline.
package progress

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is emitted after each message's terminal transition.
type Event struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Result    string `json:"result"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// Hub distributes events to subscriber channels.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]bool
	closed      bool
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]bool)}
}

// Subscribe registers a new subscriber and returns its event channel.
func (h *Hub) Subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 16)
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = true
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[ch] {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Publish sends the event to every subscriber without blocking. Events
// to subscribers with a full buffer are dropped; a missed event only
// affects dashboard freshness, never pipeline correctness.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			logrus.Debugf("Dropping progress event for slow subscriber (session %s)", event.SessionID)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
