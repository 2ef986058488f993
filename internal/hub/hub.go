// Package hub is an in-process publish/subscribe broker keyed by topic.
package hub

import (
	"sync"
)

// Handler receives a published payload.
type Handler func(payload []byte)

// Hub fans payloads out to topic subscribers. A retained payload is
// replayed to every later subscriber until it is cleared.
type Hub struct {
	mu       sync.Mutex
	next     uint64
	subs     map[string]map[uint64]Handler
	retained map[string][]byte
}

func New() *Hub {
	return &Hub{
		subs:     make(map[string]map[uint64]Handler),
		retained: make(map[string][]byte),
	}
}

// Subscribe registers fn for topic and returns a function that removes it.
// A retained payload is delivered before Subscribe returns. The cancel
// function may be called more than once.
func (h *Hub) Subscribe(topic string, fn Handler) (cancel func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]Handler)
	}
	h.subs[topic][id] = fn
	retained, ok := h.retained[topic]
	h.mu.Unlock()

	if ok {
		fn(retained)
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[topic]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.subs, topic)
			}
		}
	}
}

// Publish delivers payload to the current subscribers of topic. Handlers
// run on the caller's goroutine, outside the hub lock.
func (h *Hub) Publish(topic string, payload []byte) {
	for _, fn := range h.handlers(topic) {
		fn(payload)
	}
}

// Retain publishes payload and keeps it for future subscribers.
func (h *Hub) Retain(topic string, payload []byte) {
	h.mu.Lock()
	h.retained[topic] = payload
	h.mu.Unlock()
	h.Publish(topic, payload)
}

// Clear drops the retained payload of topic.
func (h *Hub) Clear(topic string) {
	h.mu.Lock()
	delete(h.retained, topic)
	h.mu.Unlock()
}

// Close drops every subscriber of topic and its retained payload. Cancel
// functions handed out earlier stay safe to call.
func (h *Hub) Close(topic string) {
	h.mu.Lock()
	delete(h.subs, topic)
	delete(h.retained, topic)
	h.mu.Unlock()
}

// Subscribers returns the number of handlers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

func (h *Hub) handlers(topic string) []Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Handler, 0, len(h.subs[topic]))
	for _, fn := range h.subs[topic] {
		out = append(out, fn)
	}
	return out
}
