package events

import (
	"context"
	"sync"
	"time"
)

// Topic names for the domain events the admin feed streams.
const (
	TopicAccountHealth = "account.health"
	TopicChannelResult = "channel.result"
	TopicRequestDone   = "request.done"
	TopicConfigUpdated = "config.updated"
	TopicProxyStatus   = "proxy.status"
)

// Event is one published message on the bus.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher exposes the ability to publish events to the hub.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Hub is a lightweight in-process pub/sub bus. Handlers run synchronously
// on the publisher's goroutine; anything slow must hand off itself.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Handler
	nextID int64
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]Handler)}
}

// Subscribe registers a handler for the topic and returns its unsubscribe
// function.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]Handler)
	}
	h.subs[topic][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if handlers, ok := h.subs[topic]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(h.subs, topic)
			}
		}
	}
}

// Publish delivers the event to every subscriber of its topic.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	ev := Event{
		Topic:     topic,
		Timestamp: time.Now(),
		Payload:   payload,
		Metadata:  metadata,
	}

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[topic]))
	for _, fn := range h.subs[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ctx, ev)
	}
}
