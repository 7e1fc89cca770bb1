package store

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventDocumentLoaded = "document_loaded"
	EventDocumentSaved  = "document_saved"
	EventRecordAdded    = "record_added"
)

// Event represents a store event.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for store events.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[uint64]subscription
	nextID   uint64
	logger   *slog.Logger
}

type subscription struct {
	eventType string // empty matches every event
	handler   EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[uint64]subscription),
		logger:   logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.subscribe(subscription{eventType: eventType, handler: handler})
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.subscribe(subscription{handler: handler})
}

func (eb *EventBus) subscribe(s subscription) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.handlers[id] = s
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers run synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers))
	for _, s := range eb.handlers {
		if s.eventType == "" || s.eventType == event.Type {
			handlers = append(handlers, s.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
