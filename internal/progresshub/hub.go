// Package progresshub is a generic pub/sub event hub for conversion
// progress, discarded-track, and completion events, adapted from the
// teacher's internal/sse.Hub: same register/unregister/broadcast
// channel loop and drop-if-full client buffers, retargeted from
// browser SSE clients to in-process subscribers (the CLI's progress
// printer, tests).
package progresshub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jota2rz/vdj-video-sync/server/internal/media"
)

// EventKind identifies what a published Event carries.
type EventKind int

const (
	EventProgress EventKind = iota
	EventDiscardedTrack
	EventCompleted
	EventFailed
)

// Event is one conversion lifecycle event (spec.md §4.7's progress
// reporting, §3's DiscardedTrack, §6's terminal outcomes).
type Event struct {
	Kind         EventKind
	ConversionID uuid.UUID
	Progress     float64
	Discarded    media.DiscardedTrack
	Err          error
}

// Subscriber is one registered listener.
type Subscriber struct {
	ID     string
	Events chan Event
}

// Hub fans out Events to every registered Subscriber, the same
// register/unregister/broadcast loop shape as internal/sse.Hub.
type Hub struct {
	subscribers map[*Subscriber]bool
	broadcast   chan Event
	register    chan *Subscriber
	unregister  chan *Subscriber
	mu          sync.RWMutex
	done        chan struct{}
}

// NewHub creates a Hub. Call Run in a goroutine to start its loop.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan Event, 64),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.Events)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for sub := range h.subscribers {
				select {
				case sub.Events <- ev:
				default:
					slog.Warn("progresshub: subscriber buffer full, dropping event", "id", sub.ID)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for sub := range h.subscribers {
				close(sub.Events)
				delete(h.subscribers, sub)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds a subscriber to the hub.
func (h *Hub) Register(s *Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
	}
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Publish broadcasts ev to every registered subscriber.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts down the hub.
func (h *Hub) Close() {
	close(h.done)
}
