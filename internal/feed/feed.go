// Package feed bridges the store's change feed into entry-level callbacks.
// Delivery is at-least-once; consumers must treat events as idempotent
// upserts and removals keyed by entry id, never as an append-only log.
package feed

import (
	"sync"
	"time"

	"github.com/KamogeloT/MediFlow/internal/models"
	"github.com/KamogeloT/MediFlow/internal/store"
)

type Kind string

const (
	Insert Kind = store.FeedInsert
	Update Kind = store.FeedUpdate
	Delete Kind = store.FeedDelete
)

// Event is one observed change. On Delete the entry carries its pre-delete
// values so consumers can drop it from derived views.
type Event struct {
	Kind      Kind
	Entry     models.QueueEntry
	CreatedAt time.Time
}

type Handler func(Event)

// Synchronizer fans observed changes out to registered handlers. It does not
// retry or buffer; it is purely reactive to what the producer delivers, so a
// consumer relying on it alone (without an initial snapshot) sees gaps.
type Synchronizer struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its release. The returned func
// is safe to call more than once and stops deliveries to this handler only.
func (s *Synchronizer) Subscribe(handler Handler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Publish delivers one event to every handler subscribed at call time.
// Handlers run on the caller's goroutine.
func (s *Synchronizer) Publish(event Event) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, handler := range s.handlers {
		handlers = append(handlers, handler)
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}
