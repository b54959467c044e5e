package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"formvault/internal/outbox"
)

// InMemoryStore keeps outbox events in insertion order. Appends are not
// transactional.
type InMemoryStore struct {
	mu        sync.Mutex
	events    []outbox.Event
	published map[uuid.UUID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{published: make(map[uuid.UUID]bool)}
}

func (s *InMemoryStore) Append(_ context.Context, event outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	s.events = append(s.events, event)
	return nil
}

// Process holds the store lock for the duration of fn.
func (s *InMemoryStore) Process(ctx context.Context, limit int, fn func(ctx context.Context, events []outbox.Event) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []outbox.Event
	for _, e := range s.events {
		if len(batch) == limit {
			break
		}
		if !s.published[e.ID] {
			batch = append(batch, e)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	for _, e := range batch {
		s.published[e.ID] = true
	}
	return len(batch), nil
}

// Events returns every appended event, published or not.
func (s *InMemoryStore) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

// Pending counts unpublished events.
func (s *InMemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if !s.published[e.ID] {
			n++
		}
	}
	return n
}
