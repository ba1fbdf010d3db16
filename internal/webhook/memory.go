package webhook

import (
	"context"
	"sync"
)

// MemEventStore is an in-memory EventStore for tests.
type MemEventStore struct {
	mu     sync.Mutex
	events map[string]Event
}

func NewMemEventStore() *MemEventStore {
	return &MemEventStore{events: make(map[string]Event)}
}

func (s *MemEventStore) Insert(_ context.Context, e Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return false, nil
	}
	s.events[e.ID] = e
	return true, nil
}

func (s *MemEventStore) MarkOrphaned(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		e.Orphaned = true
		s.events[id] = e
	}
	return nil
}

// Get returns the stored event, reporting whether it exists.
func (s *MemEventStore) Get(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	return e, ok
}

// Len reports how many events have been recorded.
func (s *MemEventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
