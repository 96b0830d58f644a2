package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit trails per process. Suitable for tests and
// single-instance dev mode.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ProcessID] = append(s.events[event.ProcessID], event)
	return nil
}

func (s *InMemoryStore) ListByProcess(_ context.Context, processID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[processID]...), nil
}
