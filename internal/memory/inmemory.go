package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process session store for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]State)}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[sessionID]
	if !ok {
		return State{}, nil
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, sessionID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.states[sessionID] = state.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
