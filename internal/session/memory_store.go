package session

import (
	"context"
	"sync"

	"shoplab/api/internal/cart"
)

// MemoryStore is the in-process fallback used when no Redis URL is
// configured, and the default store in tests. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Load(_ context.Context, sid string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sid]
	if !ok {
		return State{}, ErrNotFound
	}
	return copyState(state), nil
}

func (s *MemoryStore) Save(_ context.Context, sid string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sid] = copyState(state)
	return nil
}

// copyState detaches the cart slice so callers never share a backing array
// with the map entry, matching the isolation the Redis store gets from
// unmarshalling each load.
func copyState(state State) State {
	if state.Cart != nil {
		state.Cart = append([]cart.Line(nil), state.Cart...)
	}
	return state
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sid)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
