// Package state stores the values the device manager shares with the GUI: the
// communication state and the states backing catalog controls.
package state

import (
	"context"
	"sync"
	"time"
)

// Value is one stored state.
type Value struct {
	Val string    `json:"val"`
	Ack bool      `json:"ack"`
	Ts  time.Time `json:"ts"`
}

// Store persists state values by id. Get returns nil, nil for a missing id.
type Store interface {
	// Ensure creates id with the initial value unless it already exists.
	Ensure(ctx context.Context, id, initial string) error
	Set(ctx context.Context, id, val string, ack bool) error
	Get(ctx context.Context, id string) (*Value, error)
	Ping(ctx context.Context) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]Value)}
}

// Ensure creates id unless present.
func (s *MemoryStore) Ensure(_ context.Context, id, initial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; !ok {
		s.values[id] = Value{Val: initial, Ack: true, Ts: time.Now().UTC()}
	}
	return nil
}

// Set stores val under id.
func (s *MemoryStore) Set(_ context.Context, id, val string, ack bool) error {
	s.mu.Lock()
	s.values[id] = Value{Val: val, Ack: ack, Ts: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

// Get returns the value of id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }
