// Package store persists the durable session record. Every backend stores
// the record as one opaque blob written in a single atomic operation, so a
// concurrent reader (another process sharing the backend) sees either the
// previous snapshot or the new one, never a mix.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no record has been saved.
var ErrNotFound = errors.New("session record not found")

// Store is the durable session backend.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte) error
	// Clear removes the record and anything else the backend keeps for the
	// slot. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStore) Save(ctx context.Context, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), snapshot...)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
