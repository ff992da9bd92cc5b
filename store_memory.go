package personaquiz

import (
	"context"
	"sync"
)

// MemoryStore keeps the encoded snapshot in memory. It is used for one-shot
// generation where nothing should outlive the process.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the last saved snapshot
func (m *MemoryStore) Load(ctx context.Context) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return DecodeState(m.data, nil), nil
}

// Save replaces the snapshot
func (m *MemoryStore) Save(ctx context.Context, state *SessionState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.saves++
	m.mu.Unlock()
	return nil
}

// Clear drops the snapshot
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// Saves returns how many times Save was called
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
