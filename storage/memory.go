package storage

import (
	"context"
	"sync"
)

// MemoryStore implements Store with an in-memory map. It is the default for
// tests and single-process development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	versions map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// LoadContent returns a copy of the stored blob to prevent external
// modification.
func (m *MemoryStore) LoadContent(_ context.Context, documentID string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[documentID]
	if !ok {
		return nil, 0, ErrNotFound
	}

	out := make([]byte, len(blob))
	copy(out, blob)
	return out, m.versions[documentID], nil
}

// SaveContent stores a copy of the blob under the next version.
func (m *MemoryStore) SaveContent(_ context.Context, documentID string, blob []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.versions[documentID]; current != expectedVersion {
		return current, ErrStaleVersion
	}

	stored := make([]byte, len(blob))
	copy(stored, blob)

	next := expectedVersion + 1
	m.blobs[documentID] = stored
	m.versions[documentID] = next
	return next, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
