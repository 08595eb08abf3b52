package statestore

import (
	"context"
	"sync"

	"github.com/syncplane/syncplane/types"
)

// MemoryStore keeps cursors for the lifetime of the process. Used in tests
// and by the transport server, which seeds it from the sync request and
// snapshots it into the terminal summary frame.
type MemoryStore struct {
	cursors sync.Map // Key -> types.Cursor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed pre-populates the store, overwriting existing keys.
func (m *MemoryStore) Seed(cursors map[Key]types.Cursor) {
	for key, cursor := range cursors {
		m.cursors.Store(key, cursor)
	}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (types.Cursor, error) {
	value, found := m.cursors.Load(key)
	if !found {
		return "", nil
	}
	return value.(types.Cursor), nil
}

func (m *MemoryStore) Put(_ context.Context, key Key, cursor types.Cursor) error {
	m.cursors.Store(key, cursor)
	return nil
}

func (m *MemoryStore) Snapshot(_ context.Context) (map[Key]types.Cursor, error) {
	out := make(map[Key]types.Cursor)
	m.cursors.Range(func(k, v any) bool {
		out[k.(Key)] = v.(types.Cursor)
		return true
	})
	return out, nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}
