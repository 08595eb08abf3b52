package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/syncplane/syncplane/types"
)

type fileEntry struct {
	Table  string       `json:"table"`
	Client string       `json:"client"`
	Cursor types.Cursor `json:"cursor"`
}

// FileStore persists cursors as a single JSON file. Every Put rewrites the
// file through a temp-file rename, so a crashed sync never leaves a torn
// state behind. Concurrent Puts from different tables' tasks serialize on an
// in-process mutex.
type FileStore struct {
	mu      sync.Mutex
	path    string
	cursors map[Key]types.Cursor
}

func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, cursors: make(map[Key]types.Cursor)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %s", path, err)
	}

	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %s", path, err)
	}
	for _, entry := range entries {
		store.cursors[NewKey(entry.Table, entry.Client)] = entry.Cursor
	}
	return store, nil
}

func (f *FileStore) Get(_ context.Context, key Key) (types.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[key], nil
}

func (f *FileStore) Put(_ context.Context, key Key, cursor types.Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[key] = cursor
	return f.flush()
}

// flush writes the whole map atomically; caller holds the mutex.
func (f *FileStore) flush() error {
	entries := make([]fileEntry, 0, len(f.cursors))
	for key, cursor := range f.cursors {
		entries = append(entries, fileEntry{Table: key.Table, Client: key.Client, Cursor: cursor})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %s", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %s", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp state file: %s", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %s", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Snapshot(_ context.Context) (map[Key]types.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Key]types.Cursor, len(f.cursors))
	for key, cursor := range f.cursors {
		out[key] = cursor
	}
	return out, nil
}

func (f *FileStore) Close(_ context.Context) error {
	return nil
}
