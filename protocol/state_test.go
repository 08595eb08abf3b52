package protocol

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncplane/syncplane/statestore"
)

func withStateConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	prev := stateConfigPath
	stateConfigPath = path
	t.Cleanup(func() { stateConfigPath = prev })
}

func TestNewStateStoreDefaultsToMemory(t *testing.T) {
	prev := stateConfigPath
	stateConfigPath = ""
	t.Cleanup(func() { stateConfigPath = prev })

	store, err := newStateStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &statestore.MemoryStore{}, store)
}

func TestNewStateStoreFileBackend(t *testing.T) {
	dir := t.TempDir()
	withStateConfig(t, `{"type": "file", "path": "`+filepath.Join(dir, "cursors.json")+`"}`)

	store, err := newStateStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &statestore.FileStore{}, store)
}

func TestNewStateStoreFileBackendRequiresPath(t *testing.T) {
	withStateConfig(t, `{"type": "file"}`)

	_, err := newStateStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestNewStateStoreRejectsUnknownType(t *testing.T) {
	withStateConfig(t, `{"type": "etcd"}`)

	_, err := newStateStore(context.Background())
	require.Error(t, err)
}

func TestNewStateStorePostgresRequiresBlock(t *testing.T) {
	withStateConfig(t, `{"type": "postgres"}`)

	_, err := newStateStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestStateConfigValidation(t *testing.T) {
	assert.Error(t, (&StateConfig{}).Validate(), "type is required")
	assert.Error(t, (&StateConfig{Type: "etcd"}).Validate())
	assert.NoError(t, (&StateConfig{Type: "memory"}).Validate())
}
