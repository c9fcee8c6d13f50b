package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
  "version": 1,
  "roles": [
    {"name": "viewer", "permissions": [
      {"action": "read", "resource_type": "conversation", "scope": "own"}
    ]}
  ]
}`

const nextDoc = `{
  "version": 2,
  "roles": [
    {"name": "viewer", "permissions": [
      {"action": "read", "resource_type": "conversation", "scope": "tenant"}
    ]}
  ]
}`

func writeDoc(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestStoreLoadsInitialSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeDoc(t, path, validDoc)

	store, err := NewStore(context.Background(), FileLoader{Path: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.Snapshot().Version())
}

func TestStoreFailsFastOnBrokenDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeDoc(t, path, `{"version": 1, "roles": [{"name": "a", "parents": ["a"]}]}`)

	_, err := NewStore(context.Background(), FileLoader{Path: path}, nil)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestStoreReloadSwapsAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeDoc(t, path, validDoc)

	store, err := NewStore(context.Background(), FileLoader{Path: path}, nil)
	require.NoError(t, err)
	before := store.Snapshot()

	writeDoc(t, path, nextDoc)
	require.NoError(t, store.Reload(context.Background()))

	after := store.Snapshot()
	assert.Equal(t, int64(2), after.Version())

	// The old snapshot stays internally consistent for in-flight readers.
	perms, err := before.EffectivePermissions("viewer")
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, perms[0].Scope)
}

func TestStoreReloadKeepsServingOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeDoc(t, path, validDoc)

	store, err := NewStore(context.Background(), FileLoader{Path: path}, nil)
	require.NoError(t, err)

	writeDoc(t, path, `{"version": 9, "roles": [{"name": "x", "parents": ["missing"]}]}`)
	err = store.Reload(context.Background())
	require.ErrorIs(t, err, ErrUnknownRole)

	// Old snapshot still serves.
	assert.Equal(t, int64(1), store.Snapshot().Version())
}

func TestFileLoaderRejectsBadScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeDoc(t, path, `{"version": 1, "roles": [{"name": "a", "permissions": [{"action": "read", "resource_type": "doc", "scope": "universe"}]}]}`)

	_, err := FileLoader{Path: path}.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")
}

func TestFileLoaderMissingFile(t *testing.T) {
	_, err := FileLoader{Path: filepath.Join(t.TempDir(), "absent.json")}.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
