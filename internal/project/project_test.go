package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlotus/lotusrag/internal/config"
)

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()

	root, err := ResolveRoot(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root))

	_, err = ResolveRoot(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "does not exist")

	file := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = ResolveRoot(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestDatabasePath(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, filepath.Join("/p", ".codexlotus", "index.db"), DatabasePath(cfg, "/p"))

	cfg.Storage.DirName = ".notes-index"
	assert.Equal(t, filepath.Join("/p", ".notes-index", "index.db"), DatabasePath(cfg, "/p"))

	cfg.Storage.Path = "/var/lib/lotusrag/shared.db"
	assert.Equal(t, "/var/lib/lotusrag/shared.db", DatabasePath(cfg, "/p"))
}

func TestRegistryReusesStores(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := NewRegistry(cfg)

	dir := t.TempDir()
	root1, st1, err := reg.Store(dir)
	require.NoError(t, err)
	root2, st2, err := reg.Store(dir + string(filepath.Separator))
	require.NoError(t, err)

	assert.Equal(t, root1, root2)
	assert.Same(t, st1, st2)
	assert.FileExists(t, filepath.Join(root1, ".codexlotus", "index.db"))

	other := t.TempDir()
	_, st3, err := reg.Store(other)
	require.NoError(t, err)
	assert.NotSame(t, st1, st3)

	require.NoError(t, reg.Close())
	assert.Empty(t, reg.stores)
}

func TestRegistryRejectsMissingRoot(t *testing.T) {
	reg := NewRegistry(config.DefaultConfig())
	defer reg.Close()

	_, _, err := reg.Store(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRegistryLookupDoesNotCreateIndex(t *testing.T) {
	reg := NewRegistry(config.DefaultConfig())
	defer reg.Close()

	dir := t.TempDir()
	root, st, err := reg.Lookup(dir)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoFileExists(t, filepath.Join(root, ".codexlotus", "index.db"))

	_, created, err := reg.Store(dir)
	require.NoError(t, err)

	_, found, err := reg.Lookup(dir)
	require.NoError(t, err)
	assert.Same(t, created, found)

	_, _, err = reg.Lookup(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
