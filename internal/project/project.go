// Package project resolves project roots and opens their index stores.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/store"
)

// ResolveRoot returns the absolute form of path after checking that it is
// an existing directory. The result is the key a project is stored under.
func ResolveRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("project root does not exist: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root is not a directory: %s", absPath)
	}

	return filepath.Clean(absPath), nil
}

// StoreOptions maps the storage configuration onto store options.
func StoreOptions(cfg *config.Config) []store.Option {
	opts := []store.Option{store.WithDirName(cfg.Storage.DirName)}
	if policy, ok := store.ParseDuplicatePathPolicy(cfg.Storage.DuplicatePaths); ok {
		opts = append(opts, store.WithDuplicatePathPolicy(policy))
	} else {
		log.Warn("Unknown duplicate path policy, using default", "policy", cfg.Storage.DuplicatePaths)
	}
	return opts
}

// DatabasePath returns where the index of root lives under cfg.
func DatabasePath(cfg *config.Config, root string) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return store.IndexPath(root, cfg.Storage.DirName)
}

// Open opens the index store for root. root must already be resolved.
func Open(cfg *config.Config, root string) (*store.SQLiteStore, error) {
	return store.OpenPath(DatabasePath(cfg, root), StoreOptions(cfg)...)
}

// Registry keeps one open store per database file so long-running
// processes reuse connections across requests.
type Registry struct {
	cfg *config.Config

	mu     sync.Mutex
	stores map[string]*store.SQLiteStore
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		cfg:    cfg,
		stores: make(map[string]*store.SQLiteStore),
	}
}

// Store resolves path and returns its project root together with the
// store holding that project's index.
func (r *Registry) Store(path string) (string, *store.SQLiteStore, error) {
	return r.open(path, true)
}

// Lookup is Store for readers. A project whose index file does not exist
// yet gets a nil store instead of a freshly created database.
func (r *Registry) Lookup(path string) (string, *store.SQLiteStore, error) {
	return r.open(path, false)
}

func (r *Registry) open(path string, create bool) (string, *store.SQLiteStore, error) {
	root, err := ResolveRoot(path)
	if err != nil {
		return "", nil, err
	}

	dbPath := DatabasePath(r.cfg, root)

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.stores[dbPath]; ok {
		return root, st, nil
	}

	if !create {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return root, nil, nil
		}
	}

	st, err := store.OpenPath(dbPath, StoreOptions(r.cfg)...)
	if err != nil {
		return "", nil, err
	}
	r.stores[dbPath] = st
	return root, st, nil
}

// Close closes every store opened through the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path, st := range r.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", path, err))
		}
		delete(r.stores, path)
	}
	return errors.Join(errs...)
}
