// Package watcher re-indexes a project automatically when its documents
// change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/indexer"
)

// Event names passed to the event callback.
const (
	EventWatching = "watching"
	EventChange   = "change"
	EventIndexed  = "indexed"
	EventSkipped  = "skipped"
	EventFailed   = "failed"
)

// Reindexer rebuilds a project's index. Running reports whether a run is
// already in progress.
type Reindexer interface {
	IndexDirectory(ctx context.Context, projectRoot string) (*indexer.Result, error)
	Running() bool
}

var _ Reindexer = (*indexer.Indexer)(nil)

// Watcher watches for document changes and triggers a full re-index once
// changes settle.
type Watcher struct {
	root      string
	reindexer Reindexer
	include   []string
	skipDirs  []string

	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)

	wg sync.WaitGroup
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long changes must settle before re-indexing.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceTime = d
		}
	}
}

// WithEventCallback sets a callback for watcher events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// WithInclude sets the doublestar patterns of documents whose changes
// trigger a re-index.
func WithInclude(patterns []string) Option {
	return func(w *Watcher) {
		w.include = patterns
	}
}

// WithSkipDirs adds directory names that are never watched.
func WithSkipDirs(names ...string) Option {
	return func(w *Watcher) {
		w.skipDirs = append(w.skipDirs, names...)
	}
}

// New creates a new watcher for root.
func New(root string, r Reindexer, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	w := &Watcher{
		root:      absRoot,
		reindexer: r,
		skipDirs: []string{
			"node_modules", "vendor", "dist", "build", "out", "target",
			"coverage", "__pycache__",
		},
		debounceTime: 2 * time.Second,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := fs.ValidateInclude(w.include); err != nil {
		return nil, err
	}

	return w, nil
}

// Root returns the watched project root.
func (w *Watcher) Root() string {
	return w.root
}

// Start begins watching for changes. Blocks until ctx is cancelled, then
// waits for an in-flight re-index to finish.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addDirectories(fsw, w.root); err != nil {
		return err
	}

	debouncer := NewDebouncer(w.debounceTime)
	defer debouncer.Stop()
	defer w.wg.Wait()

	log.Info("Watching for changes", "root", w.root, "debounce", w.debounceTime)
	w.onEvent(EventWatching, w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if rel, ok := w.handleEvent(event, fsw); ok {
				w.onEvent(EventChange, rel)
				debouncer.Add(rel)
			}

		case batch := <-debouncer.Output():
			log.Debug("Changes settled", "files", len(batch))
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.reindex(ctx)
			}()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// reindex runs a full re-index unless one is already in progress.
func (w *Watcher) reindex(ctx context.Context) {
	if w.reindexer.Running() {
		log.Info("Index run in progress, skipping re-index", "root", w.root)
		w.onEvent(EventSkipped, w.root)
		return
	}

	result, err := w.reindexer.IndexDirectory(ctx, w.root)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("Re-index failed", "root", w.root, "error", err)
		w.onEvent(EventFailed, w.root)
		return
	}

	log.Info("Re-indexed", "files", result.Files, "chunks", result.Chunks)
	w.onEvent(EventIndexed, w.root)
}

// addDirectories recursively adds dir and its subdirectories to fsw.
func (w *Watcher) addDirectories(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && w.shouldSkipDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// shouldSkipDir returns true if a directory should not be watched.
func (w *Watcher) shouldSkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || slices.Contains(w.skipDirs, name)
}

// handleEvent filters a file system event. It returns the slash-separated
// relative path when the event should trigger a re-index.
func (w *Watcher) handleEvent(event fsnotify.Event, fsw *fsnotify.Watcher) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}

	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return "", false
	}
	relPath = filepath.ToSlash(relPath)

	for _, part := range strings.Split(relPath, "/") {
		if w.shouldSkipDir(part) {
			return "", false
		}
	}

	// New directories are watched and may already hold documents
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectories(fsw, event.Name); err != nil {
				log.Debug("Failed to watch new directory", "path", relPath, "error", err)
			}
			return relPath, true
		}
	}

	if w.matches(relPath) {
		return relPath, true
	}

	// A removed directory leaves no trace to stat; treat extensionless
	// removals as possible directories.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return relPath, filepath.Ext(relPath) == ""
	}

	return "", false
}

// matches reports whether relPath is a document that gets indexed.
func (w *Watcher) matches(relPath string) bool {
	return len(w.include) == 0 || fs.MatchInclude(w.include, relPath)
}
