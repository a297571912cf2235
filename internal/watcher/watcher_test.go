package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/indexer"
)

// fakeReindexer counts re-index runs.
type fakeReindexer struct {
	calls   atomic.Int32
	running atomic.Bool
	err     error
}

func (f *fakeReindexer) IndexDirectory(ctx context.Context, projectRoot string) (*indexer.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &indexer.Result{Files: 1, Chunks: 1}, nil
}

func (f *fakeReindexer) Running() bool {
	return f.running.Load()
}

// recorder collects watcher events.
type recorder struct {
	mu     sync.Mutex
	events map[string]int
	ready  chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string]int), ready: make(chan struct{})}
}

func (r *recorder) callback(event, path string) {
	r.mu.Lock()
	r.events[event]++
	r.mu.Unlock()
	if event == EventWatching {
		r.once.Do(func() { close(r.ready) })
	}
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event]
}

// startWatcher runs a watcher on root until the test ends.
func startWatcher(t *testing.T, root string, r Reindexer, rec *recorder) {
	t.Helper()

	w, err := New(root, r,
		WithDebounceTime(50*time.Millisecond),
		WithInclude(fs.IncludePatterns([]string{".md"})),
		WithEventCallback(rec.callback),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-rec.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
}

func TestWatcherReindexesAfterChangesSettle(t *testing.T) {
	root := t.TempDir()
	r := &fakeReindexer{}
	rec := newRecorder()
	startWatcher(t, root, r, rec)

	// Several quick saves collapse into one re-index
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("v"), 0644))
	}

	require.Eventually(t, func() bool { return rec.count(EventIndexed) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	r := &fakeReindexer{}
	rec := newRecorder()
	startWatcher(t, root, r, rec)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("png"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".codexlotus"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codexlotus", "index.db"), []byte("db"), 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), r.calls.Load())
	assert.Equal(t, 0, rec.count(EventChange))
}

func TestWatcherSkipsWhileIndexing(t *testing.T) {
	root := t.TempDir()
	r := &fakeReindexer{}
	r.running.Store(true)
	rec := newRecorder()
	startWatcher(t, root, r, rec)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("v"), 0644))

	require.Eventually(t, func() bool { return rec.count(EventSkipped) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestWatcherReportsFailures(t *testing.T) {
	root := t.TempDir()
	r := &fakeReindexer{err: errors.New("provider down")}
	rec := newRecorder()
	startWatcher(t, root, r, rec)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("v"), 0644))

	require.Eventually(t, func() bool { return rec.count(EventFailed) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandleEventFiltering(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, &fakeReindexer{}, WithInclude(fs.IncludePatterns([]string{".md"})), WithSkipDirs("drafts"))
	require.NoError(t, err)

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"markdown write", "docs/a.md", fsnotify.Write, true},
		{"uppercase extension", "README.MD", fsnotify.Create, true},
		{"other extension", "a.txt", fsnotify.Write, false},
		{"chmod only", "a.md", fsnotify.Chmod, false},
		{"hidden dir", ".git/a.md", fsnotify.Write, false},
		{"skipped dir", "drafts/a.md", fsnotify.Write, false},
		{"removed directory", "chapters", fsnotify.Remove, true},
		{"removed other file", "a.txt", fsnotify.Remove, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: filepath.Join(w.Root(), filepath.FromSlash(tt.path)), Op: tt.op}
			_, got := w.handleEvent(event, fsw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New(t.TempDir(), &fakeReindexer{}, WithInclude([]string{"[bad"}))
	assert.Error(t, err)
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add("b.md")
	d.Add("a.md")
	d.Add("b.md")

	select {
	case batch := <-d.Output():
		assert.Equal(t, []string{"a.md", "b.md"}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
	}

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected second batch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}
