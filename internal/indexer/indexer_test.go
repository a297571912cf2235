package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/store"
)

// mockEmbedder implements embeddings.Service for testing.
type mockEmbedder struct {
	dimensions int
	err        error
	drop       int // vectors to leave out of each batch response

	mu         sync.Mutex
	batchCalls int
	lastTexts  []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batchCalls++
	m.lastTexts = texts
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	result := make([][]float32, 0, len(texts))
	for _, t := range texts[:len(texts)-m.drop] {
		result = append(result, m.vectorFor(t))
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int {
	return m.dimensions
}

func (m *mockEmbedder) Provider() embeddings.Provider {
	return embeddings.ProviderOllama // Use a valid provider
}

func (m *mockEmbedder) ModelName() string {
	return "mock-embed"
}

// vectorFor derives a deterministic non-zero vector from text.
func (m *mockEmbedder) vectorFor(text string) []float32 {
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = 0.01
	}
	for i, r := range text {
		emb[i%m.dimensions] += float32(r) / 1000
	}
	return emb
}

// Verify mockEmbedder implements embeddings.Service
var _ embeddings.Service = (*mockEmbedder)(nil)

// failingStore rejects every replace.
type failingStore struct {
	store.Store
}

func (f *failingStore) ReplaceProjectIndex(ctx context.Context, projectRoot string, inputs []store.FileChunkInput) error {
	return store.ErrStorageWrite
}

// createTestConfig creates a test configuration.
func createTestConfig() *config.Config {
	return &config.Config{
		Indexing: config.IndexingConfig{
			Extensions:   config.DefaultExtensions(),
			MaxFileSize:  1024 * 1024,
			MaxFileCount: 1000,
			Chunker:      config.DefaultChunker,
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		Ignore: []string{},
	}
}

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func docs(pairs ...string) []Document {
	var out []Document
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Document{RelativePath: pairs[i], Content: pairs[i+1]})
	}
	return out
}

// TestIndexerCreation tests indexer creation.
func TestIndexerCreation(t *testing.T) {
	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}

	idx := New(st, emb, createTestConfig())
	require.NotNil(t, idx)
	assert.IsType(t, fs.WholeFileChunker{}, idx.chunker)
	assert.False(t, idx.Running())

	cfg := createTestConfig()
	cfg.Indexing.Chunker = "unknown"
	idx = New(st, emb, cfg)
	assert.IsType(t, fs.WholeFileChunker{}, idx.chunker)
}

func TestIndexProject(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}
	idx := New(st, emb, createTestConfig())

	result, err := idx.IndexProject(ctx, "/p1", docs("a.md", "alpha", "b.md", "beta"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, 8, result.Dimensions)

	// One batch call with every chunk in document order
	assert.Equal(t, 1, emb.batchCalls)
	assert.Equal(t, []string{"alpha", "beta"}, emb.lastTexts)

	count, err := st.ChunkCount(ctx, "/p1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-indexing replaces instead of appending
	_, err = idx.IndexProject(ctx, "/p1", docs("c.md", "gamma"))
	require.NoError(t, err)
	files, err := st.ListFiles(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "c.md", files[0].RelativePath)
}

func TestIndexProjectEmptyCorpusIsNoop(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}
	idx := New(st, emb, createTestConfig())

	_, err := idx.IndexProject(ctx, "/p1", docs("a.md", "alpha"))
	require.NoError(t, err)

	// An empty corpus leaves the previous index in place.
	result, err := idx.IndexProject(ctx, "/p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Chunks)

	// Whitespace-only documents produce no chunks and count as empty, so a
	// project whose only note was blanked keeps its previous index.
	_, err = idx.IndexProject(ctx, "/p1", docs("blank.md", "  \n"))
	require.NoError(t, err)

	count, err := st.ChunkCount(ctx, "/p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, emb.batchCalls)
}

func TestIndexProjectProviderFailure(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	good := &mockEmbedder{dimensions: 8}
	_, err := New(st, good, createTestConfig()).IndexProject(ctx, "/p1", docs("a.md", "alpha"))
	require.NoError(t, err)

	t.Run("provider error", func(t *testing.T) {
		emb := &mockEmbedder{dimensions: 8, err: errors.New("rate limited")}
		_, err := New(st, emb, createTestConfig()).IndexProject(ctx, "/p1", docs("b.md", "beta"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingProvider)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("count mismatch", func(t *testing.T) {
		emb := &mockEmbedder{dimensions: 8, drop: 1}
		_, err := New(st, emb, createTestConfig()).IndexProject(ctx, "/p1", docs("b.md", "beta", "c.md", "gamma"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingProvider)
	})

	files, err := st.ListFiles(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.md", files[0].RelativePath)
}

func TestIndexProjectStorageFailure(t *testing.T) {
	emb := &mockEmbedder{dimensions: 8}
	idx := New(&failingStore{}, emb, createTestConfig())

	_, err := idx.IndexProject(context.Background(), "/p1", docs("a.md", "alpha"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStorageWrite)
	assert.NotErrorIs(t, err, ErrEmbeddingProvider)
}

// TestIndexCancellation tests context cancellation.
func TestIndexCancellation(t *testing.T) {
	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}
	idx := New(st, emb, createTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.IndexProject(ctx, "/p1", docs("a.md", "alpha"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, emb.batchCalls)
}

func TestIndexProjectParagraphChunker(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}
	chunker := fs.NewParagraphChunker(fs.ChunkOptions{ChunkSize: 200, MinChunkSize: 5})
	idx := New(st, emb, createTestConfig(), WithChunker(chunker))

	content := "# One\nfirst section\n# Two\nsecond section\n"
	result, err := idx.IndexProject(ctx, "/p1", docs("a.md", content))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 2, result.Chunks)

	files, err := st.ListFiles(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, files[0].ChunkCount)
}

func TestIndexProjectMultiChunkDocumentsUnderEveryPolicy(t *testing.T) {
	content := "# One\nfirst section\n# Two\nsecond section\n"

	for _, policy := range []string{"chunks", "last-wins", "reject"} {
		t.Run(policy, func(t *testing.T) {
			ctx := context.Background()
			p, ok := store.ParseDuplicatePathPolicy(policy)
			require.True(t, ok)
			st, err := store.OpenPath(filepath.Join(t.TempDir(), "index.db"), store.WithDuplicatePathPolicy(p))
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })

			cfg := createTestConfig()
			cfg.Storage.DuplicatePaths = policy
			chunker := fs.NewParagraphChunker(fs.ChunkOptions{ChunkSize: 200, MinChunkSize: 5})
			idx := New(st, &mockEmbedder{dimensions: 8}, cfg, WithChunker(chunker))

			result, err := idx.IndexProject(ctx, "/p1", docs("a.md", content, "b.md", content))
			require.NoError(t, err)
			assert.Equal(t, 2, result.Files)
			assert.Equal(t, 4, result.Chunks)

			count, err := st.ChunkCount(ctx, "/p1")
			require.NoError(t, err)
			assert.Equal(t, result.Chunks, count)
		})
	}
}

func TestIndexProjectDuplicateDocumentsLastWins(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "index.db"), store.WithDuplicatePathPolicy(store.DuplicatePathsLastWins))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := createTestConfig()
	cfg.Storage.DuplicatePaths = "last-wins"
	chunker := fs.NewParagraphChunker(fs.ChunkOptions{ChunkSize: 200, MinChunkSize: 5})
	idx := New(st, &mockEmbedder{dimensions: 8}, cfg, WithChunker(chunker))

	result, err := idx.IndexProject(ctx, "/p1", docs(
		"a.md", "# One\nold first\n# Two\nold second\n",
		"b.md", "beta",
		"a.md", "only section",
	))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 2, result.Chunks)

	files, err := st.ListFiles(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 1, files[0].ChunkCount)
	assert.Equal(t, fs.HashContent([]byte("only section")), files[0].ContentHash)
}

func TestIndexProjectStoresDocumentHash(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	idx := New(st, &mockEmbedder{dimensions: 8}, createTestConfig())

	_, err := idx.IndexProject(ctx, "/p1", []Document{
		{RelativePath: "a.md", Content: "alpha", Hash: "xxh64:00000000000000aa"},
		{RelativePath: "b.md", Content: "beta"},
	})
	require.NoError(t, err)

	files, err := st.ListFiles(ctx, "/p1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "xxh64:00000000000000aa", files[0].ContentHash)
	assert.Equal(t, fs.HashContent([]byte("beta")), files[1].ContentHash)
}

// TestIndexDirectory tests indexing a directory.
func TestIndexDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	files := map[string]string{
		"README.md":         "# Test Project\n\nThis is a test.",
		"docs/guide.md":     "# Guide\n\nSteps.",
		"main.go":           "package main\n",
		".codexlotus/x.md":  "index dir",
		"node_modules/p.md": "dependency",
	}
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}

	st := setupTestStore(t)
	emb := &mockEmbedder{dimensions: 8}

	var phases []string
	idx := New(st, emb, createTestConfig(), WithProgress(func(p Progress) {
		phases = append(phases, p.Phase)
	}))

	result, err := idx.IndexDirectory(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, []string{PhaseDiscover, PhaseChunk, PhaseEmbed, PhaseStore, PhaseDone}, phases)
	assert.Equal(t, PhaseDone, idx.Progress().Phase)

	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)
	indexed, err := st.ListFiles(ctx, absRoot)
	require.NoError(t, err)

	var paths []string
	for _, f := range indexed {
		paths = append(paths, f.RelativePath)
	}
	assert.ElementsMatch(t, []string{"README.md", "docs/guide.md"}, paths)
}

// TestIndexInvalidPath tests indexing invalid paths.
func TestIndexInvalidPath(t *testing.T) {
	st := setupTestStore(t)
	idx := New(st, &mockEmbedder{dimensions: 8}, createTestConfig())

	_, err := idx.IndexDirectory(context.Background(), "/nonexistent/path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	file := filepath.Join(t.TempDir(), "file.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = idx.IndexDirectory(context.Background(), file)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
