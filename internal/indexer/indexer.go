// Package indexer turns a project's documents into a fresh vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/store"
)

// ErrEmbeddingProvider marks failures of the embedding service, including
// responses that do not carry one vector per chunk.
var ErrEmbeddingProvider = errors.New("embedding provider error")

// Document is one file's text supplied for indexing.
type Document = fs.Document

// Indexer orchestrates chunking, embedding and storage of a project.
type Indexer struct {
	store    store.Store
	embedder embeddings.Service
	chunker  fs.Chunker
	cfg      *config.Config

	onProgress ProgressFunc
	running    atomic.Int32

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Phase names reported through Progress.
const (
	PhaseDiscover = "discover"
	PhaseChunk    = "chunk"
	PhaseEmbed    = "embed"
	PhaseStore    = "store"
	PhaseDone     = "done"
)

// Progress tracks indexing progress.
type Progress struct {
	Phase       string
	TotalFiles  int
	TotalChunks int
	StartTime   time.Time
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// Result summarizes a completed index run.
type Result struct {
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Dimensions int           `json:"dimensions"`
	Duration   time.Duration `json:"duration"`
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithChunker overrides the configured chunker.
func WithChunker(c fs.Chunker) Option {
	return func(idx *Indexer) {
		idx.chunker = c
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(idx *Indexer) {
		idx.onProgress = fn
	}
}

// New creates a new Indexer.
func New(st store.Store, emb embeddings.Service, cfg *config.Config, opts ...Option) *Indexer {
	chunker, err := fs.NewChunker(cfg.Indexing.Chunker, fs.ChunkOptions{
		ChunkSize:    cfg.Indexing.ChunkSize,
		ChunkOverlap: cfg.Indexing.ChunkOverlap,
		MinChunkSize: fs.DefaultChunkOptions().MinChunkSize,
	})
	if err != nil {
		log.Warn("Falling back to whole-file chunking", "error", err)
		chunker = fs.WholeFileChunker{}
	}

	idx := &Indexer{
		store:    st,
		embedder: emb,
		chunker:  chunker,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Running reports whether an index run is in progress.
func (idx *Indexer) Running() bool {
	return idx.running.Load() > 0
}

// Progress returns the current indexing progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}

// IndexProject rebuilds the index of projectRoot from docs. Every chunk is
// embedded in one batch and the project is replaced in one transaction, so
// a failure at any step leaves the previous index untouched. A corpus
// without any text is a no-op.
func (idx *Indexer) IndexProject(ctx context.Context, projectRoot string, docs []Document) (*Result, error) {
	idx.running.Add(1)
	defer idx.running.Add(-1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	idx.setProgress(Progress{Phase: PhaseChunk, TotalFiles: len(docs), StartTime: start})

	if policy, _ := store.ParseDuplicatePathPolicy(idx.cfg.Storage.DuplicatePaths); policy == store.DuplicatePathsLastWins {
		docs = lastDocuments(docs)
	}

	var inputs []store.FileChunkInput
	seen := make(map[string]bool)
	for _, doc := range docs {
		chunks := idx.chunker.Chunk(doc.Content, doc.RelativePath)
		if len(chunks) == 0 {
			log.Debug("No chunks generated", "path", doc.RelativePath)
			continue
		}
		seen[doc.RelativePath] = true

		hash := doc.Hash
		if hash == "" {
			hash = fs.HashContent([]byte(doc.Content))
		}
		for i, c := range chunks {
			inputs = append(inputs, store.FileChunkInput{
				RelativePath: doc.RelativePath,
				Content:      c.Content,
				Part:         i,
				ContentHash:  hash,
			})
		}
	}
	files := len(seen)

	if len(inputs) == 0 {
		log.Info("Nothing to index", "project", projectRoot, "documents", len(docs))
		idx.setProgress(Progress{Phase: PhaseDone, TotalFiles: len(docs), StartTime: start})
		return &Result{Duration: time.Since(start)}, nil
	}

	idx.setProgress(Progress{Phase: PhaseEmbed, TotalFiles: files, TotalChunks: len(inputs), StartTime: start})

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Content
	}

	log.Debug("Generating embeddings", "chunks", len(texts), "model", idx.embedder.ModelName())
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate embeddings: %w", ErrEmbeddingProvider, err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingProvider, len(vectors), len(inputs))
	}
	for i := range inputs {
		inputs[i].Embedding = vectors[i]
	}

	idx.setProgress(Progress{Phase: PhaseStore, TotalFiles: files, TotalChunks: len(inputs), StartTime: start})

	if err := idx.store.ReplaceProjectIndex(ctx, projectRoot, inputs); err != nil {
		return nil, fmt.Errorf("failed to store index: %w", err)
	}

	result := &Result{
		Files:      files,
		Chunks:     len(inputs),
		Dimensions: len(vectors[0]),
		Duration:   time.Since(start),
	}
	idx.setProgress(Progress{Phase: PhaseDone, TotalFiles: files, TotalChunks: len(inputs), StartTime: start})

	log.Info("Indexing complete",
		"project", projectRoot,
		"files", result.Files,
		"chunks", result.Chunks,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// IndexDirectory discovers the documents under projectRoot and indexes
// them with IndexProject. The project is keyed by its absolute path.
func (idx *Indexer) IndexDirectory(ctx context.Context, projectRoot string) (*Result, error) {
	absPath, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	idx.setProgress(Progress{Phase: PhaseDiscover, StartTime: time.Now()})

	docs, stats, err := fs.DiscoverDocuments(fs.WalkOptions{
		Root:           absPath,
		Include:        fs.IncludePatterns(idx.cfg.Indexing.Extensions),
		MaxFileSize:    int64(idx.cfg.Indexing.MaxFileSize),
		MaxFileCount:   idx.cfg.Indexing.MaxFileCount,
		IgnorePatterns: idx.cfg.Ignore,
		UseGitignore:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}

	log.Info("Found documents to index", "count", len(docs), "skipped", stats.FilesSkipped)
	return idx.IndexProject(ctx, absPath, docs)
}

// lastDocuments keeps the last document supplied for each path, at the
// position where the path first appeared.
func lastDocuments(docs []Document) []Document {
	index := make(map[string]int, len(docs))
	var out []Document
	for _, doc := range docs {
		if i, ok := index[doc.RelativePath]; ok {
			out[i] = doc
			continue
		}
		index[doc.RelativePath] = len(out)
		out = append(out, doc)
	}
	return out
}

func (idx *Indexer) setProgress(p Progress) {
	idx.mu.Lock()
	idx.progress = p
	fn := idx.onProgress
	idx.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}
