// Package search ranks a project's stored chunks by similarity to a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/store"
)

// Backend names accepted by NewRanker.
const (
	BackendScan      = "scan"
	BackendSQLiteVec = "sqlite-vec"
)

// Engine answers similarity queries over one store.
type Engine struct {
	ranker Ranker
}

// NewEngine creates an Engine using the given ranker.
func NewEngine(r Ranker) *Engine {
	return &Engine{ranker: r}
}

// QuerySimilar returns at most limit chunks of projectRoot ordered by
// descending cosine similarity to query. Equal scores keep storage order.
// An empty query or a non-positive limit yields an empty result.
func (e *Engine) QuerySimilar(ctx context.Context, projectRoot string, query []float32, limit int) ([]store.ScoredChunk, error) {
	if len(query) == 0 || limit <= 0 {
		return []store.ScoredChunk{}, nil
	}

	scored, err := e.ranker.ScoreAll(ctx, projectRoot, query)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	if scored == nil {
		scored = []store.ScoredChunk{}
	}

	log.Debug("Similarity query complete", "project", projectRoot, "results", len(scored), "limit", limit)
	return scored, nil
}

// Searcher runs text queries: it embeds the query and asks the engine for
// the closest chunks.
type Searcher struct {
	engine   *Engine
	embedder embeddings.Service
}

// Options configures a text search.
type Options struct {
	// Limit is the maximum number of results to return.
	Limit int

	// MinScore filters results below this similarity score.
	MinScore float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Limit:    5,
		MinScore: 0.0,
	}
}

// New creates a new Searcher.
func New(engine *Engine, emb embeddings.Service) *Searcher {
	return &Searcher{
		engine:   engine,
		embedder: emb,
	}
}

// Search embeds query and returns the best matching chunks of projectRoot.
// Storage read failures are logged and produce an empty result, so callers
// can carry on without retrieved context.
func (s *Searcher) Search(ctx context.Context, projectRoot, query string, opts Options) ([]store.ScoredChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultOptions().Limit
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.engine.QuerySimilar(ctx, projectRoot, queryEmbedding, limit)
	if err != nil {
		if errors.Is(err, store.ErrStorageRead) || errors.Is(err, store.ErrStorageUnavailable) {
			log.Warn("Index unavailable, continuing without context", "project", projectRoot, "error", err)
			return []store.ScoredChunk{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if float64(r.Score) < opts.MinScore {
			continue
		}
		filtered = append(filtered, r)
	}

	log.Debug("Search complete", "results", len(filtered))
	return filtered, nil
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
