package search

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/codexlotus/lotusrag/internal/store"
	"github.com/codexlotus/lotusrag/internal/vector"
)

// Ranker scores every chunk of a project against a query. Results are in
// storage order; candidates whose dimensions differ from the query are
// left out.
type Ranker interface {
	ScoreAll(ctx context.Context, projectRoot string, query []float32) ([]store.ScoredChunk, error)
}

// NewRanker returns the ranker for a configured backend name.
func NewRanker(backend string, st store.Store) (Ranker, error) {
	switch backend {
	case "", BackendScan:
		return &LinearRanker{store: st}, nil
	case BackendSQLiteVec:
		return &VecRanker{store: st}, nil
	default:
		return nil, fmt.Errorf("unsupported search backend: %s", backend)
	}
}

// LinearRanker decodes every stored vector and computes cosine similarity
// in Go.
type LinearRanker struct {
	store store.Store
}

// NewLinearRanker creates a LinearRanker over st.
func NewLinearRanker(st store.Store) *LinearRanker {
	return &LinearRanker{store: st}
}

// ScoreAll implements Ranker.
func (r *LinearRanker) ScoreAll(ctx context.Context, projectRoot string, query []float32) ([]store.ScoredChunk, error) {
	var scored []store.ScoredChunk
	skipped := 0

	err := r.store.ScanEmbeddings(ctx, projectRoot, func(c store.Candidate) error {
		if len(c.Embedding) != len(query) {
			skipped++
			return nil
		}
		scored = append(scored, store.ScoredChunk{
			RelativePath: c.RelativePath,
			Content:      c.Content,
			Score:        vector.Cosine(query, c.Embedding),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		log.Debug("Skipped embeddings with mismatched dimensions", "project", projectRoot, "skipped", skipped, "dimensions", len(query))
	}
	return scored, nil
}

// VecRanker pushes scoring into SQLite through sqlite-vec.
type VecRanker struct {
	store store.Store
}

// NewVecRanker creates a VecRanker over st.
func NewVecRanker(st store.Store) *VecRanker {
	return &VecRanker{store: st}
}

// ScoreAll implements Ranker.
func (r *VecRanker) ScoreAll(ctx context.Context, projectRoot string, query []float32) ([]store.ScoredChunk, error) {
	scored, skipped, err := r.store.VecScores(ctx, projectRoot, query)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Debug("Skipped embeddings with mismatched dimensions", "project", projectRoot, "skipped", skipped, "dimensions", len(query))
	}
	return scored, nil
}

var (
	_ Ranker = (*LinearRanker)(nil)
	_ Ranker = (*VecRanker)(nil)
)
