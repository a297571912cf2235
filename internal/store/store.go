package store

import "context"

// Store defines the per-project vector record operations.
type Store interface {
	// Indexing
	ReplaceProjectIndex(ctx context.Context, projectRoot string, inputs []FileChunkInput) error

	// Retrieval
	ScanEmbeddings(ctx context.Context, projectRoot string, fn func(Candidate) error) error
	VecScores(ctx context.Context, projectRoot string, query []float32) ([]ScoredChunk, int, error)

	// Stats
	ChunkCount(ctx context.Context, projectRoot string) (int, error)
	Stats(ctx context.Context, projectRoot string) (*ProjectStats, error)
	ListFiles(ctx context.Context, projectRoot string) ([]FileRecord, error)

	Close() error
}
