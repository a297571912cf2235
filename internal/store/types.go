// Package store persists per-project chunks and their embedding vectors in a
// SQLite database kept inside the project directory.
package store

import "time"

// FileChunkInput is one (file, chunk text, embedding) triple of a
// full-replacement batch.
type FileChunkInput struct {
	RelativePath string    `json:"relative_path"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"embedding"`

	// Part is the chunk's position within its document. An input with
	// Part > 0 continues the file of the preceding inputs for its path and
	// is never treated as a duplicate path.
	Part int `json:"part,omitempty"`

	// ContentHash, when set on a document's first input, is stored as the
	// file's content hash in place of a hash over its chunk text.
	ContentHash string `json:"content_hash,omitempty"`
}

// ScoredChunk is a chunk returned by a similarity query.
type ScoredChunk struct {
	RelativePath string  `json:"relative_path"`
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
}

// Candidate is a stored chunk with its decoded embedding, as yielded by
// ScanEmbeddings in storage order.
type Candidate struct {
	ChunkID      int64
	RelativePath string
	Content      string
	Embedding    []float32
}

// FileRecord describes an indexed file.
type FileRecord struct {
	ID           int64     `json:"id"`
	RelativePath string    `json:"relative_path"`
	ContentHash  string    `json:"content_hash"` // xxh64 over the file's chunk text
	ChunkCount   int       `json:"chunk_count"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// IndexRun records the most recent successful replace for a project.
type IndexRun struct {
	RunID      string    `json:"run_id"`
	IndexedAt  time.Time `json:"indexed_at"`
	FileCount  int       `json:"file_count"`
	ChunkCount int       `json:"chunk_count"`
}

// ProjectStats summarizes a project's index.
type ProjectStats struct {
	ProjectRoot string    `json:"project_root"`
	FileCount   int       `json:"file_count"`
	ChunkCount  int       `json:"chunk_count"`
	Dimensions  int       `json:"dimensions"`
	IsIndexed   bool      `json:"is_indexed"`
	LastRun     *IndexRun `json:"last_run,omitempty"`
}

// DuplicatePathPolicy decides what a replace does with several inputs that
// share a relative path.
type DuplicatePathPolicy int

const (
	// DuplicatePathsAsChunks keeps one file row and stores every input as a
	// chunk of it, numbered in input order.
	DuplicatePathsAsChunks DuplicatePathPolicy = iota
	// DuplicatePathsLastWins keeps only the last input for the path.
	DuplicatePathsLastWins
	// DuplicatePathsReject fails the whole batch with ErrDuplicatePath.
	DuplicatePathsReject
)

func (p DuplicatePathPolicy) String() string {
	switch p {
	case DuplicatePathsAsChunks:
		return "chunks"
	case DuplicatePathsLastWins:
		return "last-wins"
	case DuplicatePathsReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseDuplicatePathPolicy maps a config value to a policy.
func ParseDuplicatePathPolicy(s string) (DuplicatePathPolicy, bool) {
	switch s {
	case "", "chunks":
		return DuplicatePathsAsChunks, true
	case "last-wins":
		return DuplicatePathsLastWins, true
	case "reject":
		return DuplicatePathsReject, true
	default:
		return DuplicatePathsAsChunks, false
	}
}
