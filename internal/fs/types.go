// Package fs discovers a project's text documents and splits them into
// chunks for embedding.
package fs

import "time"

// FileInfo represents metadata about a discovered file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Slash-separated path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// Document is a discovered file with its text.
type Document struct {
	RelativePath string `json:"relative_path"`
	Content      string `json:"content"`
	Hash         string `json:"hash"` // xxh64 of Content
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	Content    string // The text content of the chunk
	StartLine  int    // Starting line number (1-indexed)
	EndLine    int    // Ending line number (1-indexed)
	ChunkIndex int    // Index of this chunk within the file
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// Include holds doublestar patterns a file's relative path must match.
	// Empty means every text file.
	Include []string

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseGitignore respects the root .gitignore file.
	UseGitignore bool
}

// ChunkOptions configures the paragraph chunker.
type ChunkOptions struct {
	// ChunkSize is the target size for each chunk in characters.
	ChunkSize int

	// ChunkOverlap is the number of overlapping characters between chunks.
	ChunkOverlap int

	// MinChunkSize is the minimum chunk size. Smaller sections are merged
	// into the following one.
	MinChunkSize int
}

// DefaultWalkOptions returns defaults for markdown discovery.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		Include:      IncludePatterns([]string{".md", ".markdown", ".mdx"}),
		MaxFileSize:  1024 * 1024, // 1MB
		MaxFileCount: 10000,
		UseGitignore: true,
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    1500,
		ChunkOverlap: 200,
		MinChunkSize: 100,
	}
}

// Walker walks a directory tree and yields files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}

// Chunker splits a document into chunks.
type Chunker interface {
	Chunk(content string, filename string) []Chunk
}
