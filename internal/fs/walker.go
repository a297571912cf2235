package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps two ignorers.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

// MatchesPath returns true if the path matches any ignore pattern.
func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// FileWalker implements Walker for traversing a file system.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
}

// IncludePatterns turns file extensions into doublestar patterns matching
// them at any depth.
func IncludePatterns(extensions []string) []string {
	patterns := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		patterns = append(patterns, "**/*"+strings.ToLower(ext))
	}
	return patterns
}

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	if err := ValidateInclude(opts.Include); err != nil {
		return nil, err
	}

	w := &FileWalker{opts: opts}
	w.initIgnorer()
	return w, nil
}

// initIgnorer initializes the gitignore matcher.
func (w *FileWalker) initIgnorer() {
	patterns := append([]string{}, w.opts.IgnorePatterns...)
	patterns = append(patterns, defaultIgnorePatterns...)

	if w.opts.UseGitignore {
		gitignorePath := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			gi, err := gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
			} else {
				w.ignorer = &combinedIgnorer{
					file:     gi,
					patterns: gitignore.CompileIgnoreLines(patterns...),
				}
				return
			}
		}
	}

	w.ignorer = gitignore.CompileIgnoreLines(patterns...)
}

// Walk traverses the directory tree in lexical order.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		if w.shouldSkipFile(d.Name(), relPath) || !w.included(relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}

		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.stats.FilesSkipped++
			w.stats.SkippedBytes += info.Size()
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// included reports whether relPath matches an include pattern.
func (w *FileWalker) included(relPath string) bool {
	return len(w.opts.Include) == 0 || MatchInclude(w.opts.Include, relPath)
}

// ValidateInclude checks that every pattern is a valid doublestar pattern.
func ValidateInclude(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}
	return nil
}

// MatchInclude reports whether the slash-separated relPath matches any of
// patterns. Matching is retried on the lowercased path so extensions match
// case-insensitively.
func MatchInclude(patterns []string, relPath string) bool {
	lower := strings.ToLower(relPath)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

// shouldSkipDir checks if a directory should be skipped.
func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}

	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	return w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/")
}

// shouldSkipFile checks if a file should be skipped.
func (w *FileWalker) shouldSkipFile(name, relPath string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	return w.ignorer != nil && w.ignorer.MatchesPath(relPath)
}

// DiscoverDocuments walks opts.Root and reads every matching text file.
// Binary and non-UTF-8 files are skipped.
func DiscoverDocuments(opts WalkOptions) ([]Document, WalkStats, error) {
	walker, err := NewFileWalker(opts)
	if err != nil {
		return nil, WalkStats{}, err
	}

	var docs []Document
	err = walker.Walk(func(info FileInfo) error {
		content, err := os.ReadFile(info.Path)
		if err != nil {
			log.Debug("Failed to read file", "path", info.Path, "error", err)
			return nil
		}

		if isBinaryContent(content[:min(len(content), 8192)]) || !utf8.Valid(content) {
			log.Debug("Skipping non-text file", "path", info.RelPath)
			return nil
		}

		docs = append(docs, Document{
			RelativePath: info.RelPath,
			Content:      string(content),
			Hash:         HashContent(content),
		})
		return nil
	})
	if err != nil {
		return nil, walker.Stats(), fmt.Errorf("failed to walk %s: %w", opts.Root, err)
	}

	log.Debug("Discovered documents", "root", walker.opts.Root, "documents", len(docs), "skipped", walker.Stats().FilesSkipped)
	return docs, walker.Stats(), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(content))
}

// isBinaryContent checks if content appears to be binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range content {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	// If more than 30% non-printable, consider binary
	return float64(nonPrintable)/float64(len(content)) > 0.3
}

// Default patterns to ignore (dependency and build trees).
var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"out/",
	"target/",
	"coverage/",
	"*~",
	".DS_Store",
}
