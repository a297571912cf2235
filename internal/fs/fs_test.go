package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
}

// TestHashContent tests content hashing.
func TestHashContent(t *testing.T) {
	// Same content should produce same hash
	content := []byte("hello world")
	hash1 := HashContent(content)
	hash2 := HashContent(content)
	assert.Equal(t, hash1, hash2)

	// Different content should produce different hash
	hash3 := HashContent([]byte("hello world!"))
	assert.NotEqual(t, hash1, hash3)

	assert.True(t, strings.HasPrefix(hash1, "xxh64:"))
	assert.Len(t, hash1, len("xxh64:")+16)
}

// TestIsBinaryContent tests binary detection.
func TestIsBinaryContent(t *testing.T) {
	// Text content
	assert.False(t, isBinaryContent([]byte("Hello, World!\n")))
	assert.False(t, isBinaryContent([]byte("line1\nline2\tindented")))

	// Binary content (null bytes)
	assert.True(t, isBinaryContent([]byte("hello\x00world")))

	// Empty content
	assert.False(t, isBinaryContent([]byte{}))
}

func TestIncludePatterns(t *testing.T) {
	patterns := IncludePatterns([]string{".md", "txt", "", ".MDX"})
	assert.Equal(t, []string{"**/*.md", "**/*.txt", "**/*.mdx"}, patterns)
}

func TestWholeFileChunker(t *testing.T) {
	var chunker WholeFileChunker

	t.Run("whole document is one chunk", func(t *testing.T) {
		content := "# Title\n\nBody text.\n"
		chunks := chunker.Chunk(content, "a.md")
		require.Len(t, chunks, 1)
		assert.Equal(t, content, chunks[0].Content)
		assert.Equal(t, 1, chunks[0].StartLine)
		assert.Equal(t, 3, chunks[0].EndLine)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
	})

	t.Run("whitespace only yields nothing", func(t *testing.T) {
		assert.Nil(t, chunker.Chunk("", "a.md"))
		assert.Nil(t, chunker.Chunk("  \n\t\n", "a.md"))
	})
}

// TestParagraphChunker tests heading-aware chunking.
func TestParagraphChunker(t *testing.T) {
	chunker := NewParagraphChunker(ChunkOptions{
		ChunkSize:    100,
		ChunkOverlap: 20,
		MinChunkSize: 10,
	})

	t.Run("empty content returns nil", func(t *testing.T) {
		assert.Nil(t, chunker.Chunk("", "test.md"))
		assert.Nil(t, chunker.Chunk("\n\n", "test.md"))
	})

	t.Run("small content returns single chunk", func(t *testing.T) {
		content := "Hello, World!"
		chunks := chunker.Chunk(content, "test.md")
		require.Len(t, chunks, 1)
		assert.Equal(t, content, chunks[0].Content)
		assert.Equal(t, 1, chunks[0].StartLine)
		assert.Equal(t, 1, chunks[0].EndLine)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
	})

	t.Run("splits at headings", func(t *testing.T) {
		content := "# One\nfirst section body\n## Two\nsecond section body\n"
		chunks := chunker.Chunk(content, "test.md")
		require.Len(t, chunks, 2)
		assert.Equal(t, "# One\nfirst section body", chunks[0].Content)
		assert.Equal(t, "## Two\nsecond section body", chunks[1].Content)
		assert.Equal(t, 3, chunks[1].StartLine)
		assert.Equal(t, 4, chunks[1].EndLine)
		assert.Equal(t, 1, chunks[1].ChunkIndex)
	})

	t.Run("headings inside code fences are ignored", func(t *testing.T) {
		content := "# Setup\nrun this:\n```sh\n# not a heading\necho hi\n```\n"
		chunks := chunker.Chunk(content, "test.md")
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0].Content, "# not a heading")
	})

	t.Run("small sections merge forward", func(t *testing.T) {
		content := "# A\n# Bee section\nwith enough text here\n"
		chunks := chunker.Chunk(content, "test.md")
		require.Len(t, chunks, 1)
		assert.Equal(t, "# A\n# Bee section\nwith enough text here", chunks[0].Content)
		assert.Equal(t, 1, chunks[0].StartLine)
	})

	t.Run("large sections are split with overlap", func(t *testing.T) {
		lines := make([]string, 30)
		for i := range lines {
			lines[i] = strings.Repeat("y", 10)
		}
		content := strings.Join(lines, "\n")

		chunks := chunker.Chunk(content, "test.md")
		require.Greater(t, len(chunks), 1)

		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.ChunkIndex)
			assert.LessOrEqual(t, utf8Len(chunk.Content), 100)
		}
		assert.Equal(t, 1, chunks[0].StartLine)
		assert.Equal(t, 30, chunks[len(chunks)-1].EndLine)
		for i := 1; i < len(chunks); i++ {
			assert.LessOrEqual(t, chunks[i].StartLine, chunks[i-1].EndLine)
		}
	})
}

func utf8Len(s string) int {
	return len([]rune(s))
}

func TestIsHeading(t *testing.T) {
	assert.True(t, isHeading("# Title"))
	assert.True(t, isHeading("###### Deep"))
	assert.True(t, isHeading("##"))
	assert.False(t, isHeading("####### too deep"))
	assert.False(t, isHeading("#hashtag"))
	assert.False(t, isHeading("plain"))
}

func TestNewChunker(t *testing.T) {
	c, err := NewChunker("", DefaultChunkOptions())
	require.NoError(t, err)
	assert.IsType(t, WholeFileChunker{}, c)

	c, err = NewChunker(ChunkerParagraph, DefaultChunkOptions())
	require.NoError(t, err)
	assert.IsType(t, &ParagraphChunker{}, c)

	_, err = NewChunker("sentences", DefaultChunkOptions())
	assert.Error(t, err)
}

// TestFileWalker tests directory walking.
func TestFileWalker(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"README.md":           "# Test\n",
		"guide.MD":            "# Guide\n",
		"docs/intro.md":       "# Intro\n",
		"docs/notes.txt":      "plain notes\n",
		"drafts/skip.md":      "# Draft\n",
		".hidden.md":          "hidden file",
		".github/workflow.md": "hidden dir",
		"node_modules/x.md":   "should be ignored",
	})
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("drafts/\n"), 0644))

	walk := func(t *testing.T, opts WalkOptions) []string {
		t.Helper()
		walker, err := NewFileWalker(opts)
		require.NoError(t, err)

		var found []string
		err = walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		})
		require.NoError(t, err)
		return found
	}

	t.Run("filters by include pattern", func(t *testing.T) {
		found := walk(t, WalkOptions{
			Root:         tmpDir,
			Include:      IncludePatterns([]string{".md"}),
			UseGitignore: true,
		})
		assert.ElementsMatch(t, []string{"README.md", "docs/intro.md", "guide.MD"}, found)
	})

	t.Run("no include patterns accepts all visible files", func(t *testing.T) {
		found := walk(t, WalkOptions{Root: tmpDir})
		assert.Contains(t, found, "docs/notes.txt")
		assert.Contains(t, found, "drafts/skip.md")
		assert.NotContains(t, found, ".hidden.md")
		for _, f := range found {
			assert.NotContains(t, f, "node_modules")
		}
	})

	t.Run("includes hidden files when asked", func(t *testing.T) {
		found := walk(t, WalkOptions{Root: tmpDir, IncludeHidden: true})
		assert.Contains(t, found, ".hidden.md")
		assert.Contains(t, found, ".github/workflow.md")
	})

	t.Run("respects extra ignore patterns", func(t *testing.T) {
		found := walk(t, WalkOptions{Root: tmpDir, IgnorePatterns: []string{"docs/"}})
		for _, f := range found {
			assert.False(t, strings.HasPrefix(f, "docs/"), f)
		}
	})

	t.Run("respects max file size", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, MaxFileSize: 5})
		require.NoError(t, err)
		var found []string
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		}))
		assert.Empty(t, found)
		assert.Greater(t, walker.Stats().FilesSkipped, 0)
	})

	t.Run("respects max file count", func(t *testing.T) {
		found := walk(t, WalkOptions{Root: tmpDir, MaxFileCount: 2})
		assert.Len(t, found, 2)
	})

	t.Run("rejects invalid patterns", func(t *testing.T) {
		_, err := NewFileWalker(WalkOptions{Root: tmpDir, Include: []string{"[unclosed"}})
		assert.Error(t, err)
	})
}

// TestFileWalkerErrors tests error handling.
func TestFileWalkerErrors(t *testing.T) {
	t.Run("non-existent root", func(t *testing.T) {
		_, err := NewFileWalker(WalkOptions{
			Root: "/nonexistent/path",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("root is file not directory", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "test")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		tmpFile.Close()

		_, err = NewFileWalker(WalkOptions{
			Root: tmpFile.Name(),
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestDiscoverDocuments(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"a.md":       "alpha",
		"sub/b.md":   "beta",
		"binary.md":  "abc\x00def",
		"latin1.md":  "caf\xe9",
		"ignored.go": "package x",
	})

	docs, stats, err := DiscoverDocuments(WalkOptions{
		Root:    tmpDir,
		Include: IncludePatterns([]string{".md"}),
	})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "a.md", docs[0].RelativePath)
	assert.Equal(t, "alpha", docs[0].Content)
	assert.Equal(t, HashContent([]byte("alpha")), docs[0].Hash)
	assert.Equal(t, "sub/b.md", docs[1].RelativePath)
	assert.Equal(t, 1, stats.FilesSkipped)
}

// TestDefaultOptions tests default options.
func TestDefaultOptions(t *testing.T) {
	walkOpts := DefaultWalkOptions()
	assert.Equal(t, int64(1024*1024), walkOpts.MaxFileSize)
	assert.Equal(t, 10000, walkOpts.MaxFileCount)
	assert.True(t, walkOpts.UseGitignore)
	assert.Contains(t, walkOpts.Include, "**/*.md")

	chunkOpts := DefaultChunkOptions()
	assert.Equal(t, 1500, chunkOpts.ChunkSize)
	assert.Equal(t, 200, chunkOpts.ChunkOverlap)
	assert.Equal(t, 100, chunkOpts.MinChunkSize)
}
