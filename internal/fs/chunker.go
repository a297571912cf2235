package fs

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunker names accepted by NewChunker.
const (
	ChunkerWhole     = "whole"
	ChunkerParagraph = "paragraph"
)

// NewChunker returns the chunker registered under name.
func NewChunker(name string, opts ChunkOptions) (Chunker, error) {
	switch name {
	case "", ChunkerWhole:
		return WholeFileChunker{}, nil
	case ChunkerParagraph:
		return NewParagraphChunker(opts), nil
	default:
		return nil, fmt.Errorf("unsupported chunker: %s", name)
	}
}

// WholeFileChunker emits each document as a single chunk.
type WholeFileChunker struct{}

// Chunk returns content as one chunk, or nothing when it holds only
// whitespace.
func (WholeFileChunker) Chunk(content string, _ string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return []Chunk{{
		Content:    content,
		StartLine:  1,
		EndLine:    lineCount(content),
		ChunkIndex: 0,
	}}
}

// ParagraphChunker splits markdown at headings and breaks oversized
// sections into overlapping line windows.
type ParagraphChunker struct {
	opts ChunkOptions
}

// NewParagraphChunker creates a new paragraph chunker.
func NewParagraphChunker(opts ChunkOptions) *ParagraphChunker {
	// Apply defaults for zero values
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkOptions().ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = DefaultChunkOptions().ChunkOverlap
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 2
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = DefaultChunkOptions().MinChunkSize
	}

	return &ParagraphChunker{opts: opts}
}

// Chunk splits content into chunks.
func (c *ParagraphChunker) Chunk(content string, _ string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	boundaries := findHeadingBoundaries(lines)

	var chunks []Chunk
	pending := -1 // first line of a small section waiting to be merged

	for i, start := range boundaries {
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		if pending >= 0 {
			start = pending
		}

		section := strings.Join(lines[start:end], "\n")
		size := utf8.RuneCountInString(section)
		last := i == len(boundaries)-1

		switch {
		case strings.TrimSpace(section) == "":
			pending = -1
		case size < c.opts.MinChunkSize && !last:
			pending = start
		case size > c.opts.ChunkSize:
			for _, sub := range c.chunkLines(lines[start:end]) {
				sub.StartLine += start
				sub.EndLine += start
				sub.ChunkIndex = len(chunks)
				chunks = append(chunks, sub)
			}
			pending = -1
		default:
			chunks = append(chunks, Chunk{
				Content:    section,
				StartLine:  start + 1,
				EndLine:    end,
				ChunkIndex: len(chunks),
			})
			pending = -1
		}
	}

	return chunks
}

// chunkLines performs line-window chunking with overlap. Line numbers are
// relative to lines.
func (c *ParagraphChunker) chunkLines(lines []string) []Chunk {
	var chunks []Chunk

	chunkStart := 0
	currentSize := 0
	var currentLines []string

	for lineNum, line := range lines {
		lineLen := utf8.RuneCountInString(line) + 1 // +1 for newline

		if currentSize+lineLen > c.opts.ChunkSize && len(currentLines) > 0 {
			chunks = append(chunks, Chunk{
				Content:    strings.Join(currentLines, "\n"),
				StartLine:  chunkStart + 1, // 1-indexed
				EndLine:    chunkStart + len(currentLines),
				ChunkIndex: len(chunks),
			})

			overlapLines, overlapSize := c.calculateOverlap(currentLines)

			currentLines = make([]string, len(overlapLines))
			copy(currentLines, overlapLines)
			chunkStart = lineNum - len(overlapLines)
			currentSize = overlapSize
		}

		currentLines = append(currentLines, line)
		currentSize += lineLen
	}

	if len(currentLines) > 0 {
		content := strings.Join(currentLines, "\n")
		if len(chunks) == 0 || utf8.RuneCountInString(content) >= c.opts.MinChunkSize {
			chunks = append(chunks, Chunk{
				Content:    content,
				StartLine:  chunkStart + 1,
				EndLine:    chunkStart + len(currentLines),
				ChunkIndex: len(chunks),
			})
		} else {
			// Fold the tail into the previous window
			prev := &chunks[len(chunks)-1]
			tail := currentLines[max(0, prev.EndLine-chunkStart):]
			if len(tail) > 0 {
				prev.Content += "\n" + strings.Join(tail, "\n")
			}
			prev.EndLine = chunkStart + len(currentLines)
		}
	}

	return chunks
}

// calculateOverlap determines how many trailing lines to repeat. The
// overlap never covers the whole window.
func (c *ParagraphChunker) calculateOverlap(lines []string) ([]string, int) {
	if c.opts.ChunkOverlap <= 0 || len(lines) < 2 {
		return nil, 0
	}

	var overlapLines []string
	overlapSize := 0

	for i := len(lines) - 1; i > 0 && overlapSize < c.opts.ChunkOverlap; i-- {
		lineLen := utf8.RuneCountInString(lines[i]) + 1
		overlapLines = append([]string{lines[i]}, overlapLines...)
		overlapSize += lineLen
	}

	return overlapLines, overlapSize
}

// findHeadingBoundaries returns the line numbers where markdown sections
// start. Headings inside fenced code blocks are ignored.
func findHeadingBoundaries(lines []string) []int {
	boundaries := []int{0}
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || i == 0 {
			continue
		}

		if isHeading(trimmed) {
			boundaries = append(boundaries, i)
		}
	}

	return boundaries
}

// isHeading reports whether line is an ATX heading.
func isHeading(line string) bool {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return false
	}
	return level == len(line) || line[level] == ' ' || line[level] == '\t'
}

// lineCount returns the number of lines in content, ignoring a trailing
// newline.
func lineCount(content string) int {
	return strings.Count(strings.TrimRight(content, "\n"), "\n") + 1
}
