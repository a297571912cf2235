package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/codexlotus/lotusrag/internal/store"
)

// NoContextAnswer is returned when retrieval finds nothing to ground an
// answer on.
const NoContextAnswer = "I couldn't find anything in the project notes related to your question. Try rephrasing it or re-indexing the project."

// QAService answers questions using retrieved chunks as context.
type QAService struct {
	llm Service
}

// QAOptions configures the Q&A generation.
type QAOptions struct {
	// Temperature controls creativity (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// MaxContextChunks limits how many hits are placed in the prompt.
	MaxContextChunks int
}

// DefaultQAOptions returns sensible defaults.
func DefaultQAOptions() QAOptions {
	return QAOptions{
		Temperature:      0.3, // Lower for more focused answers
		MaxTokens:        2048,
		MaxContextChunks: 5,
	}
}

// QAResult contains the answer and its sources.
type QAResult struct {
	Answer  string              `json:"answer"`
	Sources []store.ScoredChunk `json:"sources"`
}

// NewQAService creates a new Q&A service.
func NewQAService(llm Service) *QAService {
	return &QAService{llm: llm}
}

// Answer generates an answer to the question grounded on hits.
func (qa *QAService) Answer(ctx context.Context, question string, hits []store.ScoredChunk, opts QAOptions) (*QAResult, error) {
	if len(hits) == 0 {
		return &QAResult{Answer: NoContextAnswer}, nil
	}

	sources := limitHits(hits, opts.MaxContextChunks)
	answer, err := qa.llm.Complete(ctx, BuildPrompt(question, sources), CompletionOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &QAResult{
		Answer:  answer,
		Sources: sources,
	}, nil
}

// AnswerStream generates a streaming answer and returns the hits used as
// context.
func (qa *QAService) AnswerStream(ctx context.Context, question string, hits []store.ScoredChunk, opts QAOptions) (<-chan string, <-chan error, []store.ScoredChunk) {
	if len(hits) == 0 {
		contentCh := make(chan string, 1)
		errCh := make(chan error)
		contentCh <- NoContextAnswer
		close(contentCh)
		close(errCh)
		return contentCh, errCh, nil
	}

	sources := limitHits(hits, opts.MaxContextChunks)
	contentCh, errCh := qa.llm.CompleteStream(ctx, BuildPrompt(question, sources), CompletionOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	})

	return contentCh, errCh, sources
}

func limitHits(hits []store.ScoredChunk, limit int) []store.ScoredChunk {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// BuildPrompt formats the question and its retrieved hits as chat
// messages. Hits appear in the given order, numbered from 1.
func BuildPrompt(question string, hits []store.ScoredChunk) []Message {
	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: fmt.Sprintf("Question: %s\n\n%s", question, buildContext(hits))},
	}
}

// buildContext creates the context string from search hits.
func buildContext(hits []store.ScoredChunk) string {
	if len(hits) == 0 {
		return "No project context was found."
	}

	var sb strings.Builder
	sb.WriteString("Here is the relevant project context:\n\n")

	for i, h := range hits {
		fmt.Fprintf(&sb, "--- Source [%d]: %s (%.0f%% match) ---\n", i+1, h.RelativePath, h.Score*100)
		sb.WriteString(strings.TrimRight(h.Content, "\n"))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// System prompt for Q&A.
const systemPrompt = `You are a writing assistant that answers questions about a project's notes and documents.

Answer from the provided context. When the context does not cover the question, say so instead of guessing.

When citing material:
- Use [Source N] notation to cite specific sources
- Mention the file path when relevant
- Quote short passages when helpful

Format your answer in markdown when appropriate.`
