package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/codexlotus/lotusrag/internal/ollama"
)

// taskPrefix is prepended to texts for models trained with task
// instructions.
type taskPrefix struct {
	document string
	query    string
}

var taskPrefixes = map[string]taskPrefix{
	"nomic-embed-text": {
		document: "search_document: ",
		query:    "search_query: ",
	},
	"mxbai-embed-large": {
		query: "Represent this sentence for searching relevant passages: ",
	},
}

// OllamaService implements the embedding service using a local Ollama server.
type OllamaService struct {
	client    *ollama.Client
	model     string
	prefix    taskPrefix
	batchSize int

	// learned from the first response when the model is not in the table
	dimensions atomic.Int32
}

// NewOllamaService creates a new Ollama embedding service.
func NewOllamaService(baseURL, model string, batchSize int) (*OllamaService, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}

	s := &OllamaService{
		client:    ollama.NewClient(baseURL, 2*time.Minute),
		model:     model,
		prefix:    taskPrefixes[model],
		batchSize: batchSize,
	}

	dimensions := GetModelDimensions(model)
	if dimensions == 0 {
		dimensions = 768
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
	}
	s.dimensions.Store(int32(dimensions))

	return s, nil
}

// Embed generates an embedding for document text.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.applyPrefix(text, false))
}

// EmbedQuery generates an embedding for query text.
func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.applyPrefix(text, true))
}

func (s *OllamaService) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds document texts, at most batchSize per request.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = s.applyPrefix(text, false)
	}

	return inBatches(prefixed, s.batchSize, func(batch []string) ([][]float32, error) {
		return s.embedTexts(ctx, batch)
	})
}

// Dimensions returns the embedding dimensions.
func (s *OllamaService) Dimensions() int {
	return int(s.dimensions.Load())
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}

// applyPrefix applies the model's task prefix, if it has one.
func (s *OllamaService) applyPrefix(text string, isQuery bool) string {
	if isQuery {
		return s.prefix.query + text
	}
	return s.prefix.document + text
}

func (s *OllamaService) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from Ollama", "model", s.model, "count", len(texts))

	vectors, err := s.client.Embed(ctx, ollama.EmbedRequest{
		Model:    s.model,
		Input:    texts,
		Truncate: true,
	})
	if err != nil {
		return nil, err
	}

	if len(vectors[0]) > 0 {
		s.dimensions.Store(int32(len(vectors[0])))
	}

	return vectors, nil
}
