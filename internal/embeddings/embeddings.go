// Package embeddings provides the text embedding providers used to index
// and query a project.
package embeddings

import (
	"context"
	"fmt"

	"github.com/codexlotus/lotusrag/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	batchSize := cfg.Embeddings.BatchSize

	switch cfg.Embeddings.Provider {
	case "ollama":
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.Model,
			batchSize,
		)
	case "openai":
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
			batchSize,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}

// inBatches calls fn on consecutive slices of texts no longer than size and
// concatenates the results. Each call must return exactly one vector per
// text it was given.
func inBatches(texts []string, size int, fn func([]string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))

		vectors, err := fn(texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}
