package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService implements the embedding service using the OpenAI API or
// any endpoint compatible with it.
type OpenAIService struct {
	client     openai.Client
	model      string
	dimensions int
	// requestDimensions is sent to the API; 0 leaves the model default.
	requestDimensions int
	batchSize         int
}

// NewOpenAIService creates a new OpenAI embedding service.
func NewOpenAIService(apiKey, model, baseURL string, dimensions, batchSize int) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	svc := &OpenAIService{
		client:            openai.NewClient(opts...),
		model:             model,
		dimensions:        dimensions,
		requestDimensions: dimensions,
		batchSize:         batchSize,
	}

	if svc.dimensions == 0 {
		svc.dimensions = GetModelDimensions(model)
		if svc.dimensions == 0 {
			svc.dimensions = 1536
			log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", svc.dimensions)
		}
	}

	return svc, nil
}

// Embed generates an embedding for document text.
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedQuery is Embed; OpenAI models take no task prefix.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts, splitting them into
// requests of at most batchSize inputs.
func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(texts, s.batchSize, func(batch []string) ([][]float32, error) {
		return s.embedTexts(ctx, batch)
	})
}

// Dimensions returns the embedding dimensions.
func (s *OpenAIService) Dimensions() int {
	return s.dimensions
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}

func (s *OpenAIService) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", s.model, "count", len(texts))

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if s.requestDimensions > 0 {
		params.Dimensions = openai.Int(int64(s.requestDimensions))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	// Data may arrive out of order; Index ties each vector to its input
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		vectors[idx] = embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}

	if len(vectors[0]) > 0 {
		s.dimensions = len(vectors[0])
	}

	return vectors, nil
}
