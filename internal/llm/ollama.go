package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/codexlotus/lotusrag/internal/ollama"
)

// OllamaService implements the LLM service using a local Ollama server.
type OllamaService struct {
	client *ollama.Client
	model  string
}

// NewOllamaService creates a new Ollama LLM service.
func NewOllamaService(baseURL, model string) (*OllamaService, error) {
	if model == "" {
		return nil, fmt.Errorf("Ollama model is required")
	}

	return &OllamaService{
		client: ollama.NewClient(baseURL, 5*time.Minute), // LLM calls can be slow
		model:  model,
	}, nil
}

func (s *OllamaService) chat(ctx context.Context, messages []Message, opts CompletionOptions, stream bool) (io.ReadCloser, error) {
	converted := make([]ollama.Message, len(messages))
	for i, m := range messages {
		converted[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	log.Debug("Requesting completion from Ollama", "model", s.model, "stream", stream)

	return s.client.Chat(ctx, ollama.ChatRequest{
		Model:    s.model,
		Messages: converted,
		Stream:   stream,
		Options: &ollama.Options{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
}

// Complete generates a completion for the given messages.
func (s *OllamaService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	body, err := s.chat(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var result ollama.ChatResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}

	return result.Message.Content, nil
}

// CompleteStream generates a streaming completion from the NDJSON reply.
func (s *OllamaService) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		body, err := s.chat(ctx, messages, opts, true)
		if err != nil {
			errCh <- err
			return
		}
		defer body.Close()

		decoder := json.NewDecoder(body)
		for {
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}

			var chunk ollama.ChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				errCh <- fmt.Errorf("failed to decode chunk: %w", err)
				return
			}
			if chunk.Error != "" {
				errCh <- fmt.Errorf("ollama error: %s", chunk.Error)
				return
			}

			if chunk.Message.Content != "" {
				contentCh <- chunk.Message.Content
			}
			if chunk.Done {
				return
			}
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}
