// Package llm provides the chat models that answer questions over retrieved
// project context.
package llm

import (
	"context"
	"fmt"

	"github.com/codexlotus/lotusrag/internal/config"
)

// Provider represents an LLM provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// CompletionOptions configures the completion request.
type CompletionOptions struct {
	// Temperature controls randomness (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// Stream enables streaming responses.
	Stream bool
}

// DefaultCompletionOptions returns sensible defaults.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: 0.7,
		MaxTokens:   2048,
		Stream:      false,
	}
}

// Service defines the interface for LLM services.
type Service interface {
	// Complete generates a completion for the given messages.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// CompleteStream generates a streaming completion. The content channel
	// is closed when the response ends; at most one error is sent.
	CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// NewService creates an LLM service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch Provider(cfg.LLM.Provider) {
	case ProviderOllama:
		return NewOllamaService(
			cfg.LLM.Ollama.URL,
			cfg.LLM.Ollama.Model,
		)
	case ProviderOpenAI:
		return NewOpenAIService(
			cfg.LLM.OpenAI.APIKey,
			cfg.LLM.OpenAI.Model,
			cfg.LLM.OpenAI.BaseURL,
		)
	case ProviderGemini:
		return NewGeminiService(
			cfg.LLM.Gemini.APIKey,
			cfg.LLM.Gemini.Model,
			cfg.LLM.Gemini.BaseURL,
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
