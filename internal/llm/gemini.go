package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/"

// GeminiService implements the LLM service using the Gemini API.
type GeminiService struct {
	client  *genai.Client
	model   string
	baseURL string
}

// NewGeminiService creates a new Gemini LLM service. baseURL is the API
// root; the client adds the API version.
func NewGeminiService(apiKey, model, baseURL string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("Gemini model is required")
	}
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: 5 * time.Minute},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the API root requests are sent to.
func (s *GeminiService) BaseURL() string {
	return s.baseURL
}

// buildRequest maps chat messages onto Gemini contents. System messages
// become the system instruction and assistant turns use the model role.
func (s *GeminiService) buildRequest(messages []Message, opts CompletionOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.Temperature)),
		MaxOutputTokens: int32(opts.MaxTokens),
	}

	var contents []*genai.Content
	var system []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return contents, config
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Complete generates a completion for the given messages.
func (s *GeminiService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	contents, config := s.buildRequest(messages, opts)

	log.Debug("Requesting completion from Gemini", "model", s.model)

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return responseText(resp), nil
}

// CompleteStream generates a streaming completion.
func (s *GeminiService) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		contents, config := s.buildRequest(messages, opts)

		log.Debug("Streaming completion from Gemini", "model", s.model)

		for resp, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini stream failed: %w", err)
				return
			}
			if text := responseText(resp); text != "" {
				contentCh <- text
			}
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (s *GeminiService) Provider() Provider {
	return ProviderGemini
}

// ModelName returns the model name.
func (s *GeminiService) ModelName() string {
	return s.model
}
