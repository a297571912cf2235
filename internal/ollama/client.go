// Package ollama is a small client for the Ollama HTTP API, shared by the
// embedding and chat providers.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where a local Ollama server listens.
const DefaultBaseURL = "http://localhost:11434"

// Client sends JSON requests to an Ollama server.
type Client struct {
	baseURL string
	http    *http.Client
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a client for baseURL. An empty baseURL selects the
// local default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends body as JSON to path and returns the open response body. The
// caller closes it.
func (c *Client) Post(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return resp.Body, nil
}

// EmbedRequest is the request body of /api/embed.
type EmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	body, err := c.Post(ctx, "/api/embed", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var result embedResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(req.Input))
	}

	return result.Embeddings, nil
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling options of a chat request.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatRequest is the request body of /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// ChatResponse is one response object of /api/chat. A streamed reply is a
// sequence of them ending with Done.
type ChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Chat starts a chat request and returns the open NDJSON response body.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	return c.Post(ctx, "/api/chat", req)
}
