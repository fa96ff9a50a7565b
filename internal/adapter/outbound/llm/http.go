// Package llm provides the HTTP and SSE-streaming generation adapters.
// Both speak the OpenAI-compatible chat completion envelope.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultTimeout bounds one generation request.
const defaultTimeout = 120 * time.Second

// chatMessage is one message of the chat envelope.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the non-streaming response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPAdapter generates outputs by POSTing a JSON chat envelope to an
// OpenAI-compatible endpoint.
type HTTPAdapter struct {
	endpoint    string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   int
	client      *http.Client
	logger      *slog.Logger
}

// HTTPOption configures an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) { a.client = c }
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) HTTPOption {
	return func(a *HTTPAdapter) { a.apiKey = key }
}

// WithModel sets the default model used when Generate gets an empty one.
func WithModel(model string) HTTPOption {
	return func(a *HTTPAdapter) { a.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) HTTPOption {
	return func(a *HTTPAdapter) { a.temperature = &t }
}

// WithMaxTokens limits the response length.
func WithMaxTokens(n int) HTTPOption {
	return func(a *HTTPAdapter) { a.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(a *HTTPAdapter) { a.logger = logger }
}

// NewHTTPAdapter creates an adapter targeting an OpenAI-compatible chat
// completion endpoint.
func NewHTTPAdapter(endpoint string, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate sends the item input as a chat request and returns the first
// choice. The prompt is taken from input["prompt"]; an optional
// input["system"] becomes the system message.
func (a *HTTPAdapter) Generate(ctx context.Context, input map[string]any, model string) (eval.Generation, error) {
	if model == "" {
		model = a.model
	}

	body, err := json.Marshal(a.buildRequest(input, model, false))
	if err != nil {
		return eval.Generation{}, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	resp, err := a.do(ctx, body, "application/json")
	if err != nil {
		return eval.Generation{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return eval.Generation{}, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return eval.Generation{}, fmt.Errorf("invalid response body: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return eval.Generation{}, fmt.Errorf("response has no choices")
	}

	latency := time.Since(start).Milliseconds()
	a.logger.Debug("generation complete",
		"model", model,
		"latency_ms", latency,
		"total_tokens", parsed.Usage.TotalTokens)

	return eval.Generation{
		Output:  eval.RawOutput(parsed.Choices[0].Message.Content),
		TraceID: resp.Header.Get("X-Trace-Id"),
		Metadata: map[string]any{
			"latency_ms":    latency,
			"input_tokens":  parsed.Usage.PromptTokens,
			"output_tokens": parsed.Usage.CompletionTokens,
		},
	}, nil
}

// buildRequest assembles the chat envelope from the item input.
func (a *HTTPAdapter) buildRequest(input map[string]any, model string, stream bool) chatRequest {
	req := chatRequest{
		Model:       model,
		Stream:      stream,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}
	if system, ok := input["system"].(string); ok && system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	prompt, ok := input["prompt"].(string)
	if !ok {
		prompt = fmt.Sprint(input["prompt"])
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})
	return req
}

// do issues the POST and enforces the 2xx contract.
func (a *HTTPAdapter) do(ctx context.Context, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(detail))
	}
	return resp, nil
}
