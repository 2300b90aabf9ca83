// Package ai provides the client for the external chat completion service.
//
// This file implements an OpenAI-compatible /v1/chat/completions client with
// a fixed model selection. The gateway performs no retries; degrading a
// failure to the user-visible error string is the caller's concern.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/metrics"
)

// ErrEmptyCompletion is returned when the service responds without choices.
var ErrEmptyCompletion = errors.New("ai: completion returned no choices")

// ChatCompletionRequest is the OpenAI-compatible request body.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the OpenAI-compatible response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Client calls the completion service. Safe for concurrent use; the API key
// may be rotated at runtime via SetAPIKey.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string

	mu     sync.RWMutex
	apiKey string
}

// Options configure the client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient builds a completion client with a fixed model selection.
func NewClient(opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "mistral-small-latest"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		apiKey:     opts.APIKey,
	}
}

// SetAPIKey swaps the bearer token used for subsequent requests.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.complete(ctx, prompt)
	switch {
	case err == nil:
		metrics.CompletionDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	case errors.Is(err, ErrEmptyCompletion):
		metrics.CompletionDuration.WithLabelValues("empty").Observe(time.Since(start).Seconds())
	default:
		metrics.CompletionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
	}
	return text, err
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ChatCompletionRequest{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("ai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ai: completion service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return completion.Choices[0].Message.Content, nil
}
