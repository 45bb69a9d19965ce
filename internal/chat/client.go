// Package chat talks to a local Ollama model and keeps the conversation
// history that gives it context.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrBusy          = errors.New("already processing a message")
	ErrRequestFailed = errors.New("chat request failed")
	ErrEmptyResponse = errors.New("empty response from model")
)

// ClientConfig configures the Ollama client.
type ClientConfig struct {
	URL     string        // e.g. "http://localhost:11434"
	Model   string        // e.g. "llama3.2:3b"
	Timeout time.Duration // HTTP request timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		URL:     "http://localhost:11434",
		Model:   "llama3.2:3b",
		Timeout: 60 * time.Second,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client calls the Ollama generate endpoint without streaming.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Ollama client.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "chat-client").Logger(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Generate sends prompt with the given system prompt and returns the reply.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.config.URL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("url", url).Str("model", c.config.Model).Msg("Sending generate request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrRequestFailed, err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().Dur("latency", time.Since(start)).Int("chars", len(out.Response)).Msg("Generate response received")
	return out.Response, nil
}
