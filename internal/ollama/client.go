// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same category, so a detailed error
// still satisfies errors.Is against the sentinels below.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Type != ErrTypeUnknown
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeModelNotFound
	ErrTypeInvalidResponse
	ErrTypeCLINotFound
	ErrTypeCommandFailed
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled      = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrCLINotFound   = &ClientError{Type: ErrTypeCLINotFound, Message: "ollama CLI not found; install ollama from https://ollama.com"}
)

// maxErrorBody caps how much of a failed response body is read.
const maxErrorBody = 4096

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// Timeout bounds a single generate request (default: 60s)
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "llama-3.1")
	DefaultModel string

	// Binary is the ollama CLI used for pulls (default: "ollama")
	Binary string

	// PullTimeout bounds `ollama pull` (default: 300s)
	PullTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://localhost:11434",
		Timeout:      60 * time.Second,
		DefaultModel: "llama-3.1",
		Binary:       "ollama",
		PullTimeout:  300 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	runner     CommandRunner
	logger     *slog.Logger
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}
	if config.Binary == "" {
		config.Binary = defaults.Binary
	}
	if config.PullTimeout <= 0 {
		config.PullTimeout = defaults.PullTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
}

// WithRunner sets the command runner used by Pull.
func (c *Client) WithRunner(r CommandRunner) *Client {
	c.runner = r
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// DefaultModel returns the model used when a caller names none.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a non-streaming completion request and returns the
// generated text. An empty model selects the configured default.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.GenerateRaw(ctx, &GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Options: &RequestOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// GenerateRaw posts req to /api/generate. Stream is always forced off.
func (c *Client) GenerateRaw(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = c.config.DefaultModel
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeNotRunning, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, req.Model)
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return nil, classifyTransportError(ctx, err)
		}
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	c.logger.Debug("OLLAMA_GENERATE",
		"model", req.Model,
		"prompt_chars", len(req.Prompt),
		"eval_count", result.EvalCount,
		"duration", time.Since(start))
	return &result, nil
}

// statusError converts a non-200 response, preferring Ollama's own message.
func statusError(resp *http.Response, model string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := ""
	var ollamaErr OllamaError
	if err := json.Unmarshal(raw, &ollamaErr); err == nil && ollamaErr.Error != "" {
		message = ollamaErr.Error
	}

	if resp.StatusCode == http.StatusNotFound {
		if message == "" {
			message = "model not found: " + model
		}
		return &ClientError{Type: ErrTypeModelNotFound, Message: message}
	}

	if message == "" {
		message = "generate request failed: " + resp.Status
		if text := strings.TrimSpace(string(raw)); text != "" {
			message += ": " + text
		}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: message}
}

// classifyTransportError maps a failed round trip to a category.
func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return ErrCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
}
