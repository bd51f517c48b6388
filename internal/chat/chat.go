// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-agent/internal/index"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/storage"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

// ErrEmptyPrompt is returned for a prompt that is empty after trimming.
var ErrEmptyPrompt = errors.New("empty prompt")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Generator produces a completion. *ollama.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.GenerateOptions) (string, error)
}

// Searcher answers an index query. *index.Manager satisfies it.
type Searcher interface {
	Query(ctx context.Context, name, query string, topK int, docsPath string) (string, error)
}

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request is one conversational turn.
type Request struct {
	Prompt      string  `json:"prompt"`
	SessionID   string  `json:"session_id,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	DocsPath    string  `json:"docs_path,omitempty"`
	UseIndex    bool    `json:"use_index,omitempty"`
}

// Response reports the reply, or the generation error, with the whole
// session history including both new messages.
type Response struct {
	OK        bool              `json:"ok"`
	SessionID string            `json:"session_id"`
	Response  string            `json:"response,omitempty"`
	Error     string            `json:"error,omitempty"`
	History   []storage.Message `json:"history"`
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds conversation settings.
type Config struct {
	// HistoryWindow is how many history lines go into the prompt (default: 20)
	HistoryWindow int

	// IndexName is the index searched for context (default: "default")
	IndexName string

	// TopK is how many index hits are included (default: 3)
	TopK int

	// MaxTokens caps the reply length (default: 512)
	MaxTokens int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		HistoryWindow: 20,
		IndexName:     index.DefaultName,
		TopK:          3,
		MaxTokens:     512,
	}
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs conversational turns. It holds no per-session state of its
// own; everything lives in the store, so turns for different sessions run
// concurrently.
type Service struct {
	store    storage.Store
	gen      Generator
	searcher Searcher
	config   *Config
	logger   *slog.Logger

	newID func() string
}

// NewService creates a chat service. searcher may be nil, which disables
// index context.
func NewService(store storage.Store, gen Generator, searcher Searcher, config *Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.IndexName == "" {
		config.IndexName = defaults.IndexName
	}
	if config.TopK <= 0 {
		config.TopK = defaults.TopK
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    store,
		gen:      gen,
		searcher: searcher,
		config:   config,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Chat runs one turn. Generation failures are reported in the Response,
// not as an error; the error return is for an empty prompt or a store that
// could not be written or read.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	sid := req.SessionID
	if sid == "" {
		sid = s.newID()
	}
	start := time.Now()

	if _, err := s.store.SaveMessage(ctx, sid, storage.RoleUser, prompt); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.store.History(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var contextParts []string
	if req.UseIndex && req.DocsPath != "" {
		contextParts = append(contextParts, s.indexContext(ctx, prompt, req.DocsPath))
	}

	final := buildPrompt(historyLines(history, s.config.HistoryWindow), contextParts, prompt)

	reply, genErr := s.gen.Generate(ctx, req.Model, final, ollama.GenerateOptions{
		Temperature: req.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})

	stored := reply
	if genErr != nil {
		stored = "(error) " + genErr.Error()
	}
	// The turn is recorded even if the caller gave up while we were generating.
	saveCtx := context.WithoutCancel(ctx)
	if _, err := s.store.SaveMessage(saveCtx, sid, storage.RoleAssistant, stored); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	history, err = s.store.History(saveCtx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	resp := &Response{SessionID: sid, History: history}
	if genErr != nil {
		s.logger.Warn("CHAT_GENERATE_FAILED",
			"session", sid,
			"error", genErr,
			"duration", time.Since(start))
		resp.Error = genErr.Error()
		return resp, nil
	}

	s.logger.Info("CHAT_TURN",
		"session", sid,
		"messages", len(history),
		"prompt", util.Preview(prompt, 60),
		"duration", time.Since(start))
	resp.OK = true
	resp.Response = reply
	return resp, nil
}

// indexContext searches the configured index for prompt and renders the
// outcome as one context part. Index failures become part of the context.
func (s *Service) indexContext(ctx context.Context, prompt, docsPath string) string {
	if s.searcher == nil {
		return "(index error: no index configured)"
	}
	answer, err := s.searcher.Query(ctx, s.config.IndexName, prompt, s.config.TopK, docsPath)
	if err != nil {
		s.logger.Debug("CHAT_INDEX_FAILED", "docs_path", docsPath, "error", err)
		return "(index error: " + err.Error() + ")"
	}
	return "SearchResults:\n" + answer
}
