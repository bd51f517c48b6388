// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/executor"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/sandbox"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// CommandRunner runs an argument vector. *executor.Executor satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string, timeout time.Duration) (executor.Outcome, error)
}

// URLFetcher performs an HTTP GET. *fetcher.Fetcher satisfies it.
type URLFetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// Indexer builds and queries named indexes. *index.Manager satisfies it.
type Indexer interface {
	Build(ctx context.Context, name, docsPath string) (string, error)
	Query(ctx context.Context, name, query string, topK int, docsPath string) (string, error)
}

// ModelClient talks to the local model runtime. *ollama.Client satisfies it.
type ModelClient interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.GenerateOptions) (string, error)
	Pull(ctx context.Context, model string) (string, error)
}

// Limits holds the per-tool timing defaults.
type Limits struct {
	// FetchTimeout is web.fetch's default timeout (default: 10s)
	FetchTimeout time.Duration

	// ShellTimeout is shell.run's default timeout (default: 30s)
	ShellTimeout time.Duration

	// MaxTimeout caps any caller-supplied timeout (default: 10m)
	MaxTimeout time.Duration
}

// DefaultLimits returns the default tool limits.
func DefaultLimits() Limits {
	return Limits{
		FetchTimeout: 10 * time.Second,
		ShellTimeout: 30 * time.Second,
		MaxTimeout:   10 * time.Minute,
	}
}

// Deps are the components the built-in tools run on. Sandbox is required;
// a tool whose component is nil is not registered.
type Deps struct {
	Sandbox *sandbox.Sandbox
	Runner  CommandRunner
	Fetcher URLFetcher
	Indexer Indexer
	Model   ModelClient
	Limits  Limits
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher orchestrates tool execution.
//
// It is safe for concurrent use; the registry is never modified after
// NewDispatcher returns.
type Dispatcher struct {
	registry *Registry
	metrics  *Metrics
	logger   *slog.Logger
}

// NewDispatcher registers the built-in tools for deps.
func NewDispatcher(deps Deps, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultLimits()
	if deps.Limits.FetchTimeout <= 0 {
		deps.Limits.FetchTimeout = defaults.FetchTimeout
	}
	if deps.Limits.ShellTimeout <= 0 {
		deps.Limits.ShellTimeout = defaults.ShellTimeout
	}
	if deps.Limits.MaxTimeout <= 0 {
		deps.Limits.MaxTimeout = defaults.MaxTimeout
	}

	d := &Dispatcher{
		registry: NewRegistry(),
		metrics:  metrics,
		logger:   logger,
	}
	for _, tool := range builtins(deps) {
		if err := d.registry.Register(tool); err != nil {
			// Built-in names are fixed, so this is a programming error.
			panic(err)
		}
	}
	return d
}

// Registry exposes the registered tools.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// List returns every tool sorted by name.
func (d *Dispatcher) List() []*Tool {
	return d.registry.All()
}

// Dispatch runs the named tool. A non-nil error is always a *Failure.
// Panics inside a handler are recovered into an InternalFault.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]any) (result any, err error) {
	tool := d.registry.Get(name)
	if tool == nil {
		d.logger.Warn("TOOL_UNKNOWN", "tool", name)
		d.metrics.observe(unknownToolLabel, string(KindNotFound), 0)
		return nil, unknownTool(name)
	}
	if params == nil {
		params = map[string]any{}
	}

	start := time.Now()
	d.logger.Debug("TOOL_START", "tool", name)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("TOOL_PANIC",
				"tool", name,
				"panic", r,
				"stack", string(debug.Stack()))
			result = nil
			err = &Failure{Kind: KindInternalFault, Reason: fmt.Sprintf("internal error: %v", r)}
		}

		elapsed := time.Since(start)
		if err != nil {
			f := AsFailure(err)
			result, err = nil, f
			d.metrics.observe(name, string(f.Kind), elapsed)
			d.logger.Info("TOOL_FAILED",
				"tool", name,
				"kind", f.Kind,
				"reason", f.Reason,
				"duration", elapsed)
			return
		}
		d.metrics.observe(name, OutcomeSuccess, elapsed)
		d.logger.Info("TOOL_COMPLETE", "tool", name, "duration", elapsed)
	}()

	return tool.Handler(ctx, params)
}
