// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/executor"
	"github.com/jeranaias/rigrun-agent/internal/fetcher"
	"github.com/jeranaias/rigrun-agent/internal/index"
	"github.com/jeranaias/rigrun-agent/internal/logging"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/sandbox"
	"github.com/jeranaias/rigrun-agent/internal/storage"
	"github.com/jeranaias/rigrun-agent/internal/tools"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the components built from one configuration.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	sandbox  *sandbox.Sandbox
	registry *prometheus.Registry

	model      *ollama.Client
	index      *index.Manager
	dispatcher *tools.Dispatcher
	store      storage.Store
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// tools builds the dispatcher and its collaborators
	tools bool
	// store opens the session database
	store bool
	// metrics registers process and tool collectors
	metrics bool
}

// newApp loads the configuration and builds the components opts asks for.
// The caller must close the result.
func newApp(ctx context.Context, g *globalOptions, opts appOptions, mutate func(*config.Config)) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, usageError(fmt.Errorf("invalid config: %w", err))
		}
	}

	logger, err := logging.New(cfg.Logging, cfg.Debug, g.stderr)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}

	a := &app{cfg: cfg, log: logger, registry: prometheus.NewRegistry()}

	a.sandbox, err = sandbox.New(cfg.BaseDir)
	if err != nil {
		a.close()
		return nil, &ExitError{Code: ExitConfigError, Err: fmt.Errorf("invalid base directory: %w", err)}
	}

	if opts.metrics {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if opts.tools {
		a.buildTools(opts.metrics)
	}

	if opts.store {
		path := cfg.StorePath(a.sandbox.Base())
		store, err := storage.Open(ctx, path, &storage.Options{BusyTimeout: cfg.Store.BusyTimeout()})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		a.store = store
		a.logger().Debug("STORE_OPEN", "path", path)
	}

	return a, nil
}

func (a *app) logger() *slog.Logger {
	return a.log.Logger
}

// buildTools wires the executor, fetcher, model client and index manager
// into a dispatcher.
func (a *app) buildTools(withMetrics bool) {
	cfg := a.cfg
	logger := a.logger()

	runner := executor.New(&executor.Config{
		DefaultTimeout: cfg.Tools.ShellTimeout(),
		MaxTimeout:     cfg.Tools.MaxTimeout(),
		KillGrace:      cfg.Tools.KillGrace(),
	}, logger)

	fetch := fetcher.New(&fetcher.Config{
		Timeout:      cfg.Tools.FetchTimeout(),
		MaxRedirects: cfg.Tools.MaxRedirects,
		MaxBodyBytes: cfg.Tools.MaxFetchBytes,
		BlockPrivate: cfg.Tools.BlockPrivateNetworks,
	})

	a.model = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      cfg.Ollama.Timeout(),
		DefaultModel: cfg.Ollama.Model,
		Binary:       cfg.Ollama.Binary,
		PullTimeout:  cfg.Ollama.PullTimeout(),
	}).WithRunner(runner).WithLogger(logger)

	a.index = index.NewManager(a.sandbox, &index.Config{
		MaxFileSize: cfg.Index.MaxFileSize,
		Ignore:      cfg.Index.Ignore,
		Watch:       cfg.Index.Watch,
		Debounce:    cfg.Index.Debounce(),
	}, logger)

	var metrics *tools.Metrics
	if withMetrics {
		metrics = tools.NewMetrics(a.registry)
	} else {
		metrics = tools.NewMetrics(nil)
	}

	a.dispatcher = tools.NewDispatcher(tools.Deps{
		Sandbox: a.sandbox,
		Runner:  runner,
		Fetcher: fetch,
		Indexer: a.index,
		Model:   a.model,
		Limits: tools.Limits{
			FetchTimeout: cfg.Tools.FetchTimeout(),
			ShellTimeout: cfg.Tools.ShellTimeout(),
			MaxTimeout:   cfg.Tools.MaxTimeout(),
		},
	}, logger, metrics)
}

// close releases everything newApp opened.
func (a *app) close() error {
	var result *multierror.Error
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("index: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("store: %w", err))
		}
	}
	if a.log != nil {
		if err := a.log.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("log: %w", err))
		}
	}
	return result.ErrorOrNil()
}
