// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-agent/internal/chat"
	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/server"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the tool, chat and session endpoints over HTTP.

SIGINT or SIGTERM stops accepting connections and waits up to 10 seconds
for in-flight requests.

Examples:
  rigrun-agent serve
  rigrun-agent serve --base-dir ./workspace --port 9000
  rigrun-agent serve --config agent.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var mutate func(*config.Config)
			if cmd.Flags().Changed("port") {
				mutate = func(c *config.Config) { c.Server.Port = port }
			}
			return runServe(cmd.Context(), g, mutate)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, g *globalOptions, mutate func(*config.Config)) (err error) {
	a, err := newApp(ctx, g, appOptions{tools: true, store: true, metrics: true}, mutate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	logger := a.logger()
	chatService := chat.NewService(a.store, a.model, a.index, nil, logger)

	srv := server.New(server.Options{
		Config:       a.cfg.Server,
		BaseDir:      a.sandbox.Base(),
		Tools:        a.dispatcher,
		Chat:         chatService,
		Store:        a.store,
		Registry:     a.registry,
		WriteTimeout: a.cfg.Tools.MaxTimeout() + time.Minute,
		Logger:       logger,
	})

	if a.cfg.Server.AuthToken == "" {
		logger.Warn("AUTH_DISABLED", "msg", "no auth token configured; every route is open")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown gracefully: %w", err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("SERVER_STOPPED")
	return nil
}
