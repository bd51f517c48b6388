// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/executor"
)

// CommandRunner runs an argument vector with a timeout.
// *executor.Executor satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string, timeout time.Duration) (executor.Outcome, error)
}

// Pull downloads model with `ollama pull` and returns the CLI output.
// An empty model selects the configured default.
func (c *Client) Pull(ctx context.Context, model string) (string, error) {
	if c.runner == nil {
		return "", &ClientError{Type: ErrTypeCommandFailed, Message: "no command runner configured"}
	}
	if model == "" {
		model = c.config.DefaultModel
	}

	argv := []string{ResolveBinary(c.config.Binary), "pull", model}
	c.logger.Info("OLLAMA_PULL_START", "model", model, "binary", argv[0])

	out, err := c.runner.Run(ctx, argv, "", c.config.PullTimeout)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrNotFound):
			return "", ErrCLINotFound
		case errors.Is(err, executor.ErrTimeout):
			return "", &ClientError{Type: ErrTypeTimeout, Message: "ollama pull " + model, Cause: executor.ErrTimeout}
		case errors.Is(err, executor.ErrCanceled):
			return "", &ClientError{Type: ErrTypeCanceled, Message: "ollama pull " + model, Cause: executor.ErrCanceled}
		}
		return "", &ClientError{Type: ErrTypeCommandFailed, Message: "ollama pull " + model, Cause: err}
	}

	if out.ExitCode != 0 {
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(out.Stdout)
		}
		if detail == "" {
			detail = fmt.Sprintf("ollama pull exited with status %d", out.ExitCode)
		}
		c.logger.Warn("OLLAMA_PULL_FAILED", "model", model, "returncode", out.ExitCode)
		return "", &ClientError{Type: ErrTypeCommandFailed, Message: detail}
	}

	c.logger.Info("OLLAMA_PULL_COMPLETE", "model", model)
	if strings.TrimSpace(out.Stdout) != "" {
		return out.Stdout, nil
	}
	// The CLI reports progress on stderr and may print nothing to stdout.
	return out.Stderr, nil
}
