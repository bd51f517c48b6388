// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"

	"github.com/jeranaias/rigrun-agent/internal/executor"
	"github.com/jeranaias/rigrun-agent/internal/sandbox"
)

// =============================================================================
// SHELL TOOL
// =============================================================================

type shellTools struct {
	sb     *sandbox.Sandbox
	runner CommandRunner
	limits Limits
}

// run tokenizes cmd and executes it directly. There is no shell, so pipes,
// globs and redirections are passed through as literal arguments.
func (t *shellTools) run(ctx context.Context, params map[string]any) (any, error) {
	cmd, err := requireStringParam(params, "cmd")
	if err != nil {
		return nil, err
	}
	timeout, err := getTimeoutParam(params, "timeout", t.limits.ShellTimeout, t.limits.MaxTimeout)
	if err != nil {
		return nil, err
	}
	cwd, err := getStringParam(params, "cwd", "")
	if err != nil {
		return nil, err
	}

	argv, err := executor.Split(cmd)
	if errors.Is(err, executor.ErrEmptyCommand) {
		return nil, Failf(KindInvalidRequest, "cmd is required")
	}
	if err != nil {
		return nil, &Failure{Kind: KindInvalidRequest, Reason: err.Error(), Cause: err}
	}

	dir := t.sb.Base()
	if cwd != "" {
		if dir, err = t.sb.ResolveReal(cwd); err != nil {
			return nil, err
		}
	}

	out, err := t.runner.Run(ctx, argv, dir, timeout)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrBadWorkDir):
			return nil, &Failure{Kind: KindNotFound, Reason: "working directory not found: " + cwd, Cause: err}
		case errors.Is(err, executor.ErrNotFound):
			return nil, &Failure{Kind: KindExecutionFailure, Reason: "executable not found: " + argv[0], Cause: err}
		}
		return nil, err
	}
	return out, nil
}
