// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTimeout is returned when the command outlived its timeout.
	ErrTimeout = errors.New("timeout")

	// ErrCanceled is returned when the caller's context ended first.
	ErrCanceled = errors.New("canceled")

	// ErrNotFound is returned when argv[0] cannot be located or executed.
	ErrNotFound = errors.New("executable not found")

	// ErrEmptyCommand is returned for an empty argument vector.
	ErrEmptyCommand = errors.New("empty command")

	// ErrBadWorkDir is returned when the working directory is not a directory.
	ErrBadWorkDir = errors.New("working directory not found")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds execution limits.
type Config struct {
	// DefaultTimeout applies when Run is given a zero timeout (default: 30s).
	DefaultTimeout time.Duration

	// MaxTimeout caps any requested timeout (default: 10m).
	MaxTimeout time.Duration

	// KillGrace bounds how long Run waits for output pipes after the
	// process was killed or exited, in case something else still holds
	// them open (default: 2s).
	KillGrace time.Duration

	// MaxOutputBytes caps each of stdout and stderr (default: 8MB).
	MaxOutputBytes int

	// Env is the environment for commands. Nil means the agent's own.
	Env []string
}

// DefaultConfig returns the default execution limits.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     10 * time.Minute,
		KillGrace:      2 * time.Second,
		MaxOutputBytes: 8 * 1024 * 1024,
	}
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Outcome is the result of a command that ran.
type Outcome struct {
	ExitCode  int    `json:"returncode"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Executor runs commands. It holds no per-call state and is safe for
// concurrent use.
type Executor struct {
	config *Config
	logger *slog.Logger
}

// New creates an Executor. Zero fields in config take their defaults.
func New(config *Config, logger *slog.Logger) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = defaults.MaxTimeout
	}
	if config.KillGrace <= 0 {
		config.KillGrace = defaults.KillGrace
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = defaults.MaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{config: config, logger: logger}
}

// Timeout clamps a requested timeout to the configured bounds.
func (e *Executor) Timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.config.DefaultTimeout
	}
	if requested > e.config.MaxTimeout {
		return e.config.MaxTimeout
	}
	return requested
}

// Run executes argv in cwd (the agent's working directory when empty) and
// waits at most timeout for it. cwd must already have been confined by the
// caller; Run only checks that it is a directory.
func (e *Executor) Run(ctx context.Context, argv []string, cwd string, timeout time.Duration) (Outcome, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Outcome{}, ErrEmptyCommand
	}

	if cwd != "" {
		info, err := os.Stat(cwd)
		if err != nil || !info.IsDir() {
			return Outcome{}, fmt.Errorf("%w: %s", ErrBadWorkDir, cwd)
		}
	}

	timeout = e.Timeout(timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = e.config.Env
	cmd.WaitDelay = e.config.KillGrace
	isolateProcessGroup(cmd)

	stdout := &cappedBuffer{max: e.config.MaxOutputBytes}
	stderr := &cappedBuffer{max: e.config.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	e.logger.Debug("COMMAND_START", "program", argv[0], "args", len(argv)-1, "cwd", cwd, "timeout", timeout)

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil && runCtx.Err() != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("COMMAND_TIMEOUT", "program", argv[0], "timeout", timeout)
			return Outcome{}, ErrTimeout
		}
		e.logger.Info("COMMAND_CANCELED", "program", argv[0], "duration", duration)
		return Outcome{}, ErrCanceled
	}

	outcome := Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.ExitCode = 0
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// The process exited; a leftover holder of its pipes was cut off.
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, argv[0])
	default:
		return Outcome{}, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}

	e.logger.Debug("COMMAND_COMPLETE", "program", argv[0], "exit_code", outcome.ExitCode, "duration", duration)
	return outcome, nil
}

// =============================================================================
// OUTPUT CAPTURE
// =============================================================================

// cappedBuffer keeps the first max bytes written and silently drops the
// rest, so a chatty command cannot exhaust memory. Writes always report
// success to keep the child from seeing EPIPE.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
