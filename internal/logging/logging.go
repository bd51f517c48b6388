// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger is the process logger plus the controls that outlive it.
type Logger struct {
	*slog.Logger

	// Level is shared by every handler.
	Level *slog.LevelVar

	file *os.File
}

// New builds a logger for cfg. debug forces the debug level. The caller
// must Close the result to release the log file.
func New(cfg config.LoggingConfig, debug bool, stderr io.Writer) (*Logger, error) {
	level := new(slog.LevelVar)
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		lvl = slog.LevelDebug
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler = slog.NewJSONHandler(stderr, opts)
	if useText(cfg.Format, stderr) {
		console = slog.NewTextHandler(stderr, opts)
	}
	handlers := []slog.Handler{console}

	l := &Logger{Level: level}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return errors.Join(f.Sync(), f.Close())
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func useText(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
