// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/sandbox"
)

// DefaultName is the index used when a caller names none.
const DefaultName = "default"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Config holds index configuration
type Config struct {
	// MaxFileSize is the maximum file size to index (bytes)
	MaxFileSize int64

	// Ignore are glob patterns matched against file and directory names
	Ignore []string

	// Watch rebuilds an index whenever its documents change
	Watch bool

	// Debounce is the quiet period before a watched index is rebuilt
	Debounce time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize: 2 * 1024 * 1024, // 2MB
		Ignore: []string{
			".git", ".svn", ".hg",
			"node_modules", "__pycache__", ".venv", "venv",
			".idea", ".vscode",
			"*.db", "*.db-*", "*.sqlite",
			"*.exe", "*.dll", "*.so", "*.dylib",
			"*.zip", "*.tar", "*.gz",
			"*.jpg", "*.png", "*.gif", "*.pdf",
		},
		Watch:    false,
		Debounce: 500 * time.Millisecond,
	}
}

// Manager maps index names to database files inside the sandbox and runs
// builds, queries and watchers for them. Builds of the same index are
// serialized; everything else runs concurrently.
type Manager struct {
	sb     *sandbox.Sandbox
	config *Config
	logger *slog.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	watchers map[string]*Watcher
	closed   bool
}

// NewManager creates a manager rooted at the sandbox base.
func NewManager(sb *sandbox.Sandbox, config *Config, logger *slog.Logger) *Manager {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaults.MaxFileSize
	}
	if config.Ignore == nil {
		config.Ignore = defaults.Ignore
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		sb:       sb,
		config:   config,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
		watchers: make(map[string]*Watcher),
	}
}

// ValidateName checks that name is usable as an index file name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the database file for the named index.
func (m *Manager) Path(name string) (string, error) {
	if name == "" {
		name = DefaultName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(m.sb.Base(), name+indexFileSuffix), nil
}

// Build indexes the documents under docsPath (relative to the sandbox base,
// "." when empty) into the named index and returns the index file path.
func (m *Manager) Build(ctx context.Context, name, docsPath string) (string, error) {
	path, err := m.Path(name)
	if err != nil {
		return "", err
	}
	root, err := m.docsRoot(docsPath)
	if err != nil {
		return "", err
	}

	if err := m.build(ctx, path, root); err != nil {
		return "", err
	}

	if m.config.Watch {
		m.watch(path, root)
	}
	return path, nil
}

// Query searches the named index. When the index does not exist and
// docsPath is set, the index is built from docsPath first.
func (m *Manager) Query(ctx context.Context, name, query string, topK int, docsPath string) (string, error) {
	path, err := m.Path(name)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if docsPath == "" {
			return "", ErrIndexNotFound
		}
		if _, err := m.Build(ctx, name, docsPath); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	idx, err := OpenReader(ctx, path)
	if err != nil {
		return "", err
	}
	defer idx.Close()

	hits, err := idx.Search(ctx, query, topK)
	if err != nil {
		return "", err
	}
	return FormatHits(hits), nil
}

// Close stops every watcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	var firstErr error
	for _, w := range watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// docsRoot resolves docsPath inside the sandbox, following symlinks.
func (m *Manager) docsRoot(docsPath string) (string, error) {
	if docsPath == "" {
		docsPath = "."
	}
	root, err := m.sb.ResolveReal(docsPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(root); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDocsNotFound, docsPath)
	}
	return root, nil
}

func (m *Manager) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

func (m *Manager) build(ctx context.Context, path, root string) error {
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	m.logger.Info("INDEX_BUILD_START", "index", filepath.Base(path), "root", m.sb.Rel(root))

	idx, err := OpenIndex(ctx, path)
	if err != nil {
		return err
	}
	defer idx.Close()

	stats, err := idx.Build(ctx, root, BuildOptions{
		MaxFileSize: m.config.MaxFileSize,
		Ignore:      m.config.Ignore,
		Display:     m.sb.Rel,
	})
	if err != nil {
		m.logger.Warn("INDEX_BUILD_FAILED", "index", filepath.Base(path), "error", err)
		return err
	}

	m.logger.Info("INDEX_BUILD_COMPLETE",
		"index", filepath.Base(path),
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"duration", stats.Duration)
	return nil
}

// watch starts (or restarts, when the root moved) the watcher for an index.
func (m *Manager) watch(path, root string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	existing, ok := m.watchers[path]
	if ok && existing.Root() == root {
		m.mu.Unlock()
		return
	}
	delete(m.watchers, path)
	m.mu.Unlock()

	// A running rebuild takes m.mu, so the old watcher is closed unlocked.
	if ok {
		existing.Close()
	}

	w, err := NewWatcher(root, m.config.Ignore, m.config.Debounce, func(ctx context.Context) error {
		return m.build(ctx, path, root)
	}, m.logger)
	if err != nil {
		m.logger.Warn("INDEX_WATCH_FAILED", "index", filepath.Base(path), "error", err)
		return
	}
	if err := w.Start(); err != nil {
		w.Close()
		m.logger.Warn("INDEX_WATCH_FAILED", "index", filepath.Base(path), "error", err)
		return
	}

	m.mu.Lock()
	if m.closed || m.watchers[path] != nil {
		m.mu.Unlock()
		w.Close()
		return
	}
	m.watchers[path] = w
	m.mu.Unlock()

	m.logger.Info("INDEX_WATCH_START", "index", filepath.Base(path), "root", m.sb.Rel(root))
}

// Watching reports whether the named index currently has a watcher.
func (m *Manager) Watching(name string) bool {
	path, err := m.Path(name)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[path]
	return ok
}
