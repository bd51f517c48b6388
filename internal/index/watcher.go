// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// WATCHER
// =============================================================================

// RebuildFunc rebuilds an index after its documents change.
type RebuildFunc func(ctx context.Context) error

// Watcher rebuilds an index when files under its root change. Bursts of
// events collapse into one rebuild once the tree has been quiet for the
// debounce interval.
type Watcher struct {
	root     string
	ignore   []string
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	dirty   time.Time // last relevant change; zero when clean
	ctx     context.Context
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// NewWatcher creates a watcher for root. Call Start to begin watching.
func NewWatcher(root string, ignore []string, debounce time.Duration, rebuild RebuildFunc, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     root,
		ignore:   ignore,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start adds the root and its subdirectories and starts the event loops.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.done.Add(2)
	go w.processEvents()
	go w.processPending()
	return nil
}

// addRecursive adds a directory and all its subdirectories to the watch list
func (w *Watcher) addRecursive(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		// Single-file roots are watched through their parent directory.
		return w.watcher.Add(filepath.Dir(dir))
	}

	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		if path != w.root && shouldIgnore(entry.Name(), w.ignore) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("INDEX_WATCH_ADD_FAILED", "path", path, "error", err)
		}
		return nil
	})
}

// relevant reports whether an event path can affect the index content.
func (w *Watcher) relevant(path string) bool {
	name := filepath.Base(path)
	if isIndexFile(name) || shouldIgnore(name, w.ignore) {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	// A single-file root shares its parent directory with unrelated files.
	if info, err := os.Stat(w.root); err == nil && !info.IsDir() {
		return rel == "."
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// processEvents processes file system events
func (w *Watcher) processEvents() {
	defer w.done.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("INDEX_WATCH_PANIC", "root", w.root, "panic", r)
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.dirty = time.Now()
				w.mu.Unlock()
			}

			// New directories need their own watches
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("INDEX_WATCH_ERROR", "root", w.root, "error", err)
		}
	}
}

// processPending triggers a rebuild once changes have settled
func (w *Watcher) processPending() {
	defer w.done.Done()

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			ready := !w.dirty.IsZero() && time.Since(w.dirty) >= w.debounce
			if ready {
				w.dirty = time.Time{}
			}
			w.mu.Unlock()

			if !ready {
				continue
			}
			if err := w.rebuild(w.ctx); err != nil && w.ctx.Err() == nil {
				w.logger.Warn("INDEX_REBUILD_FAILED", "root", w.root, "error", err)
			}
		}
	}
}

// Close stops watching and waits for the loops to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.done.Wait()
	return err
}
