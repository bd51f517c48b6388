// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrIndexNotFound = errors.New("index file not found")
	ErrInvalidName   = errors.New("invalid index name")
	ErrDocsNotFound  = errors.New("docs path not found")
	ErrDatabaseError = errors.New("database error")
)

// binarySniffLen is how much of a file is scanned for NUL bytes.
const binarySniffLen = 8 * 1024

// indexFileSuffix marks index databases so a build never indexes another index.
const indexFileSuffix = ".index.db"

// =============================================================================
// DOCUMENT INDEX
// =============================================================================

// DocIndex is one open index database.
type DocIndex struct {
	db   *sql.DB
	path string
}

// BuildOptions controls which files a build picks up.
type BuildOptions struct {
	// MaxFileSize is the largest file indexed, in bytes.
	MaxFileSize int64

	// Ignore holds glob patterns matched against base names.
	Ignore []string

	// Display maps an absolute file path to the name stored in the index.
	// Defaults to the path relative to the build root.
	Display func(abs string) string
}

// Stats describes a completed build.
type Stats struct {
	Documents int
	Skipped   int
	Duration  time.Duration
}

// OpenIndex opens (creating if necessary) the index database at path.
func OpenIndex(ctx context.Context, path string) (*DocIndex, error) {
	return openIndex(ctx, path, false)
}

// OpenReader opens an existing index for queries only. It never writes, so
// it does not contend with a build in progress.
func OpenReader(ctx context.Context, path string) (*DocIndex, error) {
	return openIndex(ctx, path, true)
}

func openIndex(ctx context.Context, path string, readOnly bool) (*DocIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	if readOnly {
		pragmas = append(pragmas, "PRAGMA query_only=ON")
	} else {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &DocIndex{db: db, path: path}
	if readOnly {
		return idx, nil
	}
	if err := idx.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (d *DocIndex) initSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, InitMetadata)
	return err
}

// Path returns the database file location.
func (d *DocIndex) Path() string {
	return d.path
}

// Close closes the index database.
func (d *DocIndex) Close() error {
	return d.db.Close()
}

// =============================================================================
// BUILDING
// =============================================================================

// Build replaces the index content with the text files under root. root may
// also be a single file.
func (d *DocIndex) Build(ctx context.Context, root string, opts BuildOptions) (Stats, error) {
	start := time.Now()
	display := opts.Display
	if display == nil {
		display = func(abs string) string {
			rel, err := filepath.Rel(root, abs)
			if err != nil || rel == "." {
				return filepath.Base(abs)
			}
			return filepath.ToSlash(rel)
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return Stats{}, fmt.Errorf("failed to clear documents: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, "INSERT INTO documents (path, content) VALUES (?, ?)")
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer insert.Close()

	var stats Stats
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			stats.Skipped++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if entry.IsDir() {
			if path != root && shouldIgnore(name, opts.Ignore) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed; their targets may sit outside the sandbox.
		if !entry.Type().IsRegular() || isIndexFile(name) || shouldIgnore(name, opts.Ignore) {
			stats.Skipped++
			return nil
		}

		content, ok := readText(path, opts.MaxFileSize)
		if !ok {
			stats.Skipped++
			return nil
		}

		if _, err := insert.ExecContext(ctx, display(path), norm.NFKC.String(content)); err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		stats.Documents++
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	meta := map[string]string{
		"last_build":     strconv.FormatInt(time.Now().Unix(), 10),
		"root_path":      root,
		"document_count": strconv.Itoa(stats.Documents),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = ?", value, key); err != nil {
			return Stats{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// DocumentCount returns the number of documents recorded by the last build.
func (d *DocIndex) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return n, nil
}

// readText returns the file content when it is small enough and not binary.
func readText(path string, maxSize int64) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || (maxSize > 0 && info.Size() > maxSize) {
		return "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", false
	}
	return string(data), true
}

// shouldIgnore checks if a file/directory should be ignored
func shouldIgnore(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func isIndexFile(name string) bool {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if strings.HasSuffix(name, indexFileSuffix+suffix) {
			return true
		}
	}
	return false
}
