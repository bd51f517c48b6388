// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Options tunes a SQLiteStore. The zero value is usable.
type Options struct {
	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() *Options {
	return &Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
		Now:          time.Now,
	}
}

// SQLiteStore is the durable Store backed by a single SQLite file.
//
// It is safe for concurrent use. Each operation borrows a pooled connection
// for its own duration only.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	closed atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, opts *Options) (*SQLiteStore, error) {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaults.BusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = defaults.MaxOpenConns
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, now: opts.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// dsn builds a connection string whose pragmas apply to every pooled
// connection, not just the first one.
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))
	return err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CreateSession implements Store.
func (s *SQLiteStore) CreateSession(ctx context.Context, id string) error {
	if err := s.check(id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`,
		id, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("create session %q: %w", id, err)
	}
	return nil
}

// SaveMessage implements Store. The implicit session insert and the message
// insert commit together.
func (s *SQLiteStore) SaveMessage(ctx context.Context, sessionID string, role Role, text string) (Message, error) {
	if err := s.check(sessionID); err != nil {
		return Message{}, err
	}
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := s.now().UTC()
	ts := formatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)`,
		sessionID, ts); err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, text, ts) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), text, ts)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}

	return Message{
		Seq:       seq,
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		Timestamp: now,
	}, nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	if err := s.check(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, text, ts FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", sessionID, err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m  Message
			ts string
			r  string
		)
		if err := rows.Scan(&m.Seq, &r, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("history %q: %w", sessionID, err)
		}
		m.SessionID = sessionID
		m.Role = Role(r)
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSessions implements Store.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at FROM sessions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var (
			sess Session
			ts   string
		)
		if err := rows.Scan(&sess.ID, &ts); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		if sess.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ClearSession implements Store.
func (s *SQLiteStore) ClearSession(ctx context.Context, id string) error {
	if err := s.check(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear session %q: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear session %q: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear session %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear session %q: %w", id, err)
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) check(id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if strings.TrimSpace(id) == "" {
		return ErrEmptySessionID
	}
	return nil
}

// IsClosed reports whether err came from using a closed store.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, sql.ErrConnDone)
}
