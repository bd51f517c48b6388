// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptySessionID is returned when a session id is blank.
	ErrEmptySessionID = errors.New("session id is required")

	// ErrInvalidRole is returned when a message role is neither user nor assistant.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// RECORDS
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Session is a conversation thread.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one immutable turn within a session.
type Message struct {
	// Seq is the global insertion sequence number; it defines ordering.
	Seq       int64     `json:"-"`
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is a durable, append-only log of per-session messages plus a
// session registry.
//
// All operations on unknown sessions succeed: History returns an empty
// slice and ClearSession is a no-op.
type Store interface {
	// CreateSession registers id. Creating an existing session is a no-op.
	CreateSession(ctx context.Context, id string) error

	// SaveMessage appends a message, creating the session first if needed.
	// The message is durable once SaveMessage returns nil.
	SaveMessage(ctx context.Context, sessionID string, role Role, text string) (Message, error)

	// History returns the session's messages in insertion order.
	History(ctx context.Context, sessionID string) ([]Message, error)

	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]Session, error)

	// ClearSession deletes every message and the session row for id.
	ClearSession(ctx context.Context, id string) error

	// Close releases the store.
	Close() error
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may carry plain RFC 3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
