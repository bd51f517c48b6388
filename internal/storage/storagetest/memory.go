// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storagetest provides an in-memory storage.Store and a shared
// behavioural suite for Store implementations. It is for tests only; no
// production code path constructs a MemoryStore.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/storage"
)

// MemoryStore is a mutex-guarded Store that forgets everything on exit.
type MemoryStore struct {
	mu       sync.Mutex
	seq      int64
	order    int64
	sessions map[string]memSession
	messages map[string][]storage.Message
	closed   bool

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time

	// FailSave, when set, is returned by SaveMessage.
	FailSave error
}

type memSession struct {
	storage.Session
	order int64
}

var _ storage.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memSession),
		messages: make(map[string][]storage.Message),
	}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MemoryStore) check(id string) error {
	if m.closed {
		return storage.ErrClosed
	}
	if strings.TrimSpace(id) == "" {
		return storage.ErrEmptySessionID
	}
	return nil
}

func (m *MemoryStore) ensure(id string, at time.Time) {
	if _, ok := m.sessions[id]; ok {
		return
	}
	m.order++
	m.sessions[id] = memSession{Session: storage.Session{ID: id, CreatedAt: at}, order: m.order}
}

// CreateSession implements storage.Store.
func (m *MemoryStore) CreateSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(id); err != nil {
		return err
	}
	m.ensure(id, m.now())
	return nil
}

// SaveMessage implements storage.Store.
func (m *MemoryStore) SaveMessage(_ context.Context, sessionID string, role storage.Role, text string) (storage.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(sessionID); err != nil {
		return storage.Message{}, err
	}
	if !role.Valid() {
		return storage.Message{}, fmt.Errorf("%w: %q", storage.ErrInvalidRole, role)
	}
	if m.FailSave != nil {
		return storage.Message{}, m.FailSave
	}

	now := m.now()
	m.ensure(sessionID, now)
	m.seq++
	msg := storage.Message{Seq: m.seq, SessionID: sessionID, Role: role, Text: text, Timestamp: now}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

// History implements storage.Store.
func (m *MemoryStore) History(_ context.Context, sessionID string) ([]storage.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(sessionID); err != nil {
		return nil, err
	}
	out := make([]storage.Message, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}

// ListSessions implements storage.Store.
func (m *MemoryStore) ListSessions(_ context.Context) ([]storage.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, storage.ErrClosed
	}

	all := make([]memSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].order > all[j].order
	})

	out := make([]storage.Session, len(all))
	for i, s := range all {
		out[i] = s.Session
	}
	return out, nil
}

// ClearSession implements storage.Store.
func (m *MemoryStore) ClearSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// Close implements storage.Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
