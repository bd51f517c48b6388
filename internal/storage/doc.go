// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable session and message persistence for the
// agent service.
//
// A session is an identified conversation thread; a message is one turn in
// it. Messages are append-only and ordered by an auto-incrementing sequence
// number, never by timestamp, so two turns written within the same clock
// tick keep their insertion order.
//
// # Key Types
//
//   - Store: the capability every consumer depends on
//   - SQLiteStore: the production implementation (single database file)
//   - Session, Message, Role: the persisted records
//
// # Usage
//
// Open the store inside the base directory and append turns:
//
//	store, err := storage.Open(ctx, filepath.Join(baseDir, "agent_sessions.db"), nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_, err = store.SaveMessage(ctx, "s1", storage.RoleUser, "hello")
//	history, err := store.History(ctx, "s1")
//
// # Durability
//
// The database runs in WAL mode with synchronous=FULL. A SaveMessage call
// that returns nil has been committed to disk. Writers are serialized by
// SQLite's own locking (busy timeout plus immediate transactions); readers
// never wait on writers.
//
// An in-memory implementation for tests lives in storage/storagetest.
package storage
