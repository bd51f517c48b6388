// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides full-text document indexes for the agent's
// index.build and index.query tools.
//
// Each named index is a standalone SQLite database holding an FTS5 table
// (porter stemming over the unicode61 tokenizer). Building an index walks a
// directory inside the sandbox and replaces the table's content in one
// transaction, so concurrent queries see either the old or the new corpus.
//
// # Key Types
//
//   - Manager: resolves index names to files, builds, queries and watches
//   - DocIndex: one open index database
//   - Hit: a ranked query result
//   - Watcher: fsnotify-driven rebuild of an index when its documents change
//
// # Usage
//
//	mgr := index.NewManager(sb, index.DefaultConfig(), logger)
//	defer mgr.Close()
//
//	path, err := mgr.Build(ctx, "default", "docs")
//	answer, err := mgr.Query(ctx, "default", "rate limiting", 3, "")
//
// Documents are NFKC-normalized before indexing and queries are normalized
// the same way. Query words are OR-ed together and ranked with bm25.
package index
