// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools maps tool names to handlers and runs them.
//
// Every tool takes a flat map of named parameters and yields either a
// payload or a Failure. The Dispatcher never lets a handler error or panic
// escape as anything other than a Failure, so callers always get a
// classified reason they can show to a user.
//
// # Key Types
//
//   - Dispatcher: Looks up a tool, runs it, records metrics
//   - Tool: Name, description, parameter schema and handler
//   - Failure: Classified error with a Kind and a human-readable reason
//   - Deps: Components the built-in handlers need
//
// # Built-in Tools
//
// File Tools:
//   - file.read: Read a file inside the base directory
//   - file.write: Atomically write a file inside the base directory
//
// System Tools:
//   - shell.run: Run a tokenized command with a timeout
//
// Web Tools:
//   - web.fetch: HTTP GET a URL
//
// Index Tools:
//   - index.build: Build a full-text index from documents
//   - index.query: Search an index
//
// Model Tools:
//   - ollama.pull: Pull a model through the ollama CLI
//   - ollama.generate: Generate a completion
//
// # Usage
//
//	d := tools.NewDispatcher(tools.Deps{Sandbox: sb, Runner: exec}, logger, nil)
//	out, err := d.Dispatch(ctx, "file.read", map[string]any{"path": "notes.md"})
//	if err != nil {
//	    f := tools.AsFailure(err)
//	    fmt.Println(f.Kind, f.Reason)
//	}
package tools
