// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox confines caller-supplied paths to a single base directory.
//
// Every file, working-directory and document-collection path a tool
// touches is resolved here first. Resolution is lexical: the relative path is
// joined onto the base, cleaned, and accepted only when the result is the
// base itself or lies beneath it component by component. A sibling such as
// /srv/agent-evil is never accepted for a base of /srv/agent.
//
// # Key Types
//
//   - Sandbox: an immutable, canonical base directory
//   - DeniedError: the rejection returned for paths outside the base
//
// # Usage
//
//	sb, err := sandbox.New(cfg.BaseDir)
//	if err != nil {
//	    return err
//	}
//	path, err := sb.Resolve("notes/todo.txt")
//	if errors.Is(err, sandbox.ErrAccessDenied) {
//	    // reject the request
//	}
package sandbox
