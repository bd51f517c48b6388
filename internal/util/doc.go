// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the agent.
//
// # Key Functions
//
//   - WriteFileAtomic: crash-safe file writing with fsync and rename
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - Preview: single-line truncated rendering for log attributes
//
// # Usage
//
//	if err := util.WriteFileAtomic(path, data, 0o644, 0o755); err != nil {
//	    return err
//	}
//
//	logger.Info("TOOL_START", "prompt", util.Preview(prompt, 60))
package util
