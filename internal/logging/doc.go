// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process logger.
//
// Records go to stderr, as text on a terminal and JSON otherwise, and
// optionally to a JSON log file as well. Messages are upper-case event
// names (TOOL_COMPLETE, INDEX_BUILD_START) with key/value attributes.
//
// # Key Types
//
//   - Logger: the *slog.Logger, its shared LevelVar and the open log file
//
// # Usage
//
//	log, err := logging.New(cfg.Logging, cfg.Debug, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//	log.Info("SERVER_STARTED", "addr", addr)
package logging
