// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-agent command line.
//
// # Commands
//
//   - serve              - Serve the HTTP API until SIGINT/SIGTERM
//   - run <tool>         - Dispatch one tool and print the JSON envelope
//   - sessions list      - List stored chat sessions
//   - sessions show <id> - Print one session's history
//   - sessions clear <id>- Delete a session
//   - config init [path] - Write the default TOML configuration
//   - config show        - Print the effective configuration
//   - version            - Print version information
//
// Every command accepts --config, --base-dir and --debug. The configuration
// is loaded once per command and passed down explicitly.
//
// # Exit Codes
//
//   - 0 success
//   - 1 general error or a failed tool
//   - 2 usage error
//   - 3 configuration error
package cli
