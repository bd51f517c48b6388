// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for the agent.
//
// A configuration is built once at startup from built-in defaults, an
// optional TOML file and environment variable overrides, then validated as
// a whole so every problem is reported at once.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: HTTP listener, limits and authentication
//   - OllamaConfig: Model runtime endpoint and CLI
//   - ToolsConfig: Timeouts and limits for tool handlers
//   - IndexConfig: Document indexing and watching
//   - StoreConfig: Session database
//   - LoggingConfig: Log level, format and file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENT_*, OLLAMA_URL, OLLAMA_MODEL)
//   - The TOML file given to Load
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("agent.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr()
package config
