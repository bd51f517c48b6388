// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the agent over HTTP.
//
// # Endpoints
//
//   - POST /run                  - Dispatch a tool: {"tool": "...", "params": {...}}
//   - GET  /tools                - List registered tools and their parameters
//   - POST /chat                 - One conversational turn
//   - GET  /sessions             - List sessions, newest first
//   - GET  /sessions/{id}        - Session history
//   - POST /sessions/{id}/clear  - Delete a session
//   - GET  /health               - Liveness and the base directory
//   - GET  /metrics              - Prometheus metrics
//
// A tool failure is answered with {"error": reason, "kind": kind}; an
// unknown tool is 404 and every other failure 400.
//
// # Middleware
//
// Requests pass, in order, through panic recovery, security headers,
// request logging with request ids, a per-client token bucket, optional
// bearer authentication (not applied to /health) and a body size cap.
//
// # Usage
//
//	srv := server.New(server.Options{
//	    Config:  cfg.Server,
//	    BaseDir: sb.Base(),
//	    Tools:   dispatcher,
//	    Chat:    chatService,
//	    Store:   store,
//	    Logger:  logger,
//	})
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
