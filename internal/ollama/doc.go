// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the model-generation collaborator for the agent:
// an HTTP client for the Ollama API and a wrapper around the `ollama pull`
// command.
//
// # Key Types
//
//   - Client: HTTP client for /api/generate plus CLI model pulls
//   - GenerateRequest, GenerateOptions, GenerateResponse: wire types
//   - ClientError: categorized failure with the cause attached
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:      "http://localhost:11434",
//	    DefaultModel: "llama-3.1",
//	}).WithRunner(exec)
//
//	text, err := client.Generate(ctx, "", "Why is the sky blue?", ollama.GenerateOptions{MaxTokens: 256})
//	out, err := client.Pull(ctx, "llama-3.1")
//
// Errors compare by category, so errors.Is(err, ollama.ErrTimeout) holds for
// every timeout regardless of which call produced it.
package ollama
