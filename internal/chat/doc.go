// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs session-aware conversations against the model runtime.
//
// Each turn stores the user message, renders the recent history (and,
// optionally, index search results) into a single prompt, asks the
// generator for a reply and stores that reply too. A failed generation is
// still recorded, as an "(error) ..." assistant message, so the stored
// history always alternates user and assistant turns.
//
// # Key Types
//
//   - Service: Runs one conversational turn
//   - Request: Prompt plus session and generation options
//   - Response: ok/error envelope with the full session history
//
// # Usage
//
//	svc := chat.NewService(store, ollamaClient, indexManager, nil, logger)
//	resp, err := svc.Chat(ctx, chat.Request{Prompt: "hello"})
package chat
