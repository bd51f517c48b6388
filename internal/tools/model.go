// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"

	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// =============================================================================
// MODEL TOOLS
// =============================================================================

const (
	defaultTemperature = 0.0
	defaultMaxTokens   = 512
)

type modelTools struct {
	client ModelClient
}

func (t *modelTools) pull(ctx context.Context, params map[string]any) (any, error) {
	model, err := getStringParam(params, "model", "")
	if err != nil {
		return nil, err
	}
	return t.client.Pull(ctx, model)
}

func (t *modelTools) generate(ctx context.Context, params map[string]any) (any, error) {
	prompt, err := requireStringParam(params, "prompt")
	if err != nil {
		return nil, err
	}
	model, err := getStringParam(params, "model", "")
	if err != nil {
		return nil, err
	}
	temperature, err := getFloatParam(params, "temperature", defaultTemperature)
	if err != nil {
		return nil, err
	}
	maxTokens, err := getIntParam(params, "max_tokens", defaultMaxTokens)
	if err != nil {
		return nil, err
	}
	if maxTokens < 1 {
		return nil, Failf(KindInvalidRequest, "max_tokens must be at least 1")
	}

	return t.client.Generate(ctx, model, prompt, ollama.GenerateOptions{
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}
