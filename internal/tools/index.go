// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"

	"github.com/jeranaias/rigrun-agent/internal/index"
)

// =============================================================================
// INDEX TOOLS
// =============================================================================

const (
	defaultIndexName = index.DefaultName
	defaultTopK      = 3
)

type indexTools struct {
	indexer Indexer
}

func (t *indexTools) build(ctx context.Context, params map[string]any) (any, error) {
	name, err := getStringParam(params, "index_name", defaultIndexName)
	if err != nil {
		return nil, err
	}
	docs, err := getStringParam(params, "docs_path", "")
	if err != nil {
		return nil, err
	}
	path, err := t.indexer.Build(ctx, name, docs)
	if err != nil {
		return nil, indexError(err)
	}
	return path, nil
}

func (t *indexTools) query(ctx context.Context, params map[string]any) (any, error) {
	query, err := requireStringParam(params, "query")
	if err != nil {
		return nil, err
	}
	name, err := getStringParam(params, "index_name", defaultIndexName)
	if err != nil {
		return nil, err
	}
	topK, err := getIntParam(params, "top_k", defaultTopK)
	if err != nil {
		return nil, err
	}
	if topK < 1 {
		return nil, Failf(KindInvalidRequest, "top_k must be at least 1")
	}
	docs, err := getStringParam(params, "docs_path", "")
	if err != nil {
		return nil, err
	}

	answer, err := t.indexer.Query(ctx, name, query, topK, docs)
	if err != nil {
		return nil, indexError(err)
	}
	return answer, nil
}

func indexError(err error) error {
	if errors.Is(err, index.ErrIndexNotFound) {
		return &Failure{Kind: KindNotFound, Reason: index.ErrIndexNotFound.Error(), Cause: err}
	}
	return err
}
