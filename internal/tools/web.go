// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import "context"

// =============================================================================
// WEB TOOL
// =============================================================================

type webTools struct {
	fetcher URLFetcher
	limits  Limits
}

func (t *webTools) fetch(ctx context.Context, params map[string]any) (any, error) {
	url, err := requireStringParam(params, "url")
	if err != nil {
		return nil, err
	}
	timeout, err := getTimeoutParam(params, "timeout", t.limits.FetchTimeout, t.limits.MaxTimeout)
	if err != nil {
		return nil, err
	}
	return t.fetcher.Get(ctx, url, timeout)
}
