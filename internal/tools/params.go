// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// =============================================================================
// PARAMETER HELPERS
// =============================================================================

// Absent and null parameters both take the default. A present parameter of
// the wrong type is an InvalidRequest rather than silently defaulted.

func getStringParam(params map[string]any, name, def string) (string, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", Failf(KindInvalidRequest, "%s must be a string", name)
	}
	return s, nil
}

func requireStringParam(params map[string]any, name string) (string, error) {
	s, err := getStringParam(params, name, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", Failf(KindInvalidRequest, "%s is required", name)
	}
	return s, nil
}

func getFloatParam(params map[string]any, name string, def float64) (float64, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return f, nil
		}
	case string:
		// CLI parameters arrive as text.
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, Failf(KindInvalidRequest, "%s must be a number", name)
}

func getIntParam(params map[string]any, name string, def int) (int, error) {
	if v, ok := params[name]; !ok || v == nil {
		return def, nil
	}
	f, err := getFloatParam(params, name, 0)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, Failf(KindInvalidRequest, "%s must be an integer", name)
	}
	return int(f), nil
}

// getTimeoutParam reads a timeout in seconds and clamps it to [1s, limit].
func getTimeoutParam(params map[string]any, name string, def, limit time.Duration) (time.Duration, error) {
	secs, err := getFloatParam(params, name, def.Seconds())
	if err != nil {
		return 0, err
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, Failf(KindInvalidRequest, "%s must be a finite number", name)
	}
	switch {
	case secs <= 1:
		return time.Second, nil
	case limit > 0 && secs >= limit.Seconds():
		return limit, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
