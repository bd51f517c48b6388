// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// TruncateRunes shortens s to at most maxRunes characters, appending "..."
// when something was cut. It never splits a multi-byte character.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// OneLine collapses all whitespace runs (newlines included) into single
// spaces. Used for log attributes and index snippets.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Preview returns a single-line, length-bounded rendering of s for logs.
func Preview(s string, maxRunes int) string {
	return TruncateRunes(OneLine(s), maxRunes)
}
