// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/jeranaias/rigrun-agent/internal/storage"
)

// =============================================================================
// PROMPT ASSEMBLY
// =============================================================================

// historyLines renders messages as "User: ..." / "Assistant: ..." lines and
// keeps only the last window of them.
func historyLines(messages []storage.Message, window int) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == storage.RoleUser {
			lines = append(lines, "User: "+m.Text)
		} else {
			lines = append(lines, "Assistant: "+m.Text)
		}
	}
	if window > 0 && len(lines) > window {
		lines = lines[len(lines)-window:]
	}
	return lines
}

// buildPrompt joins the history window and any context parts into the final
// completion prompt, which always ends with an open assistant turn.
func buildPrompt(lines []string, contextParts []string, current string) string {
	system := strings.Join(lines, "\n")
	if len(contextParts) > 0 {
		system += "\n\nContext:\n" + strings.Join(contextParts, "\n\n")
	}
	if system == "" {
		return "User: " + current + "\nAssistant:"
	}
	return system + "\n\nAssistant:"
}
