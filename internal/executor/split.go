// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
)

// Split tokenizes a command line with POSIX shell-word rules: whitespace
// separates words, single and double quotes group, backslash escapes. Inside
// double quotes a backslash is kept unless it precedes $, `, ", \ or a
// newline. Nothing else is interpreted: no globbing, variables, pipes,
// redirection or comments.
func Split(command string) ([]string, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}
