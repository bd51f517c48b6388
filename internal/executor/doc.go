// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor runs external commands with a hard wall-clock bound.
//
// Commands are started directly from an argument vector; no shell is ever
// involved, so metacharacters in arguments have no effect. A raw command
// line is split with POSIX shell-word rules by Split before it gets here.
//
// On POSIX systems each command runs in its own process group and the whole
// group is killed when the timeout expires or the caller cancels, so
// grandchildren do not outlive the call.
//
// # Key Types
//
//   - Executor: runs commands under the configured limits
//   - Outcome: exit code plus captured stdout and stderr
//
// # Outcome vs Error
//
// A command that ran, whatever its exit code, yields an Outcome and a nil
// error. Errors are reserved for commands that could not run to completion:
// ErrTimeout, ErrCanceled, ErrNotFound, ErrEmptyCommand and ErrBadWorkDir.
//
// # Usage
//
//	argv, err := executor.Split(`grep -n "hello world" notes.txt`)
//	if err != nil {
//	    return err
//	}
//	out, err := exec.Run(ctx, argv, cwd, 30*time.Second)
//	if errors.Is(err, executor.ErrTimeout) {
//	    // report the timeout
//	}
//	fmt.Println(out.ExitCode, out.Stdout)
package executor
