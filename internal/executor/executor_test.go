// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestExecutor() *Executor {
	return New(&Config{KillGrace: 500 * time.Millisecond}, nil)
}

// =============================================================================
// OUTCOME TESTS
// =============================================================================

func TestRun_Success(t *testing.T) {
	e := newTestExecutor()

	out, err := e.Run(context.Background(), []string{"echo", "hello", "world"}, "", time.Second*5)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hello world\n", out.Stdout)
	assert.Empty(t, out.Stderr)
}

func TestRun_NonZeroExitIsOutcome(t *testing.T) {
	e := newTestExecutor()

	out, err := e.Run(context.Background(), []string{"false"}, "", 5*time.Second)
	require.NoError(t, err, "a non-zero exit must not be an error")
	assert.Equal(t, 1, out.ExitCode)
	assert.Empty(t, out.Stdout)
}

func TestRun_CapturesStderrAndCode(t *testing.T) {
	e := newTestExecutor()

	out, err := e.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 7"}, "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ExitCode)
	assert.Equal(t, "oops\n", out.Stderr)
}

func TestRun_WorkingDirectory(t *testing.T) {
	e := newTestExecutor()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	out, err := e.Run(context.Background(), []string{"pwd"}, dir, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(out.Stdout))
}

func TestRun_NoShellInterpretation(t *testing.T) {
	e := newTestExecutor()
	dir := t.TempDir()

	argv, err := Split("echo $HOME; touch pwned")
	require.NoError(t, err)

	out, err := e.Run(context.Background(), argv, dir, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "$HOME; touch pwned\n", out.Stdout)

	_, statErr := os.Stat(filepath.Join(dir, "pwned"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "metacharacters must not reach a shell")
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestRun_ExecutableNotFound(t *testing.T) {
	e := newTestExecutor()

	_, err := e.Run(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, "", 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Run(context.Background(), []string{"./missing-script.sh"}, t.TempDir(), 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRun_EmptyCommand(t *testing.T) {
	e := newTestExecutor()

	_, err := e.Run(context.Background(), nil, "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestRun_BadWorkDir(t *testing.T) {
	e := newTestExecutor()

	_, err := e.Run(context.Background(), []string{"true"}, filepath.Join(t.TempDir(), "nope"), time.Second)
	assert.ErrorIs(t, err, ErrBadWorkDir)
}

func TestRun_Timeout(t *testing.T) {
	e := newTestExecutor()

	start := time.Now()
	_, err := e.Run(context.Background(), []string{"sleep", "30"}, "", 300*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout", err.Error())
	assert.Less(t, elapsed, 3*time.Second, "timeout must be enforced promptly")
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	e := newTestExecutor()
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")

	// The shell records its pid (the group id), then parks a grandchild.
	script := "echo $$ > " + pidFile + "; sleep 30 & wait"
	start := time.Now()
	_, err := e.Run(context.Background(), []string{"sh", "-c", script}, dir, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pgid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return errors.Is(unix.Kill(-pgid, 0), unix.ESRCH)
	}, 5*time.Second, 50*time.Millisecond, "no member of the process group may survive")
}

func TestRun_Canceled(t *testing.T) {
	e := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := e.Run(ctx, []string{"sleep", "30"}, "", 10*time.Second)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestRun_OutputCap(t *testing.T) {
	e := New(&Config{MaxOutputBytes: 10}, nil)

	out, err := e.Run(context.Background(), []string{"echo", "0123456789abcdef"}, "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out.Stdout)
	assert.True(t, out.Truncated)
}

func TestTimeout_Clamp(t *testing.T) {
	e := New(&Config{DefaultTimeout: 5 * time.Second, MaxTimeout: time.Minute}, nil)

	assert.Equal(t, 5*time.Second, e.Timeout(0))
	assert.Equal(t, 2*time.Second, e.Timeout(2*time.Second))
	assert.Equal(t, time.Minute, e.Timeout(time.Hour))
}

// =============================================================================
// SPLIT TESTS
// =============================================================================

func TestSplit(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`ls -la`, []string{"ls", "-la"}},
		{`grep "hello world" file.txt`, []string{"grep", "hello world", "file.txt"}},
		{`echo 'single $quoted'`, []string{"echo", "single $quoted"}},
		{`echo a\ b`, []string{"echo", "a b"}},
		{"  spaced\t\targs  ", []string{"spaced", "args"}},
		{`cat *.txt | wc -l`, []string{"cat", "*.txt", "|", "wc", "-l"}},
		{`printf "a\nb"`, []string{"printf", `a\nb`}},
		{`grep "a\.b" f`, []string{"grep", `a\.b`, "f"}},
		{`echo "C:\dir"`, []string{"echo", `C:\dir`}},
		{`echo "a\"b"`, []string{"echo", `a"b`}},
		{`echo "a\\b"`, []string{"echo", `a\b`}},
		{`echo "\$HOME"`, []string{"echo", "$HOME"}},
		{`echo 'a\nb'`, []string{"echo", `a\nb`}},
		{`echo #1`, []string{"echo", "#1"}},
		{`# not a comment`, []string{"#", "not", "a", "comment"}},
	}

	for _, tt := range tests {
		got, err := Split(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestSplit_Errors(t *testing.T) {
	_, err := Split("")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Split("   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Split(`echo "unterminated`)
	assert.Error(t, err)

	_, err = Split(`echo 'unterminated`)
	assert.Error(t, err)
}
