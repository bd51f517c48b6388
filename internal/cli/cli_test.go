// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/storage"
)

// clearEnv keeps the host environment out of the configuration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AGENT_CONFIG", "AGENT_BASE_DIR", "AGENT_DEBUG", "AGENT_PORT",
		"AGENT_LOG_LEVEL", "AGENT_AUTH_TOKEN", "OLLAMA_URL", "OLLAMA_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestRun_WriteThenRead(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()

	code, out, errOut := execute(t, "run", "file.write", "--base-dir", base,
		"--param", "path=sub/test.txt", "--param", "content=hello world")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "written", decode(t, out)["result"])

	data, err := os.ReadFile(filepath.Join(base, "sub", "test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	code, out, _ = execute(t, "run", "file.read", "--base-dir", base, "--json", `{"path": "sub/test.txt"}`)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "hello world", decode(t, out)["result"])
}

func TestRun_FailureExitsOne(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()

	code, out, errOut := execute(t, "run", "file.read", "--base-dir", base, "--param", "path=../../etc/passwd")
	assert.Equal(t, ExitGeneralError, code)
	body := decode(t, out)
	assert.Equal(t, "access_denied", body["kind"])
	assert.NotEmpty(t, body["error"])
	assert.NotContains(t, errOut, "Error:", "the envelope already reports the failure")

	code, out, _ = execute(t, "run", "nope.tool", "--base-dir", base)
	assert.Equal(t, ExitGeneralError, code)
	assert.Equal(t, "unknown tool: nope.tool", decode(t, out)["error"])
}

func TestRun_List(t *testing.T) {
	clearEnv(t)

	code, out, _ := execute(t, "run", "--list", "--base-dir", t.TempDir())
	require.Equal(t, ExitSuccess, code)
	for _, name := range []string{
		"file.read", "file.write", "index.build", "index.query",
		"ollama.generate", "ollama.pull", "shell.run", "web.fetch",
	} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "path*", "required parameters are starred")
}

func TestRun_UsageErrors(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()

	code, _, errOut := execute(t, "run", "--base-dir", base)
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, errOut, "exactly one tool name")

	code, _, _ = execute(t, "run", "file.read", "--base-dir", base, "--param", "novalue")
	assert.Equal(t, ExitUsageError, code)

	code, _, _ = execute(t, "run", "file.read", "--base-dir", base, "--json", "[1,2]")
	assert.Equal(t, ExitUsageError, code)

	code, _, _ = execute(t, "run", "--no-such-flag")
	assert.Equal(t, ExitUsageError, code)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{name: "pairs", pairs: []string{"a=1", "b=x=y"}, want: map[string]any{"a": "1", "b": "x=y"}},
		{name: "json", json: `{"top_k": 5}`, want: map[string]any{"top_k": 5.0}},
		{name: "pairs override json", json: `{"a": "j", "b": 2}`, pairs: []string{"a=p"}, want: map[string]any{"a": "p", "b": 2.0}},
		{name: "empty value", pairs: []string{"content="}, want: map[string]any{"content": ""}},
		{name: "missing equals", pairs: []string{"flag"}, wantErr: true},
		{name: "missing key", pairs: []string{"=v"}, wantErr: true},
		{name: "bad json", json: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.json, tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// SESSIONS TESTS
// =============================================================================

func TestSessions(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	ctx := context.Background()

	store, err := storage.Open(ctx, filepath.Join(base, config.Default().Store.Filename), nil)
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, "s1", storage.RoleUser, "hello")
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, "s1", storage.RoleAssistant, "hi\nthere")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	code, out, errOut := execute(t, "sessions", "list", "--base-dir", base)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "s1")

	code, out, _ = execute(t, "sessions", "show", "s1", "--base-dir", base)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "user: hello")
	assert.Contains(t, out, "assistant: hi there")

	code, out, _ = execute(t, "sessions", "show", "s1", "--json", "--base-dir", base)
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, decode(t, out)["history"], 2)

	code, out, _ = execute(t, "sessions", "clear", "s1", "--base-dir", base)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Cleared session s1")

	code, out, _ = execute(t, "sessions", "list", "--json", "--base-dir", base)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []any{}, decode(t, out)["sessions"])
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestConfigInit(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agent.toml")

	code, out, errOut := execute(t, "config", "init", path)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	code, _, errOut = execute(t, "config", "init", path)
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, errOut, "already exists")

	code, _, _ = execute(t, "config", "init", path, "--force")
	assert.Equal(t, ExitSuccess, code)
}

func TestConfigShow_MasksToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_AUTH_TOKEN", "s3cret")

	code, out, _ := execute(t, "config", "show")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "s3cret")
}

func TestConfig_InvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 0x\n"), 0o600))

	code, _, errOut := execute(t, "run", "--list", "--config", path)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "Error:")
}

// =============================================================================
// VERSION AND SERVE TESTS
// =============================================================================

func TestVersion(t *testing.T) {
	code, out, _ := execute(t, "version")
	require.Equal(t, ExitSuccess, code)
	assert.True(t, strings.HasPrefix(out, "rigrun-agent version "+Version))

	code, out, _ = execute(t, "version", "--json")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, Version, decode(t, out)["version"])
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServe_GracefulShutdown(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- Execute(ctx, []string{"serve", "--base-dir", base, "--port", fmt.Sprint(port)}, &stdout, &stderr)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}

	_, err := os.Stat(filepath.Join(base, config.Default().Store.Filename))
	assert.NoError(t, err, "serve opens the session store in the base directory")
}
