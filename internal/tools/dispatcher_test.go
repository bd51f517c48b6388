// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/executor"
	"github.com/jeranaias/rigrun-agent/internal/fetcher"
	"github.com/jeranaias/rigrun-agent/internal/index"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/sandbox"
)

// =============================================================================
// FAKES
// =============================================================================

type runCall struct {
	argv    []string
	cwd     string
	timeout time.Duration
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	out   executor.Outcome
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, cwd string, timeout time.Duration) (executor.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{argv: argv, cwd: cwd, timeout: timeout})
	return f.out, f.err
}

func (f *fakeRunner) last(t *testing.T) runCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeFetcher struct {
	url     string
	timeout time.Duration
	body    string
	err     error
}

func (f *fakeFetcher) Get(ctx context.Context, url string, timeout time.Duration) (string, error) {
	f.url, f.timeout = url, timeout
	return f.body, f.err
}

type fakeIndexer struct {
	name, query, docs string
	topK              int
	answer            string
	err               error
}

func (f *fakeIndexer) Build(ctx context.Context, name, docsPath string) (string, error) {
	f.name, f.docs = name, docsPath
	return "/base/" + name + ".index.db", f.err
}

func (f *fakeIndexer) Query(ctx context.Context, name, query string, topK int, docsPath string) (string, error) {
	f.name, f.query, f.topK, f.docs = name, query, topK, docsPath
	return f.answer, f.err
}

type fakeModel struct {
	model  string
	prompt string
	opts   ollama.GenerateOptions
	text   string
	err    error
}

func (f *fakeModel) Generate(ctx context.Context, model, prompt string, opts ollama.GenerateOptions) (string, error) {
	f.model, f.prompt, f.opts = model, prompt, opts
	return f.text, f.err
}

func (f *fakeModel) Pull(ctx context.Context, model string) (string, error) {
	f.model = model
	return f.text, f.err
}

type testEnv struct {
	base    string
	d       *Dispatcher
	runner  *fakeRunner
	fetcher *fakeFetcher
	indexer *fakeIndexer
	model   *fakeModel
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		base:    sb.Base(),
		runner:  &fakeRunner{},
		fetcher: &fakeFetcher{},
		indexer: &fakeIndexer{},
		model:   &fakeModel{},
		reg:     prometheus.NewRegistry(),
	}
	env.d = NewDispatcher(Deps{
		Sandbox: sb,
		Runner:  env.runner,
		Fetcher: env.fetcher,
		Indexer: env.indexer,
		Model:   env.model,
	}, nil, NewMetrics(env.reg))
	return env
}

func requireFailure(t *testing.T, err error, kind Kind) *Failure {
	t.Helper()
	require.Error(t, err)
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %T", err)
	assert.Equal(t, kind, f.Kind, "reason: %s", f.Reason)
	return f
}

// =============================================================================
// DISPATCH TESTS
// =============================================================================

func TestDispatch_UnknownTool(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.d.Dispatch(context.Background(), "nope", nil)
	assert.Nil(t, out)
	f := requireFailure(t, err, KindNotFound)
	assert.Equal(t, "unknown tool: nope", f.Reason)
	assert.Equal(t, http.StatusNotFound, f.HTTPStatus())
}

func TestDispatch_HandlerFailureIs400(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.d.Dispatch(context.Background(), ToolFileRead, map[string]any{})
	f := requireFailure(t, err, KindInvalidRequest)
	assert.Equal(t, "path is required", f.Reason)
	assert.Equal(t, http.StatusBadRequest, f.HTTPStatus())
}

func TestDispatch_RecoversPanic(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.d.Registry().Register(&Tool{
		Name: "boom",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			panic("kaboom")
		},
	}))

	out, err := env.d.Dispatch(context.Background(), "boom", nil)
	assert.Nil(t, out)
	f := requireFailure(t, err, KindInternalFault)
	assert.Contains(t, f.Reason, "kaboom")

	// The dispatcher keeps working afterwards.
	_, err = env.d.Dispatch(context.Background(), ToolFileWrite, map[string]any{"path": "a.txt"})
	assert.NoError(t, err)
}

func TestDispatch_PlainErrorsAreClassified(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.d.Registry().Register(&Tool{
		Name: "plain",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			return "ignored", errors.New("something broke")
		},
	}))

	out, err := env.d.Dispatch(context.Background(), "plain", nil)
	assert.Nil(t, out, "a failed handler yields no payload")
	f := requireFailure(t, err, KindExecutionFailure)
	assert.Equal(t, "something broke", f.Reason)
}

func TestDispatch_Metrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.d.Dispatch(ctx, ToolFileWrite, map[string]any{"path": "a.txt", "content": "x"})
	_, _ = env.d.Dispatch(ctx, ToolFileRead, map[string]any{"path": "a.txt"})
	_, _ = env.d.Dispatch(ctx, ToolFileRead, map[string]any{"path": "../outside"})
	_, _ = env.d.Dispatch(ctx, "no.such.tool", nil)

	families, err := env.reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "agent_tool_invocations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["tool"]+"/"+labels["outcome"]] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, counts["file.write/success"])
	assert.Equal(t, 1.0, counts["file.read/success"])
	assert.Equal(t, 1.0, counts["file.read/access_denied"])
	assert.Equal(t, 1.0, counts["unknown/not_found"])
}

func TestDispatch_NilMetrics(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	d := NewDispatcher(Deps{Sandbox: sb}, nil, nil)

	_, err = d.Dispatch(context.Background(), ToolFileWrite, map[string]any{"path": "x"})
	assert.NoError(t, err)
}

func TestList_SortedWithSchema(t *testing.T) {
	env := newTestEnv(t)

	var names []string
	for _, tool := range env.d.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"file.read", "file.write",
		"index.build", "index.query",
		"ollama.generate", "ollama.pull",
		"shell.run", "web.fetch",
	}, names)

	data, err := json.Marshal(env.d.Registry().Get(ToolShellRun))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "shell.run",
		"description": "Run a command without a shell and capture its output",
		"params": [
			{"name": "cmd", "type": "string", "required": true, "default": null},
			{"name": "timeout", "type": "number", "required": false, "default": 30},
			{"name": "cwd", "type": "string", "required": false, "default": null}
		]
	}`, string(data))
}

func TestNewDispatcher_OnlyConfiguredTools(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	d := NewDispatcher(Deps{Sandbox: sb}, nil, nil)

	var names []string
	for _, tool := range d.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"file.read", "file.write"}, names)

	_, err = d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "ls"})
	f := requireFailure(t, err, KindNotFound)
	assert.Equal(t, http.StatusNotFound, f.HTTPStatus())
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }

	require.NoError(t, r.Register(&Tool{Name: "a", Handler: handler}))
	assert.Error(t, r.Register(&Tool{Name: "a", Handler: handler}))
	assert.Error(t, r.Register(&Tool{Name: "b"}))
}

// =============================================================================
// FILE TOOL TESTS
// =============================================================================

func TestFile_WriteThenRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.d.Dispatch(ctx, ToolFileWrite, map[string]any{"path": "notes/a.txt", "content": "hello"})
	require.NoError(t, err)
	assert.Equal(t, WriteConfirmation, out)

	data, err := os.ReadFile(filepath.Join(env.base, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = env.d.Dispatch(ctx, ToolFileRead, map[string]any{"path": "notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestFile_WriteReplacesAndDefaultsContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(env.base, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content"), 0o644))

	_, err := env.d.Dispatch(ctx, ToolFileWrite, map[string]any{"path": "a.txt"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFile_Errors(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Mkdir(filepath.Join(env.base, "dir"), 0o755))

	tests := []struct {
		name   string
		tool   string
		params map[string]any
		kind   Kind
		reason string
	}{
		{"read traversal", ToolFileRead, map[string]any{"path": "../x"}, KindAccessDenied, ""},
		{"read absolute outside", ToolFileRead, map[string]any{"path": "/etc/passwd"}, KindAccessDenied, ""},
		{"read missing", ToolFileRead, map[string]any{"path": "missing.txt"}, KindNotFound, "file not found: missing.txt"},
		{"read empty path", ToolFileRead, map[string]any{"path": ""}, KindInvalidRequest, "path is required"},
		{"read wrong type", ToolFileRead, map[string]any{"path": 42.0}, KindInvalidRequest, "path must be a string"},
		{"read directory", ToolFileRead, map[string]any{"path": "dir"}, KindInvalidRequest, "is a directory: dir"},
		{"write traversal", ToolFileWrite, map[string]any{"path": "../../x", "content": "pwned"}, KindAccessDenied, ""},
		{"write directory", ToolFileWrite, map[string]any{"path": "dir"}, KindInvalidRequest, "is a directory: dir"},
		{"write base", ToolFileWrite, map[string]any{"path": "."}, KindInvalidRequest, "is a directory: ."},
		{"write content type", ToolFileWrite, map[string]any{"path": "b.txt", "content": []any{"x"}}, KindInvalidRequest, "content must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.d.Dispatch(context.Background(), tt.tool, tt.params)
			f := requireFailure(t, err, tt.kind)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, f.Reason)
			}
			assert.Equal(t, http.StatusBadRequest, f.HTTPStatus())
		})
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(env.base), "x"))
	assert.True(t, os.IsNotExist(err), "nothing may be written outside the base")
}

func TestFile_SymlinkEscape(t *testing.T) {
	env := newTestEnv(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s3cret"), 0o644))
	if err := os.Symlink(outside, filepath.Join(env.base, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := env.d.Dispatch(context.Background(), ToolFileRead, map[string]any{"path": "link/secret"})
	requireFailure(t, err, KindAccessDenied)

	_, err = env.d.Dispatch(context.Background(), ToolFileWrite, map[string]any{"path": "link/new", "content": "x"})
	requireFailure(t, err, KindAccessDenied)
	_, statErr := os.Stat(filepath.Join(outside, "new"))
	assert.True(t, os.IsNotExist(statErr))
}

// =============================================================================
// SHELL TOOL TESTS
// =============================================================================

func TestShell_RunsInBaseWithDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.runner.out = executor.Outcome{ExitCode: 0, Stdout: "hi\n"}

	out, err := env.d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": `echo "hi there" 'x y'`})
	require.NoError(t, err)
	assert.Equal(t, executor.Outcome{Stdout: "hi\n"}, out)

	call := env.runner.last(t)
	assert.Equal(t, []string{"echo", "hi there", "x y"}, call.argv)
	assert.Equal(t, env.base, call.cwd)
	assert.Equal(t, 30*time.Second, call.timeout)
}

func TestShell_Timeouts(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		timeout any
		want    time.Duration
	}{
		{5.0, 5 * time.Second},
		{2.5, 2500 * time.Millisecond},
		{0.0, time.Second},
		{-3.0, time.Second},
		{0.2, time.Second},
		{1.0, time.Second},
		{"0.5", time.Second},
		{1e9, 10 * time.Minute},
		{"7", 7 * time.Second},
	}
	for _, tt := range tests {
		_, err := env.d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "true", "timeout": tt.timeout})
		require.NoError(t, err)
		assert.Equal(t, tt.want, env.runner.last(t).timeout, "timeout %v", tt.timeout)
	}

	_, err := env.d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "true", "timeout": "soon"})
	requireFailure(t, err, KindInvalidRequest)
}

func TestShell_WorkingDirectory(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Mkdir(filepath.Join(env.base, "sub"), 0o755))

	_, err := env.d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "ls", "cwd": "sub"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.base, "sub"), env.runner.last(t).cwd)

	calls := len(env.runner.calls)
	_, err = env.d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "ls", "cwd": ".."})
	requireFailure(t, err, KindAccessDenied)
	assert.Len(t, env.runner.calls, calls, "a denied cwd must not run anything")
}

func TestShell_Errors(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]any
		runnerErr error
		kind      Kind
		reason    string
	}{
		{"missing cmd", map[string]any{}, nil, KindInvalidRequest, "cmd is required"},
		{"blank cmd", map[string]any{"cmd": "   "}, nil, KindInvalidRequest, "cmd is required"},
		{"unbalanced quote", map[string]any{"cmd": `echo "oops`}, nil, KindInvalidRequest, ""},
		{"timeout", map[string]any{"cmd": "sleep 60"}, executor.ErrTimeout, KindExecutionFailure, "timeout"},
		{"canceled", map[string]any{"cmd": "sleep 60"}, executor.ErrCanceled, KindExecutionFailure, "canceled"},
		{"not found", map[string]any{"cmd": "nonexistent-binary"}, executor.ErrNotFound, KindExecutionFailure, "executable not found: nonexistent-binary"},
		{"bad cwd", map[string]any{"cmd": "ls", "cwd": "gone"}, executor.ErrBadWorkDir, KindNotFound, "working directory not found: gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.runner.err = tt.runnerErr

			_, err := env.d.Dispatch(context.Background(), ToolShellRun, tt.params)
			f := requireFailure(t, err, tt.kind)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, f.Reason)
			}
		})
	}
}

func TestShell_RealExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("echo is a shell builtin on windows")
	}
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	d := NewDispatcher(Deps{Sandbox: sb, Runner: executor.New(nil, nil)}, nil, nil)

	out, err := d.Dispatch(context.Background(), ToolShellRun, map[string]any{"cmd": "echo hi"})
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"returncode":0,"stdout":"hi\n","stderr":""}`, string(data))
}

// =============================================================================
// WEB TOOL TESTS
// =============================================================================

func TestWeb_Fetch(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.body = "<html>ok</html>"

	out, err := env.d.Dispatch(context.Background(), ToolWebFetch, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", out)
	assert.Equal(t, "https://example.com", env.fetcher.url)
	assert.Equal(t, 10*time.Second, env.fetcher.timeout)

	_, err = env.d.Dispatch(context.Background(), ToolWebFetch, map[string]any{"url": "https://example.com", "timeout": 3})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, env.fetcher.timeout)
}

func TestWeb_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"status", &fetcher.StatusError{Code: 404, Status: "404 Not Found"}, KindUpstreamFailure},
		{"timeout", fetcher.ErrTimeout, KindUpstreamFailure},
		{"scheme", fetcher.ErrInvalidScheme, KindInvalidRequest},
		{"blocked", fetcher.ErrBlockedAddress, KindAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fetcher.err = tt.err

			_, err := env.d.Dispatch(context.Background(), ToolWebFetch, map[string]any{"url": "http://x"})
			f := requireFailure(t, err, tt.kind)
			assert.Equal(t, tt.err.Error(), f.Reason)
		})
	}

	env := newTestEnv(t)
	_, err := env.d.Dispatch(context.Background(), ToolWebFetch, map[string]any{})
	f := requireFailure(t, err, KindInvalidRequest)
	assert.Equal(t, "url is required", f.Reason)
}

// =============================================================================
// INDEX TOOL TESTS
// =============================================================================

func TestIndex_Defaults(t *testing.T) {
	env := newTestEnv(t)
	env.indexer.answer = "a.md: hello"

	out, err := env.d.Dispatch(context.Background(), ToolIndexBuild, nil)
	require.NoError(t, err)
	assert.Equal(t, "/base/default.index.db", out)
	assert.Equal(t, "default", env.indexer.name)
	assert.Empty(t, env.indexer.docs)

	out, err = env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{"query": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "a.md: hello", out)
	assert.Equal(t, "default", env.indexer.name)
	assert.Equal(t, 3, env.indexer.topK)

	_, err = env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{
		"query": "hello", "index_name": "docs", "top_k": 5.0, "docs_path": "manual",
	})
	require.NoError(t, err)
	assert.Equal(t, "docs", env.indexer.name)
	assert.Equal(t, 5, env.indexer.topK)
	assert.Equal(t, "manual", env.indexer.docs)
}

func TestIndex_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{})
	assert.Equal(t, "query is required", requireFailure(t, err, KindInvalidRequest).Reason)

	_, err = env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{"query": "x", "top_k": 0})
	requireFailure(t, err, KindInvalidRequest)

	_, err = env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{"query": "x", "top_k": 2.5})
	assert.Equal(t, "top_k must be an integer", requireFailure(t, err, KindInvalidRequest).Reason)

	env.indexer.err = index.ErrIndexNotFound
	_, err = env.d.Dispatch(context.Background(), ToolIndexQuery, map[string]any{"query": "x"})
	assert.Equal(t, "index file not found", requireFailure(t, err, KindNotFound).Reason)

	env.indexer.err = index.ErrInvalidName
	_, err = env.d.Dispatch(context.Background(), ToolIndexBuild, map[string]any{"index_name": "../evil"})
	requireFailure(t, err, KindInvalidRequest)
}

func TestIndex_WithManager(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(sb.Base(), "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sb.Base(), "docs", "guide.md"), []byte("Restart the service with systemctl"), 0o644))

	mgr := index.NewManager(sb, nil, nil)
	t.Cleanup(func() { mgr.Close() })
	d := NewDispatcher(Deps{Sandbox: sb, Indexer: mgr}, nil, nil)
	ctx := context.Background()

	_, err = d.Dispatch(ctx, ToolIndexQuery, map[string]any{"query": "restart"})
	requireFailure(t, err, KindNotFound)

	out, err := d.Dispatch(ctx, ToolIndexBuild, map[string]any{"docs_path": "docs"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.Base(), "default.index.db"), out)

	out, err = d.Dispatch(ctx, ToolIndexQuery, map[string]any{"query": "restart"})
	require.NoError(t, err)
	assert.Contains(t, out, "docs/guide.md: ")
	assert.Contains(t, out, "systemctl")

	_, err = d.Dispatch(ctx, ToolIndexBuild, map[string]any{"docs_path": "../"})
	requireFailure(t, err, KindAccessDenied)
}

// =============================================================================
// MODEL TOOL TESTS
// =============================================================================

func TestModel_GenerateDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.model.text = "42"

	out, err := env.d.Dispatch(context.Background(), ToolOllamaGenerate, map[string]any{"prompt": "answer?"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
	assert.Empty(t, env.model.model)
	assert.Equal(t, "answer?", env.model.prompt)
	assert.Equal(t, ollama.GenerateOptions{Temperature: 0, MaxTokens: 512}, env.model.opts)

	_, err = env.d.Dispatch(context.Background(), ToolOllamaGenerate, map[string]any{
		"prompt": "p", "model": "mistral", "temperature": 0.7, "max_tokens": 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "mistral", env.model.model)
	assert.Equal(t, ollama.GenerateOptions{Temperature: 0.7, MaxTokens: 64}, env.model.opts)
}

func TestModel_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.d.Dispatch(context.Background(), ToolOllamaGenerate, map[string]any{})
	assert.Equal(t, "prompt is required", requireFailure(t, err, KindInvalidRequest).Reason)

	_, err = env.d.Dispatch(context.Background(), ToolOllamaGenerate, map[string]any{"prompt": "p", "temperature": "hot"})
	requireFailure(t, err, KindInvalidRequest)

	env.model.err = ollama.ErrNotRunning
	_, err = env.d.Dispatch(context.Background(), ToolOllamaGenerate, map[string]any{"prompt": "p"})
	requireFailure(t, err, KindUpstreamFailure)

	env.model.err = ollama.ErrCLINotFound
	_, err = env.d.Dispatch(context.Background(), ToolOllamaPull, nil)
	requireFailure(t, err, KindExecutionFailure)
}

func TestModel_Pull(t *testing.T) {
	env := newTestEnv(t)
	env.model.text = "success\n"

	out, err := env.d.Dispatch(context.Background(), ToolOllamaPull, map[string]any{"model": "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "success\n", out)
	assert.Equal(t, "llama3", env.model.model)
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestAsFailure(t *testing.T) {
	assert.Nil(t, AsFailure(nil))

	existing := Failf(KindNotFound, "gone")
	assert.Same(t, existing, AsFailure(existing))

	tests := []struct {
		err  error
		kind Kind
	}{
		{&sandbox.DeniedError{Path: "../x"}, KindAccessDenied},
		{os.ErrPermission, KindAccessDenied},
		{index.ErrDocsNotFound, KindNotFound},
		{os.ErrNotExist, KindNotFound},
		{executor.ErrEmptyCommand, KindInvalidRequest},
		{context.DeadlineExceeded, KindExecutionFailure},
		{ollama.ErrModelNotFound, KindUpstreamFailure},
		{&ollama.ClientError{Type: ollama.ErrTypeCommandFailed, Message: "pull failed"}, KindExecutionFailure},
		{errors.New("mystery"), KindExecutionFailure},
	}
	for _, tt := range tests {
		f := AsFailure(tt.err)
		assert.Equal(t, tt.kind, f.Kind, "%v", tt.err)
		assert.Equal(t, tt.err.Error(), f.Reason)
		assert.ErrorIs(t, f, tt.err)
	}
}
