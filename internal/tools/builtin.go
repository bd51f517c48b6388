// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

// Tool names.
const (
	ToolFileRead       = "file.read"
	ToolFileWrite      = "file.write"
	ToolWebFetch       = "web.fetch"
	ToolShellRun       = "shell.run"
	ToolIndexBuild     = "index.build"
	ToolIndexQuery     = "index.query"
	ToolOllamaPull     = "ollama.pull"
	ToolOllamaGenerate = "ollama.generate"
)

// builtins returns the tools deps can support.
func builtins(deps Deps) []*Tool {
	var list []*Tool

	if deps.Sandbox != nil {
		files := &fileTools{sb: deps.Sandbox}
		list = append(list,
			&Tool{
				Name:        ToolFileRead,
				Description: "Read a file inside the base directory",
				Params: []Parameter{
					{Name: "path", Type: "string", Required: true},
				},
				Handler: files.read,
			},
			&Tool{
				Name:        ToolFileWrite,
				Description: "Write a file inside the base directory, replacing it atomically",
				Params: []Parameter{
					{Name: "path", Type: "string", Required: true},
					{Name: "content", Type: "string", Default: ""},
				},
				Handler: files.write,
			},
		)
	}

	if deps.Fetcher != nil {
		web := &webTools{fetcher: deps.Fetcher, limits: deps.Limits}
		list = append(list, &Tool{
			Name:        ToolWebFetch,
			Description: "HTTP GET a URL and return the response body",
			Params: []Parameter{
				{Name: "url", Type: "string", Required: true},
				{Name: "timeout", Type: "number", Default: deps.Limits.FetchTimeout.Seconds()},
			},
			Handler: web.fetch,
		})
	}

	if deps.Runner != nil && deps.Sandbox != nil {
		shell := &shellTools{sb: deps.Sandbox, runner: deps.Runner, limits: deps.Limits}
		list = append(list, &Tool{
			Name:        ToolShellRun,
			Description: "Run a command without a shell and capture its output",
			Params: []Parameter{
				{Name: "cmd", Type: "string", Required: true},
				{Name: "timeout", Type: "number", Default: deps.Limits.ShellTimeout.Seconds()},
				{Name: "cwd", Type: "string"},
			},
			Handler: shell.run,
		})
	}

	if deps.Indexer != nil {
		idx := &indexTools{indexer: deps.Indexer}
		list = append(list,
			&Tool{
				Name:        ToolIndexBuild,
				Description: "Build a full-text index from documents inside the base directory",
				Params: []Parameter{
					{Name: "index_name", Type: "string", Default: defaultIndexName},
					{Name: "docs_path", Type: "string"},
				},
				Handler: idx.build,
			},
			&Tool{
				Name:        ToolIndexQuery,
				Description: "Search an index and return the best matching passages",
				Params: []Parameter{
					{Name: "query", Type: "string", Required: true},
					{Name: "index_name", Type: "string", Default: defaultIndexName},
					{Name: "top_k", Type: "integer", Default: defaultTopK},
					{Name: "docs_path", Type: "string"},
				},
				Handler: idx.query,
			},
		)
	}

	if deps.Model != nil {
		model := &modelTools{client: deps.Model}
		list = append(list,
			&Tool{
				Name:        ToolOllamaPull,
				Description: "Download a model with the ollama CLI",
				Params: []Parameter{
					{Name: "model", Type: "string"},
				},
				Handler: model.pull,
			},
			&Tool{
				Name:        ToolOllamaGenerate,
				Description: "Generate a completion from the local model runtime",
				Params: []Parameter{
					{Name: "prompt", Type: "string", Required: true},
					{Name: "model", Type: "string"},
					{Name: "temperature", Type: "number", Default: defaultTemperature},
					{Name: "max_tokens", Type: "integer", Default: defaultMaxTokens},
				},
				Handler: model.generate,
			},
		)
	}

	return list
}
