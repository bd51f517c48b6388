// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-agent/internal/tools"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	params   []string
	jsonBody string
	list     bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Run one tool and print its result",
		Long: `Run one tool locally, exactly as POST /run would, and print the JSON
envelope: {"result": ...} on success or {"error": ..., "kind": ...} on
failure. The exit code is 1 when the tool failed.

Parameters come from --json (an object) and then --param key=value pairs,
which override keys from --json. --param values are strings; numeric
parameters such as timeout accept numeric strings.

Examples:
  rigrun-agent run --list
  rigrun-agent run file.write --param path=notes/a.txt --param content=hello
  rigrun-agent run web.fetch --param url=https://example.com --param timeout=5
  rigrun-agent run index.query --json '{"query": "deploy", "top_k": 5}'`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.list {
				return cobra.NoArgs(cmd, args)
			}
			if len(args) != 1 {
				return usageError(errors.New("run requires exactly one tool name (see --list)"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runTool(cmd.Context(), g, opts, name)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.params, "param", "P", nil, "Tool parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.jsonBody, "json", "", "Tool parameters as a JSON object")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List available tools")
	return cmd
}

func runTool(ctx context.Context, g *globalOptions, opts *runOptions, name string) (err error) {
	var params map[string]any
	if !opts.list {
		params, err = parseParams(opts.jsonBody, opts.params)
		if err != nil {
			return usageError(err)
		}
	}

	a, err := newApp(ctx, g, appOptions{tools: true}, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if opts.list {
		return printToolList(g.stdout, a.dispatcher.List())
	}

	result, runErr := a.dispatcher.Dispatch(ctx, name, params)

	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	if runErr != nil {
		f := tools.AsFailure(runErr)
		if err := enc.Encode(map[string]string{"error": f.Reason, "kind": string(f.Kind)}); err != nil {
			return err
		}
		return &ExitError{Code: ExitGeneralError, Err: f, Silent: true}
	}
	return enc.Encode(map[string]any{"result": result})
}

// parseParams merges a JSON object with key=value pairs. Pairs win.
func parseParams(jsonBody string, pairs []string) (map[string]any, error) {
	params := map[string]any{}
	if strings.TrimSpace(jsonBody) != "" {
		if err := json.Unmarshal([]byte(jsonBody), &params); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--param %q must be key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func printToolList(w io.Writer, list []*tools.Tool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, tool := range list {
		var names []string
		for _, p := range tool.Params {
			if p.Required {
				names = append(names, p.Name+"*")
			} else {
				names = append(names, p.Name)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tool.Name, strings.Join(names, ","), tool.Description)
	}
	return tw.Flush()
}
