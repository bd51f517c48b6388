// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	baseDir    string
	debug      bool

	stdout io.Writer
	stderr io.Writer
}

// loadConfig reads the configuration file and applies command-line
// overrides on top of it.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	if g.baseDir != "" {
		cfg.BaseDir = g.baseDir
	}
	if g.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// NewRootCmd creates the rigrun-agent command tree writing to stdout and
// stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "rigrun-agent",
		Short: "Local tool-execution agent with an HTTP API",
		Long: `rigrun-agent runs tools inside a sandboxed base directory: file reads and
writes, web fetches, shell commands, a document index and a local Ollama
model. Tools are served over HTTP together with a session-aware chat
endpoint, or run once from the command line.

Examples:
  rigrun-agent serve --base-dir ./workspace
  rigrun-agent run file.read --param path=notes.md
  rigrun-agent run shell.run --json '{"cmd": "ls -la", "timeout": 5}'
  rigrun-agent sessions list
  rigrun-agent config init agent.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a TOML config file (default: $AGENT_CONFIG)")
	cmd.PersistentFlags().StringVar(&g.baseDir, "base-dir", "", "Sandbox base directory (overrides base_dir)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newSessionsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd(g))

	return cmd
}

// Execute runs the command tree with args and returns the process exit
// code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil && !exitErr.Silent {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitGeneralError
}
