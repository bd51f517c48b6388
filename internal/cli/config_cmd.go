// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

// defaultConfigFile is where config init writes when no path is given.
const defaultConfigFile = "agent.toml"

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as TOML",
		Long: `Write the default configuration to path (default: agent.toml). An
existing file is left alone unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return usageError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after the file, environment overrides and flags
were applied. The auth token is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.AuthToken != "" {
				cfg.Server.AuthToken = "********"
			}
			data, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = g.stdout.Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
