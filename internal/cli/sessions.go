// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-agent/internal/util"
)

func newSessionsCmd(g *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and clear stored chat sessions",
		Long: `Inspect and clear the chat sessions stored in the base directory.

Examples:
  rigrun-agent sessions list
  rigrun-agent sessions show 6f1c...
  rigrun-agent sessions clear 6f1c...`,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), g, func(a *app) error {
				sessions, err := a.store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(g, map[string]any{"sessions": sessions})
				}
				if len(sessions) == 0 {
					fmt.Fprintln(g.stdout, "No sessions.")
					return nil
				}
				tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tCREATED")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withStore(cmd.Context(), g, func(a *app) error {
				history, err := a.store.History(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(g, map[string]any{"session_id": id, "history": history})
				}
				for _, m := range history {
					fmt.Fprintf(g.stdout, "[%s] %s: %s\n",
						m.Timestamp.Format(time.RFC3339), m.Role, util.OneLine(m.Text))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withStore(cmd.Context(), g, func(a *app) error {
				if err := a.store.ClearSession(cmd.Context(), id); err != nil {
					return err
				}
				if asJSON {
					return printJSON(g, map[string]any{"ok": true, "session_id": id})
				}
				fmt.Fprintf(g.stdout, "Cleared session %s\n", id)
				return nil
			})
		},
	})

	return cmd
}

func withStore(ctx context.Context, g *globalOptions, fn func(*app) error) (err error) {
	a, err := newApp(ctx, g, appOptions{store: true}, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printJSON(g *globalOptions, v any) error {
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
