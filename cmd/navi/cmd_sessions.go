package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"navi/pkg/store"

	"github.com/spf13/cobra"
)

// newSessionsCmd creates the "navi sessions" subcommand.
func newSessionsCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions and their hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigFrom(configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			sessions, err := st.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROLE\tSTATUS\tCOST\tTASK")
			for _, s := range sessions {
				indent := strings.Repeat("  ", s.Depth)
				task := s.Task
				if len(task) > 48 {
					task = task[:45] + "..."
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t$%.4f\t%s\n",
					indent, shortID(s.ID), s.Role, s.Status, s.CostUSD, task)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max sessions to list")
	return cmd
}

// shortID truncates UUIDs for table display; short IDs pass through.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
