package main

import (
	"fmt"
	"text/tabwriter"

	"navi/pkg/store"

	"github.com/spf13/cobra"
)

// newDecisionsCmd creates the "navi decisions" subcommand.
func newDecisionsCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "decisions <root-session-id>",
		Short: "Show the decision log for a session tree",
		Args:  cobra.ExactArgs(1),
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

			decisions, err := st.RecentDecisions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(decisions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no decisions logged")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSESSION\tCATEGORY\tDECISION")
			for _, d := range decisions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.CreatedAt, shortID(d.SessionID), d.Category, d.Decision)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max decisions to show")
	return cmd
}
