package main

import (
	"fmt"
	"text/tabwriter"

	"navi/pkg/store"

	"github.com/spf13/cobra"
)

// newEventsCmd creates the "navi events" subcommand.
func newEventsCmd() *cobra.Command {
	var configPath string
	var limit int
	var sessionID string
	var types []string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the orchestrator event log",
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

			events, err := st.Events(cmd.Context(), store.EventFilter{
				Types:     types,
				SessionID: sessionID,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTYPE\tSESSION\tDETAIL")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt, e.Type, shortID(e.SessionID), e.Payload)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "filter by session ID")
	cmd.Flags().StringSliceVar(&types, "type", nil, "filter by event type (repeatable)")
	return cmd
}
