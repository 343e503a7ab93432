package main

import (
	"fmt"

	"navi/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root navi command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "navi",
		Short:         "Navi multi-agent session orchestrator",
		Long:          "navi supervises AI coding-agent sessions: one subprocess per session,\nparent/child coordination, permission gating, and the until-done loop.",
		Version:       fmt.Sprintf("navi %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newStopCmd(),
		newStatusCmd(),
		newSessionsCmd(),
		newDecisionsCmd(),
		newEventsCmd(),
	)

	return cmd
}
