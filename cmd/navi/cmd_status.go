package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the "navi status" subcommand.
func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigFrom(configPath)
			if err != nil {
				return err
			}

			status, pid, err := DaemonStatus(cfg.PIDPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch status {
			case StatusRunning:
				fmt.Fprintf(out, "daemon: running (PID %d)\n", pid)
			case StatusStale:
				fmt.Fprintf(out, "daemon: stale PID file (PID %d is dead)\n", pid)
			case StatusStopped:
				fmt.Fprintln(out, "daemon: stopped")
			}

			if _, err := os.Stat(cfg.SocketPath); err == nil {
				fmt.Fprintf(out, "socket: %s\n", cfg.SocketPath)
			} else {
				fmt.Fprintln(out, "socket: absent")
			}
			fmt.Fprintf(out, "db:     %s\n", cfg.DBPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	return cmd
}
