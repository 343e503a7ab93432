package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"navi/pkg/config"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newStopCmd creates the "navi stop" subcommand.
func newStopCmd() *cobra.Command {
	var force bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the orchestrator daemon",
		Long:  "Sends SIGTERM to the daemon. Running sessions are terminated;\ntheir resume tokens stay in the store so they can be re-queried later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigFrom(configPath)
			if err != nil {
				return err
			}

			status, pid, err := DaemonStatus(cfg.PIDPath)
			if err != nil {
				return err
			}

			switch status {
			case StatusStopped:
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			case StatusStale:
				fmt.Fprintln(cmd.OutOrStdout(), "removing stale PID file (process already dead)")
				return RemovePIDFile(cfg.PIDPath)
			case StatusRunning:
				if !force && !confirmStop(cmd) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sending SIGTERM to daemon (PID %d)\n", pid)
				if err := StopDaemon(cfg.PIDPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
				return nil
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "stop without confirmation")
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	return cmd
}

// confirmStop prompts when attached to a terminal; non-interactive runs
// require --force.
func confirmStop(cmd *cobra.Command) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(cmd.OutOrStdout(), "not a terminal; use --force to stop without confirmation")
		return false
	}
	fmt.Fprint(cmd.OutOrStdout(), "stop the daemon and terminate running sessions? [y/N] ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func loadConfigFrom(path string) (config.File, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.File{}, err
		}
	}
	return config.Load(path)
}
