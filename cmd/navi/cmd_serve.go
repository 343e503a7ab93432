package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"navi/pkg/config"
	"navi/pkg/continuation"
	"navi/pkg/orchestrator"
	"navi/pkg/store"
	"navi/pkg/supervisor"

	"github.com/spf13/cobra"
)

// newServeCmd creates the "navi serve" subcommand: the foreground daemon.
func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator daemon",
		Long:  "Listens on the Unix socket for client connections and supervises\none agent runtime subprocess per active session. Runs in the foreground;\nstop with SIGTERM or 'navi stop'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				var err error
				configPath, err = config.DefaultPath()
				if err != nil {
					return err
				}
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.navi/config.toml)")
	return cmd
}

func runServe(cmd *cobra.Command, cfg config.File) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if status, pid, err := DaemonStatus(cfg.PIDPath); err == nil && status == StatusRunning {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := WritePIDFile(cfg.PIDPath, os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = RemovePIDFile(cfg.PIDPath) }()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	signals, err := continuation.LoadSignals(cfg.SignalsPath)
	if err != nil {
		return err
	}
	judge := continuation.NewPhraseJudge(signals)

	sup := supervisor.New(cfg.RuntimeBin, logger)
	orch := orchestrator.New(orchestrator.Config{
		SocketPath:        cfg.SocketPath,
		RuntimeBin:        cfg.RuntimeBin,
		DefaultModel:      cfg.DefaultModel,
		Workdir:           cfg.Workdir,
		MaxChildren:       cfg.MaxChildren,
		MaxIterations:     cfg.MaxIterations,
		EscalationTimeout: cfg.EscalationTimeout.Std(),
		ContinueDelay:     cfg.ContinueDelay.Std(),
	}, st, sup, judge, nil, logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go judge.Watch(ctx, cfg.SignalsPath, logger)

	logger.Info("navi daemon starting",
		"socket", cfg.SocketPath, "db", cfg.DBPath, "runtime", cfg.RuntimeBin)

	serveErr := orch.Serve(ctx)

	// Orderly teardown: kill the subprocess tree, then drain read loops.
	sup.KillAll()
	sup.Wait()
	logger.Info("navi daemon stopped")
	return serveErr
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
