package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hray3182/nudge/internal/config"
	"github.com/hray3182/nudge/internal/logging"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "nudge",
		Short:         "Personal reminder service for routines and scheduled events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.AddCommand(
		a.serveCmd(),
		a.previewCmd(),
		a.statsCmd(),
		a.migrateCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("nudge failed", "error", err)
		stop()
		os.Exit(1)
	}
}
