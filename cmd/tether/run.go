package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SuchAFuriousDeath/tether/internal/app"
	"github.com/SuchAFuriousDeath/tether/internal/config"
)

var runOpts struct {
	autoClose time.Duration
	backend   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lifecycle harness in the foreground",
	Long: `Run creates a display connection, binds a window and a clipboard
service to it, and drives the whole tree through an orderly shutdown when
the auto-close timer elapses or a signal arrives.

The clipboard worker keeps referencing the display for its entire life; the
lifetime registry guarantees the display outlives it.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runOpts.autoClose, "auto-close", 0,
		"Close automatically after this duration (0 = run until interrupted)")
	runCmd.Flags().StringVar(&runOpts.backend, "backend", "",
		"Force display backend: wayland, x11 or headless (default: auto-detect)")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runOpts.autoClose > 0 {
		cfg.Behavior.AutoClose = config.Duration(runOpts.autoClose)
	}
	if runOpts.backend != "" {
		cfg.Display.Backend = runOpts.backend
	}

	ctrl := app.New(cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		ctrl.RequestClose()
	}()

	return ctrl.Run(context.Background())
}
