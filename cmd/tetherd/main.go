// Package main is the entry point for the tetherd daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SuchAFuriousDeath/tether/internal/app"
	"github.com/SuchAFuriousDeath/tether/internal/config"
	"github.com/SuchAFuriousDeath/tether/internal/session"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/tether/tether.toml)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		println("tetherd version", version)
		os.Exit(0)
	}

	// Set up structured logging with a reloadable level
	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	levelVar.Set(cfg.LogLevel())

	logger.Info("starting tetherd", "version", version)

	// Hot-reload the log level on config changes; lifecycle settings apply
	// at the next start.
	watchPath := *configPath
	if watchPath == "" {
		watchPath = config.ConfigPath()
	}
	watcher, err := config.NewFileWatcher(watchPath, func(next *config.Config) {
		levelVar.Set(next.LogLevel())
		logger.Info("config reloaded", "log_level", next.Logging.Level)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		if err := watcher.Start(); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		}
		defer watcher.Stop()
	}

	ctrl := app.New(cfg, logger)

	// Begin teardown before logind pulls the session away.
	listener := session.NewListener(logger)
	listener.SetShutdownHandler(ctrl.RequestClose)
	if err := listener.Start(); err != nil {
		logger.Warn("session shutdown listener unavailable", "error", err)
	} else {
		defer listener.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(context.Background()) }()

	select {
	case err := <-errCh:
		exit(logger, err)
		return
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		ctrl.RequestClose()
	}

	// Teardown is bounded: a worker that never joins must not wedge the
	// whole daemon.
	timeout := cfg.Behavior.ShutdownTimeout.Duration()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		exit(logger, err)
	case <-timer.C:
		logger.Error("teardown did not complete in time", "timeout", timeout)
		os.Exit(1)
	case sig := <-sigCh:
		logger.Warn("second signal, exiting immediately", "signal", sig)
		os.Exit(1)
	}
}

func exit(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("tetherd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("tetherd stopped")
}
