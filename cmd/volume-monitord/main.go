// Package main is the entry point for the volume-monitord daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Pa3u3u/volume-monitor/internal/audio"
	"github.com/Pa3u3u/volume-monitor/internal/config"
	"github.com/Pa3u3u/volume-monitor/internal/daemon"
	"github.com/Pa3u3u/volume-monitor/internal/engine"
	"github.com/Pa3u3u/volume-monitor/internal/notify"
	"github.com/Pa3u3u/volume-monitor/internal/store"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var globalOpts struct {
	configPath string
	logLevel   string
	pactl      string
}

// rootCmd runs the daemon; there are no subcommands.
var rootCmd = &cobra.Command{
	Use:   "volume-monitord",
	Short: "Audio change notification daemon for Linux desktops",
	Long: `volume-monitord watches the PulseAudio server for state changes and
emits desktop notifications for meaningful transitions: mute toggles,
volume changes, and card additions or removals. Repeated updates for
the same device replace each other instead of stacking.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&globalOpts.configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&globalOpts.logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&globalOpts.pactl, "pactl", "", "override configured pactl command")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(globalOpts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if globalOpts.logLevel != "" {
		cfg.Daemon.LogLevel = globalOpts.logLevel
	}
	if globalOpts.pactl != "" {
		cfg.Audio.PactlCommand = globalOpts.pactl
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	// The level variable outlives this function's view of cfg so the
	// config watcher can adjust it at runtime.
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	logger.Info("starting volume-monitord", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Both connections must be up before subscribing; fail fast
	// otherwise. Both are released unconditionally on exit.
	transport, err := notify.NewDBusTransport(logger)
	if err != nil {
		return fmt.Errorf("failed to connect to notification service: %w", err)
	}
	defer func() { _ = transport.Close() }()

	client, err := audio.NewPactlClient(cfg.Audio.PactlCommand, logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	state := store.NewState()
	gateway := notify.NewGateway(transport, state, cfg.Notify.AppName, logger)
	eng := engine.New(client, gateway, state, logger)
	loop := daemon.NewLoop(client, eng, state, logger)

	configPath := globalOpts.configPath
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	watcher, err := daemon.NewConfigWatcher(configPath, logger)
	if err != nil {
		logger.Warn("config hot-reload unavailable", "error", err)
	} else {
		watcher.SetReloadCallback(func(newCfg *config.Config) {
			newLevel, err := newCfg.Level()
			if err != nil {
				return
			}
			if newLevel != levelVar.Level() {
				levelVar.Set(newLevel)
				logger.Info("log level updated", "level", newCfg.Daemon.LogLevel)
			}
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := loop.Prime(ctx); err != nil {
		return fmt.Errorf("failed to read initial sink state: %w", err)
	}
	if err := loop.Run(ctx); err != nil {
		return err
	}

	logger.Info("volume-monitord stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
