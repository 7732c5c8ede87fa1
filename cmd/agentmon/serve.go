package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenticscrum/agentmon"
	"github.com/agenticscrum/agentmon/internal/config"
	"github.com/agenticscrum/agentmon/internal/logger"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	return cmd
}

func runServe(cfg config.Config) error {
	log := logger.Setup(cfg.Log)
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create data dirs: %w", err)
	}

	ctx := context.Background()
	mon, err := agentmon.Open(ctx, cfg.Store.DSN, agentmon.Options{
		LogsDir:     cfg.Monitor.LogsDir,
		GracePeriod: cfg.Monitor.GracePeriod,
		Logger:      log,
		ArchiveDSN:  cfg.Archive.DSN,
	})
	if err != nil {
		return fmt.Errorf("open monitor: %w", err)
	}
	defer func() { _ = mon.Close() }()

	if cfg.Server.Metrics {
		if err := agentmon.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	srv := agentmon.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, mon, cfg.Server.Metrics)
	log.Info("agentmon daemon started",
		"listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"store", cfg.Store.DSN, "logs_dir", cfg.Monitor.LogsDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
