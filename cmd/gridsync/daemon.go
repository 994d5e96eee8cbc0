package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gridsync/gridsync/internal/daemon"
	"github.com/gridsync/gridsync/internal/dashboard"
)

var daemonWithDashboard bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background mirror daemon",
	Long: `Watch the collection record directories and keep the grid replica in
step with them.

The daemon commits every collection on startup, re-commits a collection
shortly after its record files change (debounced), and re-commits
everything periodically as a safety net.

With --dashboard, a WebSocket dashboard is served alongside the daemon,
broadcasting commit completions and conflicts to connected clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		manifest := loadManifest(cfg)

		logger := log.New(os.Stderr, "[daemon] ", log.LstdFlags)
		if cfg.Daemon.LogFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   cfg.Daemon.LogFile,
				MaxSize:    cfg.Daemon.LogMaxSizeMB,
				MaxBackups: cfg.Daemon.LogMaxBackups,
			}, "[daemon] ", log.LstdFlags)
		}

		coord, cleanup, err := buildCoordinator(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		daemonConfig := daemon.DefaultConfig()
		daemonConfig.Debounce = cfg.Daemon.Debounce
		daemonConfig.FullSyncInterval = cfg.Daemon.FullSyncInterval
		daemonConfig.Logger = logger

		d, err := daemon.New(coord, cfg.DataDir, manifest, daemonConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create daemon: %v\n", err)
			os.Exit(1)
		}

		if daemonWithDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = server.Stop() }()

			handler := dashboard.NewHandler(server, logger)
			coord.SetConflictHandler(handler.OnConflicts)
			d.SetCommitObserver(handler.OnCommit)

			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", cfg.DashboardPort)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Daemon running. Press Ctrl+C to stop...")
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonWithDashboard, "dashboard", false, "serve the WebSocket dashboard alongside the daemon")
}
