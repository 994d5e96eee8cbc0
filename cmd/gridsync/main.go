// Command gridsync mirrors per-record JSON collections into a remote
// tabular grid replica used for reporting and sharing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/internal/cache"
	"github.com/gridsync/gridsync/internal/codec"
	"github.com/gridsync/gridsync/internal/config"
	"github.com/gridsync/gridsync/internal/grid"
	enginesync "github.com/gridsync/gridsync/internal/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gridsync",
	Short: "Mirror record collections to a tabular grid replica",
	Long: `gridsync keeps a remote tabular replica (a grid service with only
range read/clear/overwrite operations) in step with local per-record
JSON collections exported by the authoritative store.

The replica has no transactions and no delete, so gridsync provides
optimistic concurrency control with signature re-checks, version-based
conflict detection, bounded retry, and blank-row padding when a
collection shrinks.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: gridsync.yaml, $HOME/.config/gridsync/)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Synchronization Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(loadtestCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration or exits with an error message.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// loadManifest loads the collection manifest or exits.
func loadManifest(cfg *config.Config) *codec.Manifest {
	manifest, err := codec.LoadManifest(cfg.Manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	return manifest
}

// buildCoordinator wires the replica client, the optional snapshot cache
// and the engine configuration into a Coordinator. The returned cleanup
// must be called before exit.
func buildCoordinator(cfg *config.Config) (*enginesync.Coordinator, func(), error) {
	client, err := grid.NewHTTPClient(grid.HTTPConfig{
		BaseURL: cfg.Grid.BaseURL,
		Token:   grid.StaticToken(cfg.Grid.Token),
		Timeout: cfg.Grid.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create grid client: %w", err)
	}

	var invalidator enginesync.Invalidator
	cleanup := func() {}
	if cfg.CachePath != "" {
		snapshotCache, err := cache.Open(cfg.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open snapshot cache: %w", err)
		}
		invalidator = snapshotCache
		cleanup = func() { _ = snapshotCache.Close() }
	}

	engineConfig := enginesync.DefaultConfig()
	engineConfig.MaxRetries = cfg.Sync.MaxRetries
	engineConfig.PaddingMargin = cfg.Sync.PaddingMargin
	if cfg.Sync.Policy == "identity" {
		engineConfig.Policy = enginesync.PolicyIdentity
	}

	return enginesync.New(client, invalidator, engineConfig), cleanup, nil
}
