package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/internal/cache"
	"github.com/gridsync/gridsync/internal/record"
	enginesync "github.com/gridsync/gridsync/internal/sync"
	"github.com/gridsync/gridsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [collection...]",
	GroupID: "sync",
	Short:   "Commit collections to the grid replica",
	Long: `Commit one or more collections to the grid replica.

Without arguments, every collection in the manifest is committed. Each
commit:
  1. Reads the collection's record directory
  2. Reads the replica range and merges both snapshots
  3. Re-reads and verifies the range signature (bounded retry)
  4. Writes the merged result in one range write, padded if the
     collection shrank

Conflicts with concurrent writers are printed as warnings; they do not
fail the commit.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		manifest := loadManifest(cfg)

		coord, cleanup, err := buildCoordinator(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		coord.SetConflictHandler(func(key string, conflicts []enginesync.Conflict) {
			for _, c := range conflicts {
				fmt.Printf("%s Conflict in %s: record %s local v%d superseded by remote v%d\n",
					ui.RenderWarn("!"), key, c.Local.ID, c.Local.Version, c.Remote.Version)
			}
		})

		keys := args
		if len(keys) == 0 {
			keys = manifest.Keys()
		}

		failed := 0
		for _, key := range keys {
			spec, ok := manifest.Collections[key]
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: unknown collection %q\n", key)
				failed++
				continue
			}

			cdc, err := spec.Codec()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building codec for %s: %v\n", key, err)
				failed++
				continue
			}

			dir := filepath.Join(cfg.DataDir, spec.Dir)
			records, err := record.ReadAllRecordFiles(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading records for %s: %v\n", key, err)
				failed++
				continue
			}

			fmt.Printf("%s Committing %s (%d records)...\n", ui.RenderAccent("→"), key, len(records))

			result, err := coord.Commit(context.Background(), enginesync.CommitRequest{
				Key:        key,
				Local:      records,
				Codec:      cdc,
				ReadRange:  spec.ReadRange,
				ClearRange: spec.ClearRange,
				WriteRange: spec.WriteRange,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s Commit of %s failed: %v\n", ui.RenderFail("✗"), key, err)
				failed++
				continue
			}

			fmt.Printf("%s %s: %d rows, %d conflicts, %d attempts, %v\n",
				ui.RenderPass("✓"), key, result.Records, result.Conflicts,
				result.Attempts, result.Duration.Round(time.Millisecond))
			if result.PaddedRows > 0 {
				fmt.Printf("   %s\n", ui.RenderDim(fmt.Sprintf("padded %d blank rows over stale data", result.PaddedRows)))
			}
		}

		if failed > 0 {
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show configured collections and cache state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		manifest := loadManifest(cfg)

		fmt.Printf("Grid service:  %s\n", cfg.Grid.BaseURL)
		fmt.Printf("Data dir:      %s\n", cfg.DataDir)
		fmt.Printf("Merge policy:  %s\n", cfg.Sync.Policy)
		fmt.Printf("Collections:   %d\n", len(manifest.Collections))

		for _, key := range manifest.Keys() {
			spec := manifest.Collections[key]
			dir := filepath.Join(cfg.DataDir, spec.Dir)
			records, err := record.ReadAllRecordFiles(dir)
			if err != nil {
				fmt.Printf("  %s %s: %v\n", ui.RenderFail("✗"), key, err)
				continue
			}
			fmt.Printf("  %s %s: %d records, range %s\n",
				ui.RenderPass("•"), key, len(records), spec.ReadRange)
		}

		if cfg.CachePath == "" {
			fmt.Printf("Cache:         %s\n", ui.RenderDim("disabled"))
			return
		}
		snapshotCache, err := cache.Open(cfg.CachePath)
		if err != nil {
			fmt.Printf("Cache:         %s (%v)\n", ui.RenderFail("unavailable"), err)
			return
		}
		defer snapshotCache.Close()

		count, oldest, err := snapshotCache.Stats()
		if err != nil {
			fmt.Printf("Cache:         %s (%v)\n", ui.RenderFail("unavailable"), err)
			return
		}
		fmt.Printf("Cache:         %d cached snapshots", count)
		if !oldest.IsZero() {
			fmt.Printf(" (oldest %s)", oldest.Format(time.RFC3339))
		}
		fmt.Println()
	},
}
