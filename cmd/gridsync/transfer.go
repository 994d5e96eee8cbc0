package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/internal/export"
	"github.com/gridsync/gridsync/internal/ui"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:     "import <collection> <dump.jsonl>",
	GroupID: "data",
	Short:   "Seed a collection's record directory from a JSONL dump",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		manifest := loadManifest(cfg)

		key := args[0]
		spec, ok := manifest.Collections[key]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown collection %q\n", key)
			os.Exit(1)
		}

		result, err := export.Import(export.ImportOptions{
			FromJSONL: args[1],
			ToDir:     filepath.Join(cfg.DataDir, spec.Dir),
			DryRun:    importDryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: import failed: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if importDryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d records into %s\n",
			ui.RenderPass("✓"), verb, result.FilesWritten, result.RecordsRead, key)
		for _, msg := range result.Errors {
			fmt.Printf("  %s %s\n", ui.RenderWarn("!"), msg)
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
	},
}

var exportCmd = &cobra.Command{
	Use:     "export <collection> <dump.jsonl>",
	GroupID: "data",
	Short:   "Dump a collection's record directory to a JSONL file",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		manifest := loadManifest(cfg)

		key := args[0]
		spec, ok := manifest.Collections[key]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown collection %q\n", key)
			os.Exit(1)
		}

		count, err := export.Export(filepath.Join(cfg.DataDir, spec.Dir), args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: export failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Exported %d records from %s to %s\n",
			ui.RenderPass("✓"), count, key, args[1])
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "preview without writing files")
}
