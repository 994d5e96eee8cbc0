package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/internal/loadtest"
	"github.com/gridsync/gridsync/internal/ui"
)

var (
	loadtestWorkers    int
	loadtestCommits    int
	loadtestRecords    int
	loadtestContention float64
	loadtestSharedKey  bool
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Run a contention load test against an in-memory replica",
	Long: `Drive concurrent commits through the sync engine against an in-memory
fake replica while an injected external writer keeps mutating the
range. Reports commit throughput, retry behavior under contention, and
latency percentiles. No real grid service is contacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s Running load test: %d workers x %d commits, %d records, %.0f%% contention\n",
			ui.RenderAccent("→"), loadtestWorkers, loadtestCommits, loadtestRecords, loadtestContention*100)

		result, err := loadtest.Run(loadtest.Options{
			Workers:          loadtestWorkers,
			CommitsPerWorker: loadtestCommits,
			Records:          loadtestRecords,
			ContentionPct:    loadtestContention,
			SharedKey:        loadtestSharedKey,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: load test failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Load test complete in %v\n", ui.RenderPass("✓"), result.WallClock)
		fmt.Printf("   Commits:    %d (failed: %d, retry-exhausted: %d)\n", result.Commits, result.Failed, result.Exhausted)
		fmt.Printf("   Conflicts:  %d\n", result.Conflicts)
		fmt.Printf("   Attempts:   %d total\n", result.Attempts)
		fmt.Printf("   Latency:    min=%v p50=%v p95=%v p99=%v max=%v mean=%v\n",
			result.Latency.Min, result.Latency.P50, result.Latency.P95,
			result.Latency.P99, result.Latency.Max, result.Latency.Mean)
	},
}

func init() {
	loadtestCmd.Flags().IntVar(&loadtestWorkers, "workers", 10, "concurrent committers")
	loadtestCmd.Flags().IntVar(&loadtestCommits, "commits", 20, "commits per worker")
	loadtestCmd.Flags().IntVar(&loadtestRecords, "records", 50, "records per snapshot")
	loadtestCmd.Flags().Float64Var(&loadtestContention, "contention", 0.2, "probability of an interleaving external write")
	loadtestCmd.Flags().BoolVar(&loadtestSharedKey, "shared-key", true, "commit all workers against one collection key")
}
