package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View batch run history",
	Long: `View the history of batch runs.

Each batch run records its root, timing, and aggregate counts. The results
log holds the per-archive detail; history is the run-level summary.`,
	RunE: runHistoryList,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

// runHistoryList lists recent batch runs, newest first.
func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := history.Open(viper.GetString("history.path"))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(runs) == 0 {
		printInfo("No batch runs recorded.")
		printInfo("Run 'reap batch <root>' to verify archives.")
		return nil
	}

	fmt.Printf("\n%-20s  %-30s  %8s  %8s  %6s  %11s  %7s\n",
		"STARTED", "ROOT", "TOTAL", "VERIFIED", "FAILED", "QUARANTINED", "SKIPPED")
	fmt.Println(strings.Repeat("-", 100))

	for _, run := range runs {
		fmt.Printf("%-20s  %-30s  %8d  %8d  %6d  %11d  %7d\n",
			run.Started.Local().Format("2006-01-02 15:04:05"),
			truncateString(run.Root, 30),
			run.Total, run.Verified, run.Failed, run.Quarantined, run.Skipped)
	}

	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("\nShowing %d runs. Use --limit to see more.\n", len(runs))

	return nil
}

// truncateString shortens s to max characters with an ellipsis.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
