package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/batch"
	"github.com/jamesainslie/reap/pkg/reap/config"
	"github.com/jamesainslie/reap/pkg/reap/history"
	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/spaceguard"
	"github.com/jamesainslie/reap/pkg/reap/verify"
)

var batchCmd = &cobra.Command{
	Use:   "batch <root>",
	Short: "Verify and delete every archive under a directory",
	Long: `Batch discovers archives under a root directory, verifies each one under
a bounded worker pool, deletes verified originals, retries failures, and
quarantines archives that fail every retry round.

One CSV record per pipeline attempt is appended to the results log for
downstream reporting. A batch run always completes and reports aggregate
counts; a single corrupt archive never aborts the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntP("workers", "w", 0, "parallel archive workers (0=config default)")
	batchCmd.Flags().String("order", "", "processing order by size: asc or desc")
	batchCmd.Flags().IntP("retries", "r", -1, "retry rounds for failed archives (-1=config default)")
	batchCmd.Flags().StringSlice("include", nil, "archive name patterns to process")
	batchCmd.Flags().StringSlice("exclude", nil, "archive name patterns to skip")
	batchCmd.Flags().String("quarantine-dir", "", "quarantine directory (default: <root>/quarantine)")
	batchCmd.Flags().String("results", "", "results log path")
	batchCmd.Flags().Float64("space-threshold", -1, "pause when free space percent is at or below this")
	batchCmd.Flags().String("mount", "", "mount point the space guard watches (default: root)")
	batchCmd.Flags().Bool("strict-meta", false, "treat metadata differences as failures")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = viper.GetInt("workers")
	}
	order, _ := cmd.Flags().GetString("order")
	if order == "" {
		order = viper.GetString("order")
	}
	retries, _ := cmd.Flags().GetInt("retries")
	if retries < 0 {
		retries = viper.GetInt("retries")
	}

	include, _ := cmd.Flags().GetStringSlice("include")
	if len(include) == 0 {
		include = viper.GetStringSlice("include")
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	if len(exclude) == 0 {
		exclude = viper.GetStringSlice("exclude")
	}

	quarantineDir, _ := cmd.Flags().GetString("quarantine-dir")
	if quarantineDir == "" {
		quarantineDir = viper.GetString("quarantine_dir")
	}
	if quarantineDir == "" {
		quarantineDir = filepath.Join(root, "quarantine")
	}

	resultsPath, _ := cmd.Flags().GetString("results")
	if resultsPath == "" {
		resultsPath = viper.GetString("results_log")
	}

	threshold, _ := cmd.Flags().GetFloat64("space-threshold")
	if threshold < 0 {
		threshold = viper.GetFloat64("space_guard.threshold_percent")
	}
	mount, _ := cmd.Flags().GetString("mount")
	if mount == "" {
		mount = viper.GetString("space_guard.mount")
	}
	if mount == "" {
		mount = root
	}

	strictMeta, _ := cmd.Flags().GetBool("strict-meta")

	recordLog, err := batch.OpenRecordLog(resultsPath)
	if err != nil {
		return err
	}
	defer recordLog.Close()

	var guard *spaceguard.Guard
	if threshold > 0 {
		poll := time.Duration(viper.GetInt("space_guard.poll_interval_seconds")) * time.Second
		guard = spaceguard.New(mount, threshold, poll)
	}

	orch, err := batch.New(batch.Options{
		Root:          root,
		Workers:       workers,
		Order:         order,
		Retries:       retries,
		Include:       include,
		Exclude:       exclude,
		QuarantineDir: quarantineDir,
		Guard:         guard,
		Verify: verify.Options{
			StrictMetadata: strictMeta || viper.GetBool("metadata.strict"),
			PermissionWeak: viper.GetString("metadata.permission_weak"),
			NormalizePerms: viper.GetBool("metadata.normalize"),
		},
		Log: recordLog,
	})
	if err != nil {
		return err
	}

	run := history.NewRun(root)
	printInfo("Verifying archives under %s (%d workers, %s order)...", root, workers, order)

	summary, runErr := orch.Run(ctx)
	if summary != nil {
		printInfo("Batch complete: %d verified, %d failed, %d quarantined, %d skipped of %d archives in %s",
			summary.Verified, summary.Failed, summary.Quarantined, summary.Skipped,
			summary.Total, summary.Elapsed.Round(timeRound))
		printInfo("Results log: %s", recordLog.Path())

		recordHistory(run, summary)
	}

	if runErr != nil {
		if summary == nil {
			return runErr
		}
		return &exitError{code: 130, msg: "interrupted"}
	}
	if summary != nil && summary.Failed > 0 {
		return &exitError{code: 1, msg: fmt.Sprintf("%d archives failed verification", summary.Failed)}
	}

	return nil
}

// recordHistory persists the run summary; history is operator convenience
// and its failures never affect the batch outcome.
func recordHistory(run *history.Run, summary *batch.Summary) {
	if !viper.GetBool("history.enabled") {
		return
	}

	log := logging.Get("batch")
	if err := config.EnsureDataDir(); err != nil {
		log.Warn("history store unavailable", "error", err)
		return
	}

	store, err := history.Open(viper.GetString("history.path"))
	if err != nil {
		log.Warn("history store unavailable", "error", err)
		return
	}
	defer store.Close()

	run.Finished = time.Now().UTC()
	run.Total = summary.Total
	run.Verified = summary.Verified
	run.Failed = summary.Failed
	run.Quarantined = summary.Quarantined
	run.Skipped = summary.Skipped

	if err := store.Record(run); err != nil {
		log.Warn("recording run history", "error", err)
	}
}
