package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/dedup"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <root>",
	Short: "Hard-link identical large files under a directory",
	Long: `Dedup scans a directory tree for large files, groups them by size and
content hash, and replaces duplicates with hard links to one canonical
copy. Files already sharing an inode are left alone.

Without --execute the command only reports the plan: every group of
identical files and the total space a link pass would reclaim.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedup,
}

func init() {
	dedupCmd.Flags().String("min-size", "", "minimum file size to consider (e.g. 1GiB)")
	dedupCmd.Flags().String("trusted-root", "", "prefer canonical copies under this directory")
	dedupCmd.Flags().Bool("execute", false, "apply the plan instead of reporting it")

	rootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	minSizeStr, _ := cmd.Flags().GetString("min-size")
	if minSizeStr == "" {
		minSizeStr = viper.GetString("dedup.min_size")
	}
	minSize, err := types.ParseSize(minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid minimum size %q: %w", minSizeStr, err)
	}

	trustedRoot, _ := cmd.Flags().GetString("trusted-root")
	if trustedRoot == "" {
		trustedRoot = viper.GetString("dedup.trusted_root")
	}
	if trustedRoot != "" {
		if trustedRoot, err = filepath.Abs(trustedRoot); err != nil {
			return fmt.Errorf("failed to resolve trusted root: %w", err)
		}
	}

	execute, _ := cmd.Flags().GetBool("execute")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := dedup.Options{
		Root:        root,
		MinSize:     minSize,
		TrustedRoot: trustedRoot,
		Execute:     execute,
	}

	printInfo("Scanning %s for duplicate files >= %s...", root, types.FormatSize(minSize))

	plan, err := dedup.BuildPlan(ctx, opts)
	if err != nil {
		return err
	}

	printInfo("Scanned %d files, hashed %d, found %d duplicate groups",
		plan.ScannedFiles, plan.HashedFiles, len(plan.Candidates))

	if len(plan.Candidates) == 0 {
		printInfo("Nothing to deduplicate")
		return nil
	}

	if !getQuiet() {
		for _, c := range plan.Candidates {
			fmt.Printf("  %s (%s, %d duplicates)\n",
				c.CanonicalPath, types.FormatSize(c.Size), len(c.DuplicatePaths))
			for _, d := range c.DuplicatePaths {
				fmt.Printf("    <- %s\n", d)
			}
		}
	}

	if !execute {
		printInfo("Reclaimable: %s (dry run, pass --execute to link)",
			types.FormatSize(plan.ReclaimableBytes))
		return nil
	}

	result, err := dedup.Execute(ctx, plan, opts)
	if err != nil {
		return err
	}

	printInfo("Linked %d files, reclaimed %s (free: %s -> %s)",
		result.LinkedFiles,
		types.FormatSize(result.ReclaimedBytes),
		types.FormatSize(int64(result.FreeBefore)),
		types.FormatSize(int64(result.FreeAfter)))

	return nil
}
