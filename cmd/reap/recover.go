package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/reap/pkg/reap/archive"
	"github.com/jamesainslie/reap/pkg/reap/deleter"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <root>",
	Short: "Clean up after an interrupted run",
	Long: `Recover finishes work a crashed or interrupted run left behind under the
given directory: pending-delete archives (already verified, rename done,
removal interrupted) are removed, and partial extraction directories are
deleted so the next run re-extracts from scratch.

Batch runs perform this recovery automatically at startup; the command
exists for running it by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	deleted, err := deleter.Recover(root)
	if err != nil {
		return err
	}
	for _, path := range deleted {
		printInfo("Finished interrupted delete: %s", path)
	}

	partials, err := archive.CleanPartials(root)
	if err != nil {
		return err
	}
	for _, path := range partials {
		printInfo("Removed partial extraction: %s", path)
	}

	if len(deleted) == 0 && len(partials) == 0 {
		printInfo("Nothing to recover under %s", root)
	} else {
		printInfo("Recovered %d pending deletes and %d partial extractions",
			len(deleted), len(partials))
	}

	return nil
}
