package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/deleter"
	"github.com/jamesainslie/reap/pkg/reap/types"
	"github.com/jamesainslie/reap/pkg/reap/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Verify one archive and delete it on success",
	Long: `Verify proves that an archive's extracted contents are byte-identical to
the archive's declared contents, then deletes the original archive.

The archive is extracted beside itself (unless --dest is given or the
destination already exists), its manifest is compared against the extracted
tree, every file's SHA-256 and every symlink target is checked, and metadata
is compared best-effort. The extracted tree is always retained.

Exit codes:
  0   verified and deleted
  2   unsupported container format
  3   container integrity self-check failed
  4   manifest mismatch
  6   metadata mismatch (strict mode)
  10  zero files verified
  1   I/O error or content mismatch`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("dest", "", "extraction destination (default: archive path without extension)")
	verifyCmd.Flags().Bool("no-extract", false, "fail if the destination does not already exist")
	verifyCmd.Flags().Bool("keep", false, "do not delete the archive after verification")
	verifyCmd.Flags().Bool("strict-meta", false, "treat metadata differences as failures")
	verifyCmd.Flags().String("permission-weak", "", "destination permission capability: auto, true, false")
	verifyCmd.Flags().Bool("normalize-perms", false, "normalize extracted permissions to 0755/0644 after comparison")

	_ = viper.BindPFlag("metadata.strict", verifyCmd.Flags().Lookup("strict-meta"))
	_ = viper.BindPFlag("metadata.normalize", verifyCmd.Flags().Lookup("normalize-perms"))

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	archivePath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dest, _ := cmd.Flags().GetString("dest")
	noExtract, _ := cmd.Flags().GetBool("no-extract")
	keep, _ := cmd.Flags().GetBool("keep")

	permWeak, _ := cmd.Flags().GetString("permission-weak")
	if permWeak == "" {
		permWeak = viper.GetString("metadata.permission_weak")
	}

	result := verify.Run(ctx, archivePath, verify.Options{
		Dest:             dest,
		ExtractIfMissing: !noExtract,
		StrictMetadata:   viper.GetBool("metadata.strict"),
		PermissionWeak:   permWeak,
		NormalizePerms:   viper.GetBool("metadata.normalize"),
	})

	if result.Status != types.StatusVerified {
		return &exitError{
			code: result.Status.ExitCode(),
			msg:  fmt.Sprintf("%s: %s: %s", archivePath, result.Status, result.Detail),
		}
	}

	printInfo("Verified %s (%d entries in %s)", archivePath, result.VerifiedFileCount, result.Elapsed.Round(timeRound))

	if keep {
		printInfo("Archive kept (--keep)")
		return nil
	}

	if err := deleter.Delete(result); err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	printInfo("Deleted %s", archivePath)

	return nil
}
