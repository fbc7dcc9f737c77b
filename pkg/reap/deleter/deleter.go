// Package deleter performs the two-phase safe deletion of verified
// archives: rename to a pending-delete sibling, then remove. A crash
// between the phases leaves a recognizable artifact that the recovery pass
// finishes, so a half-deleted archive can never silently corrupt
// accounting. The extracted tree is never touched; it is the durable result
// of the run.
package deleter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

// PendingSuffix marks phase one of a two-phase delete. The rename stays in
// the archive's own directory so it is atomic on the same filesystem.
const PendingSuffix = ".pending-delete"

// ErrNotVerified is returned when deletion is requested without a Verified
// result. The verification result is the only deletion authorization.
var ErrNotVerified = errors.New("deletion requires a verified result")

// Delete removes the archive named by a Verified result using the
// two-phase protocol. Any other status is rejected.
func Delete(result *types.VerificationResult) error {
	if result == nil || result.Status != types.StatusVerified {
		return ErrNotVerified
	}

	log := logging.Get("deleter")
	pending := result.ArchivePath + PendingSuffix

	// Phase 1: rename within the same directory.
	if err := os.Rename(result.ArchivePath, pending); err != nil {
		return fmt.Errorf("renaming %s to pending-delete: %w", result.ArchivePath, err)
	}
	log.Debug("archive renamed for deletion", "pending", pending)

	// Phase 2: remove the renamed file.
	if err := os.Remove(pending); err != nil {
		// The pending artifact survives; surface the path so the
		// half-renamed state is observable, not swallowed.
		return fmt.Errorf("removing pending-delete artifact %s: %w", pending, err)
	}

	log.Info("archive deleted", "archive", result.ArchivePath)
	return nil
}

// Recover finishes interrupted deletions: every pending-delete artifact
// directly under root had already passed verification when it was renamed,
// so removal is safe to complete. Returns the artifacts it removed.
func Recover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	log := logging.Get("deleter")
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PendingSuffix) {
			continue
		}

		p := filepath.Join(root, entry.Name())
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("removing pending-delete artifact %s: %w", p, err)
		}
		log.Info("finished interrupted delete", "artifact", p)
		removed = append(removed, p)
	}

	return removed, nil
}
