// Package verify implements the archive verification pipeline: container
// integrity check, manifest comparison, byte-exact content verification and
// best-effort metadata comparison. Its result is the only authorization the
// deleter accepts, so every stage is all-or-nothing: the first mismatch
// terminates verification for that archive.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/reap/pkg/reap/archive"
	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/manifest"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

// Sentinel errors for the verification stages.
var (
	// ErrListMismatch indicates the archive and extraction manifests are
	// not set-identical.
	ErrListMismatch = errors.New("manifest mismatch")

	// ErrContentMismatch indicates at least one entry differs in content
	// hash or link target.
	ErrContentMismatch = errors.New("content mismatch")

	// ErrMetadataMismatch indicates a mode or mtime difference under
	// strict metadata policy.
	ErrMetadataMismatch = errors.New("metadata mismatch")

	// ErrZeroVerified indicates the pipeline touched no entries. A pass
	// that verifies nothing is never a pass.
	ErrZeroVerified = errors.New("zero files verified")
)

// Options configures a pipeline run.
type Options struct {
	// Dest is the extraction destination. Empty derives the conventional
	// sibling directory from the archive name.
	Dest string

	// ExtractIfMissing extracts the archive when Dest does not exist.
	// When false a missing destination is an I/O error.
	ExtractIfMissing bool

	// StrictMetadata turns metadata differences into hard failures.
	StrictMetadata bool

	// PermissionWeak declares whether the destination can store POSIX
	// permission bits: "auto" probes, "true"/"false" override.
	PermissionWeak string

	// NormalizePerms rewrites extracted permissions to 0755/0644 after
	// the verdict is fixed.
	NormalizePerms bool

	// MismatchDetail caps the differing paths included in failure detail.
	MismatchDetail int
}

// Run executes the full pipeline for one archive and returns its immutable
// result. The archive itself is treated as read-only throughout.
func Run(ctx context.Context, archivePath string, opts Options) *types.VerificationResult {
	log := logging.Get("verify")
	start := time.Now()

	result := func(status types.Status, verified int, detail string) *types.VerificationResult {
		return &types.VerificationResult{
			ArchivePath:       archivePath,
			Status:            status,
			VerifiedFileCount: verified,
			Elapsed:           time.Since(start),
			Detail:            detail,
		}
	}

	if opts.MismatchDetail <= 0 {
		opts.MismatchDetail = 10
	}

	r, err := archive.Open(archivePath)
	if err != nil {
		if errors.Is(err, archive.ErrUnsupportedFormat) {
			return result(types.StatusUnsupportedFormat, 0, err.Error())
		}
		return result(types.StatusIoError, 0, err.Error())
	}

	log.Debug("integrity self-check", "archive", archivePath)
	if err := r.CheckIntegrity(); err != nil {
		log.Error("integrity self-check failed", "archive", archivePath, "error", err)
		return result(types.StatusIntegrityFailed, 0, err.Error())
	}

	dest := opts.Dest
	if dest == "" {
		dest = archive.DefaultDestination(archivePath)
	}

	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if !opts.ExtractIfMissing {
			return result(types.StatusIoError, 0, fmt.Sprintf("destination missing: %s", dest))
		}
		log.Info("extracting", "archive", archivePath, "dest", dest)
		if err := r.Extract(ctx, dest); err != nil {
			if errors.Is(err, archive.ErrIntegrity) {
				return result(types.StatusIntegrityFailed, 0, err.Error())
			}
			return result(types.StatusIoError, 0, err.Error())
		}
	} else if err != nil {
		return result(types.StatusIoError, 0, err.Error())
	}

	archEntries, err := r.Entries()
	if err != nil {
		return result(types.StatusIoError, 0, err.Error())
	}
	archManifest := manifest.New(archEntries)

	treeManifest, err := manifest.FromTree(dest)
	if err != nil {
		return result(types.StatusIoError, 0, err.Error())
	}

	if diff := manifest.Compare(archManifest, treeManifest); !diff.Equal() {
		detail := diff.Detail(opts.MismatchDetail)
		log.Error("manifest mismatch", "archive", archivePath, "detail", detail)
		return result(types.StatusListMismatch, 0, detail)
	}

	verified, err := verifyContent(ctx, r, dest)
	if err != nil {
		if errors.Is(err, ErrContentMismatch) {
			log.Error("content mismatch", "archive", archivePath, "error", err)
			return result(types.StatusContentMismatch, verified, err.Error())
		}
		return result(types.StatusIoError, verified, err.Error())
	}

	if verified == 0 {
		// Matching empty manifests or a path-prefix mismatch would
		// otherwise produce a false pass.
		log.Error("verification touched no entries", "archive", archivePath)
		return result(types.StatusZeroVerified, 0, ErrZeroVerified.Error())
	}

	warnings, err := compareMetadata(r, dest, metadataPolicy(dest, opts))
	if err != nil {
		if errors.Is(err, ErrMetadataMismatch) {
			log.Error("metadata mismatch", "archive", archivePath, "error", err)
			return result(types.StatusMetadataMismatch, verified, err.Error())
		}
		return result(types.StatusIoError, verified, err.Error())
	}
	for _, w := range warnings {
		log.Warn("metadata difference", "archive", archivePath, "detail", w)
	}

	// The verdict is fixed at this point; normalization can no longer
	// mask a genuine failure.
	if opts.NormalizePerms {
		if err := normalizePermissions(dest); err != nil {
			log.Warn("permission normalization incomplete", "dest", dest, "error", err)
		}
	}

	log.Info("verified", "archive", archivePath, "entries", verified, "elapsed", time.Since(start))
	return result(types.StatusVerified, verified, "")
}

// verifyContent streams the archive once, proving every regular file's
// SHA-256 and every symlink's target identical between the archive and the
// extraction. Returns the number of proven entries.
func verifyContent(ctx context.Context, r *archive.Reader, dest string) (int, error) {
	verified := 0

	err := r.Walk(func(e archive.Entry, payload io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(e.RelPath))

		switch e.Kind {
		case types.KindSymlink:
			got, err := os.Readlink(target)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", e.RelPath, err)
			}
			if got != e.LinkTarget {
				return fmt.Errorf("%w: symlink %s targets %q, archive declares %q",
					ErrContentMismatch, e.RelPath, got, e.LinkTarget)
			}

		case types.KindFile:
			archiveSum, err := hashReader(payload)
			if err != nil {
				return fmt.Errorf("hashing archive entry %s: %w", e.RelPath, err)
			}
			diskSum, err := HashFile(target)
			if err != nil {
				return fmt.Errorf("hashing extracted file %s: %w", e.RelPath, err)
			}
			if archiveSum != diskSum {
				return fmt.Errorf("%w: %s archive=%s disk=%s",
					ErrContentMismatch, e.RelPath, archiveSum, diskSum)
			}
		}

		verified++
		return nil
	})
	if err != nil {
		return verified, err
	}

	return verified, nil
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the SHA-256 hex digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashReader(f)
}
