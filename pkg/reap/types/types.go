// Package types provides the core data types for the reap archive verifier.
// It includes archive entry and verification result structures, the status
// taxonomy shared by all pipeline stages, and utilities for parsing and
// formatting file sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// EntryKind distinguishes the archive entry types that participate in
// verification. Directories are intentionally excluded from comparison sets.
type EntryKind string

const (
	// KindFile is a regular file entry.
	KindFile EntryKind = "file"
	// KindSymlink is a symbolic link entry.
	KindSymlink EntryKind = "symlink"
)

// ArchiveEntry is a single verifiable entry within an archive or an
// extracted tree.
type ArchiveEntry struct {
	// RelPath is the entry path relative to the archive root, with any
	// leading "./" stripped.
	RelPath string `json:"rel_path"`

	// Kind is the entry type (file or symlink).
	Kind EntryKind `json:"kind"`

	// LinkTarget is the symlink target. Empty for regular files.
	LinkTarget string `json:"link_target,omitempty"`
}

// Status is the terminal outcome of a verification pipeline run for one
// archive.
type Status string

// Pipeline outcomes, from success through the failure taxonomy.
const (
	StatusVerified          Status = "verified"
	StatusUnsupportedFormat Status = "unsupported-format"
	StatusIntegrityFailed   Status = "integrity-failed"
	StatusListMismatch      Status = "list-mismatch"
	StatusMetadataMismatch  Status = "metadata-mismatch"
	StatusContentMismatch   Status = "content-mismatch"
	StatusZeroVerified      Status = "zero-verified"
	StatusIoError           Status = "io-error"
	StatusQuarantined       Status = "quarantined"
)

// ExitCode maps a status to the process exit code contract of the
// single-archive invocation.
func (s Status) ExitCode() int {
	switch s {
	case StatusVerified:
		return 0
	case StatusUnsupportedFormat:
		return 2
	case StatusIntegrityFailed:
		return 3
	case StatusListMismatch:
		return 4
	case StatusMetadataMismatch:
		return 6
	case StatusZeroVerified:
		return 10
	default:
		return 1
	}
}

// IsFailure reports whether the status blocks deletion of the archive.
func (s Status) IsFailure() bool {
	return s != StatusVerified
}

// VerificationResult is the immutable outcome of running the verification
// pipeline over one archive. It is created once per archive and is the only
// authorization the deleter accepts.
type VerificationResult struct {
	// ArchivePath is the absolute path of the verified archive.
	ArchivePath string `json:"archive_path"`

	// Status is the terminal pipeline outcome.
	Status Status `json:"status"`

	// VerifiedFileCount is the number of entries whose content or link
	// target was proven identical. Zero is itself a failure.
	VerifiedFileCount int `json:"verified_file_count"`

	// Elapsed is the wall-clock duration of the pipeline run.
	Elapsed time.Duration `json:"elapsed"`

	// Detail carries human-readable failure context, such as the first
	// differing paths of a manifest mismatch.
	Detail string `json:"detail,omitempty"`
}

// BatchRecord is one append-only row of the batch results log.
// Records are never mutated after being written; together they form the
// audit trail consumed by downstream reporting.
type BatchRecord struct {
	Timestamp     time.Time     `json:"timestamp"`
	ArchivePath   string        `json:"archive_path"`
	Status        Status        `json:"status"`
	ExitCode      int           `json:"exit_code"`
	SizeBytes     int64         `json:"size_bytes"`
	VerifiedCount int           `json:"verified_count"`
	Duration      time.Duration `json:"duration"`
}

// DedupCandidate is a planned hard-link action: every duplicate path shares
// size and content hash with the canonical path, and none of them share an
// inode with it.
type DedupCandidate struct {
	Size           int64    `json:"size"`
	ContentHash    string   `json:"content_hash"`
	CanonicalPath  string   `json:"canonical_path"`
	DuplicatePaths []string `json:"duplicate_paths"`
}

// Reclaimable returns the bytes freed if every duplicate is replaced by a
// hard link.
func (c *DedupCandidate) Reclaimable() int64 {
	return c.Size * int64(len(c.DuplicatePaths))
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports plain bytes ("1024"), byte suffixes ("512B"), and K/M/G/T with
// optional B or iB suffixes in either case. Decimal values are truncated to
// the nearest byte.
//
// Returns ErrInvalidSize if the format is not recognized.
// Returns ErrNegativeSize if the value is negative.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
