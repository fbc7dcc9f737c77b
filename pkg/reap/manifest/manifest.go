// Package manifest builds and compares normalized entry manifests for
// archives and extracted trees. Two manifests sharing the canonical sort
// order are structurally comparable by simple set equality, which replaces
// the text-based list diffing of older tooling and is immune to special
// characters in file names.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/reap/pkg/reap/types"
)

// Manifest is an ordered, deduplicated set of archive entries under the
// canonical sort order: lexicographic on relative path, case-sensitive and
// byte-exact. No locale-aware collation is applied.
type Manifest struct {
	Entries []types.ArchiveEntry
}

// New builds a Manifest from raw entries: duplicates (by relative path)
// collapse to the first occurrence and the result is canonically sorted.
func New(entries []types.ArchiveEntry) *Manifest {
	seen := make(map[string]struct{}, len(entries))
	out := make([]types.ArchiveEntry, 0, len(entries))

	for _, e := range entries {
		if _, dup := seen[e.RelPath]; dup {
			continue
		}
		seen[e.RelPath] = struct{}{}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RelPath < out[j].RelPath
	})

	return &Manifest{Entries: out}
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// FromTree walks an extracted tree and builds its manifest. Only regular
// files and symlinks participate; directories are excluded, matching the
// archive-side manifest.
func FromTree(root string) (*Manifest, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	var (
		mu      sync.Mutex
		entries []types.ArchiveEntry
		conf    = fastwalk.Config{Follow: false}
	)

	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		var entry types.ArchiveEntry
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", rel, err)
			}
			entry = types.ArchiveEntry{RelPath: rel, Kind: types.KindSymlink, LinkTarget: target}
		case d.Type().IsRegular():
			entry = types.ArchiveEntry{RelPath: rel, Kind: types.KindFile}
		default:
			// Sockets, pipes and devices never originate from the
			// archive stream.
			return nil
		}

		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	return New(entries), nil
}

// Diff is the outcome of comparing an archive manifest against an
// extraction manifest.
type Diff struct {
	// MissingOnDisk are entries present in the archive but absent from
	// the extraction.
	MissingOnDisk []string

	// ExtraOnDisk are entries present in the extraction but absent from
	// the archive.
	ExtraOnDisk []string

	// KindMismatches are paths present on both sides with differing
	// entry kinds.
	KindMismatches []string
}

// Equal reports whether the two manifests were set-identical.
func (d *Diff) Equal() bool {
	return len(d.MissingOnDisk) == 0 && len(d.ExtraOnDisk) == 0 && len(d.KindMismatches) == 0
}

// Detail renders up to max differing paths per category for diagnostics.
func (d *Diff) Detail(max int) string {
	var parts []string
	parts = appendDetail(parts, "missing on disk", d.MissingOnDisk, max)
	parts = appendDetail(parts, "extra on disk", d.ExtraOnDisk, max)
	parts = appendDetail(parts, "kind mismatch", d.KindMismatches, max)
	return strings.Join(parts, "; ")
}

func appendDetail(parts []string, label string, paths []string, max int) []string {
	if len(paths) == 0 {
		return parts
	}
	shown := paths
	suffix := ""
	if max > 0 && len(paths) > max {
		shown = paths[:max]
		suffix = fmt.Sprintf(" (+%d more)", len(paths)-max)
	}
	return append(parts, fmt.Sprintf("%s: %s%s", label, strings.Join(shown, ", "), suffix))
}

// Compare diffs the archive manifest against the extraction manifest.
// Both manifests are already canonically sorted, so a single merge pass
// suffices.
func Compare(archive, tree *Manifest) *Diff {
	diff := &Diff{}

	i, j := 0, 0
	for i < len(archive.Entries) && j < len(tree.Entries) {
		a, t := archive.Entries[i], tree.Entries[j]
		switch {
		case a.RelPath < t.RelPath:
			diff.MissingOnDisk = append(diff.MissingOnDisk, a.RelPath)
			i++
		case a.RelPath > t.RelPath:
			diff.ExtraOnDisk = append(diff.ExtraOnDisk, t.RelPath)
			j++
		default:
			if a.Kind != t.Kind {
				diff.KindMismatches = append(diff.KindMismatches, a.RelPath)
			}
			i++
			j++
		}
	}
	for ; i < len(archive.Entries); i++ {
		diff.MissingOnDisk = append(diff.MissingOnDisk, archive.Entries[i].RelPath)
	}
	for ; j < len(tree.Entries); j++ {
		diff.ExtraOnDisk = append(diff.ExtraOnDisk, tree.Entries[j].RelPath)
	}

	return diff
}
