// Package dedup implements cross-archive hard-link deduplication. It scans
// a root for large files, groups candidates by size and content hash, and
// replaces duplicate inodes with hard links to one canonical file. Planning
// is the default; mutation requires an explicit execute flag.
package dedup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/types"
	"github.com/jamesainslie/reap/pkg/reap/verify"
)

// hashWorkers bounds concurrent content hashing during planning.
const hashWorkers = 4

// Options configures a deduplication run.
type Options struct {
	// Root is the filesystem root to scan.
	Root string

	// MinSize is the minimum file size considered, in bytes.
	MinSize int64

	// TrustedRoot, when set, biases canonical selection: a duplicate
	// group containing a path under this root keeps that copy.
	TrustedRoot string

	// Execute applies the plan. The default only reports it.
	Execute bool
}

// candidate is one enumerated file with its inode identity.
type candidate struct {
	path string
	size int64
	dev  uint64
	ino  uint64
}

// Plan is the outcome of the planning phases: every candidate action plus
// the statistics of how it was arrived at.
type Plan struct {
	Candidates []types.DedupCandidate

	// ScannedFiles counts files at or above the size threshold.
	ScannedFiles int

	// HashedFiles counts files whose content was hashed. Unique-size
	// files are discarded without hashing.
	HashedFiles int

	// ReclaimableBytes is the total space freed if the plan executes.
	ReclaimableBytes int64
}

// Result reports an executed plan.
type Result struct {
	LinkedFiles    int
	ReclaimedBytes int64
	FreeBefore     uint64
	FreeAfter      uint64
}

// BuildPlan runs the planning phases: enumerate, group by size, hash the
// size-colliders, and derive link actions per (size, hash) group.
func BuildPlan(ctx context.Context, opts Options) (*Plan, error) {
	log := logging.Get("dedup")
	start := time.Now()

	files, err := enumerate(ctx, opts.Root, opts.MinSize)
	if err != nil {
		return nil, err
	}

	// Sizes with a single file cannot have duplicates; discard them
	// before paying for any hashing.
	bySize := make(map[int64][]candidate)
	for _, f := range files {
		bySize[f.size] = append(bySize[f.size], f)
	}

	var colliders []candidate
	for _, group := range bySize {
		if len(group) > 1 {
			colliders = append(colliders, group...)
		}
	}

	hashes, err := hashAll(ctx, colliders)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ScannedFiles: len(files),
		HashedFiles:  len(colliders),
	}

	type groupKey struct {
		size int64
		hash string
	}
	groups := make(map[groupKey][]candidate)
	for _, c := range colliders {
		key := groupKey{size: c.size, hash: hashes[c.path]}
		groups[key] = append(groups[key], c)
	}

	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		if cand, ok := deriveCandidate(key.size, key.hash, group, opts.TrustedRoot); ok {
			plan.Candidates = append(plan.Candidates, cand)
			plan.ReclaimableBytes += cand.Reclaimable()
		}
	}

	// Deterministic report order.
	sort.Slice(plan.Candidates, func(i, j int) bool {
		return plan.Candidates[i].CanonicalPath < plan.Candidates[j].CanonicalPath
	})

	log.Info("dedup plan built",
		"scanned", plan.ScannedFiles,
		"hashed", plan.HashedFiles,
		"groups", len(plan.Candidates),
		"reclaimable", types.FormatSize(plan.ReclaimableBytes),
		"elapsed", time.Since(start))

	return plan, nil
}

// enumerate walks root collecting regular files at or above minSize with
// their inode identity.
func enumerate(ctx context.Context, root string, minSize int64) ([]candidate, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	var (
		mu    sync.Mutex
		files []candidate
		conf  = fastwalk.Config{Follow: false}
	)

	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not dedup candidates
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return nil
		}
		if st.Size < minSize {
			return nil
		}

		mu.Lock()
		files = append(files, candidate{
			path: path,
			size: st.Size,
			dev:  uint64(st.Dev),
			ino:  st.Ino,
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	return files, nil
}

// hashAll computes SHA-256 digests for the size-colliding files under a
// bounded worker pool.
func hashAll(ctx context.Context, files []candidate) (map[string]string, error) {
	var mu sync.Mutex
	hashes := make(map[string]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)

	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := verify.HashFile(f.path)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", f.path, err)
			}
			mu.Lock()
			hashes[f.path] = sum
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// deriveCandidate selects the canonical copy for one (size, hash) group and
// lists the duplicates whose inode differs from it. Canonical selection is
// deterministic: prefer a path under the trusted root, else the first in
// sort order.
func deriveCandidate(size int64, hash string, group []candidate, trustedRoot string) (types.DedupCandidate, bool) {
	sort.Slice(group, func(i, j int) bool { return group[i].path < group[j].path })

	canonical := group[0]
	if trustedRoot != "" {
		for _, c := range group {
			if strings.HasPrefix(c.path, trustedRoot+string(filepath.Separator)) {
				canonical = c
				break
			}
		}
	}

	var duplicates []string
	for _, c := range group {
		if c.path == canonical.path {
			continue
		}
		if c.dev == canonical.dev && c.ino == canonical.ino {
			// Already hard-linked to the canonical file.
			continue
		}
		duplicates = append(duplicates, c.path)
	}

	if len(duplicates) == 0 {
		return types.DedupCandidate{}, false
	}

	return types.DedupCandidate{
		Size:           size,
		ContentHash:    hash,
		CanonicalPath:  canonical.path,
		DuplicatePaths: duplicates,
	}, true
}

// Execute applies a plan, replacing each duplicate with a hard link to its
// canonical file. The replacement link is created under a temporary name
// first and renamed over the duplicate, so an interrupted action never
// leaves the duplicate removed without its replacement in place, and the
// canonical copy is never the one at risk.
func Execute(ctx context.Context, plan *Plan, opts Options) (*Result, error) {
	log := logging.Get("dedup")

	result := &Result{}
	if free, err := freeBytes(opts.Root); err == nil {
		result.FreeBefore = free
	}

	for _, cand := range plan.Candidates {
		for _, dup := range cand.DuplicatePaths {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if err := relink(cand.CanonicalPath, dup); err != nil {
				return result, fmt.Errorf("linking %s -> %s: %w", dup, cand.CanonicalPath, err)
			}

			log.Info("replaced duplicate with hard link",
				"duplicate", dup,
				"canonical", cand.CanonicalPath,
				"size", types.FormatSize(cand.Size))
			result.LinkedFiles++
			result.ReclaimedBytes += cand.Size
		}
	}

	if free, err := freeBytes(opts.Root); err == nil {
		result.FreeAfter = free
	}

	return result, nil
}

// relink atomically replaces dup with a hard link to canonical.
func relink(canonical, dup string) error {
	tmp := dup + ".dedup-tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(canonical, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dup); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// freeBytes returns free bytes on the mount containing path.
func freeBytes(path string) (uint64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}
