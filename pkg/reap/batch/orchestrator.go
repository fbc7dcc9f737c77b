// Package batch orchestrates the verification pipeline over a corpus of
// archives: discovery, size-ordered scheduling under a bounded worker pool,
// destination locking, retry rounds, quarantine of persistent failures, and
// the append-only results log. One corrupt archive never aborts the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/reap/pkg/reap/archive"
	"github.com/jamesainslie/reap/pkg/reap/deleter"
	"github.com/jamesainslie/reap/pkg/reap/locking"
	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/spaceguard"
	"github.com/jamesainslie/reap/pkg/reap/types"
	"github.com/jamesainslie/reap/pkg/reap/verify"
)

// Options configures a batch run.
type Options struct {
	// Root is the directory scanned for archives.
	Root string

	// Workers bounds the parallel archive pipelines.
	Workers int

	// Order is the size-based processing order: "asc" or "desc".
	Order string

	// Retries is the number of retry rounds after the initial pass.
	Retries int

	// Include and Exclude are doublestar patterns matched against
	// archive base names.
	Include []string
	Exclude []string

	// QuarantineDir receives archives that fail every retry round.
	QuarantineDir string

	// Guard pauses new work when the destination mount runs low.
	// Nil disables the space guard.
	Guard *spaceguard.Guard

	// Verify configures the per-archive pipeline. Dest is ignored; each
	// archive extracts to its conventional sibling directory.
	Verify verify.Options

	// Log receives one record per pipeline attempt and per quarantine.
	Log *RecordLog
}

// Summary aggregates a completed batch run.
type Summary struct {
	Total       int
	Verified    int
	Failed      int
	Quarantined int
	Skipped     int
	Elapsed     time.Duration
}

// Orchestrator runs the batch state machine. Each archive moves
// Pending -> Verifying -> {Verified, Failed}, and Failed archives move
// through bounded retry rounds into Quarantined.
type Orchestrator struct {
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	summary Summary
	failed  []failedItem
}

type failedItem struct {
	item   Item
	status types.Status
}

// New creates an orchestrator, applying defaults for unset options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Root == "" {
		return nil, errors.New("batch root cannot be empty")
	}
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.Log == nil {
		return nil, errors.New("batch requires a results log")
	}
	opts.Verify.Dest = ""
	opts.Verify.ExtractIfMissing = true

	return &Orchestrator{opts: opts, log: logging.Get("batch")}, nil
}

// Run executes the batch and always returns a summary, even when the
// context is cancelled mid-run. Only context cancellation is returned as an
// error; individual archive failures are reflected in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	// A previous interrupted run may have left pending-delete artifacts
	// or partial extractions behind; neither may be mistaken for work or
	// for a complete extraction.
	if removed, err := deleter.Recover(o.opts.Root); err != nil {
		o.log.Warn("delete recovery incomplete", "error", err)
	} else if len(removed) > 0 {
		o.log.Info("finished interrupted deletes", "count", len(removed))
	}
	if removed, err := archive.CleanPartials(o.opts.Root); err != nil {
		o.log.Warn("partial cleanup incomplete", "error", err)
	} else if len(removed) > 0 {
		o.log.Info("removed partial extractions", "count", len(removed))
	}

	items, err := discover(o.opts.Root, o.opts.Include, o.opts.Exclude)
	if err != nil {
		return nil, err
	}
	sortItems(items, o.opts.Order)

	o.summary.Total = len(items)
	o.log.Info("batch started",
		"root", o.opts.Root,
		"archives", len(items),
		"workers", o.opts.Workers,
		"order", o.opts.Order)

	// Initial pass. Every archive gets one attempt before any retry
	// round begins.
	o.runPass(ctx, items, 0)

	for round := 1; round <= o.opts.Retries && ctx.Err() == nil; round++ {
		retry := o.takeFailed()
		if len(retry) == 0 {
			break
		}
		o.log.Info("retry round", "round", round, "archives", len(retry))

		retryItems := make([]Item, len(retry))
		for i, f := range retry {
			retryItems[i] = f.item
		}
		o.runPass(ctx, retryItems, round)
	}

	if ctx.Err() == nil {
		o.quarantineRemaining()
	}

	o.summary.Elapsed = time.Since(start)
	o.log.Info("batch finished",
		"verified", o.summary.Verified,
		"failed", o.summary.Failed,
		"quarantined", o.summary.Quarantined,
		"skipped", o.summary.Skipped,
		"elapsed", o.summary.Elapsed)

	summary := o.summary
	if err := ctx.Err(); err != nil {
		return &summary, err
	}
	return &summary, nil
}

// runPass runs one attempt over the given items under the worker pool.
func (o *Orchestrator) runPass(ctx context.Context, items []Item, round int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				// Cancelled before this archive started; it stays
				// un-attempted rather than failed.
				return nil
			}
			o.processItem(gctx, item, round)
			return nil
		})
	}

	// Workers only ever return nil; pipeline failures are summary state.
	_ = g.Wait()
}

// processItem runs the full pipeline for one archive and records the
// outcome.
func (o *Orchestrator) processItem(ctx context.Context, item Item, round int) {
	if o.opts.Guard != nil {
		if err := o.opts.Guard.Wait(ctx); err != nil {
			return // cancelled while paused
		}
	}

	dest := archive.DefaultDestination(item.Path)
	lock, err := locking.Acquire(dest)
	if err != nil {
		if errors.Is(err, locking.ErrContended) {
			o.log.Info("destination busy, skipping", "archive", item.Path)
			o.mu.Lock()
			o.summary.Skipped++
			o.mu.Unlock()
			return
		}
		o.finishItem(item, &types.VerificationResult{
			ArchivePath: item.Path,
			Status:      types.StatusIoError,
			Detail:      err.Error(),
		})
		return
	}
	defer func() {
		if err := lock.Release(); err != nil {
			o.log.Warn("releasing destination lock", "dest", dest, "error", err)
		}
	}()

	o.log.Info("verifying", "archive", item.Path, "size", types.FormatSize(item.Size), "round", round)
	result := verify.Run(ctx, item.Path, o.opts.Verify)

	if ctx.Err() != nil && result.Status != types.StatusVerified {
		// Aborted mid-stage; the archive is untouched and will be
		// re-attempted by a later run.
		return
	}

	if result.Status == types.StatusVerified {
		if err := deleter.Delete(result); err != nil {
			// Surfaced with full path detail, fatal for this archive
			// only.
			o.log.Error("safe delete failed", "archive", item.Path, "error", err)
			result = &types.VerificationResult{
				ArchivePath:       result.ArchivePath,
				Status:            types.StatusIoError,
				VerifiedFileCount: result.VerifiedFileCount,
				Elapsed:           result.Elapsed,
				Detail:            fmt.Sprintf("verified but not deleted: %v", err),
			}
		}
	}

	o.finishItem(item, result)
}

// finishItem records an attempt outcome and updates the summary.
func (o *Orchestrator) finishItem(item Item, result *types.VerificationResult) {
	rec := types.BatchRecord{
		Timestamp:     time.Now(),
		ArchivePath:   item.Path,
		Status:        result.Status,
		ExitCode:      result.Status.ExitCode(),
		SizeBytes:     item.Size,
		VerifiedCount: result.VerifiedFileCount,
		Duration:      result.Elapsed,
	}
	if err := o.opts.Log.Append(rec); err != nil {
		o.log.Error("appending batch record", "archive", item.Path, "error", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if result.Status == types.StatusVerified {
		o.summary.Verified++
	} else {
		o.failed = append(o.failed, failedItem{item: item, status: result.Status})
	}
}

// takeFailed drains the failure list for the next retry round.
func (o *Orchestrator) takeFailed() []failedItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	failed := o.failed
	o.failed = nil
	return failed
}

// quarantineRemaining moves archives that failed every round into the
// quarantine directory and records the transfer of ownership.
func (o *Orchestrator) quarantineRemaining() {
	remaining := o.takeFailed()
	for _, f := range remaining {
		o.mu.Lock()
		o.summary.Failed++
		o.mu.Unlock()

		if o.opts.QuarantineDir == "" {
			continue
		}

		if _, err := quarantine(f.item.Path, o.opts.QuarantineDir, f.status); err != nil {
			o.log.Error("quarantine failed", "archive", f.item.Path, "error", err)
			continue
		}

		o.mu.Lock()
		o.summary.Quarantined++
		o.mu.Unlock()

		rec := types.BatchRecord{
			Timestamp:   time.Now(),
			ArchivePath: f.item.Path,
			Status:      types.StatusQuarantined,
			ExitCode:    f.status.ExitCode(),
			SizeBytes:   f.item.Size,
		}
		if err := o.opts.Log.Append(rec); err != nil {
			o.log.Error("appending quarantine record", "archive", f.item.Path, "error", err)
		}
	}
}
