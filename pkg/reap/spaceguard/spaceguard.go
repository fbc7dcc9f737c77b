// Package spaceguard pauses new pipeline work when free space on the
// destination mount drops to a configured threshold, so an extraction is
// never started that cannot complete. Running low on space is a pause, not
// a failure.
package spaceguard

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/jamesainslie/reap/pkg/reap/logging"
)

// Guard watches free space on one mount.
type Guard struct {
	mount     string
	threshold float64
	poll      time.Duration

	// usage is swappable for tests.
	usage func(path string) (*disk.UsageStat, error)
}

// New creates a guard for the given mount point. Work pauses while free
// space is at or below thresholdPercent, re-checking every poll interval.
func New(mount string, thresholdPercent float64, poll time.Duration) *Guard {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Guard{
		mount:     mount,
		threshold: thresholdPercent,
		poll:      poll,
		usage:     disk.Usage,
	}
}

// FreePercent returns the current free-space percentage on the mount.
func (g *Guard) FreePercent() (float64, error) {
	stat, err := g.usage(g.mount)
	if err != nil {
		return 0, fmt.Errorf("querying disk usage for %s: %w", g.mount, err)
	}
	return 100 - stat.UsedPercent, nil
}

// Ok reports whether free space is currently above the threshold.
func (g *Guard) Ok() (bool, error) {
	free, err := g.FreePercent()
	if err != nil {
		return false, err
	}
	return free > g.threshold, nil
}

// Wait blocks until free space rises above the threshold or the context is
// cancelled. It logs once when it begins pausing.
func (g *Guard) Wait(ctx context.Context) error {
	log := logging.Get("space")

	paused := false
	for {
		free, err := g.FreePercent()
		if err != nil {
			return err
		}
		if free > g.threshold {
			if paused {
				log.Info("free space recovered, resuming",
					"mount", g.mount, "free_percent", fmt.Sprintf("%.1f", free))
			}
			return nil
		}

		if !paused {
			log.Warn("free space at or below threshold, pausing new work",
				"mount", g.mount,
				"free_percent", fmt.Sprintf("%.1f", free),
				"threshold_percent", fmt.Sprintf("%.1f", g.threshold))
			paused = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.poll):
		}
	}
}
