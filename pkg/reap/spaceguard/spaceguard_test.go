package spaceguard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubUsage(usedPercent float64) func(string) (*disk.UsageStat, error) {
	return func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{UsedPercent: usedPercent}, nil
	}
}

func TestFreePercent(t *testing.T) {
	g := New("/data", 10, time.Second)
	g.usage = stubUsage(82.5)

	free, err := g.FreePercent()
	require.NoError(t, err)
	assert.InDelta(t, 17.5, free, 0.001)
}

func TestOk(t *testing.T) {
	g := New("/data", 10, time.Second)

	g.usage = stubUsage(50)
	ok, err := g.Ok()
	require.NoError(t, err)
	assert.True(t, ok)

	g.usage = stubUsage(95)
	ok, err = g.Ok()
	require.NoError(t, err)
	assert.False(t, ok)

	// Exactly at the threshold counts as low.
	g.usage = stubUsage(90)
	ok, err = g.Ok()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitImmediate(t *testing.T) {
	g := New("/data", 10, time.Hour)
	g.usage = stubUsage(50)

	require.NoError(t, g.Wait(context.Background()))
}

func TestWaitPausesUntilSpaceRecovers(t *testing.T) {
	g := New("/data", 10, time.Millisecond)

	var calls atomic.Int64
	g.usage = func(string) (*disk.UsageStat, error) {
		// Low on the first two polls, recovered afterwards.
		if calls.Add(1) <= 2 {
			return &disk.UsageStat{UsedPercent: 95}, nil
		}
		return &disk.UsageStat{UsedPercent: 50}, nil
	}

	require.NoError(t, g.Wait(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestWaitCancelled(t *testing.T) {
	g := New("/data", 10, time.Hour)
	g.usage = stubUsage(95)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := g.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitUsageError(t *testing.T) {
	g := New("/data", 10, time.Second)
	g.usage = func(string) (*disk.UsageStat, error) {
		return nil, assert.AnError
	}

	require.Error(t, g.Wait(context.Background()))
}
