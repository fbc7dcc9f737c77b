package locking

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")

	lock, err := Acquire(dest)
	require.NoError(t, err)
	require.NotNil(t, lock)

	pid, err := ReadPIDFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lock.Release())
	_, err = os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireContended(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")

	// A live PID that is not ours: use our parent.
	other := os.Getppid()
	require.NotEqual(t, os.Getpid(), other)
	require.True(t, IsProcessRunning(other))

	require.NoError(t, os.WriteFile(dest+lockSuffix,
		[]byte(strconv.Itoa(other)+"\n"), 0o644))

	_, err := Acquire(dest)
	require.ErrorIs(t, err, ErrContended)
	assert.Contains(t, err.Error(), strconv.Itoa(other))

	// The foreign lock file is left alone.
	pid, err := ReadPIDFile(dest + lockSuffix)
	require.NoError(t, err)
	assert.Equal(t, other, pid)
}

func TestAcquireStaleOverwritten(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")

	// A PID beyond the default pid_max is never a live process.
	require.NoError(t, os.WriteFile(dest+lockSuffix, []byte("999999999\n"), 0o644))

	lock, err := Acquire(dest)
	require.NoError(t, err)

	pid, err := ReadPIDFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireReentrant(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")

	first, err := Acquire(dest)
	require.NoError(t, err)

	// Our own PID in the lock file is not contention.
	second, err := Acquire(dest)
	require.NoError(t, err)
	require.NoError(t, second.Release())
	_ = first
}

func TestAcquireGarbageLockFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")
	require.NoError(t, os.WriteFile(dest+lockSuffix, []byte("not a pid"), 0o644))

	// An unreadable PID is treated as stale.
	lock, err := Acquire(dest)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestReleaseAfterTakeover(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "backup")

	lock, err := Acquire(dest)
	require.NoError(t, err)

	// Another process overwrote the lock; Release must not remove it.
	require.NoError(t, os.WriteFile(lock.Path(), []byte("999999999\n"), 0o644))
	require.NoError(t, lock.Release())

	_, err = os.Stat(lock.Path())
	assert.NoError(t, err)
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "good.lock")
	require.NoError(t, os.WriteFile(path, []byte(" 1234 \n"), 0o644))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	bad := filepath.Join(dir, "bad.lock")
	require.NoError(t, os.WriteFile(bad, []byte("-5"), 0o644))
	_, err = ReadPIDFile(bad)
	require.Error(t, err)

	_, err = ReadPIDFile(filepath.Join(dir, "missing.lock"))
	require.Error(t, err)
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, IsProcessRunning(os.Getpid()))
	assert.False(t, IsProcessRunning(999999999))
}
