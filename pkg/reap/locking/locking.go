// Package locking provides PID-tagged advisory locks for extraction
// destinations. The lock is a file beside the destination containing the
// owner's PID; a liveness probe distinguishes a live owner (contention,
// which is a skip rather than an error) from a stale lock left by a dead
// process, which is overwritten.
package locking

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// lockSuffix names the lock file beside an extraction destination.
const lockSuffix = ".lock"

// ErrContended indicates another live process owns the destination.
var ErrContended = errors.New("destination locked by another process")

// Lock is an acquired destination lock. Release removes it.
type Lock struct {
	path string
	pid  int
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the advisory lock for the given extraction destination.
// A lock file owned by a live process yields ErrContended wrapped with the
// owner PID; a stale lock is overwritten.
func Acquire(dest string) (*Lock, error) {
	lockPath := dest + lockSuffix
	self := os.Getpid()

	if pid, err := ReadPIDFile(lockPath); err == nil {
		if pid != self && IsProcessRunning(pid) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrContended, pid, lockPath)
		}
		// Stale lock from a dead process: fall through and overwrite.
	}

	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(self)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing lock file %s: %w", lockPath, err)
	}

	return &Lock{path: lockPath, pid: self}, nil
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	pid, err := ReadPIDFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != l.pid {
		// Another process claimed the lock after our PID died from its
		// point of view; leave it alone.
		return nil
	}
	return os.Remove(l.path)
}

// ReadPIDFile reads a PID from a lock file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in lock file %s", path)
	}

	return pid, nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
