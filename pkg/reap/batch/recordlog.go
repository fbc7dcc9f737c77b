package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/reap/pkg/reap/types"
)

// recordHeader is the CSV header of the batch results log.
var recordHeader = []string{
	"timestamp", "archive_path", "status", "exit_code",
	"size_bytes", "verified_count", "duration_seconds",
}

// RecordLog is the append-only batch results log. Records are never edited
// after being written; a mutex serializes writers within the process and a
// file lock serializes concurrent batch processes sharing one log.
type RecordLog struct {
	path string
	mu   sync.Mutex
	file *os.File
	fl   *flock.Flock
}

// OpenRecordLog opens (creating if needed) the results log at path and
// writes the CSV header when the file is empty.
func OpenRecordLog(path string) (*RecordLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening results log: %w", err)
	}

	l := &RecordLog{
		path: path,
		file: f,
		fl:   flock.New(path + ".lock"),
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat results log: %w", err)
	}
	if info.Size() == 0 {
		if err := l.writeRow(recordHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return l, nil
}

// Path returns the log file path.
func (l *RecordLog) Path() string { return l.path }

// Append writes one record. Safe for concurrent use.
func (l *RecordLog) Append(rec types.BatchRecord) error {
	return l.writeRow([]string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.ArchivePath,
		string(rec.Status),
		strconv.Itoa(rec.ExitCode),
		strconv.FormatInt(rec.SizeBytes, 10),
		strconv.Itoa(rec.VerifiedCount),
		strconv.FormatFloat(rec.Duration.Seconds(), 'f', 2, 64),
	})
}

func (l *RecordLog) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("locking results log: %w", err)
	}
	defer func() { _ = l.fl.Unlock() }()

	w := csv.NewWriter(l.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing record: %w", err)
	}

	return nil
}

// Close closes the log file.
func (l *RecordLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
