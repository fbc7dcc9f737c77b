package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

// quarantine moves a persistently failing archive into the quarantine
// directory as <name>.fail.<code>.<timestamp>. The file bytes are preserved
// unmodified for manual inspection; nothing removes quarantined archives
// automatically. Returns the quarantined path.
func quarantine(archivePath, quarantineDir string, status types.Status) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return "", fmt.Errorf("creating quarantine directory: %w", err)
	}

	name := fmt.Sprintf("%s.fail.%d.%d",
		filepath.Base(archivePath), status.ExitCode(), time.Now().Unix())
	dest := filepath.Join(quarantineDir, name)

	if err := os.Rename(archivePath, dest); err != nil {
		return "", fmt.Errorf("moving %s to quarantine: %w", archivePath, err)
	}

	logging.Get("batch").Warn("archive quarantined",
		"archive", archivePath, "quarantined_as", dest, "status", status)
	return dest, nil
}
