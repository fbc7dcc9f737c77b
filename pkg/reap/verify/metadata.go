package verify

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/reap/pkg/reap/archive"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

// policy is the resolved metadata comparison policy for one destination.
type policy struct {
	strict         bool
	permissionWeak bool
}

// metadataPolicy resolves the configured policy against the destination.
// "auto" probes whether the destination can actually store POSIX permission
// bits instead of pattern-matching filesystem type names.
func metadataPolicy(dest string, opts Options) policy {
	p := policy{strict: opts.StrictMetadata}

	switch strings.ToLower(opts.PermissionWeak) {
	case "true", "yes":
		p.permissionWeak = true
	case "false", "no":
		p.permissionWeak = false
	default:
		p.permissionWeak = !supportsPosixPerms(dest)
	}

	return p
}

// supportsPosixPerms probes the destination by chmod-ing a scratch file to
// an uncommon mode and reading it back. A destination that cannot round-trip
// the mode is permission-weak.
func supportsPosixPerms(dest string) bool {
	f, err := os.CreateTemp(dest, ".permprobe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	defer os.Remove(name)
	_ = f.Close()

	const probeMode = fs.FileMode(0o641)
	if err := os.Chmod(name, probeMode); err != nil {
		return false
	}

	info, err := os.Stat(name)
	if err != nil {
		return false
	}

	return info.Mode().Perm() == probeMode
}

// compareMetadata compares archive-declared mode and mtime against the
// extracted files. Differences are returned as warnings unless the resolved
// policy is strict, in which case the first difference is an
// ErrMetadataMismatch. Mode differences on a permission-weak destination
// are warnings even under strict policy: the destination cannot represent
// them faithfully.
func compareMetadata(r *archive.Reader, dest string, p policy) ([]string, error) {
	var warnings []string

	err := r.Walk(func(e archive.Entry, _ io.Reader) error {
		if e.Kind != types.KindFile {
			// Symlink modes and mtimes are not portable across
			// filesystems.
			return nil
		}

		target := filepath.Join(dest, filepath.FromSlash(e.RelPath))
		info, err := os.Lstat(target)
		if err != nil {
			return fmt.Errorf("stat %s: %w", e.RelPath, err)
		}

		if got := info.Mode().Perm(); got != e.Mode {
			msg := fmt.Sprintf("mode differs on %s: archive=%o disk=%o", e.RelPath, e.Mode, got)
			if p.strict && !p.permissionWeak {
				return fmt.Errorf("%w: %s", ErrMetadataMismatch, msg)
			}
			warnings = append(warnings, msg)
		}

		if got := info.ModTime().Unix(); got != e.ModTime {
			msg := fmt.Sprintf("mtime differs on %s: archive=%d disk=%d", e.RelPath, e.ModTime, got)
			if p.strict {
				return fmt.Errorf("%w: %s", ErrMetadataMismatch, msg)
			}
			warnings = append(warnings, msg)
		}

		return nil
	})
	if err != nil {
		return warnings, err
	}

	return warnings, nil
}

// normalizePermissions rewrites the extracted tree to canonical modes:
// 0755 for directories, 0644 for regular files. Symlinks are untouched.
func normalizePermissions(dest string) error {
	return filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.Chmod(path, 0o755)
		case d.Type().IsRegular():
			return os.Chmod(path, 0o644)
		default:
			return nil
		}
	})
}
