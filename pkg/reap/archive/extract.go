package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PartialSuffix marks an extraction that has not completed. The rename onto
// the final destination only happens after the last entry is written, so a
// directory without the suffix is always a finished extraction.
const PartialSuffix = ".partial"

// ErrInsecurePath indicates an archive member that would escape the
// extraction root.
var ErrInsecurePath = errors.New("archive entry escapes extraction root")

// DefaultDestination returns the conventional extraction directory for an
// archive: a sibling directory named after the archive with its container
// extension stripped.
func DefaultDestination(archivePath string) string {
	dir := filepath.Dir(archivePath)
	return filepath.Join(dir, StripSuffix(filepath.Base(archivePath)))
}

// Extract unpacks the archive into dest using the partial-directory
// protocol: entries are written under dest+PartialSuffix and the directory
// is renamed into place only once every entry landed. A pre-existing dest is
// an error; callers skip extraction when the destination already exists.
func (r *Reader) Extract(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination already exists: %s", dest)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat destination: %w", err)
	}

	partial := dest + PartialSuffix
	if err := os.RemoveAll(partial); err != nil {
		return fmt.Errorf("clearing stale partial extraction: %w", err)
	}
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return fmt.Errorf("creating extraction directory: %w", err)
	}

	if err := r.extractTree(ctx, partial); err != nil {
		// Leave the partial directory for the recovery pass; it is
		// recognizable by its suffix.
		return err
	}

	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("finalizing extraction: %w", err)
	}

	return nil
}

func (r *Reader) extractTree(ctx context.Context, root string) error {
	stream, err := r.openStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}

		if err := r.extractEntry(root, hdr, tr); err != nil {
			return err
		}
	}
}

func (r *Reader) extractEntry(root string, hdr *tar.Header, payload io.Reader) error {
	name := NormalizeName(hdr.Name)
	if name == "" || name == "." {
		return nil
	}

	target, err := securePath(root, name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()); err != nil {
			return fmt.Errorf("creating directory %s: %w", name, err)
		}
		return nil

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", name, err)
		}
		if err := writeFile(target, payload, os.FileMode(hdr.Mode).Perm()); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
			return fmt.Errorf("setting mtime on %s: %w", name, err)
		}
		return nil

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", name, err)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("creating symlink %s: %w", name, err)
		}
		return nil

	default:
		// Hard links, devices and the like do not occur in the backup
		// corpus; skipping keeps extraction aligned with the manifest.
		return nil
	}
}

func writeFile(target string, payload io.Reader, mode fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, payload); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// securePath joins name onto root and rejects any member that would land
// outside it.
func securePath(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrInsecurePath, name)
	}

	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInsecurePath, name)
	}

	return target, nil
}

// CleanPartials removes abandoned partial extraction directories directly
// under root and returns the paths it removed. A later run must never
// mistake a half-extracted tree for a complete one.
func CleanPartials(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}

		p := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("removing partial extraction %s: %w", p, err)
		}
		removed = append(removed, p)
	}

	return removed, nil
}
