// Package archive provides streaming access to tar-compatible backup
// archives. It understands plain, gzip- and zstd-compressed containers,
// exposes entry metadata and payload streams without materializing the
// archive in memory, and performs a container integrity self-check before
// any extraction is attempted.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/jamesainslie/reap/pkg/reap/types"
)

// Sentinel errors for the archive stage.
var (
	// ErrUnsupportedFormat indicates an unknown container extension.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrIntegrity indicates the compressed stream failed its self-check.
	ErrIntegrity = errors.New("archive failed integrity self-check")

	// ErrEntryNotFound indicates a named entry does not exist in the
	// archive.
	ErrEntryNotFound = errors.New("entry not found in archive")
)

// Format identifies the container compression.
type Format int

// Supported container formats.
const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGz
	FormatTarZst
)

// formatSuffixes maps file name suffixes to formats. Longest match wins.
var formatSuffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tar.zst", FormatTarZst},
	{".tgz", FormatTarGz},
	{".tzst", FormatTarZst},
	{".tar", FormatTar},
}

// DetectFormat determines the container format from the file name.
// Returns ErrUnsupportedFormat for unrecognized extensions.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, fs := range formatSuffixes {
		if strings.HasSuffix(lower, fs.suffix) {
			return fs.format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Base(name))
}

// StripSuffix removes the container extension from an archive name,
// yielding the conventional extraction directory name.
func StripSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, fs := range formatSuffixes {
		if strings.HasSuffix(lower, fs.suffix) {
			return name[:len(name)-len(fs.suffix)]
		}
	}
	return name
}

// Entry is one archive member with the metadata the verification stages
// need. It embeds the comparable ArchiveEntry and carries the mode and
// mtime the container declared.
type Entry struct {
	types.ArchiveEntry

	Size    int64
	Mode    os.FileMode
	ModTime int64 // Unix seconds, tar resolution
}

// Reader streams a single archive. Every call that consumes the container
// reopens the underlying file, so iteration is restartable per call and the
// archive itself is only ever read, never written.
type Reader struct {
	path   string
	format Format
}

// Open prepares a reader for the archive at path. The file must exist and
// carry a supported extension.
func Open(archivePath string) (*Reader, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &Reader{path: archivePath, format: format}, nil
}

// Path returns the archive path.
func (r *Reader) Path() string { return r.path }

// Format returns the detected container format.
func (r *Reader) Format() Format { return r.format }

// openStream opens the archive and wraps it in the decompressor for its
// format. The returned closer releases both.
func (r *Reader) openStream() (io.ReadCloser, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	switch r.format {
	case FormatTar:
		return f, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		return &streamCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		return &streamCloser{Reader: zr, closers: []io.Closer{closerFunc(zr.Close), f}}, nil
	default:
		_ = f.Close()
		return nil, ErrUnsupportedFormat
	}
}

// streamCloser bundles a decompressed reader with everything that must be
// closed beneath it.
type streamCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *streamCloser) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

// CheckIntegrity streams the entire container, decompressing every byte and
// walking every tar header, without writing anything. A corrupt stream is
// reported as ErrIntegrity so callers can fail fast before extraction.
func (r *Reader) CheckIntegrity() error {
	stream, err := r.openStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		_, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
	}
}

// Walk streams the archive once, invoking fn for every file and symlink
// entry with its payload reader. The payload reader is only valid during
// the callback. Directories and unsupported member types are skipped.
// Returning an error from fn aborts the walk and propagates the error.
func (r *Reader) Walk(fn func(e Entry, payload io.Reader) error) error {
	stream, err := r.openStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		entry, ok := entryFromHeader(hdr)
		if !ok {
			continue
		}

		if err := fn(entry, tr); err != nil {
			return err
		}
	}
}

// Entries returns the normalized file and symlink entries of the archive.
// Directories are excluded: their presence is not verification-relevant.
func (r *Reader) Entries() ([]types.ArchiveEntry, error) {
	var entries []types.ArchiveEntry
	err := r.Walk(func(e Entry, _ io.Reader) error {
		entries = append(entries, e.ArchiveEntry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// OpenEntry returns an on-demand payload stream for the named entry.
// The relative path is compared after normalization. The caller owns the
// returned closer.
func (r *Reader) OpenEntry(relPath string) (io.ReadCloser, error) {
	want := NormalizeName(relPath)

	stream, err := r.openStream()
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			_ = stream.Close()
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, relPath)
		}
		if err != nil {
			_ = stream.Close()
			return nil, fmt.Errorf("reading archive: %w", err)
		}

		if hdr.Typeflag == tar.TypeReg && NormalizeName(hdr.Name) == want {
			return &streamCloser{Reader: tr, closers: []io.Closer{stream}}, nil
		}
	}
}

// NormalizeName strips the leading "./" and any trailing slash from a tar
// member name so entries compare byte-exactly against filesystem-derived
// relative paths.
func NormalizeName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	return name
}

// entryFromHeader converts a tar header into an Entry, reporting false for
// member types that do not participate in verification.
func entryFromHeader(hdr *tar.Header) (Entry, bool) {
	name := NormalizeName(hdr.Name)
	if name == "" || name == "." {
		return Entry{}, false
	}

	var kind types.EntryKind
	switch hdr.Typeflag {
	case tar.TypeReg:
		kind = types.KindFile
	case tar.TypeSymlink:
		kind = types.KindSymlink
	default:
		return Entry{}, false
	}

	return Entry{
		ArchiveEntry: types.ArchiveEntry{
			RelPath:    name,
			Kind:       kind,
			LinkTarget: hdr.Linkname,
		},
		Size:    hdr.Size,
		Mode:    os.FileMode(hdr.Mode).Perm(),
		ModTime: hdr.ModTime.Unix(),
	}, true
}
