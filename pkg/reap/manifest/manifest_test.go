package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/reap/pkg/reap/types"
)

func TestNewSortsAndDeduplicates(t *testing.T) {
	m := New([]types.ArchiveEntry{
		{RelPath: "z.txt", Kind: types.KindFile},
		{RelPath: "a.txt", Kind: types.KindFile},
		{RelPath: "a.txt", Kind: types.KindSymlink, LinkTarget: "z.txt"},
		{RelPath: "m/n.txt", Kind: types.KindFile},
	})

	require.Equal(t, 3, m.Len())
	assert.Equal(t, "a.txt", m.Entries[0].RelPath)
	assert.Equal(t, "m/n.txt", m.Entries[1].RelPath)
	assert.Equal(t, "z.txt", m.Entries[2].RelPath)

	// First occurrence wins on duplicate paths.
	assert.Equal(t, types.KindFile, m.Entries[0].Kind)
}

func TestNewByteExactOrdering(t *testing.T) {
	// Case-sensitive byte ordering, no locale collation: uppercase sorts
	// before lowercase, and special characters order by byte value.
	m := New([]types.ArchiveEntry{
		{RelPath: "b.txt", Kind: types.KindFile},
		{RelPath: "B.txt", Kind: types.KindFile},
		{RelPath: "a b.txt", Kind: types.KindFile},
		{RelPath: "a\nb.txt", Kind: types.KindFile},
	})

	require.Equal(t, 4, m.Len())
	assert.Equal(t, "B.txt", m.Entries[0].RelPath)
	assert.Equal(t, "a\nb.txt", m.Entries[1].RelPath)
	assert.Equal(t, "a b.txt", m.Entries[2].RelPath)
	assert.Equal(t, "b.txt", m.Entries[3].RelPath)
}

func TestFromTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0o644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))

	m, err := FromTree(root)
	require.NoError(t, err)

	require.Equal(t, 3, m.Len())
	assert.Equal(t, types.ArchiveEntry{RelPath: "a.txt", Kind: types.KindFile}, m.Entries[0])
	assert.Equal(t, types.ArchiveEntry{RelPath: "link", Kind: types.KindSymlink, LinkTarget: "a.txt"}, m.Entries[1])
	assert.Equal(t, types.ArchiveEntry{RelPath: "sub/b.txt", Kind: types.KindFile}, m.Entries[2])
}

func TestFromTreeEmpty(t *testing.T) {
	m, err := FromTree(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestFromTreeSpecialNames(t *testing.T) {
	root := t.TempDir()
	names := []string{"with space.txt", "with'quote.txt", "with,comma.txt"}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte("x"), 0o644))
	}

	m, err := FromTree(root)
	require.NoError(t, err)
	require.Equal(t, len(names), m.Len())
}

func TestCompareEqual(t *testing.T) {
	entries := []types.ArchiveEntry{
		{RelPath: "a.txt", Kind: types.KindFile},
		{RelPath: "link", Kind: types.KindSymlink, LinkTarget: "a.txt"},
	}

	diff := Compare(New(entries), New(entries))
	assert.True(t, diff.Equal())
	assert.Empty(t, diff.Detail(10))
}

func TestCompareMissingOnDisk(t *testing.T) {
	arch := New([]types.ArchiveEntry{
		{RelPath: "a.txt", Kind: types.KindFile},
		{RelPath: "b.txt", Kind: types.KindFile},
	})
	tree := New([]types.ArchiveEntry{
		{RelPath: "a.txt", Kind: types.KindFile},
	})

	diff := Compare(arch, tree)
	require.False(t, diff.Equal())
	assert.Equal(t, []string{"b.txt"}, diff.MissingOnDisk)
	assert.Empty(t, diff.ExtraOnDisk)
	assert.Contains(t, diff.Detail(10), "missing on disk: b.txt")
}

func TestCompareExtraOnDisk(t *testing.T) {
	arch := New([]types.ArchiveEntry{
		{RelPath: "a.txt", Kind: types.KindFile},
	})
	tree := New([]types.ArchiveEntry{
		{RelPath: "a.txt", Kind: types.KindFile},
		{RelPath: "stray.txt", Kind: types.KindFile},
	})

	diff := Compare(arch, tree)
	require.False(t, diff.Equal())
	assert.Equal(t, []string{"stray.txt"}, diff.ExtraOnDisk)
}

func TestCompareKindMismatch(t *testing.T) {
	arch := New([]types.ArchiveEntry{
		{RelPath: "thing", Kind: types.KindSymlink, LinkTarget: "a"},
	})
	tree := New([]types.ArchiveEntry{
		{RelPath: "thing", Kind: types.KindFile},
	})

	diff := Compare(arch, tree)
	require.False(t, diff.Equal())
	assert.Equal(t, []string{"thing"}, diff.KindMismatches)
}

func TestCompareLinkTargetNotManifestConcern(t *testing.T) {
	// Differing link targets are a content matter, not a manifest one.
	arch := New([]types.ArchiveEntry{
		{RelPath: "link", Kind: types.KindSymlink, LinkTarget: "a"},
	})
	tree := New([]types.ArchiveEntry{
		{RelPath: "link", Kind: types.KindSymlink, LinkTarget: "b"},
	})

	assert.True(t, Compare(arch, tree).Equal())
}

func TestDiffDetailTruncation(t *testing.T) {
	diff := &Diff{MissingOnDisk: []string{"a", "b", "c", "d", "e"}}
	detail := diff.Detail(2)
	assert.Contains(t, detail, "a, b")
	assert.Contains(t, detail, "(+3 more)")
	assert.NotContains(t, detail, "c,")
}
