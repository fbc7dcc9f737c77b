package dedup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeBytes(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func inode(t *testing.T, path string) uint64 {
	t.Helper()
	var st unix.Stat_t
	require.NoError(t, unix.Lstat(path, &st))
	return st.Ino
}

func TestBuildPlanFindsDuplicates(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("payload", 100)
	writeBytes(t, filepath.Join(root, "a", "big.bin"), content)
	writeBytes(t, filepath.Join(root, "b", "big.bin"), content)
	writeBytes(t, filepath.Join(root, "c", "big.bin"), content)
	writeBytes(t, filepath.Join(root, "unique.bin"), strings.Repeat("other!!", 100))

	plan, err := BuildPlan(context.Background(), Options{Root: root, MinSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 4, plan.ScannedFiles)
	require.Len(t, plan.Candidates, 1)

	cand := plan.Candidates[0]
	assert.Equal(t, filepath.Join(root, "a", "big.bin"), cand.CanonicalPath)
	assert.Equal(t, []string{
		filepath.Join(root, "b", "big.bin"),
		filepath.Join(root, "c", "big.bin"),
	}, cand.DuplicatePaths)
	assert.Equal(t, int64(2*len(content)), plan.ReclaimableBytes)
}

func TestBuildPlanSameSizeDifferentContent(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "x.bin"), strings.Repeat("a", 500))
	writeBytes(t, filepath.Join(root, "y.bin"), strings.Repeat("b", 500))

	plan, err := BuildPlan(context.Background(), Options{Root: root, MinSize: 1})
	require.NoError(t, err)

	// Size collision forces hashing, but differing content yields no
	// candidates.
	assert.Equal(t, 2, plan.HashedFiles)
	assert.Empty(t, plan.Candidates)
	assert.Zero(t, plan.ReclaimableBytes)
}

func TestBuildPlanUniqueSizesNeverHashed(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "x.bin"), strings.Repeat("a", 100))
	writeBytes(t, filepath.Join(root, "y.bin"), strings.Repeat("a", 200))

	plan, err := BuildPlan(context.Background(), Options{Root: root, MinSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, plan.ScannedFiles)
	assert.Zero(t, plan.HashedFiles)
}

func TestBuildPlanMinSize(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "small1.bin"), "same")
	writeBytes(t, filepath.Join(root, "small2.bin"), "same")

	plan, err := BuildPlan(context.Background(), Options{Root: root, MinSize: 1024})
	require.NoError(t, err)

	assert.Zero(t, plan.ScannedFiles)
	assert.Empty(t, plan.Candidates)
}

func TestBuildPlanExistingHardLinksExcluded(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("payload", 100)
	a := filepath.Join(root, "a.bin")
	writeBytes(t, a, content)
	require.NoError(t, os.Link(a, filepath.Join(root, "b.bin")))

	plan, err := BuildPlan(context.Background(), Options{Root: root, MinSize: 1})
	require.NoError(t, err)

	// Two paths, one inode: nothing to reclaim.
	assert.Empty(t, plan.Candidates)
}

func TestBuildPlanTrustedRootCanonical(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("payload", 100)
	writeBytes(t, filepath.Join(root, "a", "big.bin"), content)
	writeBytes(t, filepath.Join(root, "trusted", "big.bin"), content)

	plan, err := BuildPlan(context.Background(), Options{
		Root:        root,
		MinSize:     1,
		TrustedRoot: filepath.Join(root, "trusted"),
	})
	require.NoError(t, err)

	require.Len(t, plan.Candidates, 1)
	assert.Equal(t, filepath.Join(root, "trusted", "big.bin"), plan.Candidates[0].CanonicalPath)
	assert.Equal(t, []string{filepath.Join(root, "a", "big.bin")}, plan.Candidates[0].DuplicatePaths)
}

func TestExecuteLinksDuplicates(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("payload", 100)
	canonical := filepath.Join(root, "a", "big.bin")
	dup := filepath.Join(root, "b", "big.bin")
	writeBytes(t, canonical, content)
	writeBytes(t, dup, content)

	opts := Options{Root: root, MinSize: 1, Execute: true}
	plan, err := BuildPlan(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, plan.Candidates, 1)

	result, err := Execute(context.Background(), plan, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, result.LinkedFiles)
	assert.Equal(t, int64(len(content)), result.ReclaimedBytes)

	// Both paths still exist, now sharing one inode, content intact.
	assert.Equal(t, inode(t, canonical), inode(t, dup))
	data, err := os.ReadFile(dup)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	// No temporary link left behind.
	_, err = os.Stat(dup + ".dedup-tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteIdempotent(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("payload", 100)
	writeBytes(t, filepath.Join(root, "a.bin"), content)
	writeBytes(t, filepath.Join(root, "b.bin"), content)

	opts := Options{Root: root, MinSize: 1, Execute: true}
	plan, err := BuildPlan(context.Background(), opts)
	require.NoError(t, err)
	_, err = Execute(context.Background(), plan, opts)
	require.NoError(t, err)

	// A second planning pass over the linked tree finds nothing.
	plan, err = BuildPlan(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, plan.Candidates)
}

func TestRelinkStaleTemp(t *testing.T) {
	root := t.TempDir()
	canonical := filepath.Join(root, "a.bin")
	dup := filepath.Join(root, "b.bin")
	writeBytes(t, canonical, "content")
	writeBytes(t, dup, "content")

	// A crashed earlier attempt left a stale temporary link.
	writeBytes(t, dup+".dedup-tmp", "stale")

	require.NoError(t, relink(canonical, dup))
	assert.Equal(t, inode(t, canonical), inode(t, dup))
}
