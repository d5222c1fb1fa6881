package vfsfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	v := New()
	for _, d := range DefaultDirs {
		in, err := v.Stat(d)
		require.NoError(t, err, d)
		assert.Equal(t, KindDir, in.Kind())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("hello")))
	data, err := v.ReadFile("/home/user/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteOutsideWritablePrefixFails(t *testing.T) {
	v := New()
	before := v.TotalBytes()
	err := v.WriteFile("/usr/bin/evil", []byte("x"))
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, before, v.TotalBytes())
}

func TestQuotaEnforcedOnWrite(t *testing.T) {
	v := New(WithLimits(Limits{FSLimitBytes: 500}))
	before := v.TotalBytes()
	err := v.WriteFile("/home/user/big.txt", make([]byte, 1000))
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, before, v.TotalBytes())
}

func TestFileCountLimit(t *testing.T) {
	v := New(WithLimits(Limits{FileCountLimit: 0}))
	// Zero means unlimited per this implementation's convention; set a
	// real cap instead.
	v = New(WithLimits(Limits{FileCountLimit: int64(len(DefaultDirs)) + 1}))
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("x")))
	err := v.WriteFile("/home/user/b.txt", []byte("y"))
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestMkdirRmdir(t *testing.T) {
	v := New()
	require.NoError(t, v.Mkdir("/home/user/sub", 0755))
	_, err := v.Stat("/home/user/sub")
	require.NoError(t, err)

	require.NoError(t, v.WriteFile("/home/user/sub/f", []byte("x")))
	assert.ErrorIs(t, v.Rmdir("/home/user/sub"), ErrNotEmpty)

	require.NoError(t, v.Unlink("/home/user/sub/f"))
	require.NoError(t, v.Rmdir("/home/user/sub"))
}

func TestSymlinkResolution(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/real.txt", []byte("data")))
	require.NoError(t, v.Symlink("/home/user/link.txt", "/home/user/real.txt"))

	data, err := v.ReadFile("/home/user/link.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	target, err := v.Readlink("/home/user/link.txt")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/real.txt", target)
}

func TestSymlinkCycleIsBounded(t *testing.T) {
	v := New()
	require.NoError(t, v.Symlink("/home/user/a", "/home/user/b"))
	require.NoError(t, v.Symlink("/home/user/b", "/home/user/a"))

	_, err := v.ReadFile("/home/user/a")
	assert.ErrorIs(t, err, ErrTooManyLink)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("before")))
	id := v.Snapshot()

	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("after-mutation")))
	require.NoError(t, v.WriteFile("/home/user/b.txt", []byte("new file")))

	require.NoError(t, v.Restore(id))

	data, err := v.ReadFile("/home/user/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))

	_, err = v.Stat("/home/user/b.txt")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileCountAndTotalBytesInvariant(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("12345")))
	require.NoError(t, v.Mkdir("/home/user/sub", 0755))
	require.NoError(t, v.WriteFile("/home/user/sub/b.txt", []byte("67")))

	assert.Equal(t, int64(len(DefaultDirs)+3), v.FileCount()) // default layout, a.txt, sub, sub/b.txt
	assert.Equal(t, int64(7), v.TotalBytes())
}

func TestCloneIsIndependent(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("orig")))
	clone := v.Clone()

	require.NoError(t, clone.WriteFile("/home/user/a.txt", []byte("changed")))

	data, err := v.ReadFile("/home/user/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "orig", string(data))
}

func TestRenamePreservesInode(t *testing.T) {
	v := New()
	require.NoError(t, v.WriteFile("/home/user/a.txt", []byte("data")))
	require.NoError(t, v.Rename("/home/user/a.txt", "/home/user/b.txt"))

	_, err := v.Stat("/home/user/a.txt")
	assert.ErrorIs(t, err, ErrNotExist)

	data, err := v.ReadFile("/home/user/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestCdNormalizationIsLexical(t *testing.T) {
	// ".." is normalized lexically against the path string, not by
	// walking the inode tree, so a symlinked "a" doesn't change where
	// "a/.." lands.
	v := New()
	require.NoError(t, v.Mkdir("/home/user/real", 0755))
	require.NoError(t, v.Symlink("/home/user/a", "/home/user/real"))

	joined := Join("/home/user", "a/..")
	assert.Equal(t, "/home/user", joined)
}
