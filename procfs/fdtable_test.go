package procfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdFdsPresent(t *testing.T) {
	table := New()
	table.SetStdTarget(0, NullTarget{})
	table.SetStdTarget(1, NewBufferTarget(0))
	table.SetStdTarget(2, NewBufferTarget(0))

	for _, fd := range []int{0, 1, 2} {
		_, target, err := table.Lookup(fd)
		require.NoError(t, err)
		assert.NotNil(t, target)
	}
}

func TestSmallestFreeFdAllocation(t *testing.T) {
	table := New()
	table.SetStdTarget(0, NullTarget{})
	table.SetStdTarget(1, NullTarget{})
	table.SetStdTarget(2, NullTarget{})

	fd1 := table.OpenFile("/home/user/a", ModeRead)
	assert.Equal(t, 3, fd1)

	require.NoError(t, table.Close(fd1))
	fd2 := table.OpenFile("/home/user/b", ModeRead)
	assert.Equal(t, 3, fd2, "closed fd should be reused before allocating a new one")
}

func TestDirFdsAreDisjointFromRegularFds(t *testing.T) {
	table := New()
	dfd := table.OpenDir("/home/user")
	assert.GreaterOrEqual(t, dfd, dirFdBase)
	assert.True(t, table.IsDirFd(dfd))

	ffd := table.OpenFile("/home/user/a", ModeRead)
	assert.Less(t, ffd, dirFdBase)
}

func TestCloseUnknownFdIsEBADF(t *testing.T) {
	table := New()
	assert.ErrorIs(t, table.Close(42), ErrBadFd)
}

func TestSeekAndTell(t *testing.T) {
	table := New()
	fd := table.OpenFile("/home/user/a", ModeRead)
	require.NoError(t, table.Seek(fd, 0, 10))
	off, err := table.Tell(fd)
	require.NoError(t, err)
	assert.EqualValues(t, 10, off)
}

func TestBufferTargetTruncation(t *testing.T) {
	b := NewBufferTarget(4)
	_, err := b.WriteBytes([]byte("hello world"))
	require.NoError(t, err)
	assert.True(t, b.Truncated())
	assert.Equal(t, "hell", string(b.Bytes()))
}

func TestPipeTargetsRouteThroughPipe(t *testing.T) {
	pipe := NewPipe(16)
	w := &PipeWriteTarget{Pipe: pipe}
	r := &PipeReadTarget{Pipe: pipe}

	_, err := w.WriteBytes([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := r.ReadBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}
