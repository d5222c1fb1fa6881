package wasihost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

func newTestHost(t *testing.T) (*Host, *procfs.Table) {
	t.Helper()
	fds := procfs.New()
	fds.SetStdTarget(0, procfs.NullTarget{})
	out := procfs.NewBufferTarget(0)
	fds.SetStdTarget(1, out)
	fds.SetStdTarget(2, procfs.NewBufferTarget(0))

	v := vfsfs.New(vfsfs.WithClock(clock.NewSimulatedClock(clock.RealClock{}.Now())))
	h := NewHost(v, fds, []string{"prog", "a"}, []string{"HOME=/home/user"}, "/home/user", clock.RealClock{})
	return h, fds
}

func TestArgsAndEnvironRoundTrip(t *testing.T) {
	h, _ := newTestHost(t)
	mem := NewSliceMemory(4096)

	require.Equal(t, ErrnoSuccess, h.ArgsSizesGet(mem, 0, 4))
	argc, _ := mem.ReadUint32Le(0)
	bufSize, _ := mem.ReadUint32Le(4)
	assert.EqualValues(t, 2, argc)
	assert.EqualValues(t, len("prog")+1+len("a")+1, bufSize)

	ptrsOut, bufOut := uint32(64), uint32(256)
	require.Equal(t, ErrnoSuccess, h.ArgsGet(mem, ptrsOut, bufOut))
	firstPtr, _ := mem.ReadUint32Le(ptrsOut)
	assert.EqualValues(t, bufOut, firstPtr)
	b, _ := mem.Read(bufOut, 5)
	assert.Equal(t, "prog\x00", string(b))
}

func TestFdWriteAccumulatesIntoBuffer(t *testing.T) {
	h, fds := newTestHost(t)
	mem := NewSliceMemory(4096)

	msg := "hello\n"
	require.True(t, mem.Write(100, []byte(msg)))
	require.True(t, mem.WriteUint32Le(0, 100))          // iov.buf
	require.True(t, mem.WriteUint32Le(4, uint32(len(msg)))) // iov.len

	errno := h.FdWrite(mem, 1, 0, 1, 200)
	require.Equal(t, ErrnoSuccess, errno)
	nwritten, _ := mem.ReadUint32Le(200)
	assert.EqualValues(t, len(msg), nwritten)

	_, target, err := fds.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, msg, string(target.(*procfs.BufferTarget).Bytes()))
}

func TestFdReadAcrossShortIovecs(t *testing.T) {
	h, fds := newTestHost(t)
	fds.SetStdTarget(0, procfs.NewStaticTarget([]byte("abcdef")))
	mem := NewSliceMemory(4096)

	// Two 3-byte iovecs should together drain all 6 bytes in one fd_read.
	require.True(t, mem.WriteUint32Le(0, 300))
	require.True(t, mem.WriteUint32Le(4, 3))
	require.True(t, mem.WriteUint32Le(8, 310))
	require.True(t, mem.WriteUint32Le(12, 3))

	errno := h.FdRead(mem, 0, 0, 2, 400)
	require.Equal(t, ErrnoSuccess, errno)
	n, _ := mem.ReadUint32Le(400)
	assert.EqualValues(t, 6, n)
	first, _ := mem.Read(300, 3)
	second, _ := mem.Read(310, 3)
	assert.Equal(t, "abc", string(first))
	assert.Equal(t, "def", string(second))
}

func TestPathOpenCreatesFileThenFilestatGet(t *testing.T) {
	h, _ := newTestHost(t)
	mem := NewSliceMemory(4096)

	pathPtr := uint32(50)
	path := "note.txt"
	require.True(t, mem.Write(pathPtr, []byte(path)))

	const oflagCreat = 1
	fdOut := uint32(500)
	errno := h.PathOpen(mem, pathPtr, uint32(len(path)), oflagCreat, procfs.ModeReadWrite, fdOut)
	require.Equal(t, ErrnoSuccess, errno)
	fd, _ := mem.ReadUint32Le(fdOut)
	assert.GreaterOrEqual(t, fd, uint32(3))

	statOut := uint32(600)
	errno = h.FdFilestatGet(mem, fd, statOut)
	require.Equal(t, ErrnoSuccess, errno)
	ftype, _ := mem.Read(statOut+16, 1)
	assert.Equal(t, byte(FiletypeRegularFile), ftype[0])
}

func TestFdReaddirResumesFromCookie(t *testing.T) {
	h, _ := newTestHost(t)
	mem := NewSliceMemory(8192)

	require.NoError(t, h.VFS.Mkdir("/home/user/sub", 0755))
	require.NoError(t, h.VFS.WriteFile("/home/user/one.txt", []byte("x")))

	pathPtr := uint32(50)
	path := "/home/user"
	require.True(t, mem.Write(pathPtr, []byte(path)))
	fdOut := uint32(900)
	require.Equal(t, ErrnoSuccess, h.PathOpen(mem, pathPtr, uint32(len(path)), 2, procfs.ModeRead, fdOut))
	fd, _ := mem.ReadUint32Le(fdOut)

	bufUsedOut := uint32(1000)
	errno := h.FdReaddir(mem, fd, 2000, 4096, 0, bufUsedOut)
	require.Equal(t, ErrnoSuccess, errno)
	used, _ := mem.ReadUint32Le(bufUsedOut)
	assert.Greater(t, used, uint32(0))
}

func TestProcExitRecordsCodeWithoutPanicking(t *testing.T) {
	h, _ := newTestHost(t)
	assert.False(t, h.Exited)
	h.ProcExit(42)
	assert.True(t, h.Exited)
	assert.EqualValues(t, 42, h.ExitCode)
}

func TestClockTimeGetReportsNonZero(t *testing.T) {
	h, _ := newTestHost(t)
	mem := NewSliceMemory(64)
	require.Equal(t, ErrnoSuccess, h.ClockTimeGet(mem, 0, 0, 0))
	ns, _ := mem.ReadUint64Le(0)
	assert.Greater(t, ns, uint64(0))
}

func TestFdWriteAfterReaderClosedReturnsEPIPE(t *testing.T) {
	h, fds := newTestHost(t)
	pipe := procfs.NewPipe(16)
	pipe.CloseReader()
	wfd := fds.OpenTarget(&procfs.PipeWriteTarget{Pipe: pipe})

	mem := NewSliceMemory(4096)
	require.True(t, mem.Write(10, []byte("x")))
	require.True(t, mem.WriteUint32Le(0, 10))
	require.True(t, mem.WriteUint32Le(4, 1))

	errno := h.FdWrite(mem, uint32(wfd), 0, 1, 20)
	assert.Equal(t, ErrnoPipe, errno)
}
