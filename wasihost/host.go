package wasihost

import (
	"encoding/binary"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

// Host implements the WASI Preview 1 calls a guest module imports. One
// Host is constructed per running guest; it is not safe to share across
// concurrently executing guests because fds and cwd are per-process
// state and the scheduler runs one guest at a time.
type Host struct {
	VFS   *vfsfs.VFS
	Fds   *procfs.Table
	Clock clock.Clock

	Args []string
	Env  []string
	Cwd  string

	Exited   bool
	ExitCode uint32
}

// NewHost wires a guest's WASI surface to its own fd table and a shared
// (or cloned) VFS.
func NewHost(v *vfsfs.VFS, fds *procfs.Table, args, env []string, cwd string, c clock.Clock) *Host {
	return &Host{VFS: v, Fds: fds, Clock: c, Args: args, Env: env, Cwd: cwd}
}

func (h *Host) resolvePath(mem GuestMemory, pathPtr, pathLen uint32) (string, Errno) {
	b, ok := mem.Read(pathPtr, pathLen)
	if !ok {
		return "", ErrnoFault
	}
	return vfsfs.Join(h.Cwd, string(b)), ErrnoSuccess
}

// ArgsSizesGet reports the guest's argv count and total buffer size
// (including NUL terminators).
func (h *Host) ArgsSizesGet(mem GuestMemory, argcOut, bufSizeOut uint32) Errno {
	total := 0
	for _, a := range h.Args {
		total += len(a) + 1
	}
	if !mem.WriteUint32Le(argcOut, uint32(len(h.Args))) || !mem.WriteUint32Le(bufSizeOut, uint32(total)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// ArgsGet writes argv as an array of guest pointers into argvOut, with
// the NUL-terminated string bodies packed into bufOut.
func (h *Host) ArgsGet(mem GuestMemory, argvOut, bufOut uint32) Errno {
	return writeStringTable(mem, h.Args, argvOut, bufOut)
}

// EnvironSizesGet mirrors ArgsSizesGet for the environment block.
func (h *Host) EnvironSizesGet(mem GuestMemory, countOut, bufSizeOut uint32) Errno {
	total := 0
	for _, e := range h.Env {
		total += len(e) + 1
	}
	if !mem.WriteUint32Le(countOut, uint32(len(h.Env))) || !mem.WriteUint32Le(bufSizeOut, uint32(total)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// EnvironGet mirrors ArgsGet for the environment block.
func (h *Host) EnvironGet(mem GuestMemory, envOut, bufOut uint32) Errno {
	return writeStringTable(mem, h.Env, envOut, bufOut)
}

func writeStringTable(mem GuestMemory, values []string, ptrsOut, bufOut uint32) Errno {
	cursor := bufOut
	for i, v := range values {
		if !mem.WriteUint32Le(ptrsOut+uint32(i*4), cursor) {
			return ErrnoFault
		}
		if !mem.Write(cursor, append([]byte(v), 0)) {
			return ErrnoFault
		}
		cursor += uint32(len(v) + 1)
	}
	return ErrnoSuccess
}

// iovec is {buf u32, len u32}.
func readIovec(mem GuestMemory, ptr uint32) (bufPtr, bufLen uint32, ok bool) {
	bufPtr, ok = mem.ReadUint32Le(ptr)
	if !ok {
		return 0, 0, false
	}
	bufLen, ok = mem.ReadUint32Le(ptr + 4)
	return bufPtr, bufLen, ok
}

// FdRead scatters from fd's target into the iovec array, WASI's
// readv-equivalent.
func (h *Host) FdRead(mem GuestMemory, fd, iovsPtr, iovsLen, nreadOut uint32) Errno {
	_, target, err := h.Fds.Lookup(int(fd))
	if err != nil {
		return ErrnoBadf
	}
	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		bufPtr, bufLen, ok := readIovec(mem, iovsPtr+i*8)
		if !ok {
			return ErrnoFault
		}
		chunk := make([]byte, bufLen)
		n, rerr := target.ReadBytes(chunk)
		if n > 0 {
			if !mem.Write(bufPtr, chunk[:n]) {
				return ErrnoFault
			}
			total += uint32(n)
		}
		if rerr != nil {
			break
		}
		if uint32(n) < bufLen {
			break
		}
	}
	if !mem.WriteUint32Le(nreadOut, total) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdWrite gathers the iovec array into fd's target, WASI's
// writev-equivalent.
func (h *Host) FdWrite(mem GuestMemory, fd, iovsPtr, iovsLen, nwrittenOut uint32) Errno {
	_, target, err := h.Fds.Lookup(int(fd))
	if err != nil {
		return ErrnoBadf
	}
	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		bufPtr, bufLen, ok := readIovec(mem, iovsPtr+i*8)
		if !ok {
			return ErrnoFault
		}
		b, ok := mem.Read(bufPtr, bufLen)
		if !ok {
			return ErrnoFault
		}
		n, werr := target.WriteBytes(b)
		total += uint32(n)
		if werr != nil {
			if werr == procfs.ErrPipeClosed {
				return ErrnoPipe
			}
			return ErrnoInval
		}
	}
	if !mem.WriteUint32Le(nwrittenOut, total) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdClose releases fd, propagating EOF/EPIPE to any pipe peer.
func (h *Host) FdClose(fd uint32) Errno {
	if err := h.Fds.Close(int(fd)); err != nil {
		return ErrnoBadf
	}
	return ErrnoSuccess
}

// FdSeek repositions a file handle's offset.
func (h *Host) FdSeek(mem GuestMemory, fd uint32, offset int64, whence uint32, newoffsetOut uint32) Errno {
	file, _, err := h.Fds.Lookup(int(fd))
	if err != nil || file == nil {
		return ErrnoBadf
	}
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = file.Offset
	case 2:
		stat, serr := h.VFS.Stat(file.Path)
		if serr != nil {
			return fromVFSError(serr)
		}
		if f, ok := stat.(*vfsfs.File); ok {
			base = f.Size()
		}
	default:
		return ErrnoInval
	}
	newOffset := base + offset
	if newOffset < 0 {
		return ErrnoInval
	}
	if err := h.Fds.Seek(int(fd), offset, newOffset); err != nil {
		return ErrnoBadf
	}
	if !mem.WriteUint64Le(newoffsetOut, uint64(newOffset)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdTell reports a file handle's current offset without moving it.
func (h *Host) FdTell(mem GuestMemory, fd, offsetOut uint32) Errno {
	off, err := h.Fds.Tell(int(fd))
	if err != nil {
		return ErrnoBadf
	}
	if !mem.WriteUint64Le(offsetOut, uint64(off)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// fdstat is {fs_filetype u8 @0, pad, fs_flags u16 @2, pad, fs_rights_base
// u64 @8, fs_rights_inheriting u64 @16}, 24 bytes total.
func (h *Host) FdFdstatGet(mem GuestMemory, fd, statOut uint32) Errno {
	file, target, err := h.Fds.Lookup(int(fd))
	if err != nil {
		return ErrnoBadf
	}
	ftype := byte(FiletypeRegularFile)
	if file == nil && target != nil {
		ftype = FiletypeCharacterDevice
	} else if file != nil {
		if in, serr := h.VFS.Lstat(file.Path); serr == nil {
			ftype = filetypeOf(in)
		}
	}
	buf := make([]byte, 24)
	buf[0] = ftype
	binary.LittleEndian.PutUint64(buf[8:], ^uint64(0))
	binary.LittleEndian.PutUint64(buf[16:], ^uint64(0))
	if !mem.Write(statOut, buf) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdFilestatGet writes the full 64-byte filestat for an already-open fd.
func (h *Host) FdFilestatGet(mem GuestMemory, fd, bufOut uint32) Errno {
	file, _, err := h.Fds.Lookup(int(fd))
	if err != nil || file == nil {
		return ErrnoBadf
	}
	in, serr := h.VFS.Stat(file.Path)
	if serr != nil {
		return fromVFSError(serr)
	}
	var size uint64
	if f, ok := in.(*vfsfs.File); ok {
		size = uint64(f.Size())
	}
	if !putFilestat(mem, bufOut, in, size) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdPrestatGet reports a preopen's type and name length; this sandbox
// exposes exactly one preopen, "/", at fd 3.
func (h *Host) FdPrestatGet(mem GuestMemory, fd, prestatOut uint32) Errno {
	if fd != 3 {
		return ErrnoBadf
	}
	buf := make([]byte, 8)
	buf[0] = 0 // __WASI_PREOPENTYPE_DIR
	binary.LittleEndian.PutUint32(buf[4:], 1)
	if !mem.Write(prestatOut, buf) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdPrestatDirName writes the preopen's path ("/").
func (h *Host) FdPrestatDirName(mem GuestMemory, fd, pathOut, pathLen uint32) Errno {
	if fd != 3 || pathLen < 1 {
		return ErrnoInval
	}
	if !mem.Write(pathOut, []byte("/")) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdReaddir fills buf with as many dirent records as fit, starting after
// cookie entries, WASI's getdents-equivalent.
func (h *Host) FdReaddir(mem GuestMemory, fd, bufPtr, bufLen uint32, cookie uint64, bufUsedOut uint32) Errno {
	file, _, err := h.Fds.Lookup(int(fd))
	if err != nil || file == nil {
		return ErrnoBadf
	}
	entries, serr := h.VFS.ReadDir(file.Path)
	if serr != nil {
		return fromVFSError(serr)
	}
	var out []byte
	for i := cookie; i < uint64(len(entries)); i++ {
		encoded := encodeDirent(nil, i+1, entries[i])
		if uint32(len(out)+len(encoded)) > bufLen {
			out = append(out, encoded[:bufLen-uint32(len(out))]...)
			break
		}
		out = append(out, encoded...)
	}
	if !mem.Write(bufPtr, out) {
		return ErrnoFault
	}
	if !mem.WriteUint32Le(bufUsedOut, uint32(len(out))) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// PathOpen resolves a path relative to cwd and opens a regular or
// directory fd for it, creating the file first if O_CREAT-equivalent
// oflags request it.
func (h *Host) PathOpen(mem GuestMemory, pathPtr, pathLen uint32, oflags uint32, mode procfs.OpenMode, fdOut uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	const oflagCreat = 1
	const oflagDirectory = 2
	if _, err := h.VFS.Stat(p); err != nil {
		if err == vfsfs.ErrNotExist && oflags&oflagCreat != 0 {
			if werr := h.VFS.WriteFile(p, nil); werr != nil {
				return fromVFSError(werr)
			}
		} else {
			return fromVFSError(err)
		}
	}
	var fd int
	if oflags&oflagDirectory != 0 {
		fd = h.Fds.OpenDir(p)
	} else {
		fd = h.Fds.OpenFile(p, mode)
	}
	if !mem.WriteUint32Le(fdOut, uint32(fd)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// PathCreateDirectory is mkdir.
func (h *Host) PathCreateDirectory(mem GuestMemory, pathPtr, pathLen uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	return fromVFSError(h.VFS.Mkdir(p, 0755))
}

// PathRemoveDirectory is rmdir.
func (h *Host) PathRemoveDirectory(mem GuestMemory, pathPtr, pathLen uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	return fromVFSError(h.VFS.Rmdir(p))
}

// PathUnlinkFile is unlink.
func (h *Host) PathUnlinkFile(mem GuestMemory, pathPtr, pathLen uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	return fromVFSError(h.VFS.Unlink(p))
}

// PathRename moves oldPath to newPath.
func (h *Host) PathRename(mem GuestMemory, oldPtr, oldLen, newPtr, newLen uint32) Errno {
	oldP, perrno := h.resolvePath(mem, oldPtr, oldLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	newP, perrno := h.resolvePath(mem, newPtr, newLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	return fromVFSError(h.VFS.Rename(oldP, newP))
}

// PathFilestatGet stats a path without requiring an open fd.
func (h *Host) PathFilestatGet(mem GuestMemory, pathPtr, pathLen, bufOut uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	in, err := h.VFS.Stat(p)
	if err != nil {
		return fromVFSError(err)
	}
	var size uint64
	if f, ok := in.(*vfsfs.File); ok {
		size = uint64(f.Size())
	}
	if !putFilestat(mem, bufOut, in, size) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// PathSymlink creates a symlink at linkPath pointing at target.
func (h *Host) PathSymlink(mem GuestMemory, targetPtr, targetLen, linkPtr, linkLen uint32) Errno {
	targetBytes, ok := mem.Read(targetPtr, targetLen)
	if !ok {
		return ErrnoFault
	}
	linkP, perrno := h.resolvePath(mem, linkPtr, linkLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	return fromVFSError(h.VFS.Symlink(linkP, string(targetBytes)))
}

// PathReadlink reads a symlink's raw target into buf.
func (h *Host) PathReadlink(mem GuestMemory, pathPtr, pathLen, bufPtr, bufLen, bufUsedOut uint32) Errno {
	p, perrno := h.resolvePath(mem, pathPtr, pathLen)
	if perrno != ErrnoSuccess {
		return perrno
	}
	target, err := h.VFS.Readlink(p)
	if err != nil {
		return fromVFSError(err)
	}
	b := []byte(target)
	if uint32(len(b)) > bufLen {
		b = b[:bufLen]
	}
	if !mem.Write(bufPtr, b) {
		return ErrnoFault
	}
	if !mem.WriteUint32Le(bufUsedOut, uint32(len(b))) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// ClockTimeGet reports wall-clock time in nanoseconds since the epoch,
// ignoring the clock id (only realtime is meaningful in this sandbox).
func (h *Host) ClockTimeGet(mem GuestMemory, _ uint32, _ uint64, timeOut uint32) Errno {
	if !mem.WriteUint64Le(timeOut, uint64(h.Clock.Now().UnixNano())) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// RandomGet fills buf with cryptographically random bytes.
func (h *Host) RandomGet(mem GuestMemory, bufPtr, bufLen uint32) Errno {
	b := make([]byte, bufLen)
	if _, err := randRead(b); err != nil {
		return ErrnoInval
	}
	if !mem.Write(bufPtr, b) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// ProcExit records the guest's requested exit code; the caller (the
// guest driver loop) observes Exited and stops running further code,
// mirroring a trap rather than a normal return: proc_exit does not
// return to its caller.
func (h *Host) ProcExit(code uint32) {
	h.Exited = true
	h.ExitCode = code
}

// SchedYield is a cooperative-scheduling hint; Go's own goroutine
// scheduler already interleaves guests, so this is a no-op that always
// succeeds.
func (h *Host) SchedYield() Errno { return ErrnoSuccess }

// Unimplemented syscalls the spec scopes out (async I/O readiness,
// sockets): always ENOSYS.
func (h *Host) FdPread(GuestMemory, uint32, uint32, uint32, uint64, uint32) Errno { return ErrnoNosys }
func (h *Host) PollOneoff(GuestMemory, uint32, uint32, uint32, uint32) Errno      { return ErrnoNosys }
func (h *Host) SockAccept(uint32, uint32, uint32) Errno                           { return ErrnoNosys }
func (h *Host) SockRecv(GuestMemory, uint32, uint32, uint32, uint32, uint32, uint32) Errno {
	return ErrnoNosys
}
func (h *Host) SockSend(GuestMemory, uint32, uint32, uint32, uint32, uint32) Errno { return ErrnoNosys }
