package procfs

import (
	"fmt"
)

// OpenMode mirrors the modes a file handle can be opened with.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeReadWrite
	ModeAppend
)

// ErrBadFd is returned by every fd table operation on a closed or
// unknown fd — WASI's EBADF.
var ErrBadFd = fmt.Errorf("EBADF")

// FileHandle is an inode-backed fd: a path, the mode it was opened
// with, and the current byte offset.
type FileHandle struct {
	Path   string
	Mode   OpenMode
	Offset int64
}

// entry is the tagged union an fd slot holds: exactly one of File or
// Target is non-nil.
type entry struct {
	file   *FileHandle
	target FdTarget
	isDir  bool
}

// dirFdBase is where directory pseudo-fds start, kept disjoint from
// regular fds.
const dirFdBase = 100

// Table is a per-process map from fd to either a file handle or an fd
// target. Fds 0, 1, 2 always carry an fd target (stdin/stdout/stderr).
// It is not safe for concurrent use by design — it belongs to exactly
// one process, and the scheduler is single-threaded.
type Table struct {
	regular   map[int]*entry
	dirs      map[int]*entry
	nextFd    int
	nextDirFd int
}

// New constructs an empty table; callers typically then call
// SetStdTarget for 0, 1, 2.
func New() *Table {
	return &Table{
		regular:   make(map[int]*entry),
		dirs:      make(map[int]*entry),
		nextFd:    3,
		nextDirFd: dirFdBase,
	}
}

// SetStdTarget installs an fd target at a specific low-numbered fd
// (0, 1, 2, or a preopen), growing nextFd past it if necessary.
func (t *Table) SetStdTarget(fd int, target FdTarget) {
	t.regular[fd] = &entry{target: target}
	if fd >= t.nextFd {
		t.nextFd = fd + 1
	}
}

// OpenFile allocates the smallest free fd >= 3 for an inode-backed handle.
func (t *Table) OpenFile(path string, mode OpenMode) int {
	fd := t.allocRegular()
	t.regular[fd] = &entry{file: &FileHandle{Path: path, Mode: mode}}
	return fd
}

// OpenTarget allocates the smallest free fd >= 3 for a non-inode target.
func (t *Table) OpenTarget(target FdTarget) int {
	fd := t.allocRegular()
	t.regular[fd] = &entry{target: target}
	return fd
}

func (t *Table) allocRegular() int {
	for fd := 3; ; fd++ {
		if _, taken := t.regular[fd]; !taken {
			return fd
		}
	}
}

// OpenDir allocates a directory pseudo-fd in the disjoint 100+ range.
func (t *Table) OpenDir(path string) int {
	for {
		if _, taken := t.dirs[t.nextDirFd]; !taken {
			fd := t.nextDirFd
			t.nextDirFd++
			t.dirs[fd] = &entry{file: &FileHandle{Path: path}, isDir: true}
			return fd
		}
		t.nextDirFd++
	}
}

// Lookup returns the file handle and/or target backing fd, or ErrBadFd.
func (t *Table) Lookup(fd int) (*FileHandle, FdTarget, error) {
	e, ok := t.regular[fd]
	if !ok {
		e, ok = t.dirs[fd]
	}
	if !ok {
		return nil, nil, ErrBadFd
	}
	return e.file, e.target, nil
}

// IsDirFd reports whether fd lives in the directory pseudo-fd space.
func (t *Table) IsDirFd(fd int) bool {
	_, ok := t.dirs[fd]
	return ok
}

// Close removes fd from the table, closing the underlying fd target (if
// it is a pipe endpoint) so the peer observes EOF/EPIPE.
func (t *Table) Close(fd int) error {
	e, ok := t.regular[fd]
	if ok {
		delete(t.regular, fd)
	} else if e, ok = t.dirs[fd]; ok {
		delete(t.dirs, fd)
	} else {
		return ErrBadFd
	}
	switch target := e.target.(type) {
	case *PipeReadTarget:
		target.Close()
	case *PipeWriteTarget:
		target.Close()
	}
	return nil
}

// Seek sets a file handle's offset to newOffset. The caller resolves
// whence and the file size against the VFS beforehand; offset is not
// consulted.
func (t *Table) Seek(fd int, offset int64, newOffset int64) error {
	e, ok := t.regular[fd]
	if !ok || e.file == nil {
		return ErrBadFd
	}
	e.file.Offset = newOffset
	return nil
}

// Tell returns a file handle's current offset.
func (t *Table) Tell(fd int) (int64, error) {
	e, ok := t.regular[fd]
	if !ok || e.file == nil {
		return 0, ErrBadFd
	}
	return e.file.Offset, nil
}

// Dup installs target at the smallest free regular fd, used by
// redirections like `2>&1`.
func (t *Table) Dup(target FdTarget) int {
	return t.OpenTarget(target)
}

// SetTarget overwrites fd's target directly — used by `2>&1`-style
// redirections that must land on a specific low-numbered fd rather than
// the next free one.
func (t *Table) SetTarget(fd int, target FdTarget) {
	t.regular[fd] = &entry{target: target}
	if fd >= t.nextFd {
		t.nextFd = fd + 1
	}
}

// Clone returns a shallow copy of the table for a child process's
// default fd inheritance; individual entries are then overridden by
// pipeline construction before spawn.
func (t *Table) Clone() *Table {
	clone := &Table{
		regular:   make(map[int]*entry, len(t.regular)),
		dirs:      make(map[int]*entry, len(t.dirs)),
		nextFd:    t.nextFd,
		nextDirFd: t.nextDirFd,
	}
	for fd, e := range t.regular {
		cp := *e
		clone.regular[fd] = &cp
	}
	for fd, e := range t.dirs {
		cp := *e
		clone.dirs[fd] = &cp
	}
	return clone
}
