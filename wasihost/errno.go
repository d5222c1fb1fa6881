// Package wasihost implements the WASI Preview 1 ABI over vfsfs and
// procfs: for each syscall it reads arguments from
// guest linear memory, dispatches to the VFS / fd table / fd target,
// and writes results back, returning a WASI errno.
package wasihost

import "github.com/googlecloudplatform/wasmsand/vfsfs"

// Errno is the 16-bit WASI return code every syscall reports.
type Errno uint16

const (
	ErrnoSuccess Errno = 0
	ErrnoBadf    Errno = 8
	ErrnoExist   Errno = 20
	ErrnoFault   Errno = 21
	ErrnoInval   Errno = 28
	ErrnoIsdir   Errno = 31
	ErrnoLoop    Errno = 32
	ErrnoNoent   Errno = 44
	ErrnoNosys   Errno = 52
	ErrnoNospc   Errno = 51
	ErrnoNotdir  Errno = 54
	ErrnoNotempty Errno = 55
	ErrnoPipe    Errno = 64
	ErrnoRofs    Errno = 69
	ErrnoAcces   Errno = 2
	ErrnoIntr    Errno = 27
	ErrnoTimedout Errno = 73
)

// fromVFSError maps a vfsfs sentinel error onto its WASI errno.
func fromVFSError(err error) Errno {
	switch err {
	case nil:
		return ErrnoSuccess
	case vfsfs.ErrNotExist:
		return ErrnoNoent
	case vfsfs.ErrExist:
		return ErrnoExist
	case vfsfs.ErrNotDir:
		return ErrnoNotdir
	case vfsfs.ErrIsDir:
		return ErrnoIsdir
	case vfsfs.ErrNotEmpty:
		return ErrnoNotempty
	case vfsfs.ErrNoSpace:
		return ErrnoNospc
	case vfsfs.ErrReadOnly:
		return ErrnoRofs
	case vfsfs.ErrAccess:
		return ErrnoAcces
	case vfsfs.ErrTooManyLink:
		return ErrnoLoop
	case vfsfs.ErrInvalid:
		return ErrnoInval
	default:
		return ErrnoInval
	}
}
