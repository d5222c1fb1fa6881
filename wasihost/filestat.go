package wasihost

import "github.com/googlecloudplatform/wasmsand/vfsfs"

// WASI filetype tags, as they appear in both fd_filestat_get's filestat
// struct and fd_readdir's dirent entries.
const (
	FiletypeUnknown         = 0
	FiletypeBlockDevice     = 1
	FiletypeCharacterDevice = 2
	FiletypeDirectory       = 3
	FiletypeRegularFile     = 4
	FiletypeSocketDgram     = 5
	FiletypeSocketStream    = 6
	FiletypeSymbolicLink    = 7
)

// filestatSize is the fixed wire size of the filestat struct.
const filestatSize = 64

func filetypeOf(in vfsfs.Inode) byte {
	switch in.Kind() {
	case vfsfs.KindDir:
		return FiletypeDirectory
	case vfsfs.KindSymlink:
		return FiletypeSymbolicLink
	default:
		return FiletypeRegularFile
	}
}

// putFilestat writes the 64-byte filestat struct at offset:
//
//	dev   u64 @0
//	ino   u64 @8
//	ftype u8  @16 (padded to 24)
//	nlink u64 @24
//	size  u64 @32
//	atim  u64 @40 (nanoseconds since epoch)
//	mtim  u64 @48
//	ctim  u64 @56
func putFilestat(mem GuestMemory, offset uint32, in vfsfs.Inode, size uint64) bool {
	meta := in.Meta()
	ok := mem.WriteUint64Le(offset+0, 0) // dev: single synthetic device
	ok = ok && mem.WriteUint64Le(offset+8, 0)
	ok = ok && mem.Write(offset+16, []byte{filetypeOf(in)})
	ok = ok && mem.WriteUint64Le(offset+24, 1) // nlink
	ok = ok && mem.WriteUint64Le(offset+32, size)
	ok = ok && mem.WriteUint64Le(offset+40, uint64(meta.Atime.UnixNano()))
	ok = ok && mem.WriteUint64Le(offset+48, uint64(meta.Mtime.UnixNano()))
	ok = ok && mem.WriteUint64Le(offset+56, uint64(meta.Ctime.UnixNano()))
	return ok
}
