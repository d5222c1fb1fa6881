package wasihost

import "github.com/googlecloudplatform/wasmsand/vfsfs"

// direntHeaderSize is the fixed portion of a dirent entry preceding its
// variable-length name:
//
//	d_next   u64 @0
//	d_ino    u64 @8
//	d_namlen u32 @16
//	d_type   u8  @20
//	pad      3B  @21
const direntHeaderSize = 24

// encodeDirent appends one WASI dirent record (header + name, no NUL
// terminator) to buf.
func encodeDirent(buf []byte, next uint64, entry vfsfs.DirEntry) []byte {
	header := make([]byte, direntHeaderSize)
	putU64(header, 0, next)
	putU64(header, 8, 0) // ino: not tracked per-inode identity beyond the tree
	putU32(header, 16, uint32(len(entry.Name)))
	header[20] = filetypeForKind(entry.Kind)
	buf = append(buf, header...)
	buf = append(buf, entry.Name...)
	return buf
}

func filetypeForKind(k vfsfs.Kind) byte {
	switch k {
	case vfsfs.KindDir:
		return FiletypeDirectory
	case vfsfs.KindSymlink:
		return FiletypeSymbolicLink
	default:
		return FiletypeRegularFile
	}
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putU64(b []byte, off int, v uint64) {
	putU32(b, off, uint32(v))
	putU32(b, off+4, uint32(v>>32))
}
