package vfsfs

import "os"

// DirEntry is one row of a directory listing, returned by both the real
// tree and virtual providers.
type DirEntry struct {
	Name  string
	Kind  Kind
	Mode  os.FileMode
	Size  int64
}

// VirtualProvider synthesizes inode-like responses for a subtree without
// any backing inode, e.g. "/dev" or "/proc". Provider lookups take
// precedence over the real tree.
type VirtualProvider interface {
	Stat(path string) (DirEntry, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	ReadDir(path string) ([]DirEntry, error)
}

// providerFor returns the provider mounted at or above path, plus the
// path relative to the mount point, if any provider claims it.
func (v *VFS) providerFor(path string) (VirtualProvider, string, bool) {
	for mount, p := range v.providers {
		if path == mount {
			return p, "/", true
		}
		if len(path) > len(mount) && path[len(mount)] == '/' && path[:len(mount)] == mount {
			return p, path[len(mount):], true
		}
	}
	return nil, "", false
}
