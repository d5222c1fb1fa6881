package vfsfs

import (
	"os"
	"time"
)

// Kind discriminates the three inode variants.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Metadata is carried by every inode variant. Mode bits are recorded and
// reported (stat, ls -l) but never enforced — this sandbox has no
// multi-user permission model (spec Non-goals).
type Metadata struct {
	Mode  os.FileMode
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

func newMetadata(mode os.FileMode, now time.Time) Metadata {
	return Metadata{Mode: mode, Atime: now, Mtime: now, Ctime: now}
}

// Inode is the closed set of tagged entities the tree is built from.
// Callers type-switch on Kind() and then type-assert to *File, *Dir, or
// *Symlink; there is no fourth variant.
type Inode interface {
	Kind() Kind
	Meta() *Metadata
}

// File owns a byte buffer and is always a leaf.
type File struct {
	Metadata
	Data []byte
}

func (f *File) Kind() Kind        { return KindFile }
func (f *File) Meta() *Metadata   { return &f.Metadata }
func (f *File) Size() int64       { return int64(len(f.Data)) }

func newFile(mode os.FileMode, now time.Time) *File {
	return &File{Metadata: newMetadata(mode, now)}
}

// Dir owns a mapping from child name to inode. Keys are non-empty and
// contain no "/"; "." and ".." are never stored as keys.
type Dir struct {
	Metadata
	Children map[string]Inode
}

func (d *Dir) Kind() Kind      { return KindDir }
func (d *Dir) Meta() *Metadata { return &d.Metadata }

func newDir(mode os.FileMode, now time.Time) *Dir {
	return &Dir{Metadata: newMetadata(mode|os.ModeDir, now), Children: make(map[string]Inode)}
}

// Symlink owns a target string interpreted against the VFS root at
// resolution time, not at creation time.
type Symlink struct {
	Metadata
	Target string
}

func (s *Symlink) Kind() Kind      { return KindSymlink }
func (s *Symlink) Meta() *Metadata { return &s.Metadata }

func newSymlink(target string, mode os.FileMode, now time.Time) *Symlink {
	return &Symlink{Metadata: newMetadata(mode|os.ModeSymlink, now), Target: target}
}

// cloneInode deep-clones child maps but shares file byte buffers by
// reference. This is safe only because VFS.WriteFile always replaces a
// file's Data slice wholesale rather than mutating it in place — see
// VFS.Snapshot.
func cloneInode(in Inode) Inode {
	switch v := in.(type) {
	case *File:
		cp := *v
		return &cp
	case *Symlink:
		cp := *v
		return &cp
	case *Dir:
		cp := &Dir{Metadata: v.Metadata, Children: make(map[string]Inode, len(v.Children))}
		for name, child := range v.Children {
			cp.Children[name] = cloneInode(child)
		}
		return cp
	default:
		panic("vfsfs: unknown inode kind")
	}
}
