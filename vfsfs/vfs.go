// Package vfsfs implements the sandbox's virtual filesystem: an
// inode-based in-memory tree with POSIX path semantics, copy-on-write
// snapshots, a writable-path policy, quota accounting, and pluggable
// virtual providers. It is the only thing in this module that ever
// touches guest file content; the real host filesystem is never
// consulted.
package vfsfs

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
)

// DefaultWritablePrefixes lists the only path prefixes that may be
// mutated unless the embedder overrides them.
var DefaultWritablePrefixes = []string{"/home/user", "/tmp"}

// DefaultDirs is the layout a freshly constructed VFS starts with.
var DefaultDirs = []string{"/home", "/home/user", "/tmp", "/bin", "/usr", "/usr/bin", "/mnt"}

// Limits bounds byte and file-count usage. A zero value of a given field
// means "unlimited" for that dimension.
type Limits struct {
	FSLimitBytes   int64
	FileCountLimit int64
}

// OnChangeFunc is invoked after every successful mutation, with the path
// that changed. Used by the shell/WASI layers to invalidate directory
// fd cookies, and by callers that want an audit trail.
type OnChangeFunc func(path string)

// VFS owns the root inode exclusively; every other component reaches
// guest file content only through its methods, which are not
// goroutine-safe — the cooperative single-threaded scheduler is what
// makes that safe in practice.
type VFS struct {
	root             *Dir
	writablePrefixes []string
	limits           Limits
	providers        map[string]VirtualProvider
	snapshots        map[string]*snapshotRecord
	onChange         OnChangeFunc
	clock            clock.Clock

	fileCount  int64
	totalBytes int64
}

type snapshotRecord struct {
	root       *Dir
	fileCount  int64
	totalBytes int64
}

// Option configures a VFS at construction time.
type Option func(*VFS)

// WithLimits sets the byte/file-count quota.
func WithLimits(l Limits) Option { return func(v *VFS) { v.limits = l } }

// WithWritablePrefixes overrides DefaultWritablePrefixes.
func WithWritablePrefixes(prefixes ...string) Option {
	return func(v *VFS) { v.writablePrefixes = append([]string(nil), prefixes...) }
}

// WithClock overrides the default real clock, for deterministic tests.
func WithClock(c clock.Clock) Option { return func(v *VFS) { v.clock = c } }

// WithOnChange registers a mutation callback.
func WithOnChange(f OnChangeFunc) Option { return func(v *VFS) { v.onChange = f } }

// New constructs a VFS with the default layout.
func New(opts ...Option) *VFS {
	v := &VFS{
		writablePrefixes: append([]string(nil), DefaultWritablePrefixes...),
		providers:        make(map[string]VirtualProvider),
		snapshots:        make(map[string]*snapshotRecord),
		clock:            clock.RealClock{},
	}
	for _, opt := range opts {
		opt(v)
	}
	now := v.clock.Now()
	v.root = newDir(0755, now)
	for _, d := range DefaultDirs {
		if _, _, err := v.mkdirLocked(d, now); err != nil && err != ErrExist {
			panic("vfsfs: failed to seed default layout: " + err.Error())
		}
	}
	return v
}

// RegisterProvider mounts p at mount (e.g. "/dev", "/proc"). Provider
// lookups take precedence over the real tree for any path under mount.
func (v *VFS) RegisterProvider(mount string, p VirtualProvider) {
	v.providers[mount] = p
}

func (v *VFS) isWritable(p string) bool {
	for _, prefix := range v.writablePrefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (v *VFS) fire(p string) {
	if v.onChange != nil {
		v.onChange(p)
	}
}

// Stat follows the leaf symlink, if any, and returns its metadata.
func (v *VFS) Stat(p string) (Inode, error) {
	if provider, rel, ok := v.providerFor(p); ok {
		entry, err := provider.Stat(rel)
		if err != nil {
			return nil, err
		}
		return providerEntryInode(entry), nil
	}
	in, err := v.resolve(p, true)
	if err != nil {
		return nil, err
	}
	in.Meta().Atime = v.clock.Now()
	return in, nil
}

// Lstat does not follow a leaf symlink.
func (v *VFS) Lstat(p string) (Inode, error) {
	in, err := v.resolve(p, false)
	if err != nil {
		return nil, err
	}
	in.Meta().Atime = v.clock.Now()
	return in, nil
}

func providerEntryInode(e DirEntry) Inode {
	switch e.Kind {
	case KindDir:
		return &Dir{Metadata: Metadata{Mode: e.Mode | os.ModeDir}}
	default:
		return &File{Metadata: Metadata{Mode: e.Mode}, Data: make([]byte, e.Size)}
	}
}

// ReadFile reads a regular file's whole content. Read operations update
// atime but never fail on quota.
func (v *VFS) ReadFile(p string) ([]byte, error) {
	if provider, rel, ok := v.providerFor(p); ok {
		return provider.ReadFile(rel)
	}
	in, err := v.resolve(p, true)
	if err != nil {
		return nil, err
	}
	f, ok := in.(*File)
	if !ok {
		return nil, ErrIsDir
	}
	f.Atime = v.clock.Now()
	out := make([]byte, len(f.Data))
	copy(out, f.Data)
	return out, nil
}

// WriteFile replaces a file's content whole, creating it if absent. A
// whole-content replacement (rather than in-place mutation) is what
// keeps Snapshot/Restore cheap: cloned directories can share the old
// byte slice by reference because nobody ever mutates it after the
// fact.
func (v *VFS) WriteFile(p string, data []byte) error {
	if provider, rel, ok := v.providerFor(p); ok {
		return provider.WriteFile(rel, data)
	}
	if !v.isWritable(p) {
		return ErrReadOnly
	}

	parent, leaf, err := v.resolveParent(p)
	if err != nil {
		return err
	}

	existing, exists := parent.Children[leaf]
	var oldSize int64
	isNewFile := true
	if exists {
		f, ok := existing.(*File)
		if !ok {
			return ErrIsDir
		}
		oldSize = f.Size()
		isNewFile = false
	}

	newSize := int64(len(data))
	if v.limits.FSLimitBytes > 0 && v.totalBytes-oldSize+newSize > v.limits.FSLimitBytes {
		return ErrNoSpace
	}
	if isNewFile && v.limits.FileCountLimit > 0 && v.fileCount+1 > v.limits.FileCountLimit {
		return ErrNoSpace
	}

	now := v.clock.Now()
	if isNewFile {
		f := newFile(0644, now)
		f.Data = data
		parent.Children[leaf] = f
		v.fileCount++
	} else {
		f := existing.(*File)
		f.Data = data
		f.Mtime = now
		f.Ctime = now
	}
	parent.Mtime = now
	parent.Ctime = now
	v.totalBytes += newSize - oldSize

	v.fire(p)
	return nil
}

// Mkdir creates a single new empty directory; the parent must already exist.
func (v *VFS) Mkdir(p string, mode os.FileMode) error {
	if !v.isWritable(p) {
		return ErrReadOnly
	}
	_, _, err := v.mkdir(p, mode)
	return err
}

func (v *VFS) mkdir(p string, mode os.FileMode) (*Dir, bool, error) {
	now := v.clock.Now()
	return v.mkdirLocked(p, now, mode)
}

// mkdirLocked implements both the public Mkdir and the default-layout
// seeding at construction time (which must bypass the writable-prefix
// check since "/bin" etc. are read-only at runtime).
func (v *VFS) mkdirLocked(p string, now time.Time, mode ...os.FileMode) (*Dir, bool, error) {
	m := os.FileMode(0755)
	if len(mode) > 0 {
		m = mode[0]
	}

	parent, leaf, err := v.resolveParent(p)
	if err != nil {
		return nil, false, err
	}
	if _, exists := parent.Children[leaf]; exists {
		return nil, false, ErrExist
	}
	if v.limits.FileCountLimit > 0 && v.fileCount+1 > v.limits.FileCountLimit {
		return nil, false, ErrNoSpace
	}

	d := newDir(m, now)
	parent.Children[leaf] = d
	parent.Mtime = now
	parent.Ctime = now
	v.fileCount++
	v.fire(p)
	return d, true, nil
}

// MkdirAll creates p and any missing ancestors under the writable-path
// policy, matching a standard "mkdir -p" operation.
func (v *VFS) MkdirAll(p string, mode os.FileMode) error {
	if !v.isWritable(p) {
		return ErrReadOnly
	}
	segs := splitPath(p)
	cur := ""
	for _, seg := range segs {
		cur += "/" + seg
		if _, _, err := v.mkdir(cur, mode); err != nil && err != ErrExist {
			return err
		}
	}
	return nil
}

// Rmdir removes an empty directory.
func (v *VFS) Rmdir(p string) error {
	if !v.isWritable(p) {
		return ErrReadOnly
	}
	parent, leaf, err := v.resolveParent(p)
	if err != nil {
		return err
	}
	child, ok := parent.Children[leaf]
	if !ok {
		return ErrNotExist
	}
	dir, ok := child.(*Dir)
	if !ok {
		return ErrNotDir
	}
	if len(dir.Children) > 0 {
		return ErrNotEmpty
	}
	delete(parent.Children, leaf)
	v.fileCount--
	now := v.clock.Now()
	parent.Mtime = now
	parent.Ctime = now
	v.fire(p)
	return nil
}

// Unlink removes a file or symlink.
func (v *VFS) Unlink(p string) error {
	if !v.isWritable(p) {
		return ErrReadOnly
	}
	parent, leaf, err := v.resolveParent(p)
	if err != nil {
		return err
	}
	child, ok := parent.Children[leaf]
	if !ok {
		return ErrNotExist
	}
	if _, isDir := child.(*Dir); isDir {
		return ErrIsDir
	}
	if f, isFile := child.(*File); isFile {
		v.totalBytes -= f.Size()
	}
	delete(parent.Children, leaf)
	v.fileCount--
	now := v.clock.Now()
	parent.Mtime = now
	parent.Ctime = now
	v.fire(p)
	return nil
}

// Symlink creates a symlink at p pointing at target. target is not
// validated or resolved at creation time — only when later traversed.
func (v *VFS) Symlink(p, target string) error {
	if !v.isWritable(p) {
		return ErrReadOnly
	}
	parent, leaf, err := v.resolveParent(p)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[leaf]; exists {
		return ErrExist
	}
	if v.limits.FileCountLimit > 0 && v.fileCount+1 > v.limits.FileCountLimit {
		return ErrNoSpace
	}
	now := v.clock.Now()
	parent.Children[leaf] = newSymlink(target, 0777, now)
	v.fileCount++
	parent.Mtime = now
	parent.Ctime = now
	v.fire(p)
	return nil
}

// Readlink returns a symlink's raw target string, unresolved.
func (v *VFS) Readlink(p string) (string, error) {
	in, err := v.resolve(p, false)
	if err != nil {
		return "", err
	}
	sl, ok := in.(*Symlink)
	if !ok {
		return "", ErrInvalid
	}
	return sl.Target, nil
}

// Rename moves oldPath to newPath within the tree, preserving the
// inode. Renaming into or out of a virtual-provider mount is
// unsupported and rejected here.
func (v *VFS) Rename(oldPath, newPath string) error {
	if _, _, ok := v.providerFor(oldPath); ok {
		return ErrInvalid
	}
	if _, _, ok := v.providerFor(newPath); ok {
		return ErrInvalid
	}
	if !v.isWritable(oldPath) || !v.isWritable(newPath) {
		return ErrReadOnly
	}

	oldParent, oldLeaf, err := v.resolveParent(oldPath)
	if err != nil {
		return err
	}
	child, ok := oldParent.Children[oldLeaf]
	if !ok {
		return ErrNotExist
	}

	newParent, newLeaf, err := v.resolveParent(newPath)
	if err != nil {
		return err
	}
	if existing, exists := newParent.Children[newLeaf]; exists {
		if dir, isDir := existing.(*Dir); isDir {
			if len(dir.Children) > 0 {
				return ErrNotEmpty
			}
		}
		if existing != child {
			if f, isFile := existing.(*File); isFile {
				v.totalBytes -= f.Size()
			}
			v.fileCount--
		}
	}

	delete(oldParent.Children, oldLeaf)
	newParent.Children[newLeaf] = child
	now := v.clock.Now()
	oldParent.Mtime, newParent.Mtime = now, now
	child.Meta().Ctime = now
	v.fire(oldPath)
	v.fire(newPath)
	return nil
}

// ReadDir lists the direct children of a directory, sorted by the
// caller if it cares — order here is map iteration order.
func (v *VFS) ReadDir(p string) ([]DirEntry, error) {
	if provider, rel, ok := v.providerFor(p); ok {
		return provider.ReadDir(rel)
	}
	in, err := v.resolve(p, true)
	if err != nil {
		return nil, err
	}
	dir, ok := in.(*Dir)
	if !ok {
		return nil, ErrNotDir
	}
	dir.Atime = v.clock.Now()

	entries := make([]DirEntry, 0, len(dir.Children))
	for name, child := range dir.Children {
		size := int64(0)
		if f, ok := child.(*File); ok {
			size = f.Size()
		}
		entries = append(entries, DirEntry{Name: name, Kind: child.Kind(), Mode: child.Meta().Mode, Size: size})
	}
	return entries, nil
}

// FileCount and TotalBytes expose the quota counters, which track
// non-root inodes and summed file bytes exactly.
func (v *VFS) FileCount() int64  { return v.fileCount }
func (v *VFS) TotalBytes() int64 { return v.totalBytes }

// Snapshot deep-clones the root directory tree (file byte buffers are
// shared by reference, which is safe — see cloneInode) and returns an
// opaque id that Restore can later use.
func (v *VFS) Snapshot() string {
	id := uuid.NewString()
	v.snapshots[id] = &snapshotRecord{
		root:       cloneInode(v.root).(*Dir),
		fileCount:  v.fileCount,
		totalBytes: v.totalBytes,
	}
	return id
}

// Restore replaces the current root with a deep clone of the saved
// root and resets the quota counters from the snapshot.
func (v *VFS) Restore(id string) error {
	rec, ok := v.snapshots[id]
	if !ok {
		return ErrNotExist
	}
	v.root = cloneInode(rec.root).(*Dir)
	v.fileCount = rec.fileCount
	v.totalBytes = rec.totalBytes
	return nil
}

// DropSnapshot discards a snapshot that is no longer needed.
func (v *VFS) DropSnapshot(id string) {
	delete(v.snapshots, id)
}

// Clone returns a new VFS with an independent deep clone of the root,
// the same writable prefixes, limits, clock and quota counters — COW at
// the process level, used when spawning a guest that must not observe
// the parent's later writes. The clone has no virtual providers mounted,
// no snapshots and no change callback.
func (v *VFS) Clone() *VFS {
	return &VFS{
		root:             cloneInode(v.root).(*Dir),
		writablePrefixes: append([]string(nil), v.writablePrefixes...),
		limits:           v.limits,
		providers:        make(map[string]VirtualProvider),
		snapshots:        make(map[string]*snapshotRecord),
		clock:            v.clock,
		fileCount:        v.fileCount,
		totalBytes:       v.totalBytes,
	}
}

// Join resolves a possibly-relative path against cwd the way shell
// redirections do: all target paths are resolved against PWD.
func Join(cwd, p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Clean(path.Join(cwd, p))
}
