package vfsfs

import (
	"fmt"
	"os"
)

// DevProvider backs "/dev": a handful of synthetic device files with no
// persistent state (null, zero, urandom). Writes to "/dev/null" and
// "/dev/zero" are discarded rather than erroring.
type DevProvider struct{}

var devEntries = map[string]bool{ // name -> isReadSource (urandom/zero produce bytes)
	"null":    false,
	"zero":    true,
	"urandom": true,
}

func (DevProvider) Stat(path string) (DirEntry, error) {
	name := stripLeadingSlash(path)
	if name == "" {
		return DirEntry{Name: "dev", Kind: KindDir, Mode: os.ModeDir | 0755}, nil
	}
	if _, ok := devEntries[name]; !ok {
		return DirEntry{}, ErrNotExist
	}
	return DirEntry{Name: name, Kind: KindFile, Mode: 0666}, nil
}

func (DevProvider) ReadFile(path string) ([]byte, error) {
	name := stripLeadingSlash(path)
	switch name {
	case "null":
		return nil, nil
	case "zero":
		return make([]byte, 4096), nil
	case "urandom":
		buf := make([]byte, 4096)
		if _, err := randRead(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return nil, ErrNotExist
}

func (DevProvider) WriteFile(path string, data []byte) error {
	name := stripLeadingSlash(path)
	if _, ok := devEntries[name]; !ok {
		return ErrNotExist
	}
	return nil // discarded, like the real /dev/null and /dev/zero
}

func (DevProvider) ReadDir(path string) ([]DirEntry, error) {
	if stripLeadingSlash(path) != "" {
		return nil, ErrNotDir
	}
	entries := make([]DirEntry, 0, len(devEntries))
	for name := range devEntries {
		entries = append(entries, DirEntry{Name: name, Kind: KindFile, Mode: 0666})
	}
	return entries, nil
}

// ProcProvider backs "/proc": a minimal set of read-only synthetic
// status files consulted by coreutils like `free` and `ps`.
type ProcProvider struct {
	MemTotalKB int64
	Uptime     func() string
}

func (p ProcProvider) Stat(path string) (DirEntry, error) {
	name := stripLeadingSlash(path)
	if name == "" {
		return DirEntry{Name: "proc", Kind: KindDir, Mode: os.ModeDir | 0555}, nil
	}
	switch name {
	case "meminfo", "uptime":
		return DirEntry{Name: name, Kind: KindFile, Mode: 0444}, nil
	}
	return DirEntry{}, ErrNotExist
}

func (p ProcProvider) ReadFile(path string) ([]byte, error) {
	switch stripLeadingSlash(path) {
	case "meminfo":
		return []byte(fmt.Sprintf("MemTotal:       %d kB\n", p.MemTotalKB)), nil
	case "uptime":
		if p.Uptime != nil {
			return []byte(p.Uptime() + "\n"), nil
		}
		return []byte("0.0 0.0\n"), nil
	}
	return nil, ErrNotExist
}

func (ProcProvider) WriteFile(path string, data []byte) error { return ErrReadOnly }

func (ProcProvider) ReadDir(path string) ([]DirEntry, error) {
	if stripLeadingSlash(path) != "" {
		return nil, ErrNotDir
	}
	return []DirEntry{
		{Name: "meminfo", Kind: KindFile, Mode: 0444},
		{Name: "uptime", Kind: KindFile, Mode: 0444},
	}, nil
}

func stripLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
