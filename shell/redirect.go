package shell

import (
	"context"
	"fmt"

	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

// flushWriteTarget is a deferred write-back for a redirection that
// buffered a simple command's output in memory instead of streaming it
// straight to the VFS (append needs the pre-existing content). The
// buffer is written back whether or not the command succeeded.
type flushWriteTarget struct {
	path   string
	append bool
	buf    *procfs.BufferTarget
}

// applyRedirects installs each Redirect's fd target onto fds in order,
// returning the flush callbacks RedirOut/RedirAppend need run after the
// command completes. runSimple runs them on its failure paths too, so a
// command that fails still truncates a `>` target.
func (e *Executor) applyRedirects(ctx context.Context, fds *procfs.Table, redirects []Redirect) ([]flushWriteTarget, error) {
	var flushes []flushWriteTarget
	for _, r := range redirects {
		switch r.Kind {
		case RedirIn:
			vals, err := e.expandWord(ctx, r.Target)
			if err != nil {
				return flushes, err
			}
			path := vfsfs.Join(e.Cwd, joinOrFirst(vals))
			e.vfsMu.Lock()
			data, err := e.VFS.ReadFile(path)
			e.vfsMu.Unlock()
			if err != nil {
				return flushes, fmt.Errorf("shell: %s: %w", path, err)
			}
			fds.SetTarget(r.Fd, procfs.NewStaticTarget(data))

		case RedirOut, RedirAppend:
			vals, err := e.expandWord(ctx, r.Target)
			if err != nil {
				return flushes, err
			}
			path := vfsfs.Join(e.Cwd, joinOrFirst(vals))
			buf := procfs.NewBufferTarget(0)
			fds.SetTarget(r.Fd, buf)
			flushes = append(flushes, flushWriteTarget{path: path, append: r.Kind == RedirAppend, buf: buf})

		case RedirHeredoc:
			fds.SetTarget(r.Fd, procfs.NewStaticTarget([]byte(r.HeredocBody)))

		case RedirHerestring:
			vals, err := e.expandWord(ctx, r.Target)
			if err != nil {
				return flushes, err
			}
			fds.SetTarget(r.Fd, procfs.NewStaticTarget([]byte(joinOrFirst(vals)+"\n")))

		case RedirDupOut, RedirDupIn:
			srcFd := r.DupTarget
			if srcFd < 0 {
				vals, err := e.expandWord(ctx, r.Target)
				if err != nil {
					return flushes, err
				}
				n, ok := parseFdName(joinOrFirst(vals))
				if !ok {
					return flushes, fmt.Errorf("shell: bad file descriptor %q", joinOrFirst(vals))
				}
				srcFd = n
			}
			_, target, err := fds.Lookup(srcFd)
			if err != nil {
				return flushes, fmt.Errorf("shell: %d: %w", srcFd, procfs.ErrBadFd)
			}
			fds.SetTarget(r.Fd, target)
		}
	}
	return flushes, nil
}

// flushRedirects writes buffered RedirOut/RedirAppend targets back to
// the VFS once the command they belong to has finished running.
func (e *Executor) flushRedirects(flushes []flushWriteTarget) error {
	var firstErr error
	for _, f := range flushes {
		data := f.buf.Bytes()
		e.vfsMu.Lock()
		if f.append {
			existing, err := e.VFS.ReadFile(f.path)
			if err == nil {
				data = append(existing, data...)
			}
		}
		err := e.VFS.WriteFile(f.path, data)
		e.vfsMu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shell: %s: %w", f.path, err)
		}
	}
	return firstErr
}

func joinOrFirst(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func parseFdName(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
