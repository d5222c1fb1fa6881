package procfs

import "io"

// FdTarget is the tagged union of fd endpoints that bypass the inode
// tree entirely: a capture buffer, either end of a pipe, a static
// read-only byte source, or a discard/EOF sink.
type FdTarget interface {
	// ReadBytes reads up to len(p) bytes. Targets that cannot be read
	// from (Buffer, a PipeWrite end) return an error.
	ReadBytes(p []byte) (int, error)
	// WriteBytes writes all of p or fails. Targets that cannot be
	// written to (Static, a PipeRead end) return an error.
	WriteBytes(p []byte) (int, error)
}

var errNotReadable = &targetError{"target does not support read"}
var errNotWritable = &targetError{"target does not support write"}

type targetError struct{ msg string }

func (e *targetError) Error() string { return e.msg }

// BufferTarget captures writes up to a byte limit, truncating silently
// past it and recording that fact rather than failing: truncation is a
// reported flag in the command result, not an error.
type BufferTarget struct {
	chunks    [][]byte
	total     int
	limit     int // 0 means unlimited
	truncated bool
}

// NewBufferTarget constructs a capture buffer with the given byte limit
// (0 for unlimited).
func NewBufferTarget(limit int) *BufferTarget {
	return &BufferTarget{limit: limit}
}

func (b *BufferTarget) ReadBytes(p []byte) (int, error) { return 0, errNotReadable }

func (b *BufferTarget) WriteBytes(p []byte) (int, error) {
	n := len(p)
	if b.limit > 0 {
		remaining := b.limit - b.total
		if remaining <= 0 {
			b.truncated = true
			return n, nil // fd_write reports the full count accepted by the caller's intent
		}
		if n > remaining {
			p = p[:remaining]
			b.truncated = true
		}
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	b.chunks = append(b.chunks, chunk)
	b.total += len(chunk)
	return n, nil
}

// Bytes concatenates all captured chunks.
func (b *BufferTarget) Bytes() []byte {
	out := make([]byte, 0, b.total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Truncated reports whether the byte limit was hit.
func (b *BufferTarget) Truncated() bool { return b.truncated }

// PipeReadTarget is the read end of a Pipe.
type PipeReadTarget struct{ Pipe *Pipe }

func (t *PipeReadTarget) ReadBytes(p []byte) (int, error)  { return t.Pipe.Read(p) }
func (t *PipeReadTarget) WriteBytes(p []byte) (int, error) { return 0, errNotWritable }
func (t *PipeReadTarget) Close()                           { t.Pipe.CloseReader() }

// PipeWriteTarget is the write end of a Pipe.
type PipeWriteTarget struct{ Pipe *Pipe }

func (t *PipeWriteTarget) ReadBytes(p []byte) (int, error)  { return 0, errNotReadable }
func (t *PipeWriteTarget) WriteBytes(p []byte) (int, error) { return t.Pipe.Write(p) }
func (t *PipeWriteTarget) Close()                           { t.Pipe.CloseWriter() }

// StaticTarget serves fixed read-only bytes, e.g. a heredoc body or
// `<<<` string injected onto stdin.
type StaticTarget struct {
	Data   []byte
	Offset int
}

// NewStaticTarget wraps data as a read-only fd source.
func NewStaticTarget(data []byte) *StaticTarget {
	return &StaticTarget{Data: data}
}

func (s *StaticTarget) ReadBytes(p []byte) (int, error) {
	if s.Offset >= len(s.Data) {
		return 0, io.EOF
	}
	n := copy(p, s.Data[s.Offset:])
	s.Offset += n
	return n, nil
}

func (s *StaticTarget) WriteBytes(p []byte) (int, error) { return 0, errNotWritable }

// NullTarget discards writes and reports EOF on read, backing `/dev/null`-
// equivalent fds and the default stdin when none is supplied.
type NullTarget struct{}

func (NullTarget) ReadBytes(p []byte) (int, error)  { return 0, io.EOF }
func (NullTarget) WriteBytes(p []byte) (int, error) { return len(p), nil }
