// Package procfs implements the per-process file-descriptor table, the
// bounded pipe used to connect pipeline stages, and the tagged union of
// non-inode fd endpoints ("fd targets") that the WASI host reads and
// writes through.
package procfs

import (
	"errors"
	"sync"
)

// DefaultPipeCapacity is the default pipe buffer capacity, 64 KiB.
const DefaultPipeCapacity = 64 * 1024

// ErrPipeClosed is returned by Write after the reader has closed its end.
var ErrPipeClosed = errors.New("EPIPE")

// Pipe is a bounded, single-writer/single-reader byte FIFO. Reads
// suspend (via a buffered-channel signal, since the scheduler is
// cooperative and single-threaded) when the buffer is empty and the
// writer is still open; writes suspend when the buffer is full and the
// reader is still open. Closing one end never closes the other.
type Pipe struct {
	mu           sync.Mutex
	buf          []byte
	capacity     int
	writerClosed bool
	readerClosed bool
	notify       chan struct{} // signalled on any state change
}

// NewPipe constructs a pipe with the given capacity, or
// DefaultPipeCapacity if capacity <= 0.
func NewPipe(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	return &Pipe{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (p *Pipe) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Read copies as many bytes as are currently available into dst,
// blocking only when the buffer is empty and the writer is still open.
// After the writer closes, a Read on an empty buffer returns (0, nil)
// i.e. EOF, never an error.
func (p *Pipe) Read(dst []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(dst, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			p.signal()
			return n, nil
		}
		if p.writerClosed || p.readerClosed {
			p.mu.Unlock()
			return 0, nil
		}
		p.mu.Unlock()
		<-p.notify
	}
}

// Write copies as many bytes of src as fit, blocking (suspending) when
// the buffer is full and the reader is still open. It fails with
// ErrPipeClosed if the reader has already closed its end, including
// mid-write after a partial copy.
func (p *Pipe) Write(src []byte) (int, error) {
	total := 0
	for total < len(src) {
		p.mu.Lock()
		if p.readerClosed {
			p.mu.Unlock()
			return total, ErrPipeClosed
		}
		free := p.capacity - len(p.buf)
		if free <= 0 {
			if p.writerClosed {
				p.mu.Unlock()
				return total, errors.New("write on closed pipe")
			}
			p.mu.Unlock()
			<-p.notify
			continue
		}
		n := len(src) - total
		if n > free {
			n = free
		}
		p.buf = append(p.buf, src[total:total+n]...)
		total += n
		p.mu.Unlock()
		p.signal()
	}
	return total, nil
}

// CloseWriter marks the writer end closed; subsequent reads drain any
// remaining buffered bytes, then return EOF.
func (p *Pipe) CloseWriter() {
	p.mu.Lock()
	p.writerClosed = true
	p.mu.Unlock()
	p.signal()
}

// CloseReader marks the reader end closed; a write in progress or
// arriving afterward fails with ErrPipeClosed.
func (p *Pipe) CloseReader() {
	p.mu.Lock()
	p.readerClosed = true
	p.mu.Unlock()
	p.signal()
}

func (p *Pipe) WriterClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writerClosed
}

func (p *Pipe) ReaderClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readerClosed
}
