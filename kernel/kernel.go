// Package kernel implements process-kernel bookkeeping: PID allocation,
// wait/exit, and per-process fd-table overrides. It is called through
// its Go API only; no host-function import namespace exposes it to
// guest modules.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/googlecloudplatform/wasmsand/procfs"
)

// GuestRunner instantiates and drives one guest module to completion.
// It is supplied by the host platform adapter — the kernel only needs
// to start it and learn its exit code. On a WASM engine with native
// fiber support (wazero's experimental stack-switching), Run's
// internal suspensions are true coroutine yields; otherwise Run simply
// blocks the calling goroutine, which Go's own scheduler already
// interleaves with the other running guests.
type GuestRunner interface {
	Run(ctx context.Context, fds *procfs.Table, args, env []string) (exitCode int, err error)
}

// Process is a live or exited guest.
type Process struct {
	PID      int
	fds      *procfs.Table
	done     chan struct{}
	exitCode int
	err      error
	reaped   bool
}

// Kernel owns PID allocation (monotonic from 1) and the set of known
// processes. Not safe for concurrent Spawn/Waitpid calls from multiple
// goroutines other than the ones it itself starts — the shell executor
// is the only caller.
type Kernel struct {
	mu      sync.Mutex
	nextPID int
	procs   map[int]*Process
}

// New constructs a kernel with no running processes.
func New() *Kernel {
	return &Kernel{nextPID: 1, procs: make(map[int]*Process)}
}

// Spawn instantiates a guest via runner, installs fds as its fd table,
// and drives it to completion on a dedicated goroutine. It returns
// immediately with the new PID; call Waitpid to block for the result.
func (k *Kernel) Spawn(ctx context.Context, runner GuestRunner, fds *procfs.Table, args, env []string) int {
	k.mu.Lock()
	pid := k.nextPID
	k.nextPID++
	proc := &Process{PID: pid, fds: fds, done: make(chan struct{})}
	k.procs[pid] = proc
	k.mu.Unlock()

	go func() {
		defer close(proc.done)
		proc.exitCode, proc.err = runner.Run(ctx, fds, args, env)
	}()

	return pid
}

// Waitpid suspends the caller until pid exits, then returns its exit
// code. Idempotent after reap: calling Waitpid again for the same PID
// returns the same result instead of blocking forever.
func (k *Kernel) Waitpid(pid int) (int, error) {
	k.mu.Lock()
	proc, ok := k.procs[pid]
	k.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("kernel: no such process %d", pid)
	}

	<-proc.done

	k.mu.Lock()
	proc.reaped = true
	k.mu.Unlock()

	return proc.exitCode, proc.err
}

// SetFdTarget plants a pipe endpoint or buffer into a not-yet-spawned
// child's fd table, used by the shell to wire up a pipeline stage
// before calling Spawn.
func (k *Kernel) SetFdTarget(fds *procfs.Table, fd int, target procfs.FdTarget) {
	fds.SetTarget(fd, target)
}

// SpawnedCount reports how many PIDs have been allocated so far,
// reaped or not — used to report a guest-process count per run.
func (k *Kernel) SpawnedCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nextPID - 1
}

// Reap releases bookkeeping for an exited, already-waited process.
func (k *Kernel) Reap(pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if proc, ok := k.procs[pid]; ok && proc.reaped {
		delete(k.procs, pid)
	}
}
