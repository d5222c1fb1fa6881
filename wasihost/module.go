package wasihost

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/googlecloudplatform/wasmsand/procfs"
)

// ModuleName is the import namespace every WASI Preview 1 guest expects.
const ModuleName = "wasi_snapshot_preview1"

// wazeroMemory adapts wazero's api.Memory to GuestMemory so host.go never
// imports wazero directly and stays testable against sliceMemory.
type wazeroMemory struct{ m api.Memory }

func (w wazeroMemory) Read(offset, byteCount uint32) ([]byte, bool) { return w.m.Read(offset, byteCount) }
func (w wazeroMemory) Write(offset uint32, v []byte) bool           { return w.m.Write(offset, v) }
func (w wazeroMemory) ReadUint32Le(offset uint32) (uint32, bool)    { return w.m.ReadUint32Le(offset) }
func (w wazeroMemory) WriteUint32Le(offset uint32, v uint32) bool   { return w.m.WriteUint32Le(offset, v) }
func (w wazeroMemory) ReadUint64Le(offset uint32) (uint64, bool)    { return w.m.ReadUint64Le(offset) }
func (w wazeroMemory) WriteUint64Le(offset uint32, v uint64) bool   { return w.m.WriteUint64Le(offset, v) }

// Instantiate builds the wasi_snapshot_preview1 host module for a single
// guest instance, closing over h so each exported function reads the
// caller's own linear memory.
func Instantiate(ctx context.Context, rt wazero.Runtime, h *Host) (api.Closer, error) {
	mem := func(mod api.Module) GuestMemory { return wazeroMemory{mod.Memory()} }

	builder := rt.NewHostModuleBuilder(ModuleName)

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, argv, argvBuf uint32) uint32 {
			return uint32(h.ArgsGet(mem(mod), argv, argvBuf))
		}).Export("args_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, argc, bufSize uint32) uint32 {
			return uint32(h.ArgsSizesGet(mem(mod), argc, bufSize))
		}).Export("args_sizes_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, env, envBuf uint32) uint32 {
			return uint32(h.EnvironGet(mem(mod), env, envBuf))
		}).Export("environ_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, count, bufSize uint32) uint32 {
			return uint32(h.EnvironSizesGet(mem(mod), count, bufSize))
		}).Export("environ_sizes_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, iovs, iovsLen, nread uint32) uint32 {
			return uint32(h.FdRead(mem(mod), fd, iovs, iovsLen, nread))
		}).Export("fd_read")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, iovs, iovsLen, nwritten uint32) uint32 {
			return uint32(h.FdWrite(mem(mod), fd, iovs, iovsLen, nwritten))
		}).Export("fd_write")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, fd uint32) uint32 {
			return uint32(h.FdClose(fd))
		}).Export("fd_close")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd uint32, offset int64, whence, newOffset uint32) uint32 {
			return uint32(h.FdSeek(mem(mod), fd, offset, whence, newOffset))
		}).Export("fd_seek")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, statOut uint32) uint32 {
			return uint32(h.FdFdstatGet(mem(mod), fd, statOut))
		}).Export("fd_fdstat_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, _ uint32) uint32 { return uint32(ErrnoSuccess) }).
		Export("fd_fdstat_set_flags")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, bufOut uint32) uint32 {
			return uint32(h.FdFilestatGet(mem(mod), fd, bufOut))
		}).Export("fd_filestat_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, bufPtr, bufLen uint32, cookie uint64, bufUsed uint32) uint32 {
			return uint32(h.FdReaddir(mem(mod), fd, bufPtr, bufLen, cookie, bufUsed))
		}).Export("fd_readdir")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, prestatOut uint32) uint32 {
			return uint32(h.FdPrestatGet(mem(mod), fd, prestatOut))
		}).Export("fd_prestat_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, fd, pathOut, pathLen uint32) uint32 {
			return uint32(h.FdPrestatDirName(mem(mod), fd, pathOut, pathLen))
		}).Export("fd_prestat_dir_name")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, _ uint32) uint32 { return uint32(ErrnoSuccess) }).
		Export("fd_sync")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, pathPtr, pathLen uint32) uint32 {
			return uint32(h.PathCreateDirectory(mem(mod), pathPtr, pathLen))
		}).Export("path_create_directory")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, pathPtr, pathLen uint32) uint32 {
			return uint32(h.PathRemoveDirectory(mem(mod), pathPtr, pathLen))
		}).Export("path_remove_directory")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, pathPtr, pathLen uint32) uint32 {
			return uint32(h.PathUnlinkFile(mem(mod), pathPtr, pathLen))
		}).Export("path_unlink_file")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, _ uint32, oldPtr, oldLen, _ uint32, newPtr, newLen uint32) uint32 {
			return uint32(h.PathRename(mem(mod), oldPtr, oldLen, newPtr, newLen))
		}).Export("path_rename")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, _, pathPtr, pathLen, _, bufOut uint32) uint32 {
			return uint32(h.PathFilestatGet(mem(mod), pathPtr, pathLen, bufOut))
		}).Export("path_filestat_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, targetPtr, targetLen, _ uint32, linkPtr, linkLen uint32) uint32 {
			return uint32(h.PathSymlink(mem(mod), targetPtr, targetLen, linkPtr, linkLen))
		}).Export("path_symlink")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, _, pathPtr, pathLen, bufPtr, bufLen, bufUsed uint32) uint32 {
			return uint32(h.PathReadlink(mem(mod), pathPtr, pathLen, bufPtr, bufLen, bufUsed))
		}).Export("path_readlink")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, id uint32, precision uint64, timeOut uint32) uint32 {
			return uint32(h.ClockTimeGet(mem(mod), id, precision, timeOut))
		}).Export("clock_time_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, bufPtr, bufLen uint32) uint32 {
			return uint32(h.RandomGet(mem(mod), bufPtr, bufLen))
		}).Export("random_get")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, code uint32) {
			h.ProcExit(code)
		}).Export("proc_exit")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module) uint32 { return uint32(h.SchedYield()) }).
		Export("sched_yield")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, _, _, _ uint32, _ uint64, _ uint32) uint32 {
			return uint32(ErrnoNosys)
		}).Export("fd_pread")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, _ api.Module, _, _, _, _ uint32) uint32 {
			return uint32(ErrnoNosys)
		}).Export("poll_oneoff")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, _, _, pathPtr, pathLen, oflags uint32, rightsBase uint64, _ uint64, _ uint32, openedFdOut uint32) uint32 {
			const rightsWrite = 1 << 6
			mode := procfs.ModeRead
			if rightsBase&rightsWrite != 0 {
				mode = procfs.ModeReadWrite
			}
			return uint32(h.PathOpen(mem(mod), pathPtr, pathLen, oflags, mode, openedFdOut))
		}).Export("path_open")

	return builder.Instantiate(ctx)
}
