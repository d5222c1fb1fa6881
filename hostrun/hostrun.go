// Package hostrun wires the kernel, the WASI host, and the tool
// registry together into a shell.ExternalRunner: it resolves an
// external command name via shebang interpretation or tool-registry
// lookup and spawns the resulting guest, depending only on the host
// platform adapter for module compilation and instantiation.
package hostrun

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/kernel"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/registry"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
	"github.com/googlecloudplatform/wasmsand/wasihost"
)

// ScriptRunner executes a shell script in-process, used when an
// external file has no shebang and so runs as a shell script in-process.
// The shell package supplies this to avoid an import cycle between
// hostrun and shell.
type ScriptRunner func(ctx context.Context, script string, fds *procfs.Table, cwd string, env []string) (int, error)

// Runner implements shell.ExternalRunner over a wazero runtime, the
// process kernel, and a module registry.
type Runner struct {
	Wazero   wazero.Runtime
	Kernel   *kernel.Kernel
	Registry *registry.Registry
	VFS      *vfsfs.VFS
	Clock    clock.Clock
	Script   ScriptRunner
}

// Run resolves name to a path-based exec or a registered module and
// blocks until it completes.
func (r *Runner) Run(ctx context.Context, name string, args []string, fds *procfs.Table, cwd string, env []string) (int, error) {
	if strings.Contains(name, "/") {
		return r.runPath(ctx, name, args, fds, cwd, env)
	}

	mod, ok := r.Registry.Lookup(name)
	if !ok {
		return 127, fmt.Errorf("%s: not found in tool registry", name)
	}
	return r.spawnWasm(ctx, mod.Bytes, append([]string{name}, args...), fds, env)
}

func (r *Runner) runPath(ctx context.Context, path string, args []string, fds *procfs.Table, cwd string, env []string) (int, error) {
	full := path
	if !strings.HasPrefix(full, "/") {
		full = vfsfs.Join(cwd, path)
	}
	data, err := r.VFS.ReadFile(full)
	if err != nil {
		return 126, fmt.Errorf("%s: %w", path, err)
	}

	if interp, rest, ok := parseShebang(data); ok {
		interpName := interp
		if i := strings.LastIndexByte(interp, '/'); i >= 0 {
			interpName = interp[i+1:]
		}
		if interpName == "" {
			return 126, fmt.Errorf("%s: empty interpreter in shebang", path)
		}
		if r.Script != nil && (interpName == "sh" || interpName == "bash") {
			return r.Script(ctx, rest, fds, cwd, env)
		}
		return r.Run(ctx, interpName, append([]string{path}, args...), fds, cwd, env)
	}

	if r.Script == nil {
		return 126, fmt.Errorf("%s: no shebang and no script runner configured", path)
	}
	return r.Script(ctx, string(data), fds, cwd, env)
}

// parseShebang extracts the interpreter path from a "#!/…/foo args\n"
// first line, reporting the file's remaining bytes as the fallback
// script body (used when the interpreter turns out to be the shell
// itself).
func parseShebang(data []byte) (interp string, rest string, ok bool) {
	if !bytes.HasPrefix(data, []byte("#!")) {
		return "", "", false
	}
	nl := bytes.IndexByte(data, '\n')
	line := data[2:]
	if nl >= 0 {
		line = data[2:nl]
		rest = string(data[nl+1:])
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return "", "", false
	}
	interp = fields[0]
	if interp == "/usr/bin/env" && len(fields) > 1 {
		interp = fields[1]
	}
	return interp, rest, true
}

func (r *Runner) spawnWasm(ctx context.Context, code []byte, args []string, fds *procfs.Table, env []string) (int, error) {
	runner := &wasmGuestRunner{wazero: r.Wazero, code: code, vfs: r.VFS, clock: r.Clock}
	pid := r.Kernel.Spawn(ctx, runner, fds, args, env)
	code2, err := r.Kernel.Waitpid(pid)
	r.Kernel.Reap(pid)
	return code2, err
}

// wasmGuestRunner implements kernel.GuestRunner by compiling and
// instantiating one WASI Preview 1 module per invocation.
type wasmGuestRunner struct {
	wazero wazero.Runtime
	code   []byte
	vfs    *vfsfs.VFS
	clock  clock.Clock
}

func (g *wasmGuestRunner) Run(ctx context.Context, fds *procfs.Table, args, env []string) (int, error) {
	compiled, err := g.wazero.CompileModule(ctx, g.code)
	if err != nil {
		return 126, fmt.Errorf("guest module did not compile: %w", err)
	}
	defer compiled.Close(ctx)

	host := wasihost.NewHost(g.vfs, fds, args, env, "/", g.clock)
	closer, err := wasihost.Instantiate(ctx, g.wazero, host)
	if err != nil {
		return 1, fmt.Errorf("wasi host instantiation failed: %w", err)
	}
	defer closer.Close(ctx)

	cfg := wazero.NewModuleConfig().WithArgs(args...)
	_, err = g.wazero.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		if host.Exited {
			return int(host.ExitCode), nil
		}
		return 1, fmt.Errorf("guest trapped: %w", err)
	}
	if host.Exited {
		return int(host.ExitCode), nil
	}
	return 0, nil
}
