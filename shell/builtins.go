package shell

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/googlecloudplatform/wasmsand/network"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

// builtinFunc runs in the current shell state — no fork, no subshell.
type builtinFunc func(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error)

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"cd":       biCd,
		"pwd":      biPwd,
		"echo":     biEcho,
		"printf":   biPrintf,
		"export":   biExport,
		"unset":    biUnset,
		"set":      biSet,
		"shift":    biShift,
		"read":     biRead,
		"eval":     biEval,
		"source":   biSource,
		".":        biSource,
		"test":     biTest,
		"[":        biBracket,
		"true":     func(*Executor, context.Context, []string, *procfs.Table) (int, error) { return 0, nil },
		"false":    func(*Executor, context.Context, []string, *procfs.Table) (int, error) { return 1, nil },
		"exit":     biExit,
		"return":   biReturn,
		"let":      biLet,
		"type":     biType,
		"command":  biCommand,
		"which":    biWhich,
		"declare":  biExport,
		"typeset":  biExport,
		"chmod":    biChmod,
		"date":     biDate,
		"curl":     biCurl,
		"wget":     biWget,
	}
}

// runBuiltin dispatches name against the builtin table. The bool return
// reports whether name was a recognized builtin at all.
func (e *Executor) runBuiltin(ctx context.Context, name string, args []string, fds *procfs.Table) (int, bool, error) {
	fn, ok := builtins[name]
	if !ok {
		return 0, false, nil
	}
	status, err := fn(e, ctx, args, fds)
	return status, true, err
}

func writeOut(fds *procfs.Table, fd int, s string) {
	if _, target, err := fds.Lookup(fd); err == nil {
		_, _ = target.WriteBytes([]byte(s))
	}
}

func biCd(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	dest := e.Vars["HOME"]
	if len(args) > 0 {
		dest = args[0]
	}
	path := vfsfs.Join(e.Cwd, dest)
	e.vfsMu.Lock()
	in, err := e.VFS.Stat(path)
	e.vfsMu.Unlock()
	if err != nil {
		return 1, fmt.Errorf("cd: %s: %w", dest, err)
	}
	if in.Kind() != vfsfs.KindDir {
		return 1, fmt.Errorf("cd: %s: not a directory", dest)
	}
	e.Vars["OLDPWD"] = e.Cwd
	e.Cwd = path
	e.Vars["PWD"] = path
	return 0, nil
}

func biPwd(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	writeOut(fds, 1, e.Cwd+"\n")
	return 0, nil
}

func biEcho(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	newline := true
	if len(args) > 0 && args[0] == "-n" {
		newline = false
		args = args[1:]
	}
	out := strings.Join(args, " ")
	if newline {
		out += "\n"
	}
	writeOut(fds, 1, out)
	return 0, nil
}

func biPrintf(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("printf: usage: printf format [arguments]")
	}
	format := args[0]
	rest := args[1:]
	out := expandPrintfFormat(format, rest)
	writeOut(fds, 1, out)
	return 0, nil
}

// expandPrintfFormat applies a fixed set of conversions (%s %d %% and
// \n \t escapes) repeating the format over the argument list the way
// POSIX printf does when more arguments remain than conversions.
func expandPrintfFormat(format string, args []string) string {
	var out strings.Builder
	argi := 0
	nextArg := func() string {
		if argi < len(args) {
			v := args[argi]
			argi++
			return v
		}
		return ""
	}
	applyOnce := func() {
		i := 0
		for i < len(format) {
			c := format[i]
			if c == '\\' && i+1 < len(format) {
				switch format[i+1] {
				case 'n':
					out.WriteByte('\n')
					i += 2
					continue
				case 't':
					out.WriteByte('\t')
					i += 2
					continue
				}
			}
			if c == '%' && i+1 < len(format) {
				switch format[i+1] {
				case 's':
					out.WriteString(nextArg())
					i += 2
					continue
				case 'd':
					v, _ := strconv.Atoi(nextArg())
					out.WriteString(strconv.Itoa(v))
					i += 2
					continue
				case '%':
					out.WriteByte('%')
					i += 2
					continue
				}
			}
			out.WriteByte(c)
			i++
		}
	}
	applyOnce()
	for argi > 0 && argi < len(args) {
		applyOnce()
	}
	return out.String()
}

func biExport(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	for _, a := range args {
		if eq := strings.IndexByte(a, '='); eq >= 0 {
			e.Vars[a[:eq]] = a[eq+1:]
		} else if _, ok := e.Vars[a]; !ok {
			e.Vars[a] = ""
		}
	}
	return 0, nil
}

func biUnset(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	for _, a := range args {
		delete(e.Vars, a)
	}
	return 0, nil
}

func biSet(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	for _, a := range args {
		switch a {
		case "-e":
			e.SetE = true
		case "+e":
			e.SetE = false
		case "-u":
			e.SetU = true
		case "+u":
			e.SetU = false
		}
	}
	return 0, nil
}

func biShift(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	if n > len(e.positional) {
		return 1, nil
	}
	e.positional = e.positional[n:]
	return 0, nil
}

func biRead(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("read: usage: read name [name...]")
	}
	_, target, err := fds.Lookup(0)
	if err != nil {
		return 1, err
	}
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := target.ReadBytes(buf)
		if n == 0 || err != nil {
			break
		}
		if buf[0] == '\n' {
			break
		}
		line.WriteByte(buf[0])
	}
	fields := strings.Fields(line.String())
	for i, name := range args {
		if i < len(fields) {
			e.Vars[name] = fields[i]
		} else {
			e.Vars[name] = ""
		}
	}
	if line.Len() == 0 {
		return 1, nil // EOF
	}
	return 0, nil
}

func biEval(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	script := strings.Join(args, " ")
	cmd, err := NewParser(NewLexer(script)).ParseProgram()
	if err != nil {
		return 2, fmt.Errorf("eval: %v", err)
	}
	return e.run(ctx, cmd), nil
}

func biSource(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("source: usage: source filename")
	}
	path := vfsfs.Join(e.Cwd, args[0])
	e.vfsMu.Lock()
	data, err := e.VFS.ReadFile(path)
	e.vfsMu.Unlock()
	if err != nil {
		return 1, fmt.Errorf("source: %s: %w", args[0], err)
	}
	cmd, err := NewParser(NewLexer(string(data))).ParseProgram()
	if err != nil {
		return 2, fmt.Errorf("source: %v", err)
	}
	return e.run(ctx, cmd), nil
}

func biTest(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	ok, err := e.evalTestExpr(args)
	if err != nil {
		return 2, err
	}
	return boolToStatus(ok), nil
}

func biBracket(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) > 0 && args[len(args)-1] == "]" {
		args = args[:len(args)-1]
	}
	return biTest(e, ctx, args, fds)
}

func biExit(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	code := e.LastStatus
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			code = v
		}
	}
	panic(controlSignal{kind: sigExit, code: code})
}

func biReturn(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	code := e.LastStatus
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			code = v
		}
	}
	panic(controlSignal{kind: sigReturn, code: code})
}

func biLet(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	var last int64
	for _, a := range args {
		v, err := e.evalArith(a)
		if err != nil {
			return 1, fmt.Errorf("let: %v", err)
		}
		last = v
	}
	return boolToStatus(last != 0), nil
}

func (e *Executor) resolveKind(name string) string {
	if _, ok := builtins[name]; ok {
		return "builtin"
	}
	if _, ok := e.Funcs[name]; ok {
		return "function"
	}
	return "external"
}

func biType(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	for _, a := range args {
		writeOut(fds, 1, fmt.Sprintf("%s is a %s\n", a, e.resolveKind(a)))
	}
	return 0, nil
}

func biCommand(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	name, rest := args[0], args[1:]
	if fn, ok := e.Funcs[name]; ok {
		return e.callFunction(ctx, fn, rest, fds), nil
	}
	if bi, ok := builtins[name]; ok {
		return bi(e, ctx, rest, fds)
	}
	if e.External != nil {
		return e.External.Run(ctx, name, rest, fds, e.Cwd, e.environList())
	}
	return 127, fmt.Errorf("command: %s: not found", name)
}

func biWhich(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	status := 0
	for _, a := range args {
		if _, ok := builtins[a]; ok {
			writeOut(fds, 1, a+": shell builtin\n")
			continue
		}
		found := false
		for _, dir := range strings.Split(e.Vars["PATH"], ":") {
			e.vfsMu.Lock()
			in, err := e.VFS.Stat(dir + "/" + a)
			e.vfsMu.Unlock()
			if err == nil && in.Kind() == vfsfs.KindFile {
				writeOut(fds, 1, dir+"/"+a+"\n")
				found = true
				break
			}
		}
		if !found {
			status = 1
		}
	}
	return status, nil
}

func biChmod(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) < 2 {
		return 1, fmt.Errorf("chmod: usage: chmod mode file")
	}
	mode, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		return 1, fmt.Errorf("chmod: %s: invalid mode", args[0])
	}
	path := vfsfs.Join(e.Cwd, args[1])
	e.vfsMu.Lock()
	in, err := e.VFS.Stat(path)
	e.vfsMu.Unlock()
	if err != nil {
		return 1, fmt.Errorf("chmod: %s: %w", args[1], err)
	}
	meta := in.Meta()
	meta.Mode = (meta.Mode &^ os.ModePerm) | os.FileMode(mode)
	return 0, nil
}

func biDate(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	writeOut(fds, 1, e.Clock.Now().UTC().Format("Mon Jan  2 15:04:05 UTC 2006\n"))
	return 0, nil
}

// fetchURL sends one request through Executor.Network, failing when no
// gateway is configured.
func (e *Executor) fetchURL(ctx context.Context, rawURL, method string, headers map[string]string, body []byte) (*network.Response, error) {
	if e.Network == nil {
		return nil, fmt.Errorf("network gateway not configured")
	}
	return e.Network.Fetch(ctx, rawURL, method, headers, body)
}

func biCurl(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 2, fmt.Errorf("curl: usage: curl url")
	}
	method := "GET"
	var outFile string
	rawURL := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-X":
			i++
			if i < len(args) {
				method = args[i]
			}
		case "-o":
			i++
			if i < len(args) {
				outFile = args[i]
			}
		default:
			rawURL = args[i]
		}
	}
	resp, err := e.fetchURL(ctx, rawURL, method, nil, nil)
	if err != nil {
		return 1, fmt.Errorf("curl: %v", err)
	}
	if outFile != "" {
		e.vfsMu.Lock()
		werr := e.VFS.WriteFile(vfsfs.Join(e.Cwd, outFile), resp.Body)
		e.vfsMu.Unlock()
		if werr != nil {
			return 1, fmt.Errorf("curl: %v", werr)
		}
		return 0, nil
	}
	writeOut(fds, 1, string(resp.Body))
	return 0, nil
}

func biWget(e *Executor, ctx context.Context, args []string, fds *procfs.Table) (int, error) {
	if len(args) == 0 {
		return 2, fmt.Errorf("wget: usage: wget url")
	}
	rawURL := args[len(args)-1]
	resp, err := e.fetchURL(ctx, rawURL, "GET", nil, nil)
	if err != nil {
		return 1, fmt.Errorf("wget: %v", err)
	}
	name := rawURL
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "index.html"
	}
	e.vfsMu.Lock()
	err = e.VFS.WriteFile(vfsfs.Join(e.Cwd, name), resp.Body)
	e.vfsMu.Unlock()
	if err != nil {
		return 1, fmt.Errorf("wget: %v", err)
	}
	return 0, nil
}
