package shell

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/googlecloudplatform/wasmsand/internal/clock"
	"github.com/googlecloudplatform/wasmsand/network"
	"github.com/googlecloudplatform/wasmsand/procfs"
	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

const (
	maxLoopIterations = 10000
	maxFunctionDepth  = 100
)

// ExternalRunner dispatches a command name the shell could not resolve
// as a builtin or function — e.g. a `#!/usr/bin/env python3` script or
// a tool-registry-installed binary. A nil ExternalRunner makes every
// such lookup a 127 ("command not found").
type ExternalRunner interface {
	Run(ctx context.Context, name string, args []string, fds *procfs.Table, cwd string, env []string) (int, error)
}

// Executor walks a Command tree, expanding words and applying
// redirections along the way. One Executor instance is the shell's
// notion of a process: Subshell and pipeline stages each get their own
// forked Executor sharing (or cloning, per POSIX subshell semantics)
// the parent's state.
type Executor struct {
	VFS    *vfsfs.VFS
	Fds    *procfs.Table
	Clock  clock.Clock
	Vars   map[string]string
	Funcs  map[string]*Function
	Cwd    string

	LastStatus int
	SetE       bool
	SetU       bool
	External   ExternalRunner
	Network    network.Gateway

	positional []string
	substDepth int
	funcDepth  int
	lastErr    error
	vfsMu      *sync.Mutex
}

// NewExecutor constructs a top-level shell process.
func NewExecutor(v *vfsfs.VFS, fds *procfs.Table, c clock.Clock) *Executor {
	return &Executor{
		VFS:   v,
		Fds:   fds,
		Clock: c,
		Vars:  map[string]string{"HOME": "/home/user", "PWD": "/home/user", "PATH": "/usr/bin:/bin"},
		Funcs: map[string]*Function{},
		Cwd:   "/home/user",
		vfsMu: &sync.Mutex{},
	}
}

type controlSignal struct {
	kind  int // 0 break, 1 continue, 2 return, 3 exit
	level int
	code  int
}

const (
	sigBreak = iota
	sigContinue
	sigReturn
	sigExit
)

// Execute is the package's top-level entry point: parse then execute
// script, recovering a top-level `exit` as the final status.
func (e *Executor) Execute(ctx context.Context, script string) (status int) {
	cmd, err := NewParser(NewLexer(script)).ParseProgram()
	if err != nil {
		e.writeErr(fmt.Sprintf("shell: syntax error: %v\n", err))
		return 2
	}
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(controlSignal); ok && sig.kind == sigExit {
				status = sig.code
				return
			}
			if sig, ok := r.(controlSignal); ok && (sig.kind == sigBreak || sig.kind == sigContinue) {
				status = e.LastStatus
				return
			}
			panic(r)
		}
	}()
	return e.run(ctx, cmd)
}

// RunScript executes script in a fresh child environment (its own fds,
// cwd, and variables seeded from env) and returns its exit status. This
// is the shape a no-shebang external file needs to run as a shell
// script in-process, and is also what hostrun.Runner's ScriptRunner
// callback is wired to.
func (e *Executor) RunScript(ctx context.Context, script string, fds *procfs.Table, cwd string, env []string) (int, error) {
	child := &Executor{
		VFS: e.VFS, Clock: e.Clock, Fds: fds, Cwd: cwd,
		Vars: varsFromEnv(env), Funcs: map[string]*Function{},
		External: e.External, Network: e.Network, vfsMu: e.vfsMu,
	}
	return child.Execute(ctx, script), nil
}

func varsFromEnv(env []string) map[string]string {
	vars := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			vars[kv[:i]] = kv[i+1:]
		}
	}
	return vars
}

func (e *Executor) writeErr(s string) {
	if _, target, err := e.Fds.Lookup(2); err == nil {
		_, _ = target.WriteBytes([]byte(s))
	}
}

// run dispatches on the Command's concrete type and returns its exit
// status, also recording it in e.LastStatus and honoring `set -e`
// (a failing command other than an if/for/while construct aborts the
// script with a sigExit controlSignal carrying its status).
func (e *Executor) run(ctx context.Context, cmd Command) int {
	if err := ctx.Err(); err != nil {
		panic(controlSignal{kind: sigExit, code: 124})
	}
	status := e.runOne(ctx, cmd)
	e.LastStatus = status
	if e.SetE && status != 0 {
		if !isControlConstruct(cmd) {
			panic(controlSignal{kind: sigExit, code: status})
		}
	}
	return status
}

func isControlConstruct(cmd Command) bool {
	switch cmd.(type) {
	case *If, *For, *CFor, *While:
		return true
	}
	return false
}

func (e *Executor) runOne(ctx context.Context, cmd Command) int {
	switch c := cmd.(type) {
	case *Simple:
		return e.runSimple(ctx, c)
	case *Pipeline:
		return e.runPipeline(ctx, c)
	case *List:
		return e.runList(ctx, c)
	case *If:
		return e.runIf(ctx, c)
	case *For:
		return e.runFor(ctx, c)
	case *CFor:
		return e.runCFor(ctx, c)
	case *While:
		return e.runWhile(ctx, c)
	case *Subshell:
		return e.runSubshell(ctx, c)
	case *BraceGroup:
		return e.run(ctx, c.Body)
	case *Negate:
		return boolToStatus(e.run(ctx, c.Body) != 0)
	case *Function:
		e.Funcs[c.Name] = c
		return 0
	case *Case:
		return e.runCase(ctx, c)
	case *DoubleBracket:
		return e.runDoubleBracket(ctx, c)
	case *ArithmeticCommand:
		v, err := e.evalArith(c.Expr)
		if err != nil {
			e.writeErr(err.Error() + "\n")
			return 1
		}
		return boolToStatus(v != 0)
	case *Break:
		panic(controlSignal{kind: sigBreak, level: atLeastOne(c.Level)})
	case *Continue:
		panic(controlSignal{kind: sigContinue, level: atLeastOne(c.Level)})
	default:
		return 0
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func boolToStatus(b bool) int {
	if b {
		return 0
	}
	return 1
}

func (e *Executor) runList(ctx context.Context, l *List) int {
	status := 0
	i := 0
	for i < len(l.Items) {
		status = e.run(ctx, l.Items[i])
		if i >= len(l.Ops) {
			break
		}
		switch l.Ops[i] {
		case ListAnd:
			if status != 0 {
				i = e.skipUntilBoundary(l, i+1)
				continue
			}
		case ListOr:
			if status == 0 {
				i = e.skipUntilBoundary(l, i+1)
				continue
			}
		}
		i++
	}
	return status
}

// skipUntilBoundary advances past a run of &&/|| items whose short-circuit
// condition failed, stopping at the next ; or & boundary.
func (e *Executor) skipUntilBoundary(l *List, from int) int {
	i := from
	for i < len(l.Ops) && (l.Ops[i] == ListAnd || l.Ops[i] == ListOr) {
		i++
	}
	return i
}

func (e *Executor) runIf(ctx context.Context, n *If) int {
	if e.run(ctx, n.Cond) == 0 {
		return e.run(ctx, n.Then)
	}
	for _, el := range n.Elifs {
		if e.run(ctx, el.Cond) == 0 {
			return e.run(ctx, el.Then)
		}
	}
	if n.Else != nil {
		return e.run(ctx, n.Else)
	}
	return 0
}

func (e *Executor) runLoopBody(ctx context.Context, body Command) (status int, brk bool) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(controlSignal)
			if !ok {
				panic(r)
			}
			switch sig.kind {
			case sigBreak:
				if sig.level > 1 {
					panic(controlSignal{kind: sigBreak, level: sig.level - 1})
				}
				brk = true
			case sigContinue:
				if sig.level > 1 {
					panic(controlSignal{kind: sigContinue, level: sig.level - 1})
				}
			default:
				panic(r)
			}
		}
	}()
	status = e.run(ctx, body)
	return status, false
}

func (e *Executor) runFor(ctx context.Context, n *For) int {
	status := 0
	words := n.Words
	if words == nil {
		words = wordsFromStrings(e.positional)
	}
	for _, w := range words {
		vals, err := e.expandWord(ctx, w)
		if err != nil {
			e.writeErr(err.Error() + "\n")
			return 1
		}
		for _, v := range vals {
			e.Vars[n.Var] = v
			st, brk := e.runLoopBody(ctx, n.Body)
			status = st
			if brk {
				return status
			}
		}
	}
	return status
}

func wordsFromStrings(vals []string) []Word {
	out := make([]Word, len(vals))
	for i, v := range vals {
		out[i] = Word{Parts: []WordPart{{Literal: v, Quoted: true}}}
	}
	return out
}

func (e *Executor) runCFor(ctx context.Context, n *CFor) int {
	status := 0
	if n.Init != "" {
		if _, err := e.evalArith(n.Init); err != nil {
			e.writeErr(err.Error() + "\n")
			return 1
		}
	}
	for i := 0; i < maxLoopIterations; i++ {
		if n.Cond != "" {
			v, err := e.evalArith(n.Cond)
			if err != nil {
				e.writeErr(err.Error() + "\n")
				return 1
			}
			if v == 0 {
				break
			}
		}
		st, brk := e.runLoopBody(ctx, n.Body)
		status = st
		if brk {
			return status
		}
		if n.Post != "" {
			if _, err := e.evalArith(n.Post); err != nil {
				e.writeErr(err.Error() + "\n")
				return 1
			}
		}
	}
	return status
}

func (e *Executor) runWhile(ctx context.Context, n *While) int {
	status := 0
	for i := 0; i < maxLoopIterations; i++ {
		condStatus := e.run(ctx, n.Cond)
		loopGoes := condStatus == 0
		if n.Until {
			loopGoes = condStatus != 0
		}
		if !loopGoes {
			break
		}
		st, brk := e.runLoopBody(ctx, n.Body)
		status = st
		if brk {
			return status
		}
	}
	return status
}

func (e *Executor) runCase(ctx context.Context, n *Case) int {
	vals, err := e.expandWord(ctx, n.Subject)
	if err != nil {
		e.writeErr(err.Error() + "\n")
		return 1
	}
	subject := strings.Join(vals, " ")
	for _, item := range n.Items {
		for _, pw := range item.Patterns {
			pat, _ := e.expandWord(ctx, pw)
			if len(pat) == 0 {
				pat = []string{""}
			}
			if globMatch(strings.Join(pat, " "), subject) {
				return e.run(ctx, item.Body)
			}
		}
	}
	return 0
}

// globMatch compares a glob-style case pattern against a literal value
// without ever touching the VFS or real filesystem.
func globMatch(pattern, s string) bool {
	if pattern == s {
		return true
	}
	ok, err := filepath.Match(pattern, s)
	return err == nil && ok
}

func (e *Executor) runSubshell(ctx context.Context, n *Subshell) int {
	child := e.fork()
	return child.run(ctx, n.Body)
}

// fork produces a child Executor with independent variables and cwd
// (POSIX subshell semantics) but the same VFS/fd-table/function-table
// references, serialized by the shared vfsMu.
func (e *Executor) fork() *Executor {
	vars := make(map[string]string, len(e.Vars))
	for k, v := range e.Vars {
		vars[k] = v
	}
	return &Executor{
		VFS: e.VFS, Fds: e.Fds, Clock: e.Clock,
		Vars: vars, Funcs: e.Funcs, Cwd: e.Cwd,
		SetE: e.SetE, SetU: e.SetU, External: e.External, Network: e.Network,
		positional: e.positional, vfsMu: e.vfsMu,
	}
}

func (e *Executor) forkForSubstitution(target procfs.FdTarget) *Executor {
	child := e.fork()
	child.substDepth = e.substDepth
	child.Fds = e.Fds.Clone()
	child.Fds.SetTarget(1, target)
	return child
}

// captureTarget accumulates writes in memory, backing command
// substitution's "collect stdout" semantics.
type captureTarget struct {
	buf strings.Builder
}

func (c *captureTarget) ReadBytes(p []byte) (int, error)  { return 0, fmt.Errorf("not readable") }
func (c *captureTarget) WriteBytes(p []byte) (int, error) { return c.buf.Write(p) }
func (c *captureTarget) String() string                   { return c.buf.String() }

// runSimple expands a simple command's assignments and argv, applies
// its redirections to a cloned fd table, and dispatches to a builtin,
// a user function, or the external-command collaborator in that order.
func (e *Executor) runSimple(ctx context.Context, c *Simple) int {
	fds := e.Fds.Clone()
	flushes, err := e.applyRedirects(ctx, fds, c.Redirects)
	if err != nil {
		e.writeErr(err.Error() + "\n")
		e.flushRedirects(flushes)
		return 1
	}
	finish := func(status int) int {
		if err := e.flushRedirects(flushes); err != nil {
			e.writeErr(err.Error() + "\n")
			return 1
		}
		return status
	}

	argv, err := e.expandArgv(ctx, c.Argv)
	if err != nil {
		e.writeErr(err.Error() + "\n")
		e.flushRedirects(flushes)
		return 1
	}

	if len(argv) == 0 {
		// Bare assignment(s), no command: they persist in the current
		// environment rather than being scoped to a child process.
		if err := e.applyAssigns(ctx, c.Assigns); err != nil {
			e.writeErr(err.Error() + "\n")
			e.flushRedirects(flushes)
			return 1
		}
		return finish(0)
	}

	restore := e.pushTempAssigns(ctx, c.Assigns)
	defer restore()

	name := argv[0]
	args := argv[1:]

	if status, ok, err := e.runBuiltin(ctx, name, args, fds); ok {
		if err != nil {
			e.writeErr(err.Error() + "\n")
		}
		return finish(status)
	}

	if fn, ok := e.Funcs[name]; ok {
		status := e.callFunction(ctx, fn, args, fds)
		return finish(status)
	}

	if e.External != nil {
		status, err := e.External.Run(ctx, name, args, fds, e.Cwd, e.environList())
		if err != nil {
			e.writeErr(fmt.Sprintf("shell: %s: %v\n", name, err))
			e.flushRedirects(flushes)
			return 127
		}
		return finish(status)
	}

	e.writeErr(fmt.Sprintf("%s: command not found\n", name))
	e.flushRedirects(flushes)
	return 127
}

func (e *Executor) expandArgv(ctx context.Context, words []Word) ([]string, error) {
	var argv []string
	for _, w := range words {
		vals, err := e.expandWord(ctx, w)
		if err != nil {
			return nil, err
		}
		argv = append(argv, vals...)
	}
	return argv, nil
}

func (e *Executor) applyAssigns(ctx context.Context, assigns map[string]Word) error {
	for name, w := range assigns {
		vals, err := e.expandWord(ctx, w)
		if err != nil {
			return err
		}
		e.Vars[name] = joinOrFirst(vals)
	}
	return nil
}

// pushTempAssigns sets assignments that precede a command name into the
// current environment for the duration of that command only, returning
// a closure that restores (or deletes) the prior value.
func (e *Executor) pushTempAssigns(ctx context.Context, assigns map[string]Word) func() {
	if len(assigns) == 0 {
		return func() {}
	}
	type saved struct {
		val string
		set bool
	}
	prior := make(map[string]saved, len(assigns))
	for name, w := range assigns {
		v, ok := e.Vars[name]
		prior[name] = saved{v, ok}
		vals, err := e.expandWord(ctx, w)
		if err != nil {
			continue
		}
		e.Vars[name] = joinOrFirst(vals)
	}
	return func() {
		for name, s := range prior {
			if s.set {
				e.Vars[name] = s.val
			} else {
				delete(e.Vars, name)
			}
		}
	}
}

func (e *Executor) environList() []string {
	env := make([]string, 0, len(e.Vars))
	for k, v := range e.Vars {
		env = append(env, k+"="+v)
	}
	return env
}

// callFunction invokes fn's body with args as the new positional
// parameters, in a forked executor sharing variables (POSIX functions
// are not subshells) but using the redirected fd table.
func (e *Executor) callFunction(ctx context.Context, fn *Function, args []string, fds *procfs.Table) (status int) {
	if e.funcDepth >= maxFunctionDepth {
		e.writeErr(fmt.Sprintf("%s: function call nesting too deep\n", fn.Name))
		return 1
	}
	child := &Executor{
		VFS: e.VFS, Fds: fds, Clock: e.Clock,
		Vars: e.Vars, Funcs: e.Funcs, Cwd: e.Cwd,
		SetE: e.SetE, SetU: e.SetU, External: e.External, Network: e.Network,
		positional: args, vfsMu: e.vfsMu, funcDepth: e.funcDepth + 1,
	}
	defer func() {
		e.Cwd = child.Cwd
		e.LastStatus = child.LastStatus
		if r := recover(); r != nil {
			sig, ok := r.(controlSignal)
			if !ok {
				panic(r)
			}
			if sig.kind != sigReturn {
				panic(r)
			}
			status = sig.code
		}
	}()
	return child.run(ctx, fn.Body)
}

// runPipeline wires N-1 pipes between N stages, runs each stage
// concurrently (a pipeline's stages are independent subshell-like
// processes sharing the VFS, serialized through vfsMu), and returns the
// last stage's exit status. This implementation does not propagate
// `set -o pipefail`-style earliest-failure status — see DESIGN.md.
func (e *Executor) runPipeline(ctx context.Context, p *Pipeline) int {
	n := len(p.Commands)
	if n == 1 {
		status := e.run(ctx, p.Commands[0])
		if p.Negate {
			return boolToStatus(status != 0)
		}
		return status
	}

	stageFds := make([]*procfs.Table, n)
	for i := range stageFds {
		stageFds[i] = e.Fds.Clone()
	}
	for i := 0; i < n-1; i++ {
		pipe := procfs.NewPipe(procfs.DefaultPipeCapacity)
		stageFds[i].SetTarget(1, &procfs.PipeWriteTarget{Pipe: pipe})
		stageFds[i+1].SetTarget(0, &procfs.PipeReadTarget{Pipe: pipe})
	}

	statuses := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			child := e.fork()
			child.Fds = stageFds[i]
			statuses[i] = child.run(ctx, p.Commands[i])
		}(i)
	}
	wg.Wait()

	status := statuses[n-1]
	if p.Negate {
		return boolToStatus(status != 0)
	}
	return status
}

// runDoubleBracket evaluates a fixed `[[ ... ]]` subset: unary
// file/string tests, binary string/integer
// comparisons, and the -a/-o/! combinators (also && and ||); -a binds
// tighter than -o and parentheses group.
func (e *Executor) runDoubleBracket(ctx context.Context, n *DoubleBracket) int {
	toks := make([]string, 0, len(n.Tokens))
	for _, w := range n.Tokens {
		vals, err := e.expandWord(ctx, w)
		if err != nil {
			e.writeErr(err.Error() + "\n")
			return 2
		}
		toks = append(toks, vals...)
	}
	ok, err := e.evalTestExpr(toks)
	if err != nil {
		e.writeErr(err.Error() + "\n")
		return 2
	}
	return boolToStatus(ok)
}
