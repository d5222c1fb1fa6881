package shell

import (
	"fmt"
	"strconv"

	"github.com/googlecloudplatform/wasmsand/vfsfs"
)

// testParser evaluates both `test`/`[ ]` argument vectors and `[[ ]]`
// token lists, since the two share the same unary/binary vocabulary
// (a fixed subset — no regex, no =~).
type testParser struct {
	toks []string
	pos  int
	e    *Executor
}

func (e *Executor) evalTestExpr(toks []string) (bool, error) {
	p := &testParser{toks: toks, e: e}
	if len(toks) == 0 {
		return false, nil
	}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("shell: unexpected token %q in conditional expression", p.peek())
	}
	return v, nil
}

func (p *testParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *testParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *testParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peek() == "-o" || p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *testParser) parseAnd() (bool, error) {
	left, err := p.parseUnaryOrGroup()
	if err != nil {
		return false, err
	}
	for p.peek() == "-a" || p.peek() == "&&" {
		p.next()
		right, err := p.parseUnaryOrGroup()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *testParser) parseUnaryOrGroup() (bool, error) {
	switch p.peek() {
	case "!":
		p.next()
		v, err := p.parseUnaryOrGroup()
		return !v, err
	case "(":
		p.next()
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.peek() != ")" {
			return false, fmt.Errorf("shell: expected ) in conditional expression")
		}
		p.next()
		return v, nil
	}
	return p.parsePrimary()
}

var fileUnaryOps = map[string]bool{
	"-e": true, "-f": true, "-d": true, "-r": true,
	"-w": true, "-x": true, "-s": true, "-L": true,
}

func (p *testParser) parsePrimary() (bool, error) {
	t := p.next()
	if t == "-z" {
		return p.next() == "", nil
	}
	if t == "-n" {
		return p.next() != "", nil
	}
	if fileUnaryOps[t] {
		path := vfsfs.Join(p.e.Cwd, p.next())
		p.e.vfsMu.Lock()
		var in vfsfs.Inode
		var err error
		if t == "-L" {
			in, err = p.e.VFS.Lstat(path)
		} else {
			in, err = p.e.VFS.Stat(path)
		}
		p.e.vfsMu.Unlock()
		switch t {
		case "-e", "-r", "-w":
			return err == nil, nil
		case "-f":
			return err == nil && in.Kind() == vfsfs.KindFile, nil
		case "-d":
			return err == nil && in.Kind() == vfsfs.KindDir, nil
		case "-L":
			return err == nil && in.Kind() == vfsfs.KindSymlink, nil
		case "-s":
			f, ok := in.(*vfsfs.File)
			return err == nil && ok && len(f.Data) > 0, nil
		case "-x":
			return err == nil, nil
		}
	}

	// Binary string/integer comparisons: t is the left operand.
	left := t
	op := p.peek()
	switch op {
	case "=", "==", "!=":
		p.next()
		right := p.next()
		eq := left == right
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		p.next()
		right := p.next()
		li, _ := strconv.ParseInt(left, 10, 64)
		ri, _ := strconv.ParseInt(right, 10, 64)
		switch op {
		case "-eq":
			return li == ri, nil
		case "-ne":
			return li != ri, nil
		case "-lt":
			return li < ri, nil
		case "-le":
			return li <= ri, nil
		case "-gt":
			return li > ri, nil
		case "-ge":
			return li >= ri, nil
		}
	}

	// Lone word: truthy iff non-empty, matching `[[ $x ]]`/`test "$x"`.
	return left != "", nil
}
