package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const maxSubstDepth = 50

// expandWord runs a fixed expansion order: tilde, parameter, command
// substitution, arithmetic, field splitting, and glob; brace expansion
// is not performed. It returns the resulting
// argv-ready strings (a single word can expand to zero or many, e.g.
// "$@" or an unquoted "*").
func (e *Executor) expandWord(ctx context.Context, w Word) ([]string, error) {
	if e.substDepth > maxSubstDepth {
		return nil, fmt.Errorf("shell: substitution nesting too deep")
	}

	var fields []string
	var current strings.Builder
	flush := func(quoted bool) {
		if current.Len() > 0 || quoted {
			fields = append(fields, current.String())
			current.Reset()
		}
	}
	hasContent := false

	for _, part := range w.Parts {
		switch {
		case part.Tilde:
			current.WriteString(e.Vars["HOME"])
			hasContent = true
		case part.VarName != "":
			val := e.expandParam(part)
			if part.Quoted {
				current.WriteString(val)
			} else {
				e.splitIntoFields(val, &fields, &current)
			}
			hasContent = true
		case part.CmdSub != nil:
			out, err := e.runCommandSubst(ctx, part.CmdSub)
			if err != nil {
				return nil, err
			}
			if part.Quoted {
				current.WriteString(out)
			} else {
				e.splitIntoFields(out, &fields, &current)
			}
			hasContent = true
		case part.ArithExpr != "":
			v, err := e.evalArith(part.ArithExpr)
			if err != nil {
				return nil, err
			}
			current.WriteString(strconv.FormatInt(v, 10))
			hasContent = true
		default:
			current.WriteString(part.Literal)
			if part.Literal != "" {
				hasContent = true
			}
		}
	}
	flush(hasContent && len(fields) == 0)
	if len(fields) == 0 && hasContent {
		fields = []string{""}
	}
	if e.lastErr != nil {
		err := e.lastErr
		e.lastErr = nil
		return nil, err
	}

	var globbed []string
	for _, f := range fields {
		matches, _ := filepath.Glob(f)
		if len(matches) == 0 || !strings.ContainsAny(f, "*?[") {
			globbed = append(globbed, f)
		} else {
			globbed = append(globbed, matches...)
		}
	}
	return globbed, nil
}

// splitIntoFields appends s to fields using IFS-whitespace splitting,
// the unquoted-expansion half of field splitting.
func (e *Executor) splitIntoFields(s string, fields *[]string, current *strings.Builder) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return
	}
	if current.Len() > 0 {
		current.WriteString(parts[0])
		*fields = append(*fields, current.String())
		current.Reset()
		parts = parts[1:]
	}
	*fields = append(*fields, parts...)
}

func (e *Executor) expandParam(part WordPart) string {
	val, set := e.lookupVar(part.VarName)
	switch part.VarOp {
	case ':':
		if !set || val == "" {
			return part.VarDefault
		}
		return val
	case '=':
		if !set || val == "" {
			e.Vars[part.VarName] = part.VarDefault
			return part.VarDefault
		}
		return val
	case '+':
		if set && val != "" {
			return part.VarDefault
		}
		return ""
	case '?':
		if !set || val == "" {
			return ""
		}
		return val
	default:
		if !set && e.SetU {
			e.lastErr = fmt.Errorf("shell: %s: unbound variable", part.VarName)
		}
		return val
	}
}

func (e *Executor) lookupVar(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(e.LastStatus), true
	case "$":
		return strconv.Itoa(os.Getpid()), true
	case "#":
		return strconv.Itoa(len(e.positional)), true
	case "@", "*":
		return strings.Join(e.positional, " "), len(e.positional) > 0
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n >= 1 && n <= len(e.positional) {
			return e.positional[n-1], true
		}
		return "", false
	}
	v, ok := e.Vars[name]
	return v, ok
}

func (e *Executor) runCommandSubst(ctx context.Context, sub *CommandSubst) (string, error) {
	e.substDepth++
	defer func() { e.substDepth-- }()

	out := captureTarget{}
	child := e.forkForSubstitution(&out)
	status := child.run(ctx, sub.Body)
	e.LastStatus = status
	return strings.TrimRight(out.String(), "\n"), nil
}
