package shell

import "fmt"

// Parser is a recursive-descent parser with multi-token lookahead over
// a Lexer, producing a Command tree. Lookahead deeper than one token is
// needed only to recognize a numeric fd prefix immediately before a
// redirection operator (`2>`) and the `;;` terminator of a case item.
type Parser struct {
	lex *Lexer
	buf []Token
}

// NewParser wraps lex.
func NewParser(lex *Lexer) *Parser {
	return &Parser{lex: lex}
}

func (p *Parser) fill(n int) {
	for len(p.buf) <= n {
		p.buf = append(p.buf, p.lex.Next())
	}
}

func (p *Parser) peek() Token {
	p.fill(0)
	return p.buf[0]
}

func (p *Parser) peekAt(n int) Token {
	p.fill(n)
	return p.buf[n]
}

func (p *Parser) next() Token {
	p.fill(0)
	t := p.buf[0]
	p.buf = p.buf[1:]
	return t
}

func (p *Parser) skipNewlines() {
	for p.peek().Kind == TokNewline {
		p.next()
	}
}

// ParseProgram parses an entire script into one top-level Command
// (typically a *List).
func (p *Parser) ParseProgram() (Command, error) {
	p.skipNewlines()
	if p.peek().Kind == TokEOF {
		return &Simple{}, nil
	}
	cmd, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.peek().Kind != TokEOF {
		return nil, fmt.Errorf("shell: unexpected token after program")
	}
	return cmd, nil
}

// parseList parses a ;/&-separated chain of && / || chains. topLevel
// also accepts newline as a separator between statements.
func (p *Parser) parseList(topLevel bool) (Command, error) {
	items := []Command{}
	ops := []ListOp{}

	if topLevel {
		p.skipNewlines()
	}
	first, err := p.parseAndOr()
	if err != nil {
		return nil, err
	}
	items = append(items, first)

	for {
		switch p.peek().Kind {
		case TokSemi:
			p.next()
			ops = append(ops, ListSeq)
		case TokAmp:
			p.next()
			ops = append(ops, ListAsync)
		default:
			if topLevel && p.peek().Kind == TokNewline {
				p.skipNewlines()
				if isBlockTerminator(p.peek().Kind) || p.peek().Kind == TokEOF {
					goto done
				}
				ops = append(ops, ListSeq)
				break
			}
			goto done
		}
		if topLevel {
			p.skipNewlines()
		}
		if isBlockTerminator(p.peek().Kind) || p.peek().Kind == TokEOF {
			goto done
		}
		next, err := p.parseAndOr()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
done:
	if len(items) == 1 {
		return items[0], nil
	}
	return &List{Items: items, Ops: ops}, nil
}

func isBlockTerminator(k TokenKind) bool {
	switch k {
	case TokThen, TokElif, TokElse, TokFi, TokDo, TokDone, TokEsac, TokRBrace, TokRParen:
		return true
	}
	return false
}

func (p *Parser) parseAndOr() (Command, error) {
	left, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	for {
		var op ListOp
		switch p.peek().Kind {
		case TokAndIf:
			op = ListAnd
		case TokOrIf:
			op = ListOr
		default:
			return left, nil
		}
		p.next()
		p.skipNewlines()
		right, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		if list, ok := left.(*List); ok && allAndOr(list.Ops) {
			list.Items = append(list.Items, right)
			list.Ops = append(list.Ops, op)
			left = list
		} else {
			left = &List{Items: []Command{left, right}, Ops: []ListOp{op}}
		}
	}
}

func allAndOr(ops []ListOp) bool {
	for _, o := range ops {
		if o != ListAnd && o != ListOr {
			return false
		}
	}
	return true
}

func (p *Parser) parsePipeline() (Command, error) {
	negate := false
	if p.peek().Kind == TokBang {
		p.next()
		negate = true
	}
	first, err := p.parseCommandNode()
	if err != nil {
		return nil, err
	}
	cmds := []Command{first}
	for p.peek().Kind == TokPipe {
		p.next()
		p.skipNewlines()
		next, err := p.parseCommandNode()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, next)
	}
	if len(cmds) == 1 && !negate {
		return cmds[0], nil
	}
	return &Pipeline{Commands: cmds, Negate: negate}, nil
}

func (p *Parser) parseCommandNode() (Command, error) {
	switch p.peek().Kind {
	case TokIf:
		return p.parseIf()
	case TokFor:
		return p.parseFor()
	case TokWhile:
		return p.parseWhileUntil(false)
	case TokUntil:
		return p.parseWhileUntil(true)
	case TokCase:
		return p.parseCase()
	case TokLBrace:
		return p.parseBraceGroup()
	case TokLParen:
		return p.parseSubshell()
	case TokFunction:
		return p.parseFunctionKeyword()
	case TokWord:
		if isBareName(p.peek().Word) && flattenLiteral(p.peek().Word) == "[[" {
			return p.parseDoubleBracket()
		}
		return p.parseSimpleOrFunction()
	default:
		return p.parseSimpleOrFunction()
	}
}

// parseDoubleBracket reads a `[[ ... ]]` conditional expression as a
// flat word list, stopping at the matching "]]".
func (p *Parser) parseDoubleBracket() (Command, error) {
	p.next() // [[
	var toks []Word
	for {
		t := p.peek()
		if t.Kind == TokEOF {
			return nil, fmt.Errorf("shell: unterminated [[")
		}
		if t.Kind == TokWord && isBareName(t.Word) && flattenLiteral(t.Word) == "]]" {
			p.next()
			break
		}
		toks = append(toks, p.next().Word)
	}
	return &DoubleBracket{Tokens: toks}, nil
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	t := p.next()
	if t.Kind != k {
		return t, fmt.Errorf("shell: expected %s", what)
	}
	return t, nil
}

func (p *Parser) parseIf() (Command, error) {
	p.next() // if
	cond, err := p.parseList(false)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(TokThen, "then"); err != nil {
		return nil, err
	}
	then, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	node := &If{Cond: cond, Then: then}
	p.skipNewlines()
	for p.peek().Kind == TokElif {
		p.next()
		ec, err := p.parseList(false)
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		if _, err := p.expect(TokThen, "then"); err != nil {
			return nil, err
		}
		et, err := p.parseList(true)
		if err != nil {
			return nil, err
		}
		node.Elifs = append(node.Elifs, struct{ Cond, Then Command }{ec, et})
		p.skipNewlines()
	}
	if p.peek().Kind == TokElse {
		p.next()
		e, err := p.parseList(true)
		if err != nil {
			return nil, err
		}
		node.Else = e
		p.skipNewlines()
	}
	if _, err := p.expect(TokFi, "fi"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseFor() (Command, error) {
	p.next() // for
	name, err := p.expect(TokWord, "loop variable")
	if err != nil {
		return nil, err
	}
	varName := flattenLiteral(name.Word)
	p.skipNewlines()
	var words []Word
	if isInKeyword(p.peek()) {
		p.next()
		for p.peek().Kind == TokWord {
			t := p.next()
			words = append(words, t.Word)
		}
	}
	for p.peek().Kind == TokSemi || p.peek().Kind == TokNewline {
		p.next()
	}
	if _, err := p.expect(TokDo, "do"); err != nil {
		return nil, err
	}
	body, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokDone, "done"); err != nil {
		return nil, err
	}
	return &For{Var: varName, Words: words, Body: body}, nil
}

func (p *Parser) parseWhileUntil(until bool) (Command, error) {
	p.next()
	cond, err := p.parseList(false)
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokSemi || p.peek().Kind == TokNewline {
		p.next()
	}
	if _, err := p.expect(TokDo, "do"); err != nil {
		return nil, err
	}
	body, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokDone, "done"); err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body, Until: until}, nil
}

func (p *Parser) parseCase() (Command, error) {
	p.next() // case
	subjTok, err := p.expect(TokWord, "case subject")
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if !isInKeyword(p.next()) {
		return nil, fmt.Errorf("shell: expected in")
	}
	p.skipNewlines()
	node := &Case{Subject: subjTok.Word}
	for p.peek().Kind != TokEsac {
		if p.peek().Kind == TokLParen {
			p.next()
		}
		var patterns []Word
		for {
			t := p.next()
			patterns = append(patterns, t.Word)
			if p.peek().Kind == TokPipe {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		p.skipNewlines()
		var body Command = &Simple{}
		if p.peek().Kind != TokEsac {
			body, err = p.parseCaseBody()
			if err != nil {
				return nil, err
			}
		}
		node.Items = append(node.Items, CaseItem{Patterns: patterns, Body: body})
		p.skipNewlines()
	}
	p.next() // esac
	return node, nil
}

// parseCaseBody parses statements up to a `;;` terminator or `esac`.
func (p *Parser) parseCaseBody() (Command, error) {
	items := []Command{}
	ops := []ListOp{}
	for {
		p.skipNewlines()
		if p.peek().Kind == TokEsac {
			break
		}
		cmd, err := p.parseAndOr()
		if err != nil {
			return nil, err
		}
		items = append(items, cmd)
		if p.peek().Kind == TokSemi && p.peekAt(1).Kind == TokSemi {
			p.next()
			p.next()
			break
		}
		if p.peek().Kind == TokSemi {
			p.next()
			ops = append(ops, ListSeq)
			continue
		}
		break
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return &List{Items: items, Ops: ops}, nil
}

func (p *Parser) parseBraceGroup() (Command, error) {
	p.next() // {
	body, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return &BraceGroup{Body: body}, nil
}

func (p *Parser) parseSubshell() (Command, error) {
	p.next() // (
	body, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return &Subshell{Body: body}, nil
}

func (p *Parser) parseFunctionKeyword() (Command, error) {
	p.next() // function
	name, err := p.expect(TokWord, "function name")
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == TokLParen {
		p.next()
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}
	p.skipNewlines()
	body, err := p.parseCommandNode()
	if err != nil {
		return nil, err
	}
	return &Function{Name: flattenLiteral(name.Word), Body: body}, nil
}

// parseSimpleOrFunction handles `name() { ... }` (detected by
// lookahead) or falls through to a plain simple command.
func (p *Parser) parseSimpleOrFunction() (Command, error) {
	return p.parseSimpleCommand()
}

func (p *Parser) parseSimpleCommand() (Command, error) {
	cmd := &Simple{Assigns: map[string]Word{}}
	for p.peek().Kind == TokAssignment {
		t := p.next()
		cmd.Assigns[t.Name] = t.Word
	}

	for {
		switch p.peek().Kind {
		case TokWord:
			t := p.peek()
			if isAllDigits(t.Word) && isRedirectKind(p.peekAt(1).Kind) {
				p.next()
				r, err := p.parseRedirect()
				if err != nil {
					return nil, err
				}
				r.Fd = atoiSafe(flattenLiteral(t.Word))
				cmd.Redirects = append(cmd.Redirects, r)
				continue
			}
			// function definition shorthand: WORD ( ) NEWLINE? { body }
			if len(cmd.Argv) == 0 && isBareName(t.Word) {
				lexSave := p.lex.snapshot()
				bufSave := append([]Token(nil), p.buf...)
				p.next()
				if p.peek().Kind == TokLParen {
					p.next()
					if p.peek().Kind == TokRParen {
						p.next()
						p.skipNewlines()
						body, err := p.parseCommandNode()
						if err != nil {
							return nil, err
						}
						return &Function{Name: flattenLiteral(t.Word), Body: body}, nil
					}
				}
				p.lex.restore(lexSave)
				p.buf = bufSave
			}
			p.next()
			cmd.Argv = append(cmd.Argv, t.Word)
		case TokLess, TokGreat, TokDGreat, TokDLess, TokDLessDash, TokLessAnd, TokGreatAnd, TokDLessLess:
			r, err := p.parseRedirect()
			if err != nil {
				return nil, err
			}
			cmd.Redirects = append(cmd.Redirects, r)
		case TokAssignment:
			t := p.next()
			cmd.Assigns[t.Name] = t.Word
		default:
			if len(cmd.Argv) == 0 && len(cmd.Redirects) == 0 && len(cmd.Assigns) == 0 {
				return nil, fmt.Errorf("shell: expected a command")
			}
			if len(cmd.Argv) <= 2 && len(cmd.Redirects) == 0 && len(cmd.Assigns) == 0 && isBareName(cmd.Argv[0]) {
				if name := flattenLiteral(cmd.Argv[0]); name == "break" || name == "continue" {
					level := 1
					if len(cmd.Argv) == 2 {
						level, _ = parseIntLiteral(cmd.Argv[1])
					}
					if name == "break" {
						return &Break{Level: level}, nil
					}
					return &Continue{Level: level}, nil
				}
			}
			return cmd, nil
		}
	}
}

func isAllDigits(w Word) bool {
	if len(w.Parts) != 1 || w.Parts[0].Quoted || w.Parts[0].VarName != "" {
		return false
	}
	s := w.Parts[0].Literal
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isRedirectKind(k TokenKind) bool {
	switch k {
	case TokLess, TokGreat, TokDGreat, TokDLess, TokDLessDash, TokLessAnd, TokGreatAnd, TokDLessLess:
		return true
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// isInKeyword reports whether t is the `in` of a for or case header. The
// lexer only emits TokIn in command position, so a plain word "in" also
// counts here.
func isInKeyword(t Token) bool {
	return t.Kind == TokIn || (t.Kind == TokWord && isBareName(t.Word) && flattenLiteral(t.Word) == "in")
}

func isBareName(w Word) bool {
	return len(w.Parts) == 1 && !w.Parts[0].Quoted && w.Parts[0].VarName == "" && w.Parts[0].CmdSub == nil && w.Parts[0].ArithExpr == ""
}

func (p *Parser) parseRedirect() (Redirect, error) {
	kindTok := p.next()
	var kind RedirectKind
	defaultFd := 0
	switch kindTok.Kind {
	case TokLess:
		kind = RedirIn
	case TokGreat:
		kind = RedirOut
		defaultFd = 1
	case TokDGreat:
		kind = RedirAppend
		defaultFd = 1
	case TokDLess, TokDLessDash:
		kind = RedirHeredoc
	case TokDLessLess:
		kind = RedirHerestring
	case TokLessAnd:
		kind = RedirDupIn
	case TokGreatAnd:
		kind = RedirDupOut
		defaultFd = 1
	}

	if kind == RedirHeredoc {
		delimTok, err := p.expect(TokWord, "heredoc delimiter")
		if err != nil {
			return Redirect{}, err
		}
		delim := flattenLiteral(delimTok.Word)
		body := p.lex.ReadHeredocBody(delim, kindTok.Kind == TokDLessDash)
		p.buf = nil
		return Redirect{Kind: kind, HeredocBody: body, Fd: 0}, nil
	}

	target, err := p.expect(TokWord, "redirection target")
	if err != nil {
		return Redirect{}, err
	}
	dupTarget := -1
	if kind == RedirDupOut || kind == RedirDupIn {
		if n, ok := parseIntLiteral(target.Word); ok {
			dupTarget = n
		}
	}
	return Redirect{Kind: kind, Target: target.Word, Fd: defaultFd, DupTarget: dupTarget}, nil
}

func parseIntLiteral(w Word) (int, bool) {
	if !isAllDigits(w) {
		return 0, false
	}
	return atoiSafe(flattenLiteral(w)), true
}

// flattenLiteral concatenates a word's literal parts, used for contexts
// (keywords, loop variable names, heredoc delimiters) where expansion
// never applies.
func flattenLiteral(w Word) string {
	s := ""
	for _, part := range w.Parts {
		s += part.Literal
	}
	return s
}
