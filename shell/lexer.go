package shell

import (
	"strings"
)

// Lexer turns a script string into Tokens. It is stateful (tracks
// whether the next word may be a reserved word, i.e. command position)
// because POSIX shells lex reserved words contextually rather than
// unconditionally.
type Lexer struct {
	src        []rune
	pos        int
	cmdStart   bool // true when the next word would be in command position
}

// NewLexer constructs a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), cmdStart: true}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) at(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	return r
}

func (l *Lexer) skipBlanks() {
	for l.pos < len(l.src) {
		r := l.peek()
		if r == ' ' || r == '\t' {
			l.pos++
			continue
		}
		if r == '#' {
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.pos++
			}
			continue
		}
		if r == '\\' && l.at(1) == '\n' {
			l.pos += 2
			continue
		}
		break
	}
}

// lexerState snapshots the lexer's position for parser backtracking
// (used only by the `name() { ... }` function-definition lookahead).
type lexerState struct {
	pos      int
	cmdStart bool
}

func (l *Lexer) snapshot() lexerState { return lexerState{l.pos, l.cmdStart} }

func (l *Lexer) restore(s lexerState) { l.pos, l.cmdStart = s.pos, s.cmdStart }

// Next returns the next token.
func (l *Lexer) Next() Token {
	l.skipBlanks()
	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF}
	}
	r := l.peek()

	switch r {
	case '\n':
		l.pos++
		l.cmdStart = true
		return Token{Kind: TokNewline}
	case ';':
		l.pos++
		l.cmdStart = true
		return Token{Kind: TokSemi}
	case '(':
		l.pos++
		l.cmdStart = true
		return Token{Kind: TokLParen}
	case ')':
		l.pos++
		return Token{Kind: TokRParen}
	case '|':
		l.pos++
		if l.peek() == '|' {
			l.pos++
			l.cmdStart = true
			return Token{Kind: TokOrIf}
		}
		l.cmdStart = true
		return Token{Kind: TokPipe}
	case '&':
		l.pos++
		if l.peek() == '&' {
			l.pos++
			l.cmdStart = true
			return Token{Kind: TokAndIf}
		}
		l.cmdStart = true
		return Token{Kind: TokAmp}
	case '<':
		l.pos++
		if l.peek() == '<' && l.at(1) == '<' {
			l.pos += 2
			return Token{Kind: TokDLessLess}
		}
		if l.peek() == '<' && l.at(1) == '-' {
			l.pos += 2
			return Token{Kind: TokDLessDash}
		}
		if l.peek() == '<' {
			l.pos++
			return Token{Kind: TokDLess}
		}
		if l.peek() == '&' {
			l.pos++
			return Token{Kind: TokLessAnd}
		}
		return Token{Kind: TokLess}
	case '>':
		l.pos++
		if l.peek() == '>' {
			l.pos++
			return Token{Kind: TokDGreat}
		}
		if l.peek() == '&' {
			l.pos++
			return Token{Kind: TokGreatAnd}
		}
		return Token{Kind: TokGreat}
	}

	word, isAssignment, name := l.readWord()
	if isAssignment {
		return Token{Kind: TokAssignment, Word: word, Name: name}
	}
	if l.cmdStart && len(word.Parts) == 1 && !word.Parts[0].Quoted && word.Parts[0].VarName == "" && word.Parts[0].CmdSub == nil {
		if kind, ok := reservedWords[word.Parts[0].Literal]; ok {
			l.cmdStart = kind == TokThen || kind == TokElse || kind == TokDo || kind == TokBang
			return Token{Kind: kind, Word: word}
		}
	}
	l.cmdStart = false
	return Token{Kind: TokWord, Word: word}
}

func isOperatorStart(r rune) bool {
	switch r {
	case '|', '&', ';', '<', '>', '(', ')', '\n', ' ', '\t', 0:
		return true
	}
	return false
}

// readWord reads one whitespace/operator-delimited word, resolving
// quoting and expansions into WordParts. It also detects the
// NAME=value assignment shape when in command-prefix position.
func (l *Lexer) readWord() (Word, bool, string) {
	start := l.pos
	var parts []WordPart
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			parts = append(parts, WordPart{Literal: lit.String()})
			lit.Reset()
		}
	}

	assignName := ""
	sawEquals := false
	first := true

	for l.pos < len(l.src) {
		r := l.peek()
		if isOperatorStart(r) {
			break
		}
		switch r {
		case '\'':
			l.pos++
			s := l.pos
			for l.pos < len(l.src) && l.peek() != '\'' {
				l.pos++
			}
			lit.WriteString(string(l.src[s:l.pos]))
			flushLit()
			parts[len(parts)-1].Quoted = true
			if l.pos < len(l.src) {
				l.pos++ // closing quote
			}
		case '"':
			l.pos++
			l.readDoubleQuoted(&parts, &lit)
		case '\\':
			l.pos++
			if l.pos < len(l.src) {
				lit.WriteRune(l.advance())
			}
		case '$':
			flushLit()
			l.readDollar(&parts)
		case '`':
			flushLit()
			l.pos++
			s := l.pos
			for l.pos < len(l.src) && l.peek() != '`' {
				l.pos++
			}
			body := string(l.src[s:l.pos])
			if l.pos < len(l.src) {
				l.pos++ // closing backquote
			}
			cmd, _ := NewParser(NewLexer(body)).ParseProgram()
			parts = append(parts, WordPart{CmdSub: &CommandSubst{Body: cmd}})
		case '~':
			if first {
				l.pos++
				parts = append(parts, WordPart{Tilde: true})
			} else {
				lit.WriteRune(l.advance())
			}
		case '=':
			if l.cmdStart && !sawEquals && len(parts) == 0 && lit.Len() > 0 && isValidName(lit.String()) {
				assignName = lit.String()
				sawEquals = true
				lit.Reset()
				l.pos++
			} else {
				lit.WriteRune(l.advance())
			}
		default:
			lit.WriteRune(l.advance())
		}
		first = false
	}
	flushLit()

	if sawEquals {
		return Word{Parts: parts}, true, assignName
	}
	if len(parts) == 0 && l.pos == start {
		// shouldn't happen given the operator-start guard above
	}
	return Word{Parts: parts}, false, ""
}

func isValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// readDoubleQuoted consumes up to the closing ", honoring $ expansions
// and \-escapes of $, `, ", \ while suppressing field splitting/globbing
// on the result (each WordPart produced is marked Quoted).
func (l *Lexer) readDoubleQuoted(parts *[]WordPart, lit *strings.Builder) {
	for l.pos < len(l.src) && l.peek() != '"' {
		r := l.peek()
		switch r {
		case '\\':
			l.pos++
			if l.pos < len(l.src) {
				n := l.peek()
				if n == '$' || n == '`' || n == '"' || n == '\\' {
					lit.WriteRune(l.advance())
				} else {
					lit.WriteRune('\\')
				}
			}
		case '$':
			if lit.Len() > 0 {
				*parts = append(*parts, WordPart{Literal: lit.String(), Quoted: true})
				lit.Reset()
			}
			before := len(*parts)
			l.readDollar(parts)
			for i := before; i < len(*parts); i++ {
				(*parts)[i].Quoted = true
			}
		default:
			lit.WriteRune(l.advance())
		}
	}
	if lit.Len() > 0 {
		*parts = append(*parts, WordPart{Literal: lit.String(), Quoted: true})
		lit.Reset()
	}
	if l.pos < len(l.src) {
		l.pos++ // closing quote
	}
	if len(*parts) == 0 {
		*parts = append(*parts, WordPart{Literal: "", Quoted: true})
	}
}

// readDollar handles $NAME, ${NAME}, ${NAME:-word} etc, $(...), and
// $((...)). Backquoted `...` substitution is handled in readWord.
func (l *Lexer) readDollar(parts *[]WordPart) {
	l.pos++ // consume '$'
	if l.pos >= len(l.src) {
		*parts = append(*parts, WordPart{Literal: "$"})
		return
	}
	if l.peek() == '(' && l.at(1) == '(' {
		l.pos += 2
		depth := 1
		start := l.pos
		for l.pos < len(l.src) && depth > 0 {
			switch l.peek() {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					break
				}
			}
			if depth == 0 {
				break
			}
			l.pos++
		}
		expr := string(l.src[start:l.pos])
		if l.pos < len(l.src) {
			l.pos++ // first ')'
		}
		if l.pos < len(l.src) && l.peek() == ')' {
			l.pos++
		}
		*parts = append(*parts, WordPart{ArithExpr: expr})
		return
	}
	if l.peek() == '(' {
		l.pos++
		start := l.pos
		depth := 1
		for l.pos < len(l.src) && depth > 0 {
			switch l.peek() {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				break
			}
			l.pos++
		}
		body := string(l.src[start:l.pos])
		if l.pos < len(l.src) {
			l.pos++
		}
		sub := NewLexer(body)
		cmd, _ := NewParser(sub).ParseProgram()
		*parts = append(*parts, WordPart{CmdSub: &CommandSubst{Body: cmd}})
		return
	}
	if l.peek() == '{' {
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && l.peek() != '}' {
			l.pos++
		}
		body := string(l.src[start:l.pos])
		if l.pos < len(l.src) {
			l.pos++
		}
		name, op, def := splitParamExpansion(body)
		*parts = append(*parts, WordPart{VarName: name, VarOp: op, VarDefault: def})
		return
	}
	if isSpecialParam(l.peek()) {
		name := string(l.advance())
		*parts = append(*parts, WordPart{VarName: name})
		return
	}
	start := l.pos
	for l.pos < len(l.src) && isNameRune(l.peek()) {
		l.pos++
	}
	if l.pos == start {
		*parts = append(*parts, WordPart{Literal: "$"})
		return
	}
	*parts = append(*parts, WordPart{VarName: string(l.src[start:l.pos])})
}

func isSpecialParam(r rune) bool {
	switch r {
	case '?', '#', '@', '*', '$', '!', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func isNameRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// splitParamExpansion parses "NAME:-word", "NAME:=word", "NAME:+word",
// "NAME:?word", or a bare "NAME" out of a ${...} body.
func splitParamExpansion(body string) (name string, op byte, def string) {
	for i, r := range body {
		if r == ':' && i+1 < len(body) {
			switch body[i+1] {
			case '-':
				return body[:i], ':', body[i+2:] // WordPart.VarOp encodes ":-" as ':'
			case '=', '+', '?':
				return body[:i], body[i+1], body[i+2:]
			}
		}
	}
	return body, 0, ""
}

// ReadHeredocBody consumes lines from the remaining input up to (and
// including) a line that equals delim exactly, returning the body with
// the terminator line excluded. If strip is set (<<-), leading tabs are
// stripped from every line including the delimiter line.
func (l *Lexer) ReadHeredocBody(delim string, strip bool) string {
	// Skip to the end of the current line; the heredoc body starts on
	// the next line.
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.pos++
	}
	if l.pos < len(l.src) {
		l.pos++
	}

	var out strings.Builder
	for l.pos < len(l.src) {
		lineStart := l.pos
		for l.pos < len(l.src) && l.peek() != '\n' {
			l.pos++
		}
		line := string(l.src[lineStart:l.pos])
		if l.pos < len(l.src) {
			l.pos++ // consume newline
		}
		check := line
		if strip {
			check = strings.TrimLeft(line, "\t")
		}
		if check == delim {
			return out.String()
		}
		if strip {
			out.WriteString(strings.TrimLeft(line, "\t"))
		} else {
			out.WriteString(line)
		}
		out.WriteByte('\n')
	}
	return out.String()
}
