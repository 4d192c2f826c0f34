// Package jsonsrc parses resource source files: JSON extended with line and
// block comments and trailing commas, encoded as UTF-8 (with or without BOM)
// or UTF-16 with BOM. Documents decode into value dictionaries.
package jsonsrc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// TokenType identifies a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenColon
	TokenComma
	TokenString
	TokenNumber
	TokenTrue
	TokenFalse
	TokenNull
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenColon:
		return "':'"
	case TokenComma:
		return "','"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenTrue, TokenFalse:
		return "boolean"
	case TokenNull:
		return "null"
	}
	return "unknown"
}

// Token is one lexical unit. Text holds the decoded string for TokenString
// and the literal for TokenNumber.
type Token struct {
	Type   TokenType
	Text   string
	Offset int
}

// SyntaxError reports malformed input
type SyntaxError struct {
	File    string
	Offset  int
	Line    int
	Column  int
	Excerpt string
	Message string
}

func (e *SyntaxError) Error() string {
	file := e.File
	if file == "" {
		file = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d (offset %d): %s near %q", file, e.Line, e.Column, e.Offset, e.Message, e.Excerpt)
}

const excerptRadius = 16

// Lexer tokenizes source text.
//
// Lexer instances are not safe for concurrent use.
type Lexer struct {
	source  string
	current int
}

// NewLexer creates a lexer over UTF-8 text
func NewLexer(source string) *Lexer {
	return &Lexer{source: source}
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	if err := l.skipTrivia(); err != nil {
		return Token{}, err
	}
	start := l.current
	if l.isAtEnd() {
		return Token{Type: TokenEOF, Offset: start}, nil
	}

	c := l.source[l.current]
	switch c {
	case '{':
		l.current++
		return Token{Type: TokenLBrace, Offset: start}, nil
	case '}':
		l.current++
		return Token{Type: TokenRBrace, Offset: start}, nil
	case '[':
		l.current++
		return Token{Type: TokenLBracket, Offset: start}, nil
	case ']':
		l.current++
		return Token{Type: TokenRBracket, Offset: start}, nil
	case ':':
		l.current++
		return Token{Type: TokenColon, Offset: start}, nil
	case ',':
		l.current++
		return Token{Type: TokenComma, Offset: start}, nil
	case '"':
		return l.string()
	}

	if c == '-' || isDigit(c) {
		return l.number()
	}
	if isAlpha(c) {
		return l.keyword()
	}
	return Token{}, l.errorAt(start, fmt.Sprintf("unexpected character %q", c))
}

func (l *Lexer) isAtEnd() bool { return l.current >= len(l.source) }

func (l *Lexer) peekAt(i int) byte {
	if l.current+i >= len(l.source) {
		return 0
	}
	return l.source[l.current+i]
}

// skipTrivia skips whitespace, // line comments and /* block */ comments
func (l *Lexer) skipTrivia() error {
	for !l.isAtEnd() {
		c := l.source[l.current]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.current++
		case c == '/' && l.peekAt(1) == '/':
			for !l.isAtEnd() && l.source[l.current] != '\n' {
				l.current++
			}
		case c == '/' && l.peekAt(1) == '*':
			start := l.current
			end := strings.Index(l.source[l.current+2:], "*/")
			if end < 0 {
				return l.errorAt(start, "unterminated block comment")
			}
			l.current += end + 4
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) string() (Token, error) {
	start := l.current
	l.current++ // opening quote

	var b strings.Builder
	for {
		if l.isAtEnd() {
			return Token{}, l.errorAt(start, "unterminated string")
		}
		c := l.source[l.current]
		switch {
		case c == '"':
			l.current++
			return Token{Type: TokenString, Text: b.String(), Offset: start}, nil
		case c == '\\':
			if err := l.escape(&b); err != nil {
				return Token{}, err
			}
		case c < 0x20:
			return Token{}, l.errorAt(l.current, "control character in string")
		default:
			r, size := utf8.DecodeRuneInString(l.source[l.current:])
			if r == utf8.RuneError && size == 1 {
				return Token{}, l.errorAt(l.current, "invalid UTF-8 in string")
			}
			b.WriteString(l.source[l.current : l.current+size])
			l.current += size
		}
	}
}

func (l *Lexer) escape(b *strings.Builder) error {
	at := l.current
	l.current++ // backslash
	if l.isAtEnd() {
		return l.errorAt(at, "unterminated escape")
	}
	c := l.source[l.current]
	l.current++
	switch c {
	case '"', '\\', '/':
		b.WriteByte(c)
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'u':
		r, err := l.hex4(at)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) {
			if l.peekAt(0) != '\\' || l.peekAt(1) != 'u' {
				return l.errorAt(at, "unpaired surrogate escape")
			}
			l.current += 2
			lo, err := l.hex4(at)
			if err != nil {
				return err
			}
			r = utf16.DecodeRune(r, lo)
			if r == utf8.RuneError {
				return l.errorAt(at, "invalid surrogate pair")
			}
		}
		b.WriteRune(r)
	default:
		return l.errorAt(at, fmt.Sprintf("invalid escape '\\%c'", c))
	}
	return nil
}

func (l *Lexer) hex4(at int) (rune, error) {
	if l.current+4 > len(l.source) {
		return 0, l.errorAt(at, "truncated \\u escape")
	}
	n, err := strconv.ParseUint(l.source[l.current:l.current+4], 16, 32)
	if err != nil {
		return 0, l.errorAt(at, "invalid \\u escape")
	}
	l.current += 4
	return rune(n), nil
}

func (l *Lexer) number() (Token, error) {
	start := l.current
	if l.peekAt(0) == '-' {
		l.current++
	}
	if !isDigit(l.peekAt(0)) {
		return Token{}, l.errorAt(start, "invalid number")
	}
	for isDigit(l.peekAt(0)) {
		l.current++
	}
	if l.peekAt(0) == '.' {
		l.current++
		if !isDigit(l.peekAt(0)) {
			return Token{}, l.errorAt(start, "invalid number")
		}
		for isDigit(l.peekAt(0)) {
			l.current++
		}
	}
	if c := l.peekAt(0); c == 'e' || c == 'E' {
		l.current++
		if c := l.peekAt(0); c == '+' || c == '-' {
			l.current++
		}
		if !isDigit(l.peekAt(0)) {
			return Token{}, l.errorAt(start, "invalid exponent")
		}
		for isDigit(l.peekAt(0)) {
			l.current++
		}
	}
	return Token{Type: TokenNumber, Text: l.source[start:l.current], Offset: start}, nil
}

func (l *Lexer) keyword() (Token, error) {
	start := l.current
	for isAlpha(l.peekAt(0)) {
		l.current++
	}
	word := l.source[start:l.current]
	switch word {
	case "true":
		return Token{Type: TokenTrue, Offset: start}, nil
	case "false":
		return Token{Type: TokenFalse, Offset: start}, nil
	case "null":
		return Token{Type: TokenNull, Offset: start}, nil
	}
	return Token{}, l.errorAt(start, fmt.Sprintf("unexpected word %q", word))
}

func (l *Lexer) errorAt(offset int, message string) *SyntaxError {
	line, col := 1, 1
	for i := 0; i < offset && i < len(l.source); i++ {
		if l.source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	from := max(0, offset-excerptRadius)
	to := min(len(l.source), offset+excerptRadius)
	return &SyntaxError{
		Offset:  offset,
		Line:    line,
		Column:  col,
		Excerpt: l.source[from:to],
		Message: message,
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
