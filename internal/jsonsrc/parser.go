package jsonsrc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/conduit-lang/respack/internal/value"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw file bytes to UTF-8 text, honouring byte order marks
func Decode(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode UTF-16 source: %w", err)
		}
		return string(out), nil
	}
	return string(data), nil
}

// Parser builds values from tokens
type Parser struct {
	lex  *Lexer
	tok  Token
	file string
}

// Parse decodes a document whose root is an object
func Parse(data []byte) (*value.Dict, error) {
	return ParseFile("", data)
}

// ParseFile is Parse with a file name recorded in syntax errors
func ParseFile(file string, data []byte) (*value.Dict, error) {
	text, err := Decode(data)
	if err != nil {
		return nil, err
	}
	p := &Parser{lex: NewLexer(text), file: file}
	d, err := p.parseDocument()
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.File = file
		}
		return nil, err
	}
	return d, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) expect(t TokenType) error {
	if p.tok.Type != t {
		return p.lex.errorAt(p.tok.Offset, fmt.Sprintf("expected %s, found %s", t, p.tok.Type))
	}
	return p.advance()
}

func (p *Parser) parseDocument() (*value.Dict, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.Type != TokenLBrace {
		return nil, p.lex.errorAt(p.tok.Offset, fmt.Sprintf("document must be an object, found %s", p.tok.Type))
	}
	d, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	if p.tok.Type != TokenEOF {
		return nil, p.lex.errorAt(p.tok.Offset, fmt.Sprintf("unexpected %s after document", p.tok.Type))
	}
	return d, nil
}

// parseValue parses the value at the current token. Null yields nil.
func (p *Parser) parseValue() (value.Value, error) {
	tok := p.tok
	switch tok.Type {
	case TokenLBrace:
		return p.parseObject()
	case TokenLBracket:
		return p.parseArray()
	case TokenString:
		return value.NewString(tok.Text), p.advance()
	case TokenNumber:
		v, err := parseNumber(tok.Text)
		if err != nil {
			return nil, p.lex.errorAt(tok.Offset, err.Error())
		}
		return v, p.advance()
	case TokenTrue:
		return value.NewBool(true), p.advance()
	case TokenFalse:
		return value.NewBool(false), p.advance()
	case TokenNull:
		return nil, p.advance()
	}
	return nil, p.lex.errorAt(tok.Offset, fmt.Sprintf("expected a value, found %s", tok.Type))
}

func (p *Parser) parseObject() (*value.Dict, error) {
	if err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	d := value.NewDict()
	for p.tok.Type != TokenRBrace {
		if p.tok.Type != TokenString {
			return nil, p.lex.errorAt(p.tok.Offset, fmt.Sprintf("expected object key, found %s", p.tok.Type))
		}
		key := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		d.Put(key, v)

		if p.tok.Type == TokenComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.Type != TokenRBrace {
			return nil, p.lex.errorAt(p.tok.Offset, fmt.Sprintf("expected ',' or '}', found %s", p.tok.Type))
		}
	}
	return d, p.advance()
}

func (p *Parser) parseArray() (value.Value, error) {
	if err := p.expect(TokenLBracket); err != nil {
		return nil, err
	}
	var items []value.Value
	for p.tok.Type != TokenRBracket {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if v != nil {
			items = append(items, v)
		}

		if p.tok.Type == TokenComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.Type != TokenRBracket {
			return nil, p.lex.errorAt(p.tok.Offset, fmt.Sprintf("expected ',' or ']', found %s", p.tok.Type))
		}
	}
	return value.NewVector(items...), p.advance()
}

// parseNumber yields an Int for integral literals that fit, a Double otherwise
func parseNumber(text string) (value.Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return value.NewInt(i), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return value.NewDouble(f), nil
}
