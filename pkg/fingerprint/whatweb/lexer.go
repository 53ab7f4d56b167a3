// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package whatweb

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokRegexp
	tokSymbol
	tokNumber
	tokArrow
	tokLBrack
	tokRBrack
	tokLBrace
	tokRBrace
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokRegexp:
		return "regexp"
	case tokSymbol:
		return "symbol"
	case tokNumber:
		return "number"
	case tokArrow:
		return "'=>'"
	case tokLBrack:
		return "'['"
	case tokRBrack:
		return "']'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokComma:
		return "','"
	default:
		return "token"
	}
}

type token struct {
	kind  tokenKind
	text  string // decoded value; regexp source for tokRegexp
	flags string // regexp option letters
	line  int
	col   int
}

type lexer struct {
	src    string
	pos    int
	line   int
	col    int
	source string
}

func lex(source, src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1, source: source}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(line, col int, format string, args ...any) error {
	return &ParseError{Source: l.source, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance()
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '[':
		l.advance()
		return token{kind: tokLBrack, line: line, col: col}, nil
	case c == ']':
		l.advance()
		return token{kind: tokRBrack, line: line, col: col}, nil
	case c == '{':
		l.advance()
		return token{kind: tokLBrace, line: line, col: col}, nil
	case c == '}':
		l.advance()
		return token{kind: tokRBrace, line: line, col: col}, nil
	case c == ',':
		l.advance()
		return token{kind: tokComma, line: line, col: col}, nil
	case c == '=' && l.peekByte(1) == '>':
		l.advance()
		l.advance()
		return token{kind: tokArrow, line: line, col: col}, nil
	case c == '"' || c == '\'':
		text, err := l.readString(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: text, line: line, col: col}, nil
	case c == '/':
		pattern, flags, err := l.readRegexp()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokRegexp, text: pattern, flags: flags, line: line, col: col}, nil
	case c == ':' && isIdentStart(l.peekByte(1)):
		l.advance()
		return token{kind: tokSymbol, text: l.readWhile(isIdentPart), line: line, col: col}, nil
	case c == '-' && isDigit(l.peekByte(1)), isDigit(c):
		l.advance()
		return token{kind: tokNumber, text: string(c) + l.readWhile(isNumberPart), line: line, col: col}, nil
	case isIdentStart(c):
		return token{kind: tokIdent, text: l.readWhile(isDottedIdentPart), line: line, col: col}, nil
	default:
		return token{}, l.errorf(line, col, "unexpected character %q", c)
	}
}

func (l *lexer) readWhile(pred func(byte) bool) string {
	start := l.pos
	for l.pos < len(l.src) && pred(l.src[l.pos]) {
		l.advance()
	}
	return l.src[start:l.pos]
}

// readString decodes a Ruby string literal. Single quoted strings only honour
// \\ and \' escapes.
func (l *lexer) readString(quote byte) (string, error) {
	line, col := l.line, l.col
	l.advance()
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf(line, col, "unterminated string")
		}
		c := l.advance()
		switch {
		case c == quote:
			return b.String(), nil
		case c == '\\' && l.pos < len(l.src):
			e := l.advance()
			if quote == '\'' {
				if e != '\\' && e != '\'' {
					b.WriteByte('\\')
				}
				b.WriteByte(e)
				continue
			}
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

// readRegexp reads a /.../flags literal. The escaped delimiter \/ is unescaped;
// every other escape is kept for the regexp engine.
func (l *lexer) readRegexp() (string, string, error) {
	line, col := l.line, l.col
	l.advance()
	var b strings.Builder
	inClass := false
	for {
		if l.pos >= len(l.src) {
			return "", "", l.errorf(line, col, "unterminated regexp")
		}
		c := l.advance()
		switch {
		case c == '\\' && l.pos < len(l.src):
			e := l.advance()
			if e != '/' {
				b.WriteByte('\\')
			}
			b.WriteByte(e)
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == ']':
			inClass = false
			b.WriteByte(c)
		case c == '/' && !inClass:
			return b.String(), l.readWhile(isRegexpFlag), nil
		case c == '\n':
			return "", "", l.errorf(line, col, "unterminated regexp")
		default:
			b.WriteByte(c)
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDottedIdentPart(c byte) bool {
	return isIdentPart(c) || c == '.'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isNumberPart(c byte) bool {
	return isDigit(c) || c == '.' || c == '_'
}

func isRegexpFlag(c byte) bool {
	return c == 'i' || c == 'm' || c == 'x' || c == 'o' || c == 'u' || c == 'n'
}
