// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp     // > < >= <= == !=
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '>' || c == '<':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		return token{kind: tokOp, text: l.input[start:l.pos], pos: start}, nil
	case c == '=' || c == '!':
		l.pos++
		if l.pos >= len(l.input) || l.input[l.pos] != '=' {
			return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
		}
		l.pos++
		return token{kind: tokOp, text: l.input[start:l.pos], pos: start}, nil
	case c == '"' || c == '\'':
		quote := c
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("unterminated string starting at position %d", start)
		}
		text := l.input[start+1 : l.pos]
		l.pos++
		return token{kind: tokString, text: text, pos: start}, nil
	case c == '-' || c == '.' || unicode.IsDigit(rune(c)):
		l.pos++
		for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.input[start:l.pos], pos: start}, nil
	case unicode.IsLetter(rune(c)) || c == '_':
		l.pos++
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || c == '_' || c == '.' || c == '-' {
				l.pos++
				continue
			}
			break
		}
		text := l.input[start:l.pos]
		switch strings.ToUpper(text) {
		case "AND":
			return token{kind: tokAnd, text: text, pos: start}, nil
		case "OR":
			return token{kind: tokOr, text: text, pos: start}, nil
		case "NOT":
			return token{kind: tokNot, text: text, pos: start}, nil
		}
		return token{kind: tokIdent, text: text, pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
}
