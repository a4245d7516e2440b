// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a rule expression into its tree. Operator precedence is
// NOT > AND > OR; parentheses group.
func Parse(input string) (Expr, error) {
	toks, err := newLexer(input).tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.peek().kind {
	case tokNot:
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.peek().pos)
		}
		p.advance()
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (Expr, error) {
	ref := p.advance()
	if ref.kind != tokIdent {
		return nil, fmt.Errorf("expected a <plugin>.<attribute> reference, got %q at position %d", ref.text, ref.pos)
	}
	idx := strings.Index(ref.text, ".")
	if idx <= 0 || idx == len(ref.text)-1 {
		return nil, fmt.Errorf("reference %q is not of the form <plugin>.<attribute>", ref.text)
	}

	op := p.advance()
	if op.kind != tokOp {
		return nil, fmt.Errorf("expected a comparison operator after %q, got %q", ref.text, op.text)
	}

	leaf := &comparison{
		ref: Ref{Plugin: ref.text[:idx], Attribute: ref.text[idx+1:]},
		op:  op.text,
	}

	val := p.advance()
	switch val.kind {
	case tokNumber:
		num, err := strconv.ParseFloat(val.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at position %d", val.text, val.pos)
		}
		leaf.num = num
	case tokString, tokIdent:
		if op.text != "==" && op.text != "!=" {
			return nil, fmt.Errorf("operator %q requires a numeric scalar, got %q", op.text, val.text)
		}
		leaf.str = val.text
		leaf.isString = true
	default:
		return nil, fmt.Errorf("expected a scalar after %q, got %q", op.text, val.text)
	}

	return leaf, nil
}
