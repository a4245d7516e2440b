// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package composite evaluates boolean rules over the latest per-plugin
// readings using Kleene three-valued logic.
package composite

import "fmt"

// TriBool is a Kleene three-valued boolean.
type TriBool int

// Kleene truth values.
const (
	False TriBool = iota
	True
	Unknown
)

func (t TriBool) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "UNKNOWN"
	}
}

// And is the Kleene conjunction: AND(UNK,false)=false, AND(UNK,true)=UNK.
func (t TriBool) And(other TriBool) TriBool {
	if t == False || other == False {
		return False
	}
	if t == Unknown || other == Unknown {
		return Unknown
	}
	return True
}

// Or is the Kleene disjunction: OR(UNK,true)=true, OR(UNK,false)=UNK.
func (t TriBool) Or(other TriBool) TriBool {
	if t == True || other == True {
		return True
	}
	if t == Unknown || other == Unknown {
		return Unknown
	}
	return False
}

// Not is the Kleene negation: NOT(UNK)=UNK.
func (t TriBool) Not() TriBool {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// Resolver resolves a <plugin>.<attribute> reference against the most recent
// readings of the current tick. ok is false when the plugin produced no
// reading or does not expose the attribute.
type Resolver interface {
	Resolve(pluginName, attribute string) (interface{}, bool)
}

// Ref is one leaf reference in an expression.
type Ref struct {
	Plugin    string
	Attribute string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s.%s", r.Plugin, r.Attribute)
}

// Expr is a node of the rule expression tree.
type Expr interface {
	Eval(res Resolver) TriBool
	// References lists the leaf references under this node.
	References() []Ref
}

type notExpr struct {
	inner Expr
}

func (e *notExpr) Eval(res Resolver) TriBool { return e.inner.Eval(res).Not() }
func (e *notExpr) References() []Ref         { return e.inner.References() }

type andExpr struct {
	left, right Expr
}

func (e *andExpr) Eval(res Resolver) TriBool {
	return e.left.Eval(res).And(e.right.Eval(res))
}

func (e *andExpr) References() []Ref {
	return append(e.left.References(), e.right.References()...)
}

type orExpr struct {
	left, right Expr
}

func (e *orExpr) Eval(res Resolver) TriBool {
	return e.left.Eval(res).Or(e.right.Eval(res))
}

func (e *orExpr) References() []Ref {
	return append(e.left.References(), e.right.References()...)
}
