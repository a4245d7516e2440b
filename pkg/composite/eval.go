// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"fmt"
	"strconv"
)

// comparison is a leaf node: <plugin>.<attribute> <op> <scalar>.
type comparison struct {
	ref      Ref
	op       string
	num      float64
	str      string
	isString bool
}

func (c *comparison) References() []Ref {
	return []Ref{c.ref}
}

// Eval resolves the reference and compares. A missing plugin result or a
// missing attribute makes the leaf UNKNOWN.
func (c *comparison) Eval(res Resolver) TriBool {
	raw, ok := res.Resolve(c.ref.Plugin, c.ref.Attribute)
	if !ok {
		return Unknown
	}

	if c.isString {
		actual := toString(raw)
		switch c.op {
		case "==":
			return boolToTri(actual == c.str)
		case "!=":
			return boolToTri(actual != c.str)
		}
		return Unknown
	}

	value, ok := toFloat(raw)
	if !ok {
		return Unknown
	}
	switch c.op {
	case ">":
		return boolToTri(value > c.num)
	case "<":
		return boolToTri(value < c.num)
	case ">=":
		return boolToTri(value >= c.num)
	case "<=":
		return boolToTri(value <= c.num)
	case "==":
		return boolToTri(value == c.num)
	case "!=":
		return boolToTri(value != c.num)
	}
	return Unknown
}

func boolToTri(b bool) TriBool {
	if b {
		return True
	}
	return False
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
