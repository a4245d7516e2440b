// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves references from a nested map, the shape readings take
// at evaluation time.
type mapResolver map[string]map[string]interface{}

func (m mapResolver) Resolve(pluginName, attribute string) (interface{}, bool) {
	attrs, ok := m[pluginName]
	if !ok {
		return nil, false
	}
	v, ok := attrs[attribute]
	return v, ok
}

func eval(t *testing.T, expr string, res Resolver) TriBool {
	e, err := Parse(expr)
	require.NoError(t, err)
	return e.Eval(res)
}

func TestComparisonOperators(t *testing.T) {
	res := mapResolver{"cpu": {"value": 75.0}}

	assert.Equal(t, True, eval(t, "cpu.value > 70", res))
	assert.Equal(t, False, eval(t, "cpu.value > 80", res))
	assert.Equal(t, True, eval(t, "cpu.value >= 75", res))
	assert.Equal(t, True, eval(t, "cpu.value <= 75", res))
	assert.Equal(t, False, eval(t, "cpu.value < 75", res))
	assert.Equal(t, True, eval(t, "cpu.value == 75", res))
	assert.Equal(t, True, eval(t, "cpu.value != 74", res))
}

func TestStringEquality(t *testing.T) {
	res := mapResolver{"disk": {"mount": "/data"}}

	assert.Equal(t, True, eval(t, `disk.mount == "/data"`, res))
	assert.Equal(t, False, eval(t, `disk.mount == "/"`, res))
	assert.Equal(t, True, eval(t, `disk.mount != "/"`, res))
}

func TestPrecedenceNotAndOr(t *testing.T) {
	res := mapResolver{
		"a": {"value": 1.0},
		"b": {"value": 0.0},
		"c": {"value": 1.0},
	}

	// NOT binds tighter than AND, AND tighter than OR.
	assert.Equal(t, True, eval(t, "a.value == 1 OR b.value == 1 AND c.value == 0", res))
	assert.Equal(t, False, eval(t, "(a.value == 1 OR b.value == 1) AND c.value == 0", res))
	assert.Equal(t, True, eval(t, "NOT b.value == 1 AND a.value == 1", res))
}

func TestKleeneTable(t *testing.T) {
	assert.Equal(t, False, Unknown.And(False))
	assert.Equal(t, Unknown, Unknown.And(True))
	assert.Equal(t, True, Unknown.Or(True))
	assert.Equal(t, Unknown, Unknown.Or(False))
	assert.Equal(t, Unknown, Unknown.Not())
}

func TestMissingPluginIsUnknown(t *testing.T) {
	res := mapResolver{"cpu": {"value": 50.0}}

	assert.Equal(t, Unknown, eval(t, "memory.value > 90", res))
	// AND(UNK, false) = false
	assert.Equal(t, False, eval(t, "memory.value > 90 AND cpu.value > 90", res))
	// OR(UNK, true) = true
	assert.Equal(t, True, eval(t, "memory.value > 90 OR cpu.value > 40", res))
	// OR(UNK, false) = UNKNOWN
	assert.Equal(t, Unknown, eval(t, "memory.value > 90 OR cpu.value > 90", res))
}

func TestAllLeavesUnknown(t *testing.T) {
	res := mapResolver{}
	assert.Equal(t, Unknown, eval(t, "a.x > 1 AND b.y < 2 OR NOT c.z == 3", res))
}

func TestNonNumericAttributeIsUnknownForOrderedOps(t *testing.T) {
	res := mapResolver{"disk": {"mount": "/data"}}
	assert.Equal(t, Unknown, eval(t, "disk.mount > 5", res))
}

func TestNumericStringCoercion(t *testing.T) {
	res := mapResolver{"cpu": {"value": "75"}}
	assert.Equal(t, True, eval(t, "cpu.value > 70", res))
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"cpu.value >",
		"cpu.value 75",
		"(cpu.value > 75",
		"cpu > 75",            // no attribute
		"cpu.value > > 75",
		"cpu.value <> 75",
		`cpu.value > "high"`,  // ordered op with a string
		"AND cpu.value > 1",
	}
	for _, input := range cases {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseScenarioRule(t *testing.T) {
	expr, err := Parse("(cpu.value > 90 OR memory.value > 95) AND disk.value > 90")
	require.NoError(t, err)

	res := mapResolver{
		"cpu":    {"value": 92.0},
		"memory": {"value": 50.0},
		"disk":   {"value": 91.0},
	}
	assert.Equal(t, True, expr.Eval(res))

	res["disk"]["value"] = 80.0
	assert.Equal(t, False, expr.Eval(res))
}

func TestReferences(t *testing.T) {
	expr, err := Parse("cpu.value > 90 AND NOT disk.mount == \"/\"")
	require.NoError(t, err)

	refs := expr.References()
	require.Len(t, refs, 2)
	assert.Equal(t, "cpu.value", refs[0].String())
	assert.Equal(t, "disk.mount", refs[1].String())
}

func TestRenderMessage(t *testing.T) {
	res := mapResolver{"cpu": {"value": 92.5}}

	msg := RenderMessage("CPU at {cpu.value}%, disk at {disk.value}%", res)
	assert.Equal(t, "CPU at 92.5%, disk at UNKNOWN%", msg)
}
