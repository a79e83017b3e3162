package main

import (
	"testing"

	"gotest.tools/v3/assert"
)

func scopeForTest(t *testing.T, path, code string) *moduleScope {
	t.Helper()
	tree, err := ParseModule(path, []byte(code))
	assert.NilError(t, err)
	t.Cleanup(tree.Close)
	return newModuleScope(tree)
}

func TestModuleScopeTopLevelBindings(t *testing.T) {
	code := `
import D, { a, b as c } from "m";
import * as ns from "n";
const { x, y: [z = 1, ...rest] } = obj;
let w;
function f() { var inner; }
class K {}
export const e = 1;
export function g() {}
if (cond) { var hoisted = 1; }
`
	scope := scopeForTest(t, "index.js", code)

	for _, name := range []string{"D", "a", "c", "ns", "x", "z", "rest", "w", "f", "K", "e", "g", "hoisted"} {
		assert.Assert(t, scope.isTopLevel(name), name)
	}
	for _, name := range []string{"b", "y", "inner", "obj", "cond"} {
		assert.Assert(t, !scope.isTopLevel(name), name)
	}
	// referenced names are still taken
	for _, name := range []string{"b", "inner", "obj", "cond"} {
		assert.Assert(t, scope.isTaken(name), name)
	}
}

func TestModuleScopeTypeScriptDeclarations(t *testing.T) {
	code := `
import type { T } from "m";
enum Color { Red }
interface Shape {}
declare const declared: number;
`
	scope := scopeForTest(t, "index.ts", code)
	assert.Assert(t, scope.isTopLevel("T"))
	assert.Assert(t, scope.isTopLevel("Color"))
	assert.Assert(t, scope.isTopLevel("declared"))
	assert.Assert(t, scope.isTaken("Shape"))
}

func TestModuleScopeUniqueName(t *testing.T) {
	scope := scopeForTest(t, "index.js", "const _a = 1, _a$1 = 2;\nuse(_b);")

	assert.Equal(t, scope.uniqueName("a"), "_a$2")
	assert.Equal(t, scope.uniqueName("a"), "_a$3")
	assert.Equal(t, scope.uniqueName("b"), "_b$1")
	assert.Equal(t, scope.uniqueName("c"), "_c")
	assert.Equal(t, scope.uniqueName("x-y"), "_x_y")
	assert.Equal(t, scope.uniqueName(""), "_binding")
}

func TestGlobalRoot(t *testing.T) {
	tests := []struct {
		expr     string
		expected string
	}{
		{expr: "React", expected: "React"},
		{expr: "window.Vue", expected: "window"},
		{expr: `globals["my-lib"]`, expected: "globals"},
		{expr: "$", expected: "$"},
		{expr: "(a || b)", expected: ""},
		{expr: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, globalRoot(tt.expr), tt.expected)
		})
	}
}
