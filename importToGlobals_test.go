package main

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

var testGlobals = map[string]string{
	"m":     "G",
	"win":   "window.Lib",
	"react": "React",
}

type rewriteOutput struct {
	code        string
	touched     bool
	diagnostics []Diagnostic
}

func rewriteForTest(t *testing.T, path, code string, globals *GlobalsResolver, configure func(r *Rewriter)) rewriteOutput {
	t.Helper()
	tree, err := ParseModule(path, []byte(code))
	assert.NilError(t, err)
	defer tree.Close()

	out := rewriteOutput{}
	r := &Rewriter{
		Globals: globals,
		Report: func(d Diagnostic) {
			out.diagnostics = append(out.diagnostics, d)
		},
	}
	if configure != nil {
		configure(r)
	}
	buf := NewEditBuffer([]byte(code))
	out.touched = r.Rewrite(tree, buf)
	out.code = buf.String()
	return out
}

func mustMapGlobals(t *testing.T, table map[string]string) *GlobalsResolver {
	t.Helper()
	globals, err := NewMapGlobals(table)
	assert.NilError(t, err)
	return globals
}

func TestRewriteStaticImports(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{
			name:     "default import",
			code:     `import X from "m";`,
			expected: `var X = G;`,
		},
		{
			name:     "default import without semicolon",
			code:     "import X from \"m\"\nX()",
			expected: "var X = G;\nX()",
		},
		{
			name:     "named imports read the original name",
			code:     `import { a, b as c } from "m";`,
			expected: `var a = G.a, c = G.b;`,
		},
		{
			name:     "string export name",
			code:     `import { "x-y" as d } from "m";`,
			expected: `var d = G["x-y"];`,
		},
		{
			name:     "default specifier",
			code:     `import { default as d } from "m";`,
			expected: `var d = G;`,
		},
		{
			name:     "namespace import",
			code:     `import * as ns from "m";`,
			expected: `var ns = G;`,
		},
		{
			name:     "default and named",
			code:     `import D, { a } from "m";`,
			expected: `var D = G, a = G.a;`,
		},
		{
			name:     "default and namespace",
			code:     `import D, * as ns from "m";`,
			expected: `var D = G, ns = G;`,
		},
		{
			name:     "side effect import is removed",
			code:     "import \"m\";\nrun();",
			expected: "\nrun();",
		},
		{
			name:     "member expression global",
			code:     `import { ref } from "win";`,
			expected: `var ref = window.Lib.ref;`,
		},
		{
			name:     "single quotes",
			code:     `import X from 'm';`,
			expected: `var X = G;`,
		},
		{
			name:     "statements around are kept",
			code:     "const before = 1;\nimport X from \"m\";\nconst after = X;\n",
			expected: "const before = 1;\nvar X = G;\nconst after = X;\n",
		},
		{
			name:     "only mapped statements change",
			code:     "import a from \"other\";\nimport b from \"m\";\n",
			expected: "import a from \"other\";\nvar b = G;\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewriteForTest(t, "index.js", tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
			assert.Assert(t, out.touched)
			assert.Check(t, is.Len(out.diagnostics, 0))
		})
	}
}

func TestRewriteReexports(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{
			name:     "named re-export",
			code:     `export { a, b as c } from "m";`,
			expected: `var _a = G.a, _c = G.b; export { _a as a, _c as c };`,
		},
		{
			name:     "default re-export",
			code:     `export { default } from "m";`,
			expected: `var _default = G; export { _default as default };`,
		},
		{
			name:     "re-export as default",
			code:     `export { a as default } from "m";`,
			expected: `var _default = G.a; export { _default as default };`,
		},
		{
			name:     "namespace re-export",
			code:     `export * as ns from "m";`,
			expected: `var _ns = G; export { _ns as ns };`,
		},
		{
			name:     "empty re-export is removed",
			code:     `export {} from "m";`,
			expected: ``,
		},
		{
			name:     "synthesized name avoids top-level bindings",
			code:     "const _a = 1;\nexport { a } from \"m\";",
			expected: "const _a = 1;\nvar _a$1 = G.a; export { _a$1 as a };",
		},
		{
			name:     "synthesized name avoids identifiers used anywhere",
			code:     "function f() { return _a; }\nexport { a } from \"m\";",
			expected: "function f() { return _a; }\nvar _a$1 = G.a; export { _a$1 as a };",
		},
		{
			name:     "synthesized names never repeat",
			code:     "export { a } from \"m\";\nexport { a as b, b as a } from \"win\";",
			expected: "var _a = G.a; export { _a as a };\nvar _b = window.Lib.a, _a$1 = window.Lib.b; export { _b as b, _a$1 as a };",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewriteForTest(t, "index.js", tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
			assert.Assert(t, out.touched)
		})
	}
}

func TestRewriteSynthesizedNameAvoidsGlobalRoots(t *testing.T) {
	globals := mustMapGlobals(t, map[string]string{"m": "_x"})
	out := rewriteForTest(t, "index.js", `export { x } from "m";`, globals, nil)
	assert.Equal(t, out.code, `var _x$1 = _x.x; export { _x$1 as x };`)
}

func TestRewriteExportAllIsUnsupported(t *testing.T) {
	code := "export * from \"m\";\nimport X from \"m\";\n"
	out := rewriteForTest(t, "index.js", code, mustMapGlobals(t, testGlobals), nil)

	assert.Equal(t, out.code, "export * from \"m\";\nvar X = G;\n")
	assert.Assert(t, out.touched)
	assert.Assert(t, is.Len(out.diagnostics, 1))
	d := out.diagnostics[0]
	assert.Equal(t, d.Kind, DiagnosticUnsupportedExportAll)
	assert.Equal(t, d.Severity, SeverityWarning)
	assert.Equal(t, d.File, "index.js")
	assert.Equal(t, d.Line, 1)
	assert.Equal(t, d.Column, 0)
}

func TestRewriteExportAllAloneIsNotTouched(t *testing.T) {
	code := `export * from "m";`
	out := rewriteForTest(t, "index.js", code, mustMapGlobals(t, testGlobals), nil)
	assert.Equal(t, out.code, code)
	assert.Assert(t, !out.touched)
	assert.Check(t, is.Len(out.diagnostics, 1))
}

func TestRewriteDynamicImports(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{
			name:     "string argument",
			code:     `const p = import("m");`,
			expected: `const p = Promise.resolve(G);`,
		},
		{
			name:     "template without substitutions",
			code:     "const p = import(`m`);",
			expected: `const p = Promise.resolve(G);`,
		},
		{
			name:     "nested in a function",
			code:     `async function f() { return (await import("win")).ref; }`,
			expected: `async function f() { return (await Promise.resolve(window.Lib)).ref; }`,
		},
		{
			name:     "next to a static import",
			code:     "import X from \"m\";\nimport(\"m\").then(run);",
			expected: "var X = G;\nPromise.resolve(G).then(run);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewriteForTest(t, "index.js", tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
			assert.Assert(t, out.touched)
		})
	}
}

func TestRewriteDynamicImportsThatStay(t *testing.T) {
	codes := []string{
		"const p = import(`${name}`);",
		`const p = import(name);`,
		`const p = import("other");`,
		`const p = import("m" + suffix);`,
	}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			out := rewriteForTest(t, "index.js", code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, code)
			assert.Assert(t, !out.touched)
		})
	}
}

func TestRewriteCustomDynamicWrapper(t *testing.T) {
	wrap, err := NewTemplateDynamicWrapper("load(() => ${name})")
	assert.NilError(t, err)
	out := rewriteForTest(t, "index.js", `import("m");`, mustMapGlobals(t, testGlobals), func(r *Rewriter) {
		r.DynamicWrapper = wrap
	})
	assert.Equal(t, out.code, `load(() => G);`)
}

func TestRewriteConstBindings(t *testing.T) {
	code := "import X, { a } from \"m\";\nexport { b } from \"m\";"
	out := rewriteForTest(t, "index.js", code, mustMapGlobals(t, testGlobals), func(r *Rewriter) {
		r.ConstBindings = true
	})
	assert.Equal(t, out.code, "const X = G, a = G.a;\nconst _b = G.b; export { _b as b };")
}

func TestRewriteQualifiesShadowedGlobalRoot(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{
			name:     "binding named like the global",
			code:     `import React from "react";`,
			expected: `var React = globalThis.React;`,
		},
		{
			name:     "named import with the root bound elsewhere",
			code:     "import React, { useState } from \"react\";",
			expected: "var React = globalThis.React, useState = globalThis.React.useState;",
		},
		{
			name:     "root not bound",
			code:     `import { useState } from "react";`,
			expected: `var useState = React.useState;`,
		},
		{
			name:     "root bound by a local declaration",
			code:     "const window = {};\nimport { ref } from \"win\";",
			expected: "const window = {};\nvar ref = globalThis.window.Lib.ref;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewriteForTest(t, "index.js", tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
		})
	}
}

func TestRewriteDynamicImportQualifiesLocallyShadowedRoot(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		code     string
		expected string
	}{
		{
			name:     "function parameter",
			code:     `function f(React) { return import("react"); }`,
			expected: `function f(React) { return Promise.resolve(globalThis.React); }`,
		},
		{
			name:     "arrow parameter",
			code:     `const f = React => import("react");`,
			expected: `const f = React => Promise.resolve(globalThis.React);`,
		},
		{
			name:     "destructured parameter",
			code:     `function f({ React }) { return import("react"); }`,
			expected: `function f({ React }) { return Promise.resolve(globalThis.React); }`,
		},
		{
			name:     "typed parameter",
			path:     "index.ts",
			code:     `function f(React: unknown) { return import("react"); }`,
			expected: `function f(React: unknown) { return Promise.resolve(globalThis.React); }`,
		},
		{
			name:     "block declaration",
			code:     `{ let window = 1; import("win"); }`,
			expected: `{ let window = 1; Promise.resolve(globalThis.window.Lib); }`,
		},
		{
			name:     "catch parameter",
			code:     `try {} catch (React) { import("react"); }`,
			expected: `try {} catch (React) { Promise.resolve(globalThis.React); }`,
		},
		{
			name:     "hoisted var",
			code:     `function f() { if (a) { var React; } return import("react"); }`,
			expected: `function f() { if (a) { var React; } return Promise.resolve(globalThis.React); }`,
		},
		{
			name:     "binding in a sibling scope",
			code:     "function f(React) {}\nimport(\"react\");",
			expected: "function f(React) {}\nPromise.resolve(React);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "index.js"
			}
			out := rewriteForTest(t, path, tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
		})
	}
}

func TestRewriteSkipsUnmappedModules(t *testing.T) {
	code := "import X from \"other\";\nimport \"side\";\nexport { a } from \"other\";\nimport(\"other\");\n"
	globals := mustMapGlobals(t, testGlobals)

	for i := 0; i < 2; i++ {
		out := rewriteForTest(t, "index.js", code, globals, nil)
		assert.Equal(t, out.code, code)
		assert.Assert(t, !out.touched)
	}
}

func TestRewriteNeverTouchesVirtualModules(t *testing.T) {
	globals, err := NewFuncGlobals(func(id string) string { return "G" })
	assert.NilError(t, err)

	code := "import X from \"\\0virtual\";\nexport { a } from \"\\u0000virtual\";\nimport(\"\\0virtual\");\n"
	out := rewriteForTest(t, "index.js", code, globals, nil)
	assert.Equal(t, out.code, code)
	assert.Assert(t, !out.touched)

	out = rewriteForTest(t, "index.js", `import X from "real";`, globals, nil)
	assert.Equal(t, out.code, `var X = G;`)
}

func TestRewriteFuncGlobals(t *testing.T) {
	globals, err := NewFuncGlobals(func(id string) string {
		if strings.HasPrefix(id, "@scope/") {
			return "Scope." + strings.TrimPrefix(id, "@scope/")
		}
		return ""
	})
	assert.NilError(t, err)

	code := "import a from \"@scope/alpha\";\nimport b from \"beta\";"
	out := rewriteForTest(t, "index.js", code, globals, nil)
	assert.Equal(t, out.code, "var a = Scope.alpha;\nimport b from \"beta\";")
}

func TestRewriteTypeScript(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		code     string
		expected string
	}{
		{
			name:     "type-only import stays",
			path:     "index.ts",
			code:     `import type { T } from "m";`,
			expected: `import type { T } from "m";`,
		},
		{
			name:     "type specifiers are dropped",
			path:     "index.ts",
			code:     `import { type T, a } from "m";`,
			expected: `var a = G.a;`,
		},
		{
			name:     "statement with only type specifiers is removed",
			path:     "index.ts",
			code:     "import { type T } from \"m\";\nlet x: T;",
			expected: "\nlet x: T;",
		},
		{
			name:     "type-only re-export stays",
			path:     "index.ts",
			code:     `export type { T } from "m";`,
			expected: `export type { T } from "m";`,
		},
		{
			name:     "type specifiers are dropped from re-exports",
			path:     "index.ts",
			code:     `export { type T, a } from "m";`,
			expected: `var _a = G.a; export { _a as a };`,
		},
		{
			name:     "import type queries are not calls",
			path:     "index.ts",
			code:     "type T = typeof import(\"m\");\nlet x: typeof import(\"m\");\nconst p = import(\"m\");",
			expected: "type T = typeof import(\"m\");\nlet x: typeof import(\"m\");\nconst p = Promise.resolve(G);",
		},
		{
			name:     "tsx",
			path:     "App.tsx",
			code:     "import React from \"react\";\nexport const App = () => <div />;",
			expected: "var React = globalThis.React;\nexport const App = () => <div />;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewriteForTest(t, tt.path, tt.code, mustMapGlobals(t, testGlobals), nil)
			assert.Equal(t, out.code, tt.expected)
		})
	}
}

func TestImportClauseBindings(t *testing.T) {
	code := `import D, { a, b as c, default as d, type T } from "m";`
	tree, err := ParseModule("index.ts", []byte(code))
	assert.NilError(t, err)
	defer tree.Close()

	stmt := tree.Root.NamedChild(0)
	clause := firstNamedChildOfType(stmt, "import_clause")
	assert.Assert(t, !clause.IsNull())

	bindings := importClauseBindings(tree, clause)
	assert.DeepEqual(t, bindings, []ImportBinding{
		{Kind: BindingDefault, Local: "D"},
		{Kind: BindingNamed, Imported: "a", Local: "a"},
		{Kind: BindingNamed, Imported: "b", Local: "c"},
		{Kind: BindingDefault, Local: "d"},
		{Kind: BindingNamed, Imported: "T", Local: "T", TypeOnly: true},
	})
}

func TestMemberAccess(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{name: "a", expected: "G.a"},
		{name: "$el", expected: "G.$el"},
		{name: "default", expected: "G"},
		{name: "x-y", expected: `G["x-y"]`},
		{name: "1st", expected: `G["1st"]`},
		{name: `q"uote`, expected: `G["q\"uote"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, memberAccess("G", tt.name), tt.expected)
		})
	}
}
