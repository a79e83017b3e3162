package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

type BindingKind uint8

const (
	BindingDefault BindingKind = iota
	BindingNamed
	BindingNamespace
)

// ImportBinding is one local name introduced by an import clause. Imported
// is the exported name read from the module and is empty for default and
// namespace bindings.
type ImportBinding struct {
	Kind     BindingKind
	Imported string
	Local    string
	TypeOnly bool
}

type Severity uint8

const (
	SeverityDebug Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "debug"
}

const (
	DiagnosticUnsupportedExportAll = "unsupported-export-all"
	DiagnosticParseFailure         = "parse-failure"
	DiagnosticEditConflict         = "edit-conflict"
	DiagnosticReadFailure          = "read-failure"
)

// Diagnostic is a non-fatal problem found while transforming one file.
type Diagnostic struct {
	Severity Severity
	Kind     string
	File     string
	Line     int
	Column   int
	Message  string
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
}

// Rewriter replaces imports of modules that map to globals with code that
// reads the globals directly.
type Rewriter struct {
	Globals        *GlobalsResolver
	DynamicWrapper DynamicWrapper
	ConstBindings  bool
	Report         func(Diagnostic)
}

type rewriteKind uint8

const (
	rewriteImport rewriteKind = iota
	rewriteReexport
	rewriteNamespaceReexport
	rewriteDynamicImport
)

type specifier struct {
	imported string
	exported string
	typeOnly bool
}

// rewriteTarget is a node scheduled for replacement. Text is rendered only
// after every target is known, so synthesized names can avoid all global
// roots of the file.
type rewriteTarget struct {
	kind       rewriteKind
	node       sitter.Node
	global     string
	bindings   []ImportBinding
	specifiers []specifier
	// shadowed is set for dynamic imports whose global root is bound by a
	// function, block or catch clause around the call.
	shadowed bool
}

// Rewrite queues edits for every rewritable import of tree into buf and
// reports whether at least one edit was queued.
func (r *Rewriter) Rewrite(tree *ModuleTree, buf *EditBuffer) bool {
	targets := r.collectTargets(tree)
	if len(targets) == 0 {
		return false
	}

	scope := newModuleScope(tree)
	for _, t := range targets {
		if root := globalRoot(t.global); root != "" {
			scope.reserve(root)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].node.StartByte() < targets[j].node.StartByte()
	})

	touched := false
	for _, t := range targets {
		start, end := int(t.node.StartByte()), int(t.node.EndByte())
		text := r.render(t, scope)
		var err error
		if text == "" {
			err = buf.Remove(start, end)
		} else {
			err = buf.Overwrite(start, end, text)
		}
		if err != nil {
			r.report(tree, t.node, SeverityWarning, DiagnosticEditConflict, fmt.Sprintf("Failed to rewrite %q: %v", tree.Text(t.node), err))
			continue
		}
		touched = true
	}
	return touched
}

func (r *Rewriter) collectTargets(tree *ModuleTree) []rewriteTarget {
	targets := make([]rewriteTarget, 0, 8)
	for _, stmt := range namedChildren(tree.Root) {
		switch stmt.Type() {
		case "import_statement":
			if t, ok := r.importTarget(tree, stmt); ok {
				targets = append(targets, t)
			}
		case "export_statement":
			if t, ok := r.reexportTarget(tree, stmt); ok {
				targets = append(targets, t)
			}
		}
	}
	r.collectDynamicImports(tree, tree.Root, nil, &targets)
	return targets
}

// resolve returns the global for the module named by the string node
// source, or "" when the module must keep its import.
func (r *Rewriter) resolve(tree *ModuleTree, source sitter.Node) string {
	id, ok := tree.stringValue(source)
	if !ok || IsVirtualModule(id) {
		return ""
	}
	return r.Globals.Name(id)
}

func (r *Rewriter) importTarget(tree *ModuleTree, stmt sitter.Node) (rewriteTarget, bool) {
	if !firstNamedChildOfType(stmt, "import_require_clause").IsNull() || isTypeOnlyStatement(tree, stmt, "import") {
		return rewriteTarget{}, false
	}
	global := r.resolve(tree, stmt.ChildByFieldName("source"))
	if global == "" {
		return rewriteTarget{}, false
	}
	t := rewriteTarget{kind: rewriteImport, node: stmt, global: global}
	if clause := firstNamedChildOfType(stmt, "import_clause"); !clause.IsNull() {
		t.bindings = importClauseBindings(tree, clause)
	}
	return t, true
}

func (r *Rewriter) reexportTarget(tree *ModuleTree, stmt sitter.Node) (rewriteTarget, bool) {
	source := stmt.ChildByFieldName("source")
	if source.IsNull() || isTypeOnlyStatement(tree, stmt, "export") {
		return rewriteTarget{}, false
	}
	global := r.resolve(tree, source)
	if global == "" {
		return rewriteTarget{}, false
	}
	if clause := firstNamedChildOfType(stmt, "export_clause"); !clause.IsNull() {
		return rewriteTarget{kind: rewriteReexport, node: stmt, global: global, specifiers: exportClauseSpecifiers(tree, clause)}, true
	}
	if ns := firstNamedChildOfType(stmt, "namespace_export"); !ns.IsNull() {
		name := moduleExportName(tree, firstNamedChildOfType(ns, "identifier", "string"))
		if name == "" {
			return rewriteTarget{}, false
		}
		return rewriteTarget{kind: rewriteNamespaceReexport, node: stmt, global: global, specifiers: []specifier{{exported: name}}}, true
	}
	r.report(tree, stmt, SeverityWarning, DiagnosticUnsupportedExportAll,
		fmt.Sprintf("Cannot re-export everything from %s as global %s, the statement is kept", tree.Text(source), global))
	return rewriteTarget{}, false
}

// typeContexts hold types only; `typeof import("x")` inside them parses as a
// call but is not one.
var typeContexts = map[string]struct{}{
	"type_query":                {},
	"type_annotation":           {},
	"opting_type_annotation":    {},
	"omitting_type_annotation":  {},
	"type_predicate_annotation": {},
	"asserts_annotation":        {},
	"type_alias_declaration":    {},
	"interface_declaration":     {},
	"type_arguments":            {},
	"type_parameters":           {},
}

// collectDynamicImports walks the tree keeping the path of ancestors, which
// decides whether the global's root is shadowed at the call site.
func (r *Rewriter) collectDynamicImports(tree *ModuleTree, n sitter.Node, ancestors []sitter.Node, targets *[]rewriteTarget) {
	if _, ok := typeContexts[n.Type()]; ok {
		return
	}
	if n.Type() == "call_expression" && isImportCallee(n.ChildByFieldName("function")) {
		args := n.ChildByFieldName("arguments")
		if !args.IsNull() && args.NamedChildCount() > 0 {
			if global := r.resolve(tree, args.NamedChild(0)); global != "" {
				root := globalRoot(global)
				*targets = append(*targets, rewriteTarget{
					kind:     rewriteDynamicImport,
					node:     n,
					global:   global,
					shadowed: root != "" && bindsInEnclosingScope(tree, ancestors, root),
				})
				return
			}
		}
	}
	ancestors = append(ancestors, n)
	for i := range n.NamedChildCount() {
		r.collectDynamicImports(tree, n.NamedChild(i), ancestors, targets)
	}
}

func isImportCallee(fn sitter.Node) bool {
	return !fn.IsNull() && fn.Type() == "import"
}

func (r *Rewriter) render(t rewriteTarget, scope *moduleScope) string {
	global := t.global
	if root := globalRoot(global); root != "" && (scope.isTopLevel(root) || t.shadowed) {
		global = "globalThis." + global
	}

	switch t.kind {
	case rewriteDynamicImport:
		wrap := r.DynamicWrapper
		if wrap == nil {
			wrap = DefaultDynamicWrapper
		}
		return wrap(global)
	case rewriteNamespaceReexport:
		exported := t.specifiers[0].exported
		local := scope.uniqueName(exported)
		return fmt.Sprintf("%s %s = %s; export { %s as %s };", r.keyword(), local, global, local, exportName(exported))
	case rewriteReexport:
		declarators := make([]string, 0, len(t.specifiers))
		exports := make([]string, 0, len(t.specifiers))
		for _, s := range t.specifiers {
			if s.typeOnly {
				continue
			}
			local := scope.uniqueName(s.exported)
			declarators = append(declarators, local+" = "+memberAccess(global, s.imported))
			exports = append(exports, local+" as "+exportName(s.exported))
		}
		if len(declarators) == 0 {
			return ""
		}
		return fmt.Sprintf("%s %s; export { %s };", r.keyword(), strings.Join(declarators, ", "), strings.Join(exports, ", "))
	default:
		declarators := make([]string, 0, len(t.bindings))
		for _, b := range t.bindings {
			if b.TypeOnly {
				continue
			}
			value := global
			if b.Kind == BindingNamed {
				value = memberAccess(global, b.Imported)
			}
			declarators = append(declarators, b.Local+" = "+value)
		}
		if len(declarators) == 0 {
			return ""
		}
		return r.keyword() + " " + strings.Join(declarators, ", ") + ";"
	}
}

func (r *Rewriter) keyword() string {
	if r.ConstBindings {
		return "const"
	}
	return "var"
}

func (r *Rewriter) report(tree *ModuleTree, n sitter.Node, severity Severity, kind, message string) {
	if r.Report == nil {
		return
	}
	line, column := tree.Position(n)
	r.Report(Diagnostic{Severity: severity, Kind: kind, File: tree.Path, Line: line, Column: column, Message: message})
}

// memberAccess reads property name off global. The default export is the
// global itself.
func memberAccess(global, name string) string {
	if name == "default" {
		return global
	}
	if isIdentifierName(name) {
		return global + "." + name
	}
	return global + "[" + quoteJS(name) + "]"
}

func exportName(name string) string {
	if isIdentifierName(name) {
		return name
	}
	return quoteJS(name)
}

func quoteJS(s string) string {
	quoted, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(quoted)
}

// moduleExportName returns the name written by an identifier or string
// node in an import or export specifier.
func moduleExportName(m *ModuleTree, n sitter.Node) string {
	if n.Type() == "string" {
		value, _ := m.stringValue(n)
		return value
	}
	return m.Text(n)
}

// hasTypeKeyword reports whether the source between start and end begins
// with a `type` or `typeof` modifier.
func hasTypeKeyword(m *ModuleTree, start, end uint) bool {
	if end <= start || int(end) > len(m.Source) {
		return false
	}
	prefix := m.Source[start:end]
	i := skipSpacesAndComments(prefix, 0)
	return hasKeywordAt(prefix, i, "type") || hasKeywordAt(prefix, i, "typeof")
}

// isTypeOnlyStatement detects `import type …` and `export type … from`.
func isTypeOnlyStatement(m *ModuleTree, stmt sitter.Node, keyword string) bool {
	if stmt.NamedChildCount() == 0 {
		return false
	}
	return hasTypeKeyword(m, stmt.StartByte()+uint(len(keyword)), stmt.NamedChild(0).StartByte())
}

func isTypeOnlySpecifier(m *ModuleTree, spec, name sitter.Node) bool {
	return hasTypeKeyword(m, spec.StartByte(), name.StartByte())
}

func importClauseBindings(m *ModuleTree, clause sitter.Node) []ImportBinding {
	bindings := make([]ImportBinding, 0, 4)
	for _, child := range namedChildren(clause) {
		switch child.Type() {
		case "identifier":
			bindings = append(bindings, ImportBinding{Kind: BindingDefault, Local: m.Text(child)})
		case "namespace_import":
			id := firstNamedChildOfType(child, "identifier")
			bindings = append(bindings, ImportBinding{Kind: BindingNamespace, Local: m.Text(id)})
		case "named_imports":
			for _, spec := range namedChildren(child) {
				if spec.Type() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name.IsNull() {
					continue
				}
				imported := moduleExportName(m, name)
				local := imported
				if alias := spec.ChildByFieldName("alias"); !alias.IsNull() {
					local = m.Text(alias)
				}
				b := ImportBinding{Kind: BindingNamed, Imported: imported, Local: local, TypeOnly: isTypeOnlySpecifier(m, spec, name)}
				if imported == "default" {
					b.Kind = BindingDefault
					b.Imported = ""
				}
				bindings = append(bindings, b)
			}
		}
	}
	return bindings
}

func exportClauseSpecifiers(m *ModuleTree, clause sitter.Node) []specifier {
	specs := make([]specifier, 0, 4)
	for _, spec := range namedChildren(clause) {
		if spec.Type() != "export_specifier" {
			continue
		}
		name := spec.ChildByFieldName("name")
		if name.IsNull() {
			continue
		}
		imported := moduleExportName(m, name)
		exported := imported
		if alias := spec.ChildByFieldName("alias"); !alias.IsNull() {
			exported = moduleExportName(m, alias)
		}
		specs = append(specs, specifier{imported: imported, exported: exported, typeOnly: isTypeOnlySpecifier(m, spec, name)})
	}
	return specs
}
