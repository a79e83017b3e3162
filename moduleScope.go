package main

import (
	"strconv"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// moduleScope records the names a rewrite must not clobber: every binding of
// the module's top-level scope, and every identifier written anywhere in the
// file. Names handed out by uniqueName are reserved as well.
type moduleScope struct {
	topLevel map[string]struct{}
	taken    map[string]struct{}
}

func newModuleScope(m *ModuleTree) *moduleScope {
	s := &moduleScope{
		topLevel: make(map[string]struct{}, 32),
		taken:    make(map[string]struct{}, 128),
	}
	for _, stmt := range namedChildren(m.Root) {
		s.collectStatement(m, stmt)
	}
	s.collectHoistedVars(m, m.Root)
	s.collectIdentifiers(m, m.Root)
	return s
}

func (s *moduleScope) isTopLevel(name string) bool {
	_, ok := s.topLevel[name]
	return ok
}

func (s *moduleScope) reserve(name string) {
	s.taken[name] = struct{}{}
}

func (s *moduleScope) isTaken(name string) bool {
	if _, ok := s.taken[name]; ok {
		return true
	}
	return s.isTopLevel(name)
}

// uniqueName returns a legal identifier derived from hint that is neither
// bound nor referenced in the module, and reserves it.
func (s *moduleScope) uniqueName(hint string) string {
	base := "_" + legalIdentifier(hint)
	name := base
	for i := 1; s.isTaken(name); i++ {
		name = base + "$" + strconv.Itoa(i)
	}
	s.reserve(name)
	return name
}

func (s *moduleScope) bind(name string) {
	if name != "" {
		s.topLevel[name] = struct{}{}
	}
}

func (s *moduleScope) collectStatement(m *ModuleTree, stmt sitter.Node) {
	switch stmt.Type() {
	case "import_statement":
		if require := firstNamedChildOfType(stmt, "import_require_clause"); !require.IsNull() {
			s.bind(m.Text(firstNamedChildOfType(require, "identifier")))
			return
		}
		clause := firstNamedChildOfType(stmt, "import_clause")
		if clause.IsNull() {
			return
		}
		for _, b := range importClauseBindings(m, clause) {
			s.bind(b.Local)
		}
	case "export_statement":
		if decl := stmt.ChildByFieldName("declaration"); !decl.IsNull() {
			s.collectDeclaration(m, decl)
		}
	default:
		s.collectDeclaration(m, stmt)
	}
}

func (s *moduleScope) collectDeclaration(m *ModuleTree, decl sitter.Node) {
	switch decl.Type() {
	case "lexical_declaration", "variable_declaration":
		for _, declarator := range namedChildren(decl) {
			if declarator.Type() != "variable_declarator" {
				continue
			}
			s.collectPattern(m, declarator.ChildByFieldName("name"))
		}
	case "function_declaration", "generator_function_declaration", "class_declaration",
		"abstract_class_declaration", "enum_declaration", "module", "internal_module",
		"function_signature", "import_alias":
		if name := decl.ChildByFieldName("name"); !name.IsNull() {
			s.bind(m.Text(name))
		} else if id := firstNamedChildOfType(decl, "identifier"); !id.IsNull() {
			s.bind(m.Text(id))
		}
	case "ambient_declaration":
		for _, child := range namedChildren(decl) {
			s.collectDeclaration(m, child)
		}
	}
}

// collectPattern binds every identifier introduced by a binding pattern.
// Default values and computed keys are skipped.
func (s *moduleScope) collectPattern(m *ModuleTree, n sitter.Node) {
	if n.IsNull() {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		s.bind(m.Text(n))
	case "pair_pattern":
		s.collectPattern(m, n.ChildByFieldName("value"))
	case "assignment_pattern", "object_assignment_pattern":
		s.collectPattern(m, n.ChildByFieldName("left"))
	case "object_pattern", "array_pattern", "rest_pattern":
		for _, child := range namedChildren(n) {
			s.collectPattern(m, child)
		}
	}
}

var functionBoundaries = map[string]struct{}{
	"function_declaration":           {},
	"generator_function_declaration": {},
	"function_expression":            {},
	"function":                       {},
	"generator_function":             {},
	"arrow_function":                 {},
	"method_definition":              {},
	"class_body":                     {},
}

// collectHoistedVars binds `var` declarations nested in top-level blocks,
// which hoist into the module scope.
func (s *moduleScope) collectHoistedVars(m *ModuleTree, n sitter.Node) {
	for _, child := range namedChildren(n) {
		if _, ok := functionBoundaries[child.Type()]; ok {
			continue
		}
		if child.Type() == "variable_declaration" {
			s.collectDeclaration(m, child)
		}
		s.collectHoistedVars(m, child)
	}
}

// bindsInEnclosingScope reports whether name is declared by one of the
// ancestors of a node: function parameters and names, hoisted `var`s,
// block-level declarations, catch parameters and loop heads. The program
// node contributes nothing; top-level bindings are tracked separately.
func bindsInEnclosingScope(m *ModuleTree, ancestors []sitter.Node, name string) bool {
	for _, n := range ancestors {
		local := &moduleScope{topLevel: make(map[string]struct{}, 8)}
		local.collectLocal(m, n)
		if local.isTopLevel(name) {
			return true
		}
	}
	return false
}

func (s *moduleScope) collectLocal(m *ModuleTree, n sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_expression", "function",
		"generator_function", "arrow_function", "method_definition":
		// method names are property identifiers and bind nothing
		s.collectPattern(m, n.ChildByFieldName("name"))
		s.collectPattern(m, n.ChildByFieldName("parameter"))
		for _, param := range namedChildren(n.ChildByFieldName("parameters")) {
			if pattern := param.ChildByFieldName("pattern"); !pattern.IsNull() {
				param = pattern
			}
			s.collectPattern(m, param)
		}
		s.collectHoistedVars(m, n.ChildByFieldName("body"))
	case "statement_block", "class_static_block":
		for _, stmt := range namedChildren(n) {
			s.collectDeclaration(m, stmt)
		}
	case "catch_clause":
		s.collectPattern(m, n.ChildByFieldName("parameter"))
	case "for_statement":
		s.collectDeclaration(m, n.ChildByFieldName("initializer"))
	case "for_in_statement":
		s.collectPattern(m, n.ChildByFieldName("left"))
	}
}

var identifierNodeTypes = map[string]struct{}{
	"identifier":                            {},
	"shorthand_property_identifier":         {},
	"shorthand_property_identifier_pattern": {},
	"type_identifier":                       {},
}

func (s *moduleScope) collectIdentifiers(m *ModuleTree, n sitter.Node) {
	if _, ok := identifierNodeTypes[n.Type()]; ok {
		s.reserve(m.Text(n))
		return
	}
	for i := range n.NamedChildCount() {
		s.collectIdentifiers(m, n.NamedChild(i))
	}
}

func isIdentifierStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isIdentifierName reports whether s can follow a dot in a member access.
// Only ASCII names qualify; anything else is accessed with brackets.
func isIdentifierName(s string) bool {
	if s == "" || !isIdentifierStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isByteIdentifierChar(s[i]) {
			return false
		}
	}
	return true
}

// legalIdentifier maps an arbitrary export name to identifier characters.
func legalIdentifier(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isByteIdentifierChar(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "binding"
	}
	return b.String()
}

// globalRoot returns the leading identifier of a global expression, e.g.
// "window" for `window.Vue` and "" for expressions that do not start with
// one.
func globalRoot(expr string) string {
	if expr == "" || !isIdentifierStart(expr[0]) {
		return ""
	}
	i := 1
	for i < len(expr) && isByteIdentifierChar(expr[i]) {
		i++
	}
	return expr[:i]
}
