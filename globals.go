package main

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMissingGlobals        = errors.New("missing mandatory option 'globals'")
	ErrEmptyGlobalName       = errors.New("global name must not be empty")
	ErrInvalidDynamicWrapper = errors.New("dynamic wrapper template must contain ${name}")
)

// virtualModulePrefix marks module identifiers synthesized by other tooling.
const virtualModulePrefix = "\x00"

// dynamicWrapperPlaceholder is replaced with the global expression in
// dynamic wrapper templates.
const dynamicWrapperPlaceholder = "${name}"

func IsVirtualModule(id string) bool {
	return strings.HasPrefix(id, virtualModulePrefix)
}

type globalsKind uint8

const (
	globalsKindMap globalsKind = iota
	globalsKindFunc
)

// GlobalsResolver maps module identifiers to global expressions. It is
// either backed by a fixed table or by a caller supplied function; the kind
// is fixed at construction.
type GlobalsResolver struct {
	kind  globalsKind
	table map[string]string
	keys  []string
	fn    func(id string) string
}

// NewMapGlobals validates a module identifier -> global expression table.
func NewMapGlobals(table map[string]string) (*GlobalsResolver, error) {
	if len(table) == 0 {
		return nil, ErrMissingGlobals
	}
	keys := make([]string, 0, len(table))
	copied := make(map[string]string, len(table))
	for id, name := range table {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("globals[%q]: %w", id, ErrEmptyGlobalName)
		}
		copied[id] = name
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return &GlobalsResolver{kind: globalsKindMap, table: copied, keys: keys}, nil
}

// NewFuncGlobals wraps a resolver function. An empty return value means the
// module is not mapped to a global.
func NewFuncGlobals(fn func(id string) string) (*GlobalsResolver, error) {
	if fn == nil {
		return nil, ErrMissingGlobals
	}
	return &GlobalsResolver{kind: globalsKindFunc, fn: fn}, nil
}

// Name returns the global expression for id, or "" when id stays a module
// import.
func (g *GlobalsResolver) Name(id string) string {
	switch g.kind {
	case globalsKindMap:
		return g.table[id]
	default:
		return strings.TrimSpace(g.fn(id))
	}
}

// Keys returns the sorted identifiers of a map-backed resolver and nil for a
// function-backed one.
func (g *GlobalsResolver) Keys() []string {
	if g.kind != globalsKindMap {
		return nil
	}
	return g.keys
}

// MayReference reports whether code can contain an import of a mapped module.
// It is a cheap filter run before parsing: false means the file certainly
// needs no rewrite.
func (g *GlobalsResolver) MayReference(code []byte) bool {
	if g.kind == globalsKindMap {
		for _, id := range g.keys {
			if bytes.Contains(code, []byte(id)) {
				return true
			}
		}
		return false
	}
	for _, request := range scanModuleRequests(code) {
		// escaped specifiers are only decoded by the parser
		if strings.Contains(request, `\`) {
			return true
		}
		if !IsVirtualModule(request) && g.Name(request) != "" {
			return true
		}
	}
	return false
}

// DynamicWrapper turns a global expression into an expression that behaves
// like the promise returned by import().
type DynamicWrapper func(expr string) string

func DefaultDynamicWrapper(expr string) string {
	return "Promise.resolve(" + expr + ")"
}

// NewTemplateDynamicWrapper builds a wrapper from a template such as
// "Promise.resolve(${name})". An empty template selects the default.
func NewTemplateDynamicWrapper(template string) (DynamicWrapper, error) {
	if template == "" {
		return DefaultDynamicWrapper, nil
	}
	if !strings.Contains(template, dynamicWrapperPlaceholder) {
		return nil, fmt.Errorf("%q: %w", template, ErrInvalidDynamicWrapper)
	}
	return func(expr string) string {
		return strings.ReplaceAll(template, dynamicWrapperPlaceholder, expr)
	}, nil
}
