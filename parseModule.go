package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

type SourceLanguage uint8

const (
	LanguageJavaScript SourceLanguage = iota
	LanguageTypeScript
	LanguageTSX
)

var errNoRootNode = errors.New("parser returned no root node")

var languageFuncs = map[SourceLanguage]func() unsafe.Pointer{
	LanguageJavaScript: javascript.GetLanguage,
	LanguageTypeScript: typescript.GetLanguage,
	LanguageTSX:        tsx.GetLanguage,
}

var languageNames = map[SourceLanguage]string{
	LanguageJavaScript: "javascript",
	LanguageTypeScript: "typescript",
	LanguageTSX:        "tsx",
}

func (l SourceLanguage) String() string {
	return languageNames[l]
}

var extensionLanguages = map[string]SourceLanguage{
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".mjsx": LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".mts":  LanguageTypeScript,
	".cts":  LanguageTypeScript,
	".tsx":  LanguageTSX,
}

// LanguageForPath picks the grammar from the file extension. Unknown
// extensions (including virtual module ids) are parsed as JavaScript.
func LanguageForPath(path string) SourceLanguage {
	if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageJavaScript
}

func hasCorrectExtension(name string) bool {
	_, ok := extensionLanguages[strings.ToLower(filepath.Ext(name))]
	return ok
}

var languageCache sync.Map

func getLanguage(lang SourceLanguage) *sitter.Language {
	if cached, ok := languageCache.Load(lang); ok {
		return cached.(*sitter.Language)
	}
	l := sitter.NewLanguage(languageFuncs[lang]())
	languageCache.Store(lang, l)
	return l
}

// Parsers are not safe for concurrent use; each grammar gets its own pool.
var parserPools = map[SourceLanguage]*sync.Pool{}

func init() {
	for lang := range languageFuncs {
		parserPools[lang] = &sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(getLanguage(lang))
				return p
			},
		}
	}
}

// ModuleTree is the syntax tree of one source file together with the bytes
// it was parsed from. Offsets of every node index into Source.
type ModuleTree struct {
	Path     string
	Language SourceLanguage
	Source   []byte
	Root     sitter.Node
	tree     *sitter.Tree
}

// ParseModule parses src with the grammar matching path.
func ParseModule(path string, src []byte) (*ModuleTree, error) {
	lang := LanguageForPath(path)
	pool := parserPools[lang]
	p := pool.Get().(*sitter.Parser)
	defer pool.Put(p)

	tree, err := p.ParseString(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root := tree.RootNode()
	if root.IsNull() {
		tree.Close()
		return nil, fmt.Errorf("parse %s: %w", path, errNoRootNode)
	}
	return &ModuleTree{Path: path, Language: lang, Source: src, Root: root, tree: tree}, nil
}

func (m *ModuleTree) Close() {
	if m.tree != nil {
		m.tree.Close()
		m.tree = nil
	}
}

// SyntaxError returns the first ERROR node of the tree, if any.
func (m *ModuleTree) SyntaxError() (sitter.Node, bool) {
	n := findErrorNode(m.Root)
	return n, !n.IsNull()
}

func findErrorNode(n sitter.Node) sitter.Node {
	if n.Type() == "ERROR" {
		return n
	}
	for i := range n.NamedChildCount() {
		if found := findErrorNode(n.NamedChild(i)); !found.IsNull() {
			return found
		}
	}
	return sitter.Node{}
}

// Text returns the source text covered by n.
func (m *ModuleTree) Text(n sitter.Node) string {
	if n.IsNull() {
		return ""
	}
	start, end := int(n.StartByte()), int(n.EndByte())
	if start < 0 || end > len(m.Source) || start > end {
		return ""
	}
	return string(m.Source[start:end])
}

// Position returns the 1-based line and 0-based column of n.
func (m *ModuleTree) Position(n sitter.Node) (line int, column int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column)
}

func namedChildren(n sitter.Node) []sitter.Node {
	if n.IsNull() {
		return nil
	}
	count := n.NamedChildCount()
	children := make([]sitter.Node, 0, int(count))
	for i := range count {
		children = append(children, n.NamedChild(i))
	}
	return children
}

func firstNamedChildOfType(n sitter.Node, types ...string) sitter.Node {
	if n.IsNull() {
		return sitter.Node{}
	}
	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		for _, t := range types {
			if child.Type() == t {
				return child
			}
		}
	}
	return sitter.Node{}
}

// stringValue decodes a string or substitution-free template literal node.
// ok is false for templates with substitutions.
func (m *ModuleTree) stringValue(n sitter.Node) (string, bool) {
	switch n.Type() {
	case "string":
	case "template_string":
		if !firstNamedChildOfType(n, "template_substitution").IsNull() {
			return "", false
		}
	default:
		return "", false
	}
	raw := m.Text(n)
	if len(raw) < 2 {
		return "", false
	}
	return unescapeJSString(raw[1 : len(raw)-1]), true
}

// unescapeJSString resolves the escape sequences that can appear in a module
// specifier literal.
func unescapeJSString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'x':
			if i+2 < len(s) {
				if v, ok := parseHex(s[i+1 : i+3]); ok {
					b.WriteRune(rune(v))
					i += 2
					continue
				}
			}
			b.WriteByte('x')
		case 'u':
			if i+4 < len(s) && s[i+1] != '{' {
				if v, ok := parseHex(s[i+1 : i+5]); ok {
					b.WriteRune(rune(v))
					i += 4
					continue
				}
			}
			if end := strings.IndexByte(s[i:], '}'); i+1 < len(s) && s[i+1] == '{' && end > 0 {
				if v, ok := parseHex(s[i+2 : i+end]); ok {
					b.WriteRune(rune(v))
					i += end
					continue
				}
			}
			b.WriteByte('u')
		case '\n':
			// line continuation
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func parseHex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			v = v*16 + int(c-'0')
		case c >= 'a' && c <= 'f':
			v = v*16 + int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = v*16 + int(c-'A') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
