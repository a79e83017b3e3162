package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Options struct {
	Globals *GlobalsResolver
	// Include and Exclude are glob patterns relative to Root.
	Include []string
	Exclude []string
	Root    string

	DynamicWrapper DynamicWrapper
	ConstBindings  bool
	// Report receives every diagnostic. It may be called from several
	// goroutines by TransformFiles, but never concurrently.
	Report func(Diagnostic)
}

// Transformer runs the rewrite pipeline for single files or batches of
// files. It holds no per-file state and is safe for concurrent use.
type Transformer struct {
	globals       *GlobalsResolver
	filter        *FileFilter
	wrap          DynamicWrapper
	constBindings bool
	report        func(Diagnostic)
	reportMu      sync.Mutex
}

type TransformResult struct {
	Path string
	// Code is the rewritten source, or the original when Changed is false.
	Code    string
	Map     *SourceMap
	Changed bool
	// Skipped is set when the filter or the pre-check excluded the file.
	Skipped     bool
	Diagnostics []Diagnostic
}

func NewTransformer(opts Options) (*Transformer, error) {
	if opts.Globals == nil {
		return nil, ErrMissingGlobals
	}
	root := opts.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	filter, err := NewFileFilter(opts.Include, opts.Exclude, root)
	if err != nil {
		return nil, err
	}
	wrap := opts.DynamicWrapper
	if wrap == nil {
		wrap = DefaultDynamicWrapper
	}
	return &Transformer{
		globals:       opts.Globals,
		filter:        filter,
		wrap:          wrap,
		constBindings: opts.ConstBindings,
		report:        opts.Report,
	}, nil
}

// ShouldTransform reports whether path passes the include/exclude filter.
// Virtual modules always pass.
func (t *Transformer) ShouldTransform(path string) bool {
	return IsVirtualModule(path) || t.filter.Match(path)
}

// Transform rewrites code read from path. Files that cannot be parsed are
// skipped with a parse-failure diagnostic; the returned error is reserved
// for failures of the parser itself.
func (t *Transformer) Transform(path string, code []byte) (*TransformResult, error) {
	result := &TransformResult{Path: path, Code: string(code)}

	if !t.ShouldTransform(path) || !t.globals.MayReference(code) {
		result.Skipped = true
		return result, nil
	}

	tree, err := ParseModule(path, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if errNode, failed := tree.SyntaxError(); failed {
		line, column := tree.Position(errNode)
		t.emit(result, Diagnostic{
			Severity: SeverityDebug,
			Kind:     DiagnosticParseFailure,
			File:     path,
			Line:     line,
			Column:   column,
			Message:  fmt.Sprintf("Failed to parse code, skip %s", path),
		})
		result.Skipped = true
		return result, nil
	}

	buf := NewEditBuffer(code)
	rewriter := &Rewriter{
		Globals:        t.globals,
		DynamicWrapper: t.wrap,
		ConstBindings:  t.constBindings,
		Report: func(d Diagnostic) {
			t.emit(result, d)
		},
	}
	if !rewriter.Rewrite(tree, buf) {
		return result, nil
	}

	name := filepath.Base(path)
	result.Code = buf.String()
	result.Map = buf.GenerateMap(SourceMapOptions{File: name, Source: name, IncludeContent: true})
	result.Changed = true
	return result, nil
}

func (t *Transformer) emit(result *TransformResult, d Diagnostic) {
	result.Diagnostics = append(result.Diagnostics, d)
	if t.report == nil {
		return
	}
	t.reportMu.Lock()
	defer t.reportMu.Unlock()
	t.report(d)
}

// TransformFile reads and transforms one file from disk.
func (t *Transformer) TransformFile(path string) (*TransformResult, error) {
	code, err := os.ReadFile(DenormalizePathForOS(path))
	if err != nil {
		return nil, err
	}
	return t.Transform(path, code)
}

// TransformFiles transforms paths concurrently. Results keep the order of
// paths; entries for files that failed are nil and counted in failed.
func (t *Transformer) TransformFiles(paths []string) (results []*TransformResult, failed int) {
	results = make([]*TransformResult, len(paths))
	errs := make([]error, len(paths))

	sem := make(chan struct{}, runtime.GOMAXPROCS(0)*2)
	var wg sync.WaitGroup
	for idx, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, path string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[idx], errs[idx] = t.TransformFile(path)
		}(idx, path)
	}
	wg.Wait()

	for idx, err := range errs {
		if err == nil {
			continue
		}
		failed++
		t.reportMu.Lock()
		if t.report != nil {
			t.report(Diagnostic{Severity: SeverityWarning, Kind: DiagnosticReadFailure, File: paths[idx], Message: err.Error()})
		}
		t.reportMu.Unlock()
	}
	return results, failed
}

// CodeWithInlineMap returns Code with the source map appended as a
// sourceMappingURL comment.
func (r *TransformResult) CodeWithInlineMap() (string, error) {
	if r.Map == nil {
		return r.Code, nil
	}
	comment, err := r.Map.InlineComment()
	if err != nil {
		return "", err
	}
	return r.Code + "\n" + comment + "\n", nil
}
