package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

const pluginName = "external-globals"

// sources the load hook looks at
const loadFilter = `\.(?:[cm]?[jt]sx?|mjsx)$`

type PluginOptions struct {
	// Globals maps module identifiers to global expressions. GlobalsFunc is
	// used instead when set.
	Globals     map[string]string
	GlobalsFunc func(id string) string

	Include []string
	Exclude []string
	Root    string

	// DynamicWrapper is a template containing ${name}; empty selects
	// Promise.resolve(${name}).
	DynamicWrapper string
	ConstBindings  bool
	// Verbose also surfaces debug diagnostics as warnings.
	Verbose bool
}

// NewPlugin validates options and returns an esbuild plugin that keeps
// modules mapped to globals out of the bundle and rewrites their imports.
func NewPlugin(opts PluginOptions) (api.Plugin, error) {
	var (
		globals *GlobalsResolver
		err     error
	)
	if opts.GlobalsFunc != nil {
		globals, err = NewFuncGlobals(opts.GlobalsFunc)
	} else {
		globals, err = NewMapGlobals(opts.Globals)
	}
	if err != nil {
		return api.Plugin{}, err
	}
	wrap, err := NewTemplateDynamicWrapper(opts.DynamicWrapper)
	if err != nil {
		return api.Plugin{}, err
	}
	transformer, err := NewTransformer(Options{
		Globals:        globals,
		Include:        opts.Include,
		Exclude:        opts.Exclude,
		Root:           opts.Root,
		DynamicWrapper: wrap,
		ConstBindings:  opts.ConstBindings,
	})
	if err != nil {
		return api.Plugin{}, err
	}

	return api.Plugin{
		Name: pluginName,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if IsVirtualModule(args.Path) || args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				if globals.Name(args.Path) == "" {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: loadFilter, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if !transformer.ShouldTransform(args.Path) {
					return api.OnLoadResult{}, nil
				}
				code, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				result, err := transformer.Transform(args.Path, code)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				loadResult := api.OnLoadResult{Warnings: diagnosticsToMessages(result.Diagnostics, opts.Verbose)}
				if !result.Changed {
					return loadResult, nil
				}
				contents, err := result.CodeWithInlineMap()
				if err != nil {
					return api.OnLoadResult{}, err
				}
				loadResult.Contents = &contents
				loadResult.Loader = loaderForPath(args.Path)
				loadResult.ResolveDir = filepath.Dir(args.Path)
				return loadResult, nil
			})
		},
	}, nil
}

func loaderForPath(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx", ".mjsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// diagnosticsToMessages converts diagnostics into esbuild warnings. Debug
// diagnostics are dropped unless verbose is set.
func diagnosticsToMessages(diagnostics []Diagnostic, verbose bool) []api.Message {
	if len(diagnostics) == 0 {
		return nil
	}
	messages := make([]api.Message, 0, len(diagnostics))
	for _, d := range diagnostics {
		if d.Severity == SeverityDebug && !verbose {
			continue
		}
		msg := api.Message{PluginName: pluginName, Text: d.Message}
		if d.Line > 0 {
			msg.Location = &api.Location{File: d.File, Line: d.Line, Column: d.Column}
		}
		messages = append(messages, msg)
	}
	return messages
}
