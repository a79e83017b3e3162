package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

const Version = "1.0.0"

var (
	currentDir, _ = os.Getwd()
	rootCmd       = &cobra.Command{
		Use:   "external-globals",
		Short: "Replace imports of external modules with references to globals",
		Long: `Rewrites import and export statements of JavaScript and TypeScript sources so
that modules provided by the host environment (for example React loaded from a
CDN as window.React) are read from globals instead of being bundled.`,
		Version: Version,
	}
)

var docsCmd = &cobra.Command{
	Use:   "doc-gen",
	Short: "Generate CLI documentation",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := doc.GenMarkdownTree(rootCmd, "./docs")
		if err != nil {
			log.Fatal(err)
		}
		return nil
	},
}

// ---------------- shared flags ----------------

// transformFlags holds the options shared by rewrite and build. Values
// given on the command line override the config file.
type transformFlags struct {
	cwd            string
	configPath     string
	globals        []string
	include        []string
	exclude        []string
	dynamicWrapper string
	constBindings  bool
	sourcemap      string
	verbose        bool
}

func (f *transformFlags) bind(command *cobra.Command, defaultSourcemap string) {
	command.Flags().StringVarP(&f.cwd, "cwd", "c", currentDir,
		"Working directory for the command")
	command.Flags().StringVar(&f.configPath, "config", "",
		"Path to the config file or its directory (default: discovered in cwd)")
	command.Flags().StringArrayVarP(&f.globals, "global", "g", []string{},
		"Map a module to a global, e.g. --global react=React (repeatable)")
	command.Flags().StringSliceVar(&f.include, "include", []string{},
		"Only transform files matching these glob patterns")
	command.Flags().StringSliceVar(&f.exclude, "exclude", []string{},
		"Never transform files matching these glob patterns")
	command.Flags().StringVar(&f.dynamicWrapper, "dynamic-wrapper", "",
		"Template for rewritten import() calls, must contain ${name} (default: Promise.resolve(${name}))")
	command.Flags().BoolVar(&f.constBindings, "const-bindings", false,
		"Declare rewritten bindings with const instead of var")
	command.Flags().StringVar(&f.sourcemap, "sourcemap", defaultSourcemap,
		"Source map output: none, inline or external")
	command.Flags().BoolVarP(&f.verbose, "verbose", "v", false,
		"Also print debug diagnostics")
}

// transformSettings is the merged result of the config file and flags.
type transformSettings struct {
	Cwd            string
	Globals        map[string]string
	Include        []string
	Exclude        []string
	DynamicWrapper string
	ConstBindings  bool
	Sourcemap      string
	Verbose        bool
}

func parseGlobalFlags(values []string) (map[string]string, error) {
	globals := make(map[string]string, len(values))
	for _, value := range values {
		id, name, found := strings.Cut(value, "=")
		if !found || id == "" {
			return nil, fmt.Errorf("--global %q: expected <module>=<global>", value)
		}
		globals[id] = name
	}
	return globals, nil
}

func (f *transformFlags) resolve(command *cobra.Command) (*transformSettings, error) {
	cwd := ResolveAbsoluteCwd(f.cwd)
	settings := &transformSettings{Cwd: cwd, Globals: map[string]string{}, Sourcemap: f.sourcemap, Verbose: f.verbose}

	configPath := f.configPath
	if configPath == "" {
		configPath = cwd
	} else if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(cwd, configPath)
	}
	config, _, err := LoadConfig(configPath)
	switch {
	case err == nil:
		for id, name := range config.Globals {
			settings.Globals[id] = name
		}
		settings.Include = config.Include
		settings.Exclude = config.Exclude
		settings.DynamicWrapper = config.DynamicWrapper
		settings.ConstBindings = config.ConstBindings
		if config.Sourcemap != "" && !command.Flags().Changed("sourcemap") {
			settings.Sourcemap = config.Sourcemap
		}
	case f.configPath == "" && errors.Is(err, ErrConfigNotFound):
		// flags only
	default:
		return nil, fmt.Errorf("Could not load configuration from %s:\n%w", configPath, err)
	}

	flagGlobals, err := parseGlobalFlags(f.globals)
	if err != nil {
		return nil, err
	}
	for id, name := range flagGlobals {
		settings.Globals[id] = name
	}
	if command.Flags().Changed("include") {
		settings.Include = f.include
	}
	if command.Flags().Changed("exclude") {
		settings.Exclude = f.exclude
	}
	if command.Flags().Changed("dynamic-wrapper") {
		settings.DynamicWrapper = f.dynamicWrapper
	}
	if command.Flags().Changed("const-bindings") {
		settings.ConstBindings = f.constBindings
	}
	if err := validateSourcemap(settings.Sourcemap); err != nil {
		return nil, fmt.Errorf("--sourcemap: %w", err)
	}
	return settings, nil
}

var errNoGlobals = fmt.Errorf("no globals configured, add them to %s or pass --global <module>=<global>: %w", configFileName, ErrMissingGlobals)

func (s *transformSettings) newTransformer(report func(Diagnostic)) (*Transformer, error) {
	if len(s.Globals) == 0 {
		return nil, errNoGlobals
	}
	globals, err := NewMapGlobals(s.Globals)
	if err != nil {
		return nil, err
	}
	wrap, err := NewTemplateDynamicWrapper(s.DynamicWrapper)
	if err != nil {
		return nil, err
	}
	return NewTransformer(Options{
		Globals:        globals,
		Include:        s.Include,
		Exclude:        s.Exclude,
		Root:           s.Cwd,
		DynamicWrapper: wrap,
		ConstBindings:  s.ConstBindings,
		Report:         report,
	})
}

// newDiagnosticPrinter prints diagnostics to w, yellow for warnings and
// faint for debug output which only shows in verbose mode.
func newDiagnosticPrinter(w io.Writer, verbose bool) func(Diagnostic) {
	warning := color.New(color.FgYellow)
	debug := color.New(color.Faint)
	return func(d Diagnostic) {
		switch d.Severity {
		case SeverityWarning:
			warning.Fprintf(w, "warning: %s\n", d)
		default:
			if verbose {
				debug.Fprintf(w, "debug: %s\n", d)
			}
		}
	}
}

// ---------------- rewrite ----------------
var (
	rewriteOptions transformFlags
	rewriteWrite   bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [paths...]",
	Short: "Rewrite imports of mapped modules in files or directories",
	Long: `Transforms the given files, or every JavaScript and TypeScript file below the
given directories, replacing imports of modules mapped to globals.
Results are printed to stdout unless --write is set.`,
	Example: "external-globals rewrite src --global react=React --global react-dom=ReactDOM --write",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := rewriteOptions.resolve(cmd)
		if err != nil {
			return err
		}
		failed, err := rewriteCmdFn(settings, args, rewriteWrite, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		if failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

// rewriteCmdFn transforms paths and returns the number of files that could
// not be processed.
func rewriteCmdFn(settings *transformSettings, paths []string, write bool, stdout, stderr io.Writer) (int, error) {
	if settings.Sourcemap == SourcemapExternal && !write {
		return 0, fmt.Errorf("--sourcemap external requires --write")
	}
	transformer, err := settings.newTransformer(newDiagnosticPrinter(stderr, settings.Verbose))
	if err != nil {
		return 0, err
	}
	files, err := CollectSourceFiles(paths, settings.Cwd)
	if err != nil {
		return 0, err
	}

	results, failed := transformer.TransformFiles(files)

	changedFiles := map[string]string{}
	changedCount := 0
	for _, result := range results {
		if result == nil || !result.Changed {
			continue
		}
		changedCount++
		code, err := renderWithSourcemap(result, settings.Sourcemap, changedFiles)
		if err != nil {
			return failed, err
		}
		if write {
			changedFiles[result.Path] = code
			continue
		}
		if len(files) > 1 {
			rel, relErr := filepath.Rel(settings.Cwd, result.Path)
			if relErr != nil {
				rel = result.Path
			}
			fmt.Fprintf(stdout, "// %s\n", filepath.ToSlash(rel))
		}
		fmt.Fprint(stdout, code)
		if !strings.HasSuffix(code, "\n") {
			fmt.Fprintln(stdout)
		}
	}

	if write {
		if err := WriteFileChanges(changedFiles); err != nil {
			return failed, err
		}
	}
	fmt.Fprintf(stderr, "Rewrote %d of %d files\n", changedCount, len(files))
	return failed, nil
}

// renderWithSourcemap appends the source map to the rewritten code. External
// maps are queued in files next to their source.
func renderWithSourcemap(result *TransformResult, mode string, files map[string]string) (string, error) {
	switch mode {
	case SourcemapInline:
		return result.CodeWithInlineMap()
	case SourcemapExternal:
		data, err := result.Map.JSON()
		if err != nil {
			return "", err
		}
		mapPath := result.Path + ".map"
		files[mapPath] = string(data)
		return result.Code + "\n//# sourceMappingURL=" + filepath.Base(mapPath) + "\n", nil
	default:
		return result.Code, nil
	}
}

// ---------------- build ----------------
var (
	buildOptions     transformFlags
	buildEntryPoints []string
	buildOutfile     string
	buildOutdir      string
	buildFormat      string
	buildPlatform    string
	buildMinify      bool
)

var buildFormats = map[string]api.Format{
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
	"iife": api.FormatIIFE,
}

var buildPlatforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var buildSourcemaps = map[string]api.SourceMap{
	SourcemapNone:     api.SourceMapNone,
	SourcemapInline:   api.SourceMapInline,
	SourcemapExternal: api.SourceMapExternal,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle entry points with esbuild, reading mapped modules from globals",
	Long: `Bundles the entry points with esbuild. Modules mapped to globals are kept out
of the bundle and every import of them is rewritten to read the global.`,
	Example: "external-globals build -p src/index.tsx --outfile dist/app.js --global react=React",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := buildOptions.resolve(cmd)
		if err != nil {
			return err
		}
		return buildCmdFn(settings, buildEntryPoints, os.Stderr)
	},
}

func buildCmdFn(settings *transformSettings, entryPoints []string, stderr io.Writer) error {
	format, ok := buildFormats[buildFormat]
	if !ok {
		return fmt.Errorf("--format %q: expected esm, cjs or iife", buildFormat)
	}
	platform, ok := buildPlatforms[buildPlatform]
	if !ok {
		return fmt.Errorf("--platform %q: expected browser, node or neutral", buildPlatform)
	}
	if buildOutfile != "" && buildOutdir != "" {
		return fmt.Errorf("--outfile and --outdir cannot be used together")
	}
	if buildOutfile == "" && buildOutdir == "" {
		return fmt.Errorf("one of --outfile or --outdir is required")
	}
	if len(settings.Globals) == 0 {
		return errNoGlobals
	}

	plugin, err := NewPlugin(PluginOptions{
		Globals:        settings.Globals,
		Include:        settings.Include,
		Exclude:        settings.Exclude,
		Root:           settings.Cwd,
		DynamicWrapper: settings.DynamicWrapper,
		ConstBindings:  settings.ConstBindings,
		Verbose:        settings.Verbose,
	})
	if err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       entryPoints,
		Bundle:            true,
		Outfile:           buildOutfile,
		Outdir:            buildOutdir,
		Format:            format,
		Platform:          platform,
		Sourcemap:         buildSourcemaps[settings.Sourcemap],
		MinifyWhitespace:  buildMinify,
		MinifyIdentifiers: buildMinify,
		MinifySyntax:      buildMinify,
		AbsWorkingDir:     filepath.Clean(settings.Cwd),
		Write:             true,
		Plugins:           []api.Plugin{plugin},
		LogLevel:          api.LogLevelSilent,
	})

	printBuildMessages(stderr, result.Warnings, api.WarningMessage)
	printBuildMessages(stderr, result.Errors, api.ErrorMessage)
	if len(result.Errors) > 0 {
		return fmt.Errorf("build failed with %d errors", len(result.Errors))
	}
	for _, file := range result.OutputFiles {
		rel, err := filepath.Rel(settings.Cwd, file.Path)
		if err != nil {
			rel = file.Path
		}
		fmt.Fprintf(stderr, "Wrote %s\n", filepath.ToSlash(rel))
	}
	return nil
}

func printBuildMessages(w io.Writer, messages []api.Message, kind api.MessageKind) {
	if len(messages) == 0 {
		return
	}
	formatted := api.FormatMessages(messages, api.FormatMessagesOptions{
		Kind:  kind,
		Color: !color.NoColor,
	})
	for _, msg := range formatted {
		fmt.Fprint(w, msg)
	}
}

// ---------------- config ----------------
var configCwd string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create external-globals configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new " + configFileName + " file",
	Long:  `Create a new ` + configFileName + ` file in the working directory with example globals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := initConfigFileCore(ResolveAbsoluteCwd(configCwd))
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(os.Stdout, "Created %s\n", configPath)
		fmt.Println("Adjust globals to the modules your host page provides.")
		return nil
	},
}

func init() {
	// rewrite flags
	rewriteOptions.bind(rewriteCmd, SourcemapNone)
	rewriteCmd.Flags().BoolVarP(&rewriteWrite, "write", "w", false,
		"Write results back to the files instead of printing them")

	// build flags
	buildOptions.bind(buildCmd, SourcemapNone)
	buildCmd.Flags().StringSliceVarP(&buildEntryPoints, "entry-points", "p", []string{},
		"Entry point file(s) to bundle")
	buildCmd.Flags().StringVar(&buildOutfile, "outfile", "",
		"Output file for a single entry point")
	buildCmd.Flags().StringVar(&buildOutdir, "outdir", "",
		"Output directory for multiple entry points")
	buildCmd.Flags().StringVar(&buildFormat, "format", "esm",
		"Output format: esm, cjs or iife")
	buildCmd.Flags().StringVar(&buildPlatform, "platform", "browser",
		"Target platform: browser, node or neutral")
	buildCmd.Flags().BoolVar(&buildMinify, "minify", false,
		"Minify the output")
	buildCmd.MarkFlagRequired("entry-points")

	// config flags
	configInitCmd.Flags().StringVarP(&configCwd, "cwd", "c", currentDir, "Working directory")
	configCmd.AddCommand(configInitCmd)

	// add commands
	rootCmd.AddCommand(rewriteCmd, buildCmd, configCmd, docsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
