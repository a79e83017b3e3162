package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

type GlobMatcher struct {
	globPattern glob.Glob
	inputString string
	// plain names without `/` or `*` match any file or directory with that
	// name, as in .gitignore
	matchAnyWithName bool
	patternRoot      string
}

// CreateGlobMatchers compiles patterns relative to patternsRoot. `*` stops at
// `/`, `**` crosses directories.
func CreateGlobMatchers(patterns []string, patternsRoot string) ([]GlobMatcher, error) {
	globMatchers := make([]GlobMatcher, 0, len(patterns))
	patternRootNorm := NormalizePathForInternal(patternsRoot)
	if patternRootNorm != "" && !strings.HasSuffix(patternRootNorm, "/") {
		patternRootNorm = patternRootNorm + "/"
	}

	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(NormalizeGlobPattern(pattern), "./")
		matchAnyWithName := !strings.Contains(pattern, "/") && !strings.Contains(pattern, "*")

		if strings.HasSuffix(pattern, "/") && !strings.Contains(pattern, "*") {
			// trailing `/` matches the whole directory recursively, at any
			// depth when it is the only separator
			pattern = pattern + "**"
			if strings.Count(pattern, "/") == 1 {
				pattern = "**/" + pattern
			}
		}

		for i, variant := range expandGlobstars(pattern) {
			compiled, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", variant, err)
			}
			globMatchers = append(globMatchers, GlobMatcher{
				globPattern:      compiled,
				inputString:      variant,
				patternRoot:      patternRootNorm,
				matchAnyWithName: matchAnyWithName && i == 0,
			})
		}
	}
	return globMatchers, nil
}

// expandGlobstars returns pattern followed by every variant in which a `**/`
// segment matches no directory at all, which gobwas/glob does not do by
// itself: `src/**/*.js` also yields `src/*.js`.
func expandGlobstars(pattern string) []string {
	variants := []string{pattern}
	seen := map[string]struct{}{pattern: {}}
	for i := 0; i < len(variants); i++ {
		p := variants[i]
		for j := 0; j+3 <= len(p); j++ {
			if p[j:j+3] != "**/" || (j > 0 && p[j-1] != '/') {
				continue
			}
			variant := p[:j] + p[j+3:]
			if _, ok := seen[variant]; !ok {
				seen[variant] = struct{}{}
				variants = append(variants, variant)
			}
		}
	}
	return variants
}

func MatchesAnyGlobMatcher(filePath string, matchers []GlobMatcher) bool {
	fileInternal := NormalizePathForInternal(filePath)
	for _, matcher := range matchers {
		fileWithoutPrefix := strings.TrimPrefix(fileInternal, matcher.patternRoot)
		if matcher.globPattern.Match(fileWithoutPrefix) {
			return true
		}
		if !matcher.matchAnyWithName {
			continue
		}
		if fileWithoutPrefix == matcher.inputString || strings.HasSuffix(fileWithoutPrefix, "/"+matcher.inputString) {
			return true
		}
		if strings.Contains(fileWithoutPrefix, "/"+matcher.inputString+"/") || strings.HasPrefix(fileWithoutPrefix, matcher.inputString+"/") {
			return true
		}
	}
	return false
}

// FileFilter decides which files are transformed. An empty include list
// accepts every file; exclude always wins.
type FileFilter struct {
	include []GlobMatcher
	exclude []GlobMatcher
}

func NewFileFilter(include, exclude []string, root string) (*FileFilter, error) {
	includeMatchers, err := CreateGlobMatchers(include, root)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	excludeMatchers, err := CreateGlobMatchers(exclude, root)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &FileFilter{include: includeMatchers, exclude: excludeMatchers}, nil
}

func (f *FileFilter) Match(path string) bool {
	if f == nil {
		return true
	}
	path = filepath.Clean(path)
	if MatchesAnyGlobMatcher(path, f.exclude) {
		return false
	}
	return len(f.include) == 0 || MatchesAnyGlobMatcher(path, f.include)
}
