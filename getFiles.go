package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// directories that never hold sources worth rewriting
var skippedDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
}

func parseGitIgnore(fileContent string, dirPath string) []GlobMatcher {
	lines := strings.Split(fileContent, "\n")
	sanitizedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// negations are not supported, skip them rather than ignore too much
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		// wildcard names without a separator match at any depth
		if strings.Contains(trimmed, "*") && !strings.Contains(strings.TrimSuffix(trimmed, "/"), "/") {
			trimmed = "**/" + trimmed
		}
		sanitizedLines = append(sanitizedLines, trimmed)
	}
	matchers, err := CreateGlobMatchers(sanitizedLines, dirPath)
	if err != nil {
		// a broken .gitignore line should not stop the walk
		return nil
	}
	return matchers
}

// FindAndProcessGitIgnoreFilesUpToRepoRoot collects .gitignore rules from
// dirPath up to the directory holding .git.
func FindAndProcessGitIgnoreFilesUpToRepoRoot(dirPath string) []GlobMatcher {
	globMatchers := []GlobMatcher{}
	for {
		if content, err := os.ReadFile(filepath.Join(dirPath, ".gitignore")); err == nil {
			globMatchers = append(globMatchers, parseGitIgnore(string(content), dirPath)...)
		}
		if gitDir, err := os.Stat(filepath.Join(dirPath, ".git")); err == nil && gitDir.IsDir() {
			return globMatchers
		}
		parent := filepath.Dir(filepath.Clean(dirPath))
		if parent == filepath.Clean(dirPath) {
			return globMatchers
		}
		dirPath = parent
	}
}

func GetFiles(directory string, existingFiles []string, parentGlobMatchers []GlobMatcher) []string {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return existingFiles
	}

	for _, entry := range entries {
		entryName := entry.Name()
		entryFilePath := filepath.Join(directory, entryName)

		if entry.IsDir() {
			if _, skip := skippedDirs[entryName]; skip || MatchesAnyGlobMatcher(entryFilePath, parentGlobMatchers) {
				continue
			}
			ignoreGlobs := parentGlobMatchers
			if content, err := os.ReadFile(filepath.Join(entryFilePath, ".gitignore")); err == nil {
				if nested := parseGitIgnore(string(content), entryFilePath); len(nested) > 0 {
					ignoreGlobs = append(slices.Clip(parentGlobMatchers), nested...)
				}
			}
			existingFiles = GetFiles(entryFilePath, existingFiles, ignoreGlobs)
			continue
		}

		if hasCorrectExtension(entryName) && !MatchesAnyGlobMatcher(entryFilePath, parentGlobMatchers) {
			existingFiles = append(existingFiles, NormalizePathForInternal(entryFilePath))
		}
	}

	return existingFiles
}

// CollectSourceFiles expands paths relative to cwd into the JS/TS files they
// name. Directories are walked honouring .gitignore; files are taken as is.
// The result is sorted and free of duplicates.
func CollectSourceFiles(paths []string, cwd string) ([]string, error) {
	files := make([]string, 0, 64)
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, NormalizePathForInternal(filepath.Clean(p)))
			continue
		}
		files = GetFiles(filepath.Clean(p), files, FindAndProcessGitIgnoreFilesUpToRepoRoot(p))
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
