package main

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func setupSourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		".gitignore":                  "dist\n# build output\n!dist/keep.js\n",
		"src/a.js":                    "",
		"src/b.tsx":                   "",
		"src/readme.md":               "",
		"src/nested/.gitignore":       "generated.js\n",
		"src/nested/generated.js":     "",
		"src/nested/c.mjs":            "",
		"dist/out.js":                 "",
		"node_modules/react/index.js": "",
	}
	for name, content := range files {
		writeTestFile(t, filepath.Join(root, name), content)
	}
	return root
}

func TestCollectSourceFiles(t *testing.T) {
	root := setupSourceTree(t)

	files, err := CollectSourceFiles([]string{"."}, root)
	assert.NilError(t, err)
	assert.DeepEqual(t, files, []string{
		filepath.Join(root, "src", "a.js"),
		filepath.Join(root, "src", "b.tsx"),
		filepath.Join(root, "src", "nested", "c.mjs"),
	})
}

func TestCollectSourceFilesExplicitPaths(t *testing.T) {
	root := setupSourceTree(t)

	// explicit files bypass .gitignore, overlapping paths are listed once
	files, err := CollectSourceFiles([]string{"src/nested", "dist/out.js", filepath.Join(root, "src", "nested", "c.mjs")}, root)
	assert.NilError(t, err)
	assert.DeepEqual(t, files, []string{
		filepath.Join(root, "dist", "out.js"),
		filepath.Join(root, "src", "nested", "c.mjs"),
	})

	_, err = CollectSourceFiles([]string{"missing"}, root)
	assert.Assert(t, os.IsNotExist(err))
}

func TestParseGitIgnore(t *testing.T) {
	matchers := parseGitIgnore("# comment\n\n*.log\n!important.log\nbuild/\n", "/repo")
	assert.Assert(t, MatchesAnyGlobMatcher("/repo/debug.log", matchers))
	assert.Assert(t, MatchesAnyGlobMatcher("/repo/build/index.js", matchers))
	assert.Assert(t, MatchesAnyGlobMatcher("/repo/logs/deep/debug.log", matchers))
	assert.Assert(t, !MatchesAnyGlobMatcher("/repo/src/index.js", matchers))
}
