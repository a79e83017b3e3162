package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var osSeparator = string(os.PathSeparator)

// NormalizePathForInternal converts any OS path into forward slashes so glob
// matching behaves the same on every platform.
// Examples:
// - "C:\\project\\src\\file.ts" -> "C:/project/src/file.ts"
// - "./a/../b/" -> "b"
func NormalizePathForInternal(p string) string {
	if runtime.GOOS != "windows" {
		return p
	}
	if p == "" {
		return ""
	}
	s := filepath.ToSlash(filepath.Clean(p))
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		s = strings.TrimRight(s, "/")
	}
	return s
}

// DenormalizePathForOS converts an internal forward-slash path back to the
// OS-native representation for os.* calls.
func DenormalizePathForOS(internal string) string {
	if runtime.GOOS != "windows" || internal == "" {
		return internal
	}
	return filepath.FromSlash(internal)
}

// NormalizeGlobPattern normalizes glob pattern separators to forward slashes.
func NormalizeGlobPattern(pattern string) string {
	if runtime.GOOS != "windows" {
		return pattern
	}
	return strings.ReplaceAll(pattern, `\`, "/")
}

func StandardiseDirPath(cwd string) string {
	if cwd == "" || strings.HasSuffix(cwd, osSeparator) {
		return cwd
	}
	return cwd + osSeparator
}

func ResolveAbsoluteCwd(cwd string) string {
	if filepath.IsAbs(cwd) {
		return StandardiseDirPath(cwd)
	}
	binaryExecDir, _ := os.Getwd()
	return StandardiseDirPath(filepath.Join(binaryExecDir, cwd))
}
