package asset

import (
	"path/filepath"
	"sort"

	"github.com/mitchellh/go-homedir"
)

// Glob expands a shell pattern (with ~ expansion) into sorted matches.
// It returns ok=false when nothing matched or the pattern was malformed,
// letting callers fall back to the raw path.
func Glob(pattern string) (matches []string, ok bool) {
	expanded, err := homedir.Expand(pattern)
	if err != nil {
		expanded = pattern
	}
	matches, err = filepath.Glob(expanded)
	if err != nil || len(matches) == 0 {
		return nil, false
	}
	sort.Strings(matches)
	return matches, true
}

// VideoPaths resolves a video path, keeping non-glob paths such as device
// names or URLs as they are.
func VideoPaths(path string) []string {
	if m, ok := Glob(path); ok {
		return m
	}
	return []string{path}
}
