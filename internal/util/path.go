package util

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath cleans a path and converts it to forward slashes so ids
// and cache keys are identical across platforms.
func NormalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// RelativePath returns the slash-separated path of target relative to base.
func RelativePath(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return NormalizePath(target)
	}
	return NormalizePath(rel)
}

// ModulePath converts a project-relative file path to a dotted module path.
// e.g., "pkg/sub/mod.py" → "pkg.sub.mod"
//
// Files whose stem is one of initStems (such as "__init__" or "index")
// contribute their directory instead, so "pkg/__init__.py" → "pkg" and a
// root-level "__init__.py" → "".
func ModulePath(relPath string, initStems ...string) string {
	p := NormalizePath(relPath)
	ext := path.Ext(p)
	noExt := strings.TrimSuffix(p, ext)
	dir, stem := path.Split(noExt)
	for _, s := range initStems {
		if stem == s {
			noExt = strings.TrimSuffix(dir, "/")
			break
		}
	}
	if noExt == "" || noExt == "." {
		return ""
	}
	return strings.ReplaceAll(noExt, "/", ".")
}

// CountLines returns the number of lines in a string.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	// If the string doesn't end with a newline, count the last line
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
