package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/BrunoV21/CodeTide/internal/util"
)

// EnsureGitignored appends the cache directory to root's .gitignore unless
// it is already ignored or lies outside root. It reports whether the file
// was changed.
func EnsureGitignored(root, cacheDir string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return false, err
	}
	rel := util.RelativePath(absRoot, absDir)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return false, nil
	}

	path := filepath.Join(absRoot, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read .gitignore: %w", err)
	}
	gi := ignore.CompileIgnoreLines(strings.Split(string(existing), "\n")...)
	if gi.MatchesPath(rel + "/") {
		return false, nil
	}

	var sb strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(rel + "/\n")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open .gitignore: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(sb.String()); err != nil {
		return false, fmt.Errorf("append .gitignore: %w", err)
	}
	return true, nil
}
