// Package loader discovers the source files of a project and fingerprints
// their contents.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/BrunoV21/CodeTide/internal/util"
)

// DefaultIgnorePatterns are always excluded, in gitignore syntax.
var DefaultIgnorePatterns = []string{
	"*.pyc", "*.pyo", "*.so", "*.o", "*.a", "*.lib", "*.dll", "*.exe",
	"*.jar", "*.war", "*.ear", "*.zip", "*.tar", "*.gz", "*.bz2", "*.7z",
	"*.egg", "*.egg-info", "*.whl",
	"__pycache__", ".git", ".hg", ".svn", ".DS_Store", "node_modules",
	"venv", "env", ".env", ".venv", "build", "dist", "target", ".idea", ".vscode",
}

// FileInfo is one discovered source file.
type FileInfo struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
}

// Config holds loader configuration.
type Config struct {
	MaxFileSize     int64    // files larger than this are skipped; 0 disables the limit
	Extensions      []string // accepted file extensions, lowercase with the dot
	ExcludePatterns []string // extra gitignore-style patterns
	UseGitignore    bool     // honour the project's .gitignore
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:  5 * 1024 * 1024,
		Extensions:   []string{".py", ".ts", ".tsx"},
		UseGitignore: true,
	}
}

// Repository is the result of a discovery walk.
type Repository struct {
	RootPath string
	Name     string
	Files    []FileInfo
}

// RelativePaths returns the project-relative path of every file, sorted.
func (r *Repository) RelativePaths() []string {
	out := make([]string, len(r.Files))
	for i, f := range r.Files {
		out[i] = f.RelativePath
	}
	return out
}

// ErrNotDirectory is returned when the root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Matcher builds the ignore matcher used for root: default patterns, then
// extra patterns, then the project's .gitignore.
func Matcher(root string, cfg Config) *ignore.GitIgnore {
	lines := append([]string{}, DefaultIgnorePatterns...)
	lines = append(lines, cfg.ExcludePatterns...)
	if cfg.UseGitignore {
		lines = append(lines, readIgnoreFile(filepath.Join(root, ".gitignore"))...)
	}
	return ignore.CompileIgnoreLines(lines...)
}

// LoadRepository walks rootPath and returns the supported source files,
// sorted by relative path.
func LoadRepository(rootPath string, cfg Config) (*Repository, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", rootPath, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("cannot access %q: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q: %w", absRoot, ErrNotDirectory)
	}

	repo := &Repository{RootPath: absRoot, Name: filepath.Base(absRoot)}
	gi := Matcher(absRoot, cfg)
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if path == absRoot {
			return nil
		}
		rel := util.RelativePath(absRoot, path)
		if d.IsDir() {
			if gi.MatchesPath(rel) || gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] || gi.MatchesPath(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if cfg.MaxFileSize > 0 && fi.Size() > cfg.MaxFileSize {
			return nil
		}
		repo.Files = append(repo.Files, FileInfo{Path: path, RelativePath: rel, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk error: %w", err)
	}
	sort.Slice(repo.Files, func(i, j int) bool {
		return repo.Files[i].RelativePath < repo.Files[j].RelativePath
	})
	return repo, nil
}

func readIgnoreFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
