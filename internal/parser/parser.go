// Package parser turns source files into structural file models and wires
// their references, first within a file and then across the codebase.
package parser

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/util"
)

// Parser is the per-language contract.
type Parser interface {
	Language() string
	Extensions() []string
	// ImportStatementTemplate renders an import the way the language writes it.
	ImportStatementTemplate(imp *model.ImportStatement) string
	// ParseFile builds a file model with local structure and raw reference
	// names. Syntax errors yield a partial model together with a *ParseError.
	ParseFile(ctx context.Context, relPath string, src []byte) (*model.FileModel, error)
	// ResolveIntraFileDependencies binds references against the file's own
	// declarations and import names.
	ResolveIntraFileDependencies(f *model.FileModel)
	// ResolveInterFilesDependencies binds imports and residual references
	// against the codebase's global symbol table.
	ResolveInterFilesDependencies(cb Codebase, files []*model.FileModel)
}

// Codebase is the view of the global symbol table that inter-file
// resolution needs.
type Codebase interface {
	// Lookup returns the id that module exposes under name. Names may be
	// dotted class members ("Class.method").
	Lookup(module, name string) (string, bool)
	Element(id string) (model.Element, bool)
	// Wildcards returns the wildcard imports declared by module.
	Wildcards(module string) []*model.ImportStatement
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt  map[string]Parser
	byLang map[string]Parser
}

// NewRegistry creates a registry holding the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{
		byExt:  make(map[string]Parser),
		byLang: make(map[string]Parser),
	}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in language.
func DefaultRegistry() (*Registry, error) {
	py, err := NewPythonParser()
	if err != nil {
		return nil, err
	}
	ts, err := NewTypeScriptParser()
	if err != nil {
		return nil, err
	}
	return NewRegistry(py, ts), nil
}

// Register adds p, replacing any parser previously bound to its extensions.
func (r *Registry) Register(p Parser) {
	r.byLang[p.Language()] = p
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForPath returns the parser responsible for path's extension.
func (r *Registry) ForPath(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// ForLanguage returns the parser for a language name.
func (r *Registry) ForLanguage(lang string) (Parser, bool) {
	p, ok := r.byLang[lang]
	return p, ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.byLang))
	for lang := range r.byLang {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Restrict returns a registry limited to the named languages. An empty
// list keeps every language.
func (r *Registry) Restrict(languages []string) *Registry {
	if len(languages) == 0 {
		return r
	}
	out := NewRegistry()
	for _, lang := range languages {
		if p, ok := r.byLang[lang]; ok {
			out.Register(p)
		}
	}
	return out
}

// ReadAndParse reads root/relPath with the given text encoding and parses
// it. Read failures are returned as *IOError.
func ReadAndParse(ctx context.Context, p Parser, root, relPath, encoding string) (*model.FileModel, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, &IOError{Path: relPath, Err: err}
	}
	text, err := util.DecodeText(data, encoding)
	if err != nil {
		return nil, &ParseError{Path: relPath, Message: err.Error()}
	}
	f, err := p.ParseFile(ctx, relPath, []byte(text))
	if f != nil {
		f.Raw = text
	}
	return f, err
}
