// Package graph holds the resolved codebase: an arena of every element,
// the global symbol table, the dependency graph derived from resolved
// references, and the queries built on them.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/parser"
)

// Collision records an id declared by more than one file. The file that
// sorts first keeps the id.
type Collision struct {
	ID      string `json:"id"`
	Kept    string `json:"kept"`
	Dropped string `json:"dropped"`
}

// Codebase is the arena of all parsed files. It is not safe for concurrent
// mutation; callers serialize writes.
type Codebase struct {
	Root string

	files      map[string]*model.FileModel
	paths      []string
	elements   map[string]model.Element
	ids        []string
	owners     map[string]string
	symbols    map[string]map[string]string
	wildcards  map[string][]*model.ImportStatement
	bySegment  map[string][]string
	collisions []Collision

	deps   *DependencyGraph
	cached map[string]string
}

// New creates an empty codebase rooted at root.
func New(root string) *Codebase {
	cb := &Codebase{Root: root, files: make(map[string]*model.FileModel)}
	cb.reindex()
	return cb
}

// FromFiles creates a codebase holding files.
func FromFiles(root string, files []*model.FileModel) *Codebase {
	cb := &Codebase{Root: root, files: make(map[string]*model.FileModel, len(files))}
	for _, f := range files {
		cb.files[f.FilePath] = f
	}
	cb.reindex()
	return cb
}

// ReplaceFiles inserts files, evicting every element of a previous model
// of the same path. It returns the previous models keyed by path.
func (cb *Codebase) ReplaceFiles(files ...*model.FileModel) map[string]*model.FileModel {
	old := make(map[string]*model.FileModel)
	for _, f := range files {
		if prev, ok := cb.files[f.FilePath]; ok {
			old[f.FilePath] = prev
		}
		cb.files[f.FilePath] = f
	}
	cb.reindex()
	return old
}

// RemoveFiles evicts the files at paths and returns the removed models.
func (cb *Codebase) RemoveFiles(paths ...string) map[string]*model.FileModel {
	old := make(map[string]*model.FileModel)
	for _, p := range paths {
		if prev, ok := cb.files[p]; ok {
			old[p] = prev
			delete(cb.files, p)
		}
	}
	cb.reindex()
	return old
}

// Resolve runs intra-file resolution over every file still in the parsed
// state, then inter-file resolution over all files, one language at a time.
// ctx is only checked before any file is touched; once started, resolution
// runs to completion so no reference is left bound to an evicted id.
func (cb *Codebase) Resolve(ctx context.Context, reg *parser.Registry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	for _, path := range cb.paths {
		f := cb.files[path]
		if f.State != model.StateParsed {
			continue
		}
		if p, ok := reg.ForLanguage(f.Language); ok {
			p.ResolveIntraFileDependencies(f)
		}
	}
	cb.reindex()

	byLang := make(map[string][]*model.FileModel)
	for _, path := range cb.paths {
		f := cb.files[path]
		byLang[f.Language] = append(byLang[f.Language], f)
	}
	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		p, ok := reg.ForLanguage(lang)
		if !ok {
			logging.Warn("no parser for language", "component", "graph", "language", lang)
			continue
		}
		p.ResolveInterFilesDependencies(cb, byLang[lang])
	}
	cb.reindexEdges()
	for _, c := range cb.collisions {
		logging.WarnContext(ctx, "duplicate unique id", "component", "graph", "id", c.ID, "kept", c.Kept, "dropped", c.Dropped)
	}
	logging.DebugContext(ctx, "resolved codebase", "component", "graph",
		"files", len(cb.paths), "elements", len(cb.ids))
	return nil
}

// reindex rebuilds every lookup structure from the file table.
func (cb *Codebase) reindex() {
	cb.paths = cb.paths[:0]
	for p := range cb.files {
		cb.paths = append(cb.paths, p)
	}
	sort.Strings(cb.paths)

	cb.elements = make(map[string]model.Element)
	cb.owners = make(map[string]string)
	cb.symbols = make(map[string]map[string]string)
	cb.wildcards = make(map[string][]*model.ImportStatement)
	cb.collisions = nil

	for _, path := range cb.paths {
		f := cb.files[path]
		for _, e := range f.Elements() {
			if kept, ok := cb.owners[e.ID()]; ok {
				cb.collisions = append(cb.collisions, Collision{ID: e.ID(), Kept: kept, Dropped: path})
				continue
			}
			cb.elements[e.ID()] = e
			cb.owners[e.ID()] = path
		}
		cb.indexSymbols(f)
	}

	cb.ids = make([]string, 0, len(cb.elements))
	cb.bySegment = make(map[string][]string)
	for id := range cb.elements {
		cb.ids = append(cb.ids, id)
	}
	sort.Strings(cb.ids)
	for _, id := range cb.ids {
		seg := model.LastSegment(id)
		cb.bySegment[seg] = append(cb.bySegment[seg], id)
	}
	cb.reindexEdges()
}

// indexSymbols adds f's exported names to the global symbol table. The
// first file declaring a name in a module keeps it.
func (cb *Codebase) indexSymbols(f *model.FileModel) {
	names, ok := cb.symbols[f.ModulePath]
	if !ok {
		names = make(map[string]string)
		cb.symbols[f.ModulePath] = names
	}
	put := func(name, id string) {
		if _, taken := names[name]; !taken && cb.owners[id] == f.FilePath {
			names[name] = id
		}
	}
	for _, imp := range f.Imports {
		if imp.Wildcard() {
			cb.wildcards[f.ModulePath] = append(cb.wildcards[f.ModulePath], imp)
			continue
		}
		put(imp.LocalName(), imp.UniqueID)
	}
	for _, v := range f.Variables {
		put(v.Name, v.UniqueID)
	}
	for _, fn := range f.Functions {
		put(fn.Name, fn.UniqueID)
	}
	for _, c := range f.Classes {
		put(c.Name, c.UniqueID)
		for _, a := range c.Attributes {
			put(c.Name+"."+a.Name, a.UniqueID)
		}
		for _, m := range c.Methods {
			put(c.Name+"."+m.Name, m.UniqueID)
		}
	}
}

func (cb *Codebase) reindexEdges() {
	cb.deps = buildDependencyGraph(cb.ids, cb.elements)
	cb.cached = make(map[string]string, len(cb.ids))
	for _, id := range cb.ids {
		cb.cached[id] = cb.elements[id].Text()
	}
}

// Lookup implements parser.Codebase.
func (cb *Codebase) Lookup(module, name string) (string, bool) {
	id, ok := cb.symbols[module][name]
	return id, ok
}

// Element returns the element with the given id.
func (cb *Codebase) Element(id string) (model.Element, bool) {
	e, ok := cb.elements[id]
	return e, ok
}

// Wildcards implements parser.Codebase.
func (cb *Codebase) Wildcards(module string) []*model.ImportStatement {
	return cb.wildcards[module]
}

// File returns the model of a project-relative path.
func (cb *Codebase) File(path string) (*model.FileModel, bool) {
	f, ok := cb.files[path]
	return f, ok
}

// Files returns every file path, sorted.
func (cb *Codebase) Files() []string { return append([]string(nil), cb.paths...) }

// FileModels returns every file model in path order.
func (cb *Codebase) FileModels() []*model.FileModel {
	out := make([]*model.FileModel, len(cb.paths))
	for i, p := range cb.paths {
		out[i] = cb.files[p]
	}
	return out
}

// IDs returns every unique id, sorted.
func (cb *Codebase) IDs() []string { return append([]string(nil), cb.ids...) }

// Len returns the number of elements.
func (cb *Codebase) Len() int { return len(cb.ids) }

// Owner returns the path of the file declaring id.
func (cb *Codebase) Owner(id string) (string, bool) {
	p, ok := cb.owners[id]
	return p, ok
}

// Collisions returns the ids dropped because another file declared them.
func (cb *Codebase) Collisions() []Collision { return append([]Collision(nil), cb.collisions...) }

// CachedElements returns the rendered text of every element keyed by id.
func (cb *Codebase) CachedElements() map[string]string {
	out := make(map[string]string, len(cb.cached))
	for k, v := range cb.cached {
		out[k] = v
	}
	return out
}

// Dependencies returns the dependency graph of the last resolution.
func (cb *Codebase) Dependencies() *DependencyGraph { return cb.deps }

// ByKind returns every element of kind, in id order.
func (cb *Codebase) ByKind(kind model.Kind) []model.Element {
	var out []model.Element
	for _, id := range cb.ids {
		if e := cb.elements[id]; e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

func allOf[T model.Element](cb *Codebase, kind model.Kind) []T {
	elems := cb.ByKind(kind)
	out := make([]T, 0, len(elems))
	for _, e := range elems {
		out = append(out, e.(T))
	}
	return out
}

func (cb *Codebase) AllClasses() []*model.ClassDefinition {
	return allOf[*model.ClassDefinition](cb, model.KindClass)
}

func (cb *Codebase) AllFunctions() []*model.FunctionDefinition {
	return allOf[*model.FunctionDefinition](cb, model.KindFunction)
}

func (cb *Codebase) AllVariables() []*model.VariableDeclaration {
	return allOf[*model.VariableDeclaration](cb, model.KindVariable)
}

func (cb *Codebase) AllImports() []*model.ImportStatement {
	return allOf[*model.ImportStatement](cb, model.KindImport)
}

// ImportsNamed returns the imports binding or importing name.
func (cb *Codebase) ImportsNamed(name string) []*model.ImportStatement {
	var out []*model.ImportStatement
	for _, imp := range cb.AllImports() {
		if imp.Name == name || imp.Alias == name || imp.LocalName() == name {
			out = append(out, imp)
		}
	}
	return out
}

// Bindings returns, for every element, its resolved targets joined into
// one comparable string. Comparing two snapshots finds elements whose
// resolution changed.
func (cb *Codebase) Bindings() map[string]string {
	out := make(map[string]string, len(cb.ids))
	for _, id := range cb.ids {
		targets := model.Targets(cb.elements[id])
		sort.Strings(targets)
		out[id] = strings.Join(targets, ",")
	}
	return out
}

// Stats summarizes the codebase and its dependency graph.
func (cb *Codebase) Stats() Stats {
	s := Stats{
		Files:       len(cb.paths),
		Elements:    len(cb.ids),
		References:  cb.deps.EdgeCount(ReferenceEdge),
		Inheritance: cb.deps.EdgeCount(InheritanceEdge),
		Membership:  cb.deps.EdgeCount(MembershipEdge),
		Cycles:      len(cb.deps.Cycles()),
	}
	for _, id := range cb.ids {
		for _, r := range cb.elements[id].Refs() {
			if !r.Resolved() {
				s.Unresolved++
			}
		}
	}
	return s
}
