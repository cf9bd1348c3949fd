package parser

import (
	"strings"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// resolver implements both resolution phases for languages whose
// references are dotted name chains.
type resolver struct {
	syntax *refSyntax
	// moduleOf maps an import's source to a module path. It reports false
	// for relative or otherwise unresolvable sources.
	moduleOf func(imp *model.ImportStatement) (string, bool)
}

// localSymbols maps every name visible at file scope to its element:
// import local names, declarations and "Class.member" names. Declarations
// shadow imports.
func localSymbols(f *model.FileModel) map[string]model.Element {
	table := make(map[string]model.Element)
	for _, imp := range f.Imports {
		if !imp.Wildcard() {
			table[imp.LocalName()] = imp
		}
	}
	for _, v := range f.Variables {
		table[v.Name] = v
	}
	for _, fn := range f.Functions {
		table[fn.Name] = fn
	}
	for _, c := range f.Classes {
		table[c.Name] = c
		for _, a := range c.Attributes {
			table[c.Name+"."+a.Name] = a
		}
		for _, m := range c.Methods {
			table[c.Name+"."+m.Name] = m
		}
	}
	return table
}

func (r *resolver) resolveIntra(f *model.FileModel) {
	if f.State == model.StateFailed {
		return
	}
	table := localSymbols(f)
	for _, owner := range f.ReferenceSlices() {
		for i := range owner.Refs {
			ref := &owner.Refs[i]
			if ref.UniqueID != "" {
				continue
			}
			if id, ok := r.bindLocal(table, ref.Name, owner.ClassName); ok {
				ref.UniqueID = id
				ref.Resolution = model.ResolvedLocal
			}
		}
	}
	f.State = model.StateIntraResolved
}

func (r *resolver) bindLocal(table map[string]model.Element, name, className string) (string, bool) {
	segs := strings.Split(name, ".")
	if r.syntax.isSelf(segs[0]) {
		if className == "" || len(segs) < 2 {
			return "", false
		}
		if e, ok := table[className+"."+segs[1]]; ok {
			return e.ID(), true
		}
		return "", false
	}
	for k := len(segs); k > 0; k-- {
		e, ok := table[strings.Join(segs[:k], ".")]
		if !ok {
			continue
		}
		// Member access through an import waits for the global table.
		if _, isImport := e.(*model.ImportStatement); isImport && k < len(segs) {
			return "", false
		}
		return e.ID(), true
	}
	return "", false
}

// resetGlobal clears every binding made by a previous inter-file pass.
func resetGlobal(f *model.FileModel) {
	for _, imp := range f.Imports {
		imp.DefinitionID = ""
	}
	for _, owner := range f.ReferenceSlices() {
		for i := range owner.Refs {
			if owner.Refs[i].Resolution == model.ResolvedGlobal {
				owner.Refs[i].UniqueID = ""
				owner.Refs[i].Resolution = model.Unresolved
			}
		}
	}
}

func (r *resolver) resolveInter(cb Codebase, files []*model.FileModel) {
	for _, f := range files {
		resetGlobal(f)
	}
	for _, f := range files {
		for _, imp := range f.Imports {
			imp.DefinitionID = r.resolveImport(cb, imp)
		}
	}
	for _, f := range files {
		if f.State == model.StateFailed {
			continue
		}
		r.resolveResidual(cb, f)
		f.State = model.StateFullyResolved
	}
}

func (r *resolver) resolveImport(cb Codebase, imp *model.ImportStatement) string {
	if imp.Name == "" || imp.Wildcard() {
		return ""
	}
	module, ok := r.moduleOf(imp)
	if !ok {
		return ""
	}
	return r.resolveExport(cb, module, imp.Name, map[string]bool{imp.UniqueID: true})
}

// resolveExport finds the declaration module exposes as name, following
// re-exporting imports and wildcard imports. seen guards against cycles.
func (r *resolver) resolveExport(cb Codebase, module, name string, seen map[string]bool) string {
	id, ok := cb.Lookup(module, name)
	if !ok {
		for _, w := range cb.Wildcards(module) {
			if seen[w.UniqueID] {
				continue
			}
			seen[w.UniqueID] = true
			src, ok := r.moduleOf(w)
			if !ok {
				continue
			}
			if id := r.resolveExport(cb, src, name, seen); id != "" {
				return id
			}
		}
		return ""
	}
	e, ok := cb.Element(id)
	if !ok {
		return ""
	}
	imp, isImport := e.(*model.ImportStatement)
	if !isImport {
		return id
	}
	if seen[id] || imp.Name == "" || imp.Wildcard() {
		return ""
	}
	seen[id] = true
	src, ok := r.moduleOf(imp)
	if !ok {
		return ""
	}
	return r.resolveExport(cb, src, imp.Name, seen)
}

func (r *resolver) resolveResidual(cb Codebase, f *model.FileModel) {
	imports := make(map[string]*model.ImportStatement)
	var wildcards []*model.ImportStatement
	for _, imp := range f.Imports {
		if imp.Wildcard() {
			wildcards = append(wildcards, imp)
			continue
		}
		imports[imp.LocalName()] = imp
	}
	importIDs := make(map[string]bool, len(f.Imports))
	for _, imp := range f.Imports {
		importIDs[imp.UniqueID] = true
	}
	for _, owner := range f.ReferenceSlices() {
		for i := range owner.Refs {
			ref := &owner.Refs[i]
			// Names bound to an import are rebound to what the import defines.
			if ref.UniqueID != "" && !importIDs[ref.UniqueID] {
				continue
			}
			if id := r.bindGlobal(cb, imports, wildcards, ref.Name); id != "" && id != ref.UniqueID {
				ref.UniqueID = id
				ref.Resolution = model.ResolvedGlobal
			}
		}
	}
}

func (r *resolver) bindGlobal(cb Codebase, imports map[string]*model.ImportStatement, wildcards []*model.ImportStatement, name string) string {
	segs := strings.Split(name, ".")
	if r.syntax.isSelf(segs[0]) {
		return ""
	}
	for k := len(segs); k > 0; k-- {
		imp, ok := imports[strings.Join(segs[:k], ".")]
		if !ok {
			continue
		}
		if k < len(segs) {
			if id := r.throughImport(cb, imp, segs[k:]); id != "" {
				return id
			}
		}
		if imp.DefinitionID != "" {
			return imp.DefinitionID
		}
		return imp.UniqueID
	}
	for _, w := range wildcards {
		module, ok := r.moduleOf(w)
		if !ok {
			continue
		}
		for k := min(2, len(segs)); k > 0; k-- {
			if id := r.resolveExport(cb, module, strings.Join(segs[:k], "."), map[string]bool{}); id != "" {
				return id
			}
		}
	}
	return ""
}

// throughImport resolves the member chain rest accessed through imp.
func (r *resolver) throughImport(cb Codebase, imp *model.ImportStatement, rest []string) string {
	if imp.DefinitionID != "" {
		member := imp.DefinitionID + "." + rest[0]
		if _, ok := cb.Element(member); ok {
			return member
		}
		return imp.DefinitionID
	}
	module, ok := r.moduleOf(imp)
	if !ok {
		return ""
	}
	// An unresolved named import may name a submodule.
	if imp.Name != "" {
		module = model.QualifiedID(module, imp.Name)
	}
	for i := len(rest) - 1; i >= 0; i-- {
		mod := model.QualifiedID(module, rest[:i]...)
		for j := min(len(rest), i+2); j > i; j-- {
			if id := r.resolveExport(cb, mod, strings.Join(rest[i:j], "."), map[string]bool{}); id != "" {
				return id
			}
		}
	}
	return ""
}
