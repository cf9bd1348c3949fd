package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// fakeCodebase builds the global symbol table the way the graph does.
type fakeCodebase struct {
	table map[string]map[string]string
	elems map[string]model.Element
	wild  map[string][]*model.ImportStatement
}

func newFakeCodebase(files ...*model.FileModel) *fakeCodebase {
	cb := &fakeCodebase{
		table: make(map[string]map[string]string),
		elems: make(map[string]model.Element),
		wild:  make(map[string][]*model.ImportStatement),
	}
	for _, f := range files {
		names := make(map[string]string)
		cb.table[f.ModulePath] = names
		for _, imp := range f.Imports {
			cb.elems[imp.UniqueID] = imp
			if imp.Wildcard() {
				cb.wild[f.ModulePath] = append(cb.wild[f.ModulePath], imp)
				continue
			}
			names[imp.LocalName()] = imp.UniqueID
		}
		for _, v := range f.Variables {
			names[v.Name] = v.UniqueID
		}
		for _, fn := range f.Functions {
			names[fn.Name] = fn.UniqueID
		}
		for _, c := range f.Classes {
			names[c.Name] = c.UniqueID
			for _, m := range c.Members() {
				names[c.Name+"."+model.LastSegment(m.ID())] = m.ID()
			}
		}
		for _, e := range f.Declarations() {
			cb.elems[e.ID()] = e
		}
	}
	return cb
}

func (cb *fakeCodebase) Lookup(module, name string) (string, bool) {
	id, ok := cb.table[module][name]
	return id, ok
}

func (cb *fakeCodebase) Element(id string) (model.Element, bool) {
	e, ok := cb.elems[id]
	return e, ok
}

func (cb *fakeCodebase) Wildcards(module string) []*model.ImportStatement {
	return cb.wild[module]
}

func mustPython(t *testing.T) *PythonParser {
	t.Helper()
	p, err := NewPythonParser()
	require.NoError(t, err)
	return p
}

func parsePy(t *testing.T, p *PythonParser, path, src string) *model.FileModel {
	t.Helper()
	f, err := p.ParseFile(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return f
}

func refNames(refs []model.Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

func findRef(t *testing.T, refs []model.Reference, name string) model.Reference {
	t.Helper()
	for _, r := range refs {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("reference %q not found in %v", name, refNames(refs))
	return model.Reference{}
}

func TestRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "typescript"}, reg.Languages())
	assert.Equal(t, []string{".py", ".ts", ".tsx"}, reg.Extensions())

	p, ok := reg.ForPath("pkg/mod.PY")
	require.True(t, ok)
	assert.Equal(t, "python", p.Language())

	_, ok = reg.ForPath("README.md")
	assert.False(t, ok, "unmapped extensions are ignored")

	only := reg.Restrict([]string{"typescript"})
	assert.Equal(t, []string{"typescript"}, only.Languages())
	_, ok = only.ForPath("a.py")
	assert.False(t, ok)
}

func TestReadAndParse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "mod.py"), []byte("X = 1\n"), 0o644))

	p := mustPython(t)
	f, err := ReadAndParse(context.Background(), p, dir, "pkg/mod.py", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "X = 1\n", f.Raw)
	assert.Equal(t, "pkg.mod", f.ModulePath)
	assert.Equal(t, []string{"pkg.mod.X"}, f.IDs())

	_, err = ReadAndParse(context.Background(), p, dir, "pkg/missing.py", "utf-8")
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "pkg/missing.py", ioErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
