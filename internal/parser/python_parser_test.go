package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoV21/CodeTide/internal/model"
)

const pythonService = `import os
import numpy as np
from typing import List, Optional
from .sibling import helper
from pkg.base import *

MAX_SIZE: int = 10
registry = {}

@dataclass
class Service(Base, metaclass=Meta):
    _port: int = 8080
    __secret = "x"

    def __init__(self, name: str, retries=3):
        self.name = name
        self.start()

    @property
    def start(self) -> Optional[str]:
        return helper(MAX_SIZE)

    async def stop(self):
        await self.start()

def run(items: List[str], *args, **kwargs) -> None:
    svc = Service("a")
    os.path.join("a", "b")
    np.array(items, dtype=int)
`

func TestPythonParseStructure(t *testing.T) {
	p := mustPython(t)
	f := parsePy(t, p, "pkg/mod.py", pythonService)

	assert.Equal(t, "pkg.mod", f.ModulePath)
	assert.Equal(t, model.StateParsed, f.State)

	require.Len(t, f.Imports, 6)
	assert.Equal(t, "pkg.mod.os", f.Imports[0].UniqueID)
	assert.Equal(t, model.ImportNamespace, f.Imports[0].ImportType)
	assert.Equal(t, "numpy", f.Imports[1].Source)
	assert.Equal(t, "np", f.Imports[1].Alias)
	assert.Equal(t, "import numpy as np", f.Imports[1].Raw)
	assert.Equal(t, "from typing import Optional", f.Imports[3].Raw)
	assert.True(t, f.Imports[4].Relative)
	assert.Equal(t, "pkg.mod.helper", f.Imports[4].UniqueID)
	assert.True(t, f.Imports[5].Wildcard())
	assert.Equal(t, "pkg.mod.pkg.base.*", f.Imports[5].UniqueID)

	require.Len(t, f.Variables, 2)
	assert.Equal(t, "MAX_SIZE", f.Variables[0].Name)
	assert.Equal(t, "int", f.Variables[0].TypeHint)
	assert.Equal(t, "10", f.Variables[0].Value)
	assert.Equal(t, []string{"constant"}, f.Variables[0].Modifiers)

	require.Len(t, f.Classes, 1)
	c := f.Classes[0]
	assert.Equal(t, "pkg.mod.Service", c.UniqueID)
	assert.Equal(t, []string{"Base"}, c.Bases)
	assert.Equal(t, []string{"@dataclass"}, c.Decorators)
	assert.Equal(t, "class Service(Base, metaclass=Meta):", c.Header())
	assert.Equal(t, 10, c.StartLine)

	require.Len(t, c.Attributes, 2)
	assert.Equal(t, "pkg.mod.Service._port", c.Attributes[0].UniqueID)
	assert.Equal(t, model.Protected, c.Attributes[0].Visibility)
	assert.Equal(t, model.Private, c.Attributes[1].Visibility)

	require.Len(t, c.Methods, 3)
	ctor := c.Methods[0]
	assert.Equal(t, "pkg.mod.Service.__init__", ctor.UniqueID)
	assert.Equal(t, "pkg.mod.Service", ctor.ClassID)
	require.Len(t, ctor.Signature.Parameters, 3)
	assert.Equal(t, "str", ctor.Signature.Parameters[1].TypeHint)
	assert.True(t, ctor.Signature.Parameters[2].IsOptional())
	assert.Equal(t, []string{"str", "self.name", "self.start"}, refNames(ctor.References))

	start := c.Methods[1]
	assert.Contains(t, start.Modifiers, "property")
	assert.Contains(t, start.Raw, "    @property\n    def start")
	assert.Contains(t, refNames(start.References), "helper")
	assert.Contains(t, refNames(start.References), "MAX_SIZE")
	assert.Equal(t, []string{"async"}, c.Methods[2].Modifiers)

	require.Len(t, f.Functions, 1)
	run := f.Functions[0]
	assert.Equal(t, "None", run.Signature.ReturnType)
	names := refNames(run.References)
	assert.Contains(t, names, "Service")
	assert.Contains(t, names, "os.path.join")
	assert.Contains(t, names, "np.array")
	assert.NotContains(t, names, "items", "parameters are not references")
	assert.NotContains(t, names, "args")
	assert.NotContains(t, names, "dtype", "keyword argument names are not references")
}

func TestPythonIntraFileResolution(t *testing.T) {
	p := mustPython(t)
	f := parsePy(t, p, "pkg/mod.py", pythonService)
	p.ResolveIntraFileDependencies(f)
	assert.Equal(t, model.StateIntraResolved, f.State)

	ctor := f.Classes[0].Methods[0]
	assert.Equal(t, "pkg.mod.Service.start", findRef(t, ctor.References, "self.start").UniqueID)
	assert.Empty(t, findRef(t, ctor.References, "self.name").UniqueID)

	start := f.Classes[0].Methods[1]
	assert.Equal(t, "pkg.mod.MAX_SIZE", findRef(t, start.References, "MAX_SIZE").UniqueID)
	helper := findRef(t, start.References, "helper")
	assert.Equal(t, "pkg.mod.helper", helper.UniqueID)
	assert.Equal(t, model.ResolvedLocal, helper.Resolution)

	run := f.Functions[0]
	assert.Equal(t, "pkg.mod.Service", findRef(t, run.References, "Service").UniqueID)
	assert.Empty(t, findRef(t, run.References, "os.path.join").UniqueID, "member access through an import is deferred")
}

func TestPythonSyntaxErrorYieldsPartialModel(t *testing.T) {
	p := mustPython(t)
	f, err := p.ParseFile(context.Background(), "broken.py", []byte("def ok():\n    pass\n\ndef broken(:\n"))
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.py", perr.Path)
	require.NotNil(t, f)
	assert.Equal(t, model.StateParsed, f.State)
	assert.Contains(t, f.IDs(), "broken.ok")
}

func TestPythonInitFileModulePath(t *testing.T) {
	p := mustPython(t)
	f := parsePy(t, p, "pkg/__init__.py", "from pkg.core import run\n")
	assert.Equal(t, "pkg", f.ModulePath)
	assert.Equal(t, []string{"pkg.run"}, f.IDs())
}

func TestPythonNestedImports(t *testing.T) {
	p := mustPython(t)
	f := parsePy(t, p, "compat.py", "try:\n    import ujson as json\nexcept ImportError:\n    import json\n")
	require.Len(t, f.Imports, 1, "the second binding of json is a duplicate id")
	assert.Equal(t, "ujson", f.Imports[0].Source)
}

func TestImportShadowedByDeclaration(t *testing.T) {
	p := mustPython(t)
	f := parsePy(t, p, "m.py", "from a import foo\n\ndef foo():\n    pass\n")
	assert.Empty(t, f.Imports)
	assert.Equal(t, []string{"m.foo"}, f.IDs())
}

func parseAll(t *testing.T, p *PythonParser, sources map[string]string) map[string]*model.FileModel {
	t.Helper()
	files := make(map[string]*model.FileModel, len(sources))
	for path, src := range sources {
		f := parsePy(t, p, path, src)
		p.ResolveIntraFileDependencies(f)
		files[path] = f
	}
	return files
}

func resolveAll(p *PythonParser, files map[string]*model.FileModel) {
	list := make([]*model.FileModel, 0, len(files))
	for _, f := range files {
		list = append(list, f)
	}
	p.ResolveInterFilesDependencies(newFakeCodebase(list...), list)
}

func TestCrossFileResolution(t *testing.T) {
	p := mustPython(t)
	files := parseAll(t, p, map[string]string{
		"a.py": "def foo():\n    return 1\n\nclass Base:\n    def hello(self):\n        pass\n",
		"b.py": "from a import foo, Base as B\nimport a\n\ndef bar():\n    return foo()\n\nclass Child(B):\n    def run(self):\n        a.Base.hello(self)\n",
	})
	resolveAll(p, files)

	b := files["b.py"]
	assert.Equal(t, model.StateFullyResolved, b.State)
	assert.Equal(t, "a.foo", b.Imports[0].DefinitionID)
	assert.Equal(t, "a.Base", b.Imports[1].DefinitionID)
	assert.Empty(t, b.Imports[2].DefinitionID, "module imports have no definition element")

	foo := findRef(t, b.Functions[0].References, "foo")
	assert.Equal(t, "a.foo", foo.UniqueID)
	assert.Equal(t, model.ResolvedGlobal, foo.Resolution)

	assert.Equal(t, "a.Base", findRef(t, b.Classes[0].BasesReferences, "B").UniqueID)
	assert.Equal(t, "a.Base.hello", findRef(t, b.Classes[0].Methods[0].References, "a.Base.hello").UniqueID)
}

func TestReExportChainAndCycle(t *testing.T) {
	p := mustPython(t)
	files := parseAll(t, p, map[string]string{
		"a.py":            "def foo():\n    pass\n",
		"pkg/__init__.py": "from a import foo\n",
		"user.py":         "from pkg import foo\n",
		"x.py":            "from y import z\n",
		"y.py":            "from x import z\n",
	})
	resolveAll(p, files)

	assert.Equal(t, "a.foo", files["user.py"].Imports[0].DefinitionID)
	assert.Empty(t, files["x.py"].Imports[0].DefinitionID)
	assert.Empty(t, files["y.py"].Imports[0].DefinitionID)
}

func TestWildcardAndRelativeImports(t *testing.T) {
	p := mustPython(t)
	files := parseAll(t, p, map[string]string{
		"a.py":     "def foo():\n    pass\n",
		"star.py":  "from a import *\n\ndef use():\n    return foo()\n",
		"pkg/r.py": "from .a import foo\n\ndef use():\n    return foo()\n",
	})
	resolveAll(p, files)

	assert.Equal(t, "a.foo", findRef(t, files["star.py"].Functions[0].References, "foo").UniqueID)

	rel := files["pkg/r.py"]
	assert.Empty(t, rel.Imports[0].DefinitionID, "relative imports stay unresolved")
	assert.Equal(t, "pkg.r.foo", findRef(t, rel.Functions[0].References, "foo").UniqueID)
}

func TestInterFileResolutionIsRepeatable(t *testing.T) {
	p := mustPython(t)
	files := parseAll(t, p, map[string]string{
		"a.py": "def foo():\n    pass\n",
		"b.py": "from a import foo\n\ndef bar():\n    return foo()\n",
	})
	resolveAll(p, files)
	resolveAll(p, files)
	assert.Equal(t, "a.foo", findRef(t, files["b.py"].Functions[0].References, "foo").UniqueID)

	// Removing the definition leaves the import bound to nothing global.
	delete(files, "a.py")
	resolveAll(p, files)
	b := files["b.py"]
	assert.Empty(t, b.Imports[0].DefinitionID)
	assert.Equal(t, "b.foo", findRef(t, b.Functions[0].References, "foo").UniqueID)
}

func TestCancelledParseIsNotAFileFailure(t *testing.T) {
	p := mustPython(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, err := p.ParseFile(ctx, "svc.py", []byte(pythonService))
	assert.Nil(t, f)
	require.ErrorIs(t, err, context.Canceled)
	var perr *ParseError
	assert.False(t, errors.As(err, &perr))

	f = parsePy(t, p, "svc.py", pythonService)
	assert.Equal(t, model.StateParsed, f.State)
}
