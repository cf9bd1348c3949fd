package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoV21/CodeTide/internal/model"
)

const tsService = `import { Foo, Bar as Baz } from 'src/models';
import * as utils from 'src/utils';
import Default from 'lib/def';
import './side-effect';
export { helper } from 'src/helpers';
export * from 'src/all';

export const LIMIT: number = 5;

export class Service extends Foo implements Baz {
  private client: Client;
  static count = 0;

  constructor(client: Client) {
    this.client = client;
  }

  async fetch(id?: string): Promise<Foo> {
    return utils.get(this.client, LIMIT);
  }
}

function run(x: number): void {
  const s = new Service(x);
}
`

func mustTypeScript(t *testing.T) *TypeScriptParser {
	t.Helper()
	p, err := NewTypeScriptParser()
	require.NoError(t, err)
	return p
}

func parseTS(t *testing.T, p *TypeScriptParser, path, src string) *model.FileModel {
	t.Helper()
	f, err := p.ParseFile(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return f
}

func TestTypeScriptParseStructure(t *testing.T) {
	p := mustTypeScript(t)
	f := parseTS(t, p, "src/app.ts", tsService)
	assert.Equal(t, "src.app", f.ModulePath)

	require.Len(t, f.Imports, 7)
	assert.Equal(t, "src.app.Foo", f.Imports[0].UniqueID)
	assert.Equal(t, "import { Bar as Baz } from 'src/models'", f.Imports[1].Raw)
	assert.Equal(t, "src.app.Baz", f.Imports[1].UniqueID)
	assert.Equal(t, "utils", f.Imports[2].LocalName())
	assert.Equal(t, model.ImportNamespace, f.Imports[2].ImportType)
	assert.Equal(t, "Default", f.Imports[3].Name)
	assert.True(t, f.Imports[4].Relative)
	assert.Equal(t, "src.app.side-effect", f.Imports[4].UniqueID)
	assert.Equal(t, "helper", f.Imports[5].Name)
	assert.True(t, f.Imports[6].Wildcard())

	require.Len(t, f.Variables, 1)
	assert.Equal(t, "number", f.Variables[0].TypeHint)
	assert.Equal(t, []string{"const", "export"}, f.Variables[0].Modifiers)

	require.Len(t, f.Classes, 1)
	c := f.Classes[0]
	assert.Equal(t, "src.app.Service", c.UniqueID)
	assert.Equal(t, []string{"Foo", "Baz"}, c.Bases)
	assert.True(t, len(c.Raw) > 0 && c.Raw[:6] == "export")

	require.Len(t, c.Attributes, 2)
	assert.Equal(t, "client", c.Attributes[0].Name)
	assert.Equal(t, model.Private, c.Attributes[0].Visibility)
	assert.Equal(t, "Client", c.Attributes[0].TypeHint)
	assert.Contains(t, c.Attributes[1].Modifiers, "static")

	require.Len(t, c.Methods, 2)
	fetch := c.Methods[1]
	assert.Equal(t, "src.app.Service.fetch", fetch.UniqueID)
	assert.Contains(t, fetch.Modifiers, "async")
	require.Len(t, fetch.Signature.Parameters, 1)
	assert.True(t, fetch.Signature.Parameters[0].IsOptional())
	assert.Equal(t, "Promise<Foo>", fetch.Signature.ReturnType)
	names := refNames(fetch.References)
	assert.Contains(t, names, "utils.get")
	assert.Contains(t, names, "this.client")
	assert.Contains(t, names, "LIMIT")
	assert.NotContains(t, names, "id")

	require.Len(t, f.Functions, 1)
	assert.Contains(t, refNames(f.Functions[0].References), "Service")
}

func TestTypeScriptResolution(t *testing.T) {
	p := mustTypeScript(t)
	app := parseTS(t, p, "src/app.ts", tsService)
	models := parseTS(t, p, "src/models.ts", "export class Foo {}\nexport class Bar {}\n")
	utils := parseTS(t, p, "src/utils/index.ts", "export function get(a: any, b: number) { return a; }\n")
	assert.Equal(t, "src.utils", utils.ModulePath)

	files := []*model.FileModel{app, models, utils}
	for _, f := range files {
		p.ResolveIntraFileDependencies(f)
	}
	fetch := app.Classes[0].Methods[1]
	assert.Equal(t, "src.app.Service.client", findRef(t, fetch.References, "this.client").UniqueID)
	assert.Equal(t, "src.app.LIMIT", findRef(t, fetch.References, "LIMIT").UniqueID)

	p.ResolveInterFilesDependencies(newFakeCodebase(files...), files)
	assert.Equal(t, "src.models.Foo", app.Imports[0].DefinitionID)
	assert.Equal(t, "src.models.Bar", app.Imports[1].DefinitionID)
	assert.Empty(t, app.Imports[4].DefinitionID, "relative imports stay unresolved")
	assert.Equal(t, "src.utils.get", findRef(t, fetch.References, "utils.get").UniqueID)
	assert.Equal(t, "src.models.Bar", findRef(t, app.Classes[0].BasesReferences, "Baz").UniqueID)
}

func TestTypeScriptTSXGrammar(t *testing.T) {
	p := mustTypeScript(t)
	f := parseTS(t, p, "ui/components/index.tsx", "export function App() { return <div>{title}</div>; }\n")
	assert.Equal(t, "ui.components", f.ModulePath)
	assert.Equal(t, []string{"ui.components.App"}, f.IDs())
}
