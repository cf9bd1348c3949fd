package parser

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/util"
	ts "github.com/BrunoV21/CodeTide/pkg/treesitter"
)

var typescriptSyntax = &refSyntax{
	names:     set("identifier", "type_identifier", "shorthand_property_identifier"),
	chains:    set("member_expression", "nested_type_identifier"),
	members:   set("property_identifier", "type_identifier", "private_property_identifier"),
	selfNode:  "this",
	selfNames: []string{"this"},
	skip:      set("string", "comment", "regex"),
}

// TypeScriptParser extracts structure from .ts and .tsx sources.
type TypeScriptParser struct {
	resolver
	tsPool  *ts.Pool
	tsxPool *ts.Pool
}

// NewTypeScriptParser creates a TypeScript parser for both grammars.
func NewTypeScriptParser() (*TypeScriptParser, error) {
	tsPool, err := ts.NewPool(ts.TypeScript)
	if err != nil {
		return nil, err
	}
	tsxPool, err := ts.NewPool(ts.TSX)
	if err != nil {
		return nil, err
	}
	p := &TypeScriptParser{tsPool: tsPool, tsxPool: tsxPool}
	p.resolver = resolver{syntax: typescriptSyntax, moduleOf: typescriptModule}
	return p, nil
}

func (p *TypeScriptParser) Language() string     { return "typescript" }
func (p *TypeScriptParser) Extensions() []string { return []string{".ts", ".tsx"} }

func (p *TypeScriptParser) ImportStatementTemplate(imp *model.ImportStatement) string {
	switch {
	case imp.Wildcard():
		return fmt.Sprintf("export * from '%s'", imp.Source)
	case imp.Name == "" && imp.Alias != "":
		return fmt.Sprintf("import * as %s from '%s'", imp.Alias, imp.Source)
	case imp.Name == "":
		return fmt.Sprintf("import '%s'", imp.Source)
	case imp.Alias != "":
		return fmt.Sprintf("import { %s as %s } from '%s'", imp.Name, imp.Alias, imp.Source)
	default:
		return fmt.Sprintf("import { %s } from '%s'", imp.Name, imp.Source)
	}
}

// typescriptModule maps a non-relative specifier such as "src/utils/index"
// to the module path "src.utils".
func typescriptModule(imp *model.ImportStatement) (string, bool) {
	src := imp.Source
	if imp.Relative || src == "" || strings.HasPrefix(src, ".") || strings.HasPrefix(src, "/") {
		return "", false
	}
	for _, ext := range []string{".ts", ".tsx", ".js"} {
		src = strings.TrimSuffix(src, ext)
	}
	if path.Base(src) == "index" {
		src = path.Dir(src)
	}
	return strings.ReplaceAll(src, "/", "."), true
}

// ParseFile parses TypeScript source into a file model.
func (p *TypeScriptParser) ParseFile(ctx context.Context, relPath string, src []byte) (*model.FileModel, error) {
	f := model.NewFileModel(relPath, util.ModulePath(relPath, "index"), p.Language())
	pool := p.tsPool
	if strings.HasSuffix(strings.ToLower(relPath), ".tsx") {
		pool = p.tsxPool
	}
	tree, err := pool.Parse(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.State = model.StateFailed
		return f, &ParseError{Path: relPath, Message: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &tsWalker{p: p, f: f, src: src}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.topLevel(root.NamedChild(i), nil)
	}
	for _, id := range dedupe(f) {
		logging.Debug("dropped duplicate or shadowed element", "component", "parser", "id", id)
	}
	f.State = model.StateParsed
	if root.HasError() {
		return f, &ParseError{Path: relPath, Message: "syntax error"}
	}
	return f, nil
}

func (p *TypeScriptParser) ResolveIntraFileDependencies(f *model.FileModel) {
	p.resolveIntra(f)
}

func (p *TypeScriptParser) ResolveInterFilesDependencies(cb Codebase, files []*model.FileModel) {
	p.resolveInter(cb, files)
}

type tsWalker struct {
	p   *TypeScriptParser
	f   *model.FileModel
	src []byte
}

// topLevel handles one statement. outer is the export statement wrapping
// a declaration, used for its raw text.
func (w *tsWalker) topLevel(n, outer *sitter.Node) {
	if outer == nil {
		outer = n
	}
	switch n.Type() {
	case "import_statement":
		w.imports(n)
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			w.topLevel(decl, n)
			return
		}
		w.reexports(n)
	case "class_declaration", "abstract_class_declaration":
		if c := w.class(n, outer); validName(c.Name) {
			w.f.AddClass(c)
		}
	case "function_declaration", "generator_function_declaration":
		if fn := w.function(n, outer, nil); validName(fn.Name) {
			w.f.AddFunction(fn)
		}
	case "lexical_declaration", "variable_declaration":
		for _, v := range w.variables(n, outer) {
			w.f.AddVariable(v)
		}
	}
}

// validName rejects computed and string-literal member names, which
// cannot form a dotted id segment.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && r != '$' && r != '#' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	return strings.Trim(s, "'\"`")
}

func (w *tsWalker) addImport(n *sitter.Node, imp *model.ImportStatement) {
	imp.Relative = strings.HasPrefix(imp.Source, ".")
	imp.StartLine, imp.EndLine = lines(n)
	imp.Raw = w.p.ImportStatementTemplate(imp)
	w.f.AddImport(imp)
}

func (w *tsWalker) imports(n *sitter.Node) {
	source := unquote(text(n.ChildByFieldName("source"), w.src))
	if source == "" {
		return
	}
	var clause *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "import_clause" {
			clause = c
		}
	}
	if clause == nil {
		w.addImport(n, &model.ImportStatement{Source: source, ImportType: model.ImportNamespace})
		return
	}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			w.addImport(n, &model.ImportStatement{Source: source, Name: c.Content(w.src), ImportType: model.ImportPlain})
		case "namespace_import":
			var alias string
			if c.NamedChildCount() > 0 {
				alias = c.NamedChild(0).Content(w.src)
			}
			w.addImport(n, &model.ImportStatement{Source: source, Alias: alias, ImportType: model.ImportNamespace})
		case "named_imports":
			w.specifiers(n, c, source, "import_specifier")
		}
	}
}

// reexports handles `export { a as b } from 'm'` and `export * from 'm'`,
// which bind names in this module the way imports do.
func (w *tsWalker) reexports(n *sitter.Node) {
	source := unquote(text(n.ChildByFieldName("source"), w.src))
	if source == "" {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "export_clause":
			w.specifiers(n, c, source, "export_specifier")
			return
		case "namespace_export":
			if c.NamedChildCount() > 0 {
				w.addImport(n, &model.ImportStatement{Source: source, Alias: c.NamedChild(0).Content(w.src), ImportType: model.ImportNamespace})
			}
			return
		}
	}
	if hasToken(n, "*") {
		w.addImport(n, &model.ImportStatement{Source: source, Name: "*", ImportType: model.ImportNamespace})
	}
}

func (w *tsWalker) specifiers(stmt, list *sitter.Node, source, kind string) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		spec := list.NamedChild(i)
		if spec.Type() != kind {
			continue
		}
		imp := &model.ImportStatement{
			Source:     source,
			Name:       text(spec.ChildByFieldName("name"), w.src),
			Alias:      text(spec.ChildByFieldName("alias"), w.src),
			ImportType: model.ImportPlain,
		}
		if imp.Alias != "" {
			imp.ImportType = model.ImportAliased
		}
		if imp.Name != "" {
			w.addImport(stmt, imp)
		}
	}
}

func (w *tsWalker) class(n, outer *sitter.Node) *model.ClassDefinition {
	c := &model.ClassDefinition{Name: text(n.ChildByFieldName("name"), w.src)}
	c.Raw = content(outer, w.src)
	c.StartLine, c.EndLine = lines(outer)
	c.Decorators, _ = decorators(n, w.src)

	refs := newRefCollector(w.src, typescriptSyntax, nil)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		heritage := n.NamedChild(i)
		if heritage.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(heritage.NamedChildCount()); j++ {
			clause := heritage.NamedChild(j)
			for k := 0; k < int(clause.NamedChildCount()); k++ {
				base := clause.NamedChild(k)
				if base.Type() == "type_arguments" {
					continue
				}
				c.Bases = append(c.Bases, base.Content(w.src))
				refs.walk(base)
			}
		}
	}
	c.BasesReferences = refs.References()

	body := n.ChildByFieldName("body")
	if body == nil {
		return c
	}
	var pending []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "decorator":
			pending = append(pending, member)
		case "method_definition":
			fn := w.function(member, member, pending)
			if !validName(fn.Name) {
				pending = nil
				continue
			}
			fn.Modifiers = append(modifiers(member, w.src), fn.Modifiers...)
			c.Methods = append(c.Methods, &model.MethodDefinition{FunctionDefinition: *fn})
			pending = nil
		case "public_field_definition":
			if a := w.field(member, pending); a != nil {
				c.Attributes = append(c.Attributes, a)
			}
			pending = nil
		}
	}
	return c
}

// modifiers returns accessibility and keyword modifiers of a class member.
func modifiers(n *sitter.Node, src []byte) []string {
	var out []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "accessibility_modifier":
			out = append(out, c.Content(src))
		case "static", "readonly", "abstract", "get", "set", "override":
			out = append(out, c.Type())
		}
	}
	return out
}

func (w *tsWalker) field(n *sitter.Node, decos []*sitter.Node) *model.ClassAttribute {
	name := text(n.ChildByFieldName("name"), w.src)
	if !validName(name) {
		return nil
	}
	a := &model.ClassAttribute{VariableDeclaration: model.VariableDeclaration{Name: name}}
	a.Raw = content(n, w.src)
	a.StartLine, a.EndLine = lines(n)
	typ := n.ChildByFieldName("type")
	value := n.ChildByFieldName("value")
	a.TypeHint = typeText(typ, w.src)
	a.Value = text(value, w.src)
	a.Modifiers = modifiers(n, w.src)
	a.Visibility = model.Public
	for _, m := range a.Modifiers {
		switch m {
		case "private":
			a.Visibility = model.Private
		case "protected":
			a.Visibility = model.Protected
		}
	}
	if strings.HasPrefix(name, "#") {
		a.Visibility = model.Private
	}
	refs := newRefCollector(w.src, typescriptSyntax, nil)
	refs.walk(decos...)
	refs.walk(typ, value)
	a.References = refs.References()
	return a
}

func typeText(n *sitter.Node, src []byte) string {
	return strings.TrimSpace(strings.TrimPrefix(text(n, src), ":"))
}

func (w *tsWalker) function(n, outer *sitter.Node, decos []*sitter.Node) *model.FunctionDefinition {
	fn := &model.FunctionDefinition{Name: text(n.ChildByFieldName("name"), w.src)}
	fn.Raw = content(outer, w.src)
	fn.StartLine, fn.EndLine = lines(outer)
	for _, d := range decos {
		fn.Decorators = append(fn.Decorators, d.Content(w.src))
	}
	own, ownNodes := decorators(n, w.src)
	fn.Decorators = append(fn.Decorators, own...)
	if hasToken(n, "async") {
		fn.Modifiers = append(fn.Modifiers, "async")
	}

	params := n.ChildByFieldName("parameters")
	ignore := make(map[string]bool)
	if params != nil {
		fn.Signature.Parameters = w.parameters(params)
		for _, prm := range fn.Signature.Parameters {
			ignore[prm.Name] = true
		}
	}
	ret := n.ChildByFieldName("return_type")
	fn.Signature.ReturnType = typeText(ret, w.src)

	refs := newRefCollector(w.src, typescriptSyntax, ignore)
	refs.walk(decos...)
	refs.walk(ownNodes...)
	refs.walk(params, ret, n.ChildByFieldName("body"))
	fn.References = refs.References()
	return fn
}

func (w *tsWalker) parameters(n *sitter.Node) []model.Parameter {
	var out []model.Parameter
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "required_parameter" && child.Type() != "optional_parameter" {
			continue
		}
		prm := model.Parameter{
			Name:         text(child.ChildByFieldName("pattern"), w.src),
			TypeHint:     typeText(child.ChildByFieldName("type"), w.src),
			DefaultValue: text(child.ChildByFieldName("value"), w.src),
		}
		if prm.Name == "" || prm.Name == "this" {
			continue
		}
		if child.Type() == "optional_parameter" && prm.DefaultValue == "" {
			prm.DefaultValue = "undefined"
		}
		out = append(out, prm)
	}
	return out
}

func (w *tsWalker) variables(n, outer *sitter.Node) []*model.VariableDeclaration {
	var kind string
	if n.ChildCount() > 0 {
		kind = n.Child(0).Type()
	}
	var out []*model.VariableDeclaration
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		name := decl.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			continue
		}
		v := &model.VariableDeclaration{Name: name.Content(w.src)}
		v.Raw = content(outer, w.src)
		v.StartLine, v.EndLine = lines(outer)
		typ := decl.ChildByFieldName("type")
		value := decl.ChildByFieldName("value")
		v.TypeHint = typeText(typ, w.src)
		v.Value = text(value, w.src)
		switch kind {
		case "const", "let", "var":
			v.Modifiers = append(v.Modifiers, kind)
		}
		if outer.Type() == "export_statement" {
			v.Modifiers = append(v.Modifiers, "export")
		}
		refs := newRefCollector(w.src, typescriptSyntax, nil)
		refs.walk(typ, value)
		v.References = refs.References()
		out = append(out, v)
	}
	return out
}
