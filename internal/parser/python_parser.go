package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/util"
	ts "github.com/BrunoV21/CodeTide/pkg/treesitter"
)

var pythonSyntax = &refSyntax{
	names:      set("identifier"),
	chains:     set("attribute"),
	members:    set("identifier"),
	selfNames:  []string{"self", "cls"},
	skip:       set("string", "comment", "concatenated_string"),
	skipFields: map[string]string{"keyword_argument": "name"},
}

// PythonParser extracts structure from Python sources.
type PythonParser struct {
	resolver
	pool *ts.Pool
}

// NewPythonParser creates a Python parser backed by a pooled grammar.
func NewPythonParser() (*PythonParser, error) {
	pool, err := ts.NewPool(ts.Python)
	if err != nil {
		return nil, err
	}
	p := &PythonParser{pool: pool}
	p.resolver = resolver{syntax: pythonSyntax, moduleOf: pythonModule}
	return p, nil
}

func (p *PythonParser) Language() string     { return "python" }
func (p *PythonParser) Extensions() []string { return []string{".py"} }

func (p *PythonParser) ImportStatementTemplate(imp *model.ImportStatement) string {
	switch {
	case imp.Name == "" && imp.Alias != "":
		return fmt.Sprintf("import %s as %s", imp.Source, imp.Alias)
	case imp.Name == "":
		return "import " + imp.Source
	case imp.Alias != "":
		return fmt.Sprintf("from %s import %s as %s", imp.Source, imp.Name, imp.Alias)
	default:
		return fmt.Sprintf("from %s import %s", imp.Source, imp.Name)
	}
}

func pythonModule(imp *model.ImportStatement) (string, bool) {
	if imp.Relative || strings.HasPrefix(imp.Source, ".") || imp.Source == "" {
		return "", false
	}
	return imp.Source, true
}

// ParseFile parses Python source into a file model.
func (p *PythonParser) ParseFile(ctx context.Context, relPath string, src []byte) (*model.FileModel, error) {
	f := model.NewFileModel(relPath, util.ModulePath(relPath, "__init__"), p.Language())
	tree, err := p.pool.Parse(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.State = model.StateFailed
		return f, &ParseError{Path: relPath, Message: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &pythonWalker{p: p, f: f, src: src}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.topLevel(root.NamedChild(i))
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

func (p *PythonParser) ResolveIntraFileDependencies(f *model.FileModel) {
	p.resolveIntra(f)
}

func (p *PythonParser) ResolveInterFilesDependencies(cb Codebase, files []*model.FileModel) {
	p.resolveInter(cb, files)
}

type pythonWalker struct {
	p   *PythonParser
	f   *model.FileModel
	src []byte
}

func (w *pythonWalker) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "import_statement", "import_from_statement":
		w.imports(n)
	case "class_definition":
		w.f.AddClass(w.class(n, n))
	case "function_definition":
		w.f.AddFunction(w.function(n, n, ""))
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return
		}
		switch def.Type() {
		case "class_definition":
			w.f.AddClass(w.class(n, def))
		case "function_definition":
			w.f.AddFunction(w.function(n, def, ""))
		}
	case "expression_statement":
		if v := w.assignment(n, ""); v != nil {
			w.f.AddVariable(v)
		}
	case "try_statement", "if_statement":
		w.nestedImports(n)
	}
}

// nestedImports picks up imports guarded by try/except or if blocks.
func (w *pythonWalker) nestedImports(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "import_statement", "import_from_statement":
			w.imports(child)
		case "block", "except_clause", "else_clause", "elif_clause", "finally_clause", "try_statement", "if_statement":
			w.nestedImports(child)
		}
	}
}

func (w *pythonWalker) addImport(n *sitter.Node, imp *model.ImportStatement) {
	imp.StartLine, imp.EndLine = lines(n)
	imp.Raw = w.p.ImportStatementTemplate(imp)
	w.f.AddImport(imp)
}

func (w *pythonWalker) imports(n *sitter.Node) {
	if n.Type() == "import_statement" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				w.addImport(n, &model.ImportStatement{Source: text(child, w.src), ImportType: model.ImportNamespace})
			case "aliased_import":
				w.addImport(n, &model.ImportStatement{
					Source:     text(child.ChildByFieldName("name"), w.src),
					Alias:      text(child.ChildByFieldName("alias"), w.src),
					ImportType: model.ImportAliased,
				})
			}
		}
		return
	}

	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	source := text(moduleNode, w.src)
	relative := moduleNode.Type() == "relative_import"
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "wildcard_import" {
			w.addImport(n, &model.ImportStatement{Source: source, Name: "*", ImportType: model.ImportNamespace, Relative: relative})
			continue
		}
		if n.FieldNameForChild(i) != "name" {
			continue
		}
		imp := &model.ImportStatement{Source: source, Relative: relative, ImportType: model.ImportPlain}
		if child.Type() == "aliased_import" {
			imp.Name = text(child.ChildByFieldName("name"), w.src)
			imp.Alias = text(child.ChildByFieldName("alias"), w.src)
			imp.ImportType = model.ImportAliased
		} else {
			imp.Name = text(child, w.src)
		}
		w.addImport(n, imp)
	}
}

func decorators(outer *sitter.Node, src []byte) ([]string, []*sitter.Node) {
	var texts []string
	var nodes []*sitter.Node
	for i := 0; i < int(outer.NamedChildCount()); i++ {
		child := outer.NamedChild(i)
		if child.Type() == "decorator" {
			texts = append(texts, child.Content(src))
			nodes = append(nodes, child)
		}
	}
	return texts, nodes
}

func (w *pythonWalker) class(outer, def *sitter.Node) *model.ClassDefinition {
	c := &model.ClassDefinition{Name: text(def.ChildByFieldName("name"), w.src)}
	c.Raw = content(outer, w.src)
	c.StartLine, c.EndLine = lines(outer)
	c.Decorators, _ = decorators(outer, w.src)

	if supers := def.ChildByFieldName("superclasses"); supers != nil {
		refs := newRefCollector(w.src, pythonSyntax, nil)
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			base := supers.NamedChild(i)
			if base.Type() != "identifier" && base.Type() != "attribute" {
				continue
			}
			c.Bases = append(c.Bases, base.Content(w.src))
			refs.walk(base)
		}
		c.BasesReferences = refs.References()
	}

	body := def.ChildByFieldName("body")
	if body == nil {
		return c
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			c.Methods = append(c.Methods, &model.MethodDefinition{FunctionDefinition: *w.function(child, child, c.Name)})
		case "decorated_definition":
			if fn := child.ChildByFieldName("definition"); fn != nil && fn.Type() == "function_definition" {
				c.Methods = append(c.Methods, &model.MethodDefinition{FunctionDefinition: *w.function(child, fn, c.Name)})
			}
		case "expression_statement":
			if v := w.assignment(child, c.Name); v != nil {
				c.Attributes = append(c.Attributes, &model.ClassAttribute{
					VariableDeclaration: *v,
					Visibility:          model.VisibilityOf(v.Name),
				})
			}
		}
	}
	return c
}

func (w *pythonWalker) function(outer, def *sitter.Node, className string) *model.FunctionDefinition {
	fn := &model.FunctionDefinition{Name: text(def.ChildByFieldName("name"), w.src)}
	fn.Raw = content(outer, w.src)
	fn.StartLine, fn.EndLine = lines(outer)
	var decoNodes []*sitter.Node
	fn.Decorators, decoNodes = decorators(outer, w.src)
	if hasToken(def, "async") {
		fn.Modifiers = append(fn.Modifiers, "async")
	}
	for _, d := range fn.Decorators {
		switch d {
		case "@staticmethod", "@classmethod", "@property", "@abstractmethod":
			if className != "" {
				fn.Modifiers = append(fn.Modifiers, strings.TrimPrefix(d, "@"))
			}
		}
	}

	params := def.ChildByFieldName("parameters")
	ignore := make(map[string]bool)
	if params != nil {
		fn.Signature.Parameters = w.parameters(params)
		for _, prm := range fn.Signature.Parameters {
			ignore[strings.TrimLeft(prm.Name, "*")] = true
		}
	}
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		fn.Signature.ReturnType = ret.Content(w.src)
	}

	refs := newRefCollector(w.src, pythonSyntax, ignore)
	refs.walk(decoNodes...)
	refs.walk(params, def.ChildByFieldName("return_type"), def.ChildByFieldName("body"))
	fn.References = refs.References()
	return fn
}

func (w *pythonWalker) parameters(n *sitter.Node) []model.Parameter {
	var out []model.Parameter
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		var prm model.Parameter
		switch child.Type() {
		case "identifier":
			prm.Name = child.Content(w.src)
		case "typed_parameter":
			if child.NamedChildCount() > 0 {
				prm.Name = child.NamedChild(0).Content(w.src)
			}
			prm.TypeHint = text(child.ChildByFieldName("type"), w.src)
		case "default_parameter", "typed_default_parameter":
			prm.Name = text(child.ChildByFieldName("name"), w.src)
			prm.TypeHint = text(child.ChildByFieldName("type"), w.src)
			prm.DefaultValue = text(child.ChildByFieldName("value"), w.src)
		case "list_splat_pattern", "dictionary_splat_pattern":
			prm.Name = child.Content(w.src)
		default:
			continue
		}
		if prm.Name != "" {
			out = append(out, prm)
		}
	}
	return out
}

// assignment extracts `name[: type] = value` from an expression statement.
func (w *pythonWalker) assignment(stmt *sitter.Node, className string) *model.VariableDeclaration {
	if stmt.NamedChildCount() == 0 {
		return nil
	}
	a := stmt.NamedChild(0)
	if a.Type() != "assignment" {
		return nil
	}
	left := a.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return nil
	}
	v := &model.VariableDeclaration{Name: left.Content(w.src)}
	v.Raw = content(stmt, w.src)
	v.StartLine, v.EndLine = lines(stmt)
	typ := a.ChildByFieldName("type")
	right := a.ChildByFieldName("right")
	v.TypeHint = text(typ, w.src)
	v.Value = text(right, w.src)
	if className == "" && isConstantName(v.Name) {
		v.Modifiers = append(v.Modifiers, "constant")
	}

	refs := newRefCollector(w.src, pythonSyntax, nil)
	refs.walk(typ, right)
	v.References = refs.References()
	return v
}

func isConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
