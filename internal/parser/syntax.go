package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// content returns the text of node, including the indentation that
// precedes it on its first line.
func content(node *sitter.Node, src []byte) string {
	start := int(node.StartByte())
	for start > 0 && src[start-1] != '\n' && src[start-1] != '\r' {
		if src[start-1] != ' ' && src[start-1] != '\t' {
			return node.Content(src)
		}
		start--
	}
	return string(src[start:node.EndByte()])
}

func text(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(src)
}

func lines(node *sitter.Node) (int, int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}

// hasToken reports whether node has a direct anonymous child of type tok.
func hasToken(node *sitter.Node, tok string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == tok {
			return true
		}
	}
	return false
}

// refSyntax describes how a grammar spells names and dotted chains.
type refSyntax struct {
	// names are node types holding a bare identifier.
	names map[string]bool
	// chains are member-access node types: first named child is the
	// object, last named child the member.
	chains map[string]bool
	// members are node types allowed as the member of a chain.
	members map[string]bool
	// selfNode is the node type of the receiver keyword, if it has one.
	selfNode string
	// selfNames are receiver spellings that only count inside a chain.
	selfNames []string
	// skip are node types never searched for references.
	skip map[string]bool
	// skipFields maps a node type to a child field that is not a reference.
	skipFields map[string]string
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

func (s *refSyntax) isSelf(name string) bool {
	for _, n := range s.selfNames {
		if n == name {
			return true
		}
	}
	return false
}

// refCollector gathers the distinct names used under a set of nodes in
// pre-order.
type refCollector struct {
	src    []byte
	syntax *refSyntax
	ignore map[string]bool
	seen   map[string]bool
	refs   []model.Reference
}

func newRefCollector(src []byte, syntax *refSyntax, ignore map[string]bool) *refCollector {
	return &refCollector{src: src, syntax: syntax, ignore: ignore, seen: make(map[string]bool)}
}

func (c *refCollector) add(name string) {
	first, _, dotted := strings.Cut(name, ".")
	if c.syntax.isSelf(first) {
		if !dotted {
			return
		}
	} else if c.ignore[first] {
		return
	}
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	c.refs = append(c.refs, model.Reference{Name: name})
}

func (c *refCollector) walk(nodes ...*sitter.Node) {
	for _, n := range nodes {
		c.visit(n)
	}
}

func (c *refCollector) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	t := n.Type()
	switch {
	case c.syntax.skip[t]:
		return
	case c.syntax.names[t]:
		c.add(n.Content(c.src))
		return
	case c.syntax.chains[t]:
		if name, ok := c.chain(n); ok {
			c.add(name)
			return
		}
		if n.NamedChildCount() > 0 {
			c.visit(n.NamedChild(0))
		}
		return
	}
	skipField := c.syntax.skipFields[t]
	for i := 0; i < int(n.ChildCount()); i++ {
		if skipField != "" && n.FieldNameForChild(i) == skipField {
			continue
		}
		c.visit(n.Child(i))
	}
}

// chain flattens a member-access expression made only of names into a
// dotted name such as "self.client.send".
func (c *refCollector) chain(n *sitter.Node) (string, bool) {
	t := n.Type()
	if c.syntax.names[t] || (c.syntax.selfNode != "" && t == c.syntax.selfNode) {
		return n.Content(c.src), true
	}
	count := int(n.NamedChildCount())
	if !c.syntax.chains[t] || count < 2 {
		return "", false
	}
	member := n.NamedChild(count - 1)
	if !c.syntax.members[member.Type()] {
		return "", false
	}
	base, ok := c.chain(n.NamedChild(0))
	if !ok {
		return "", false
	}
	return base + "." + member.Content(c.src), true
}

// References returns the collected references.
func (c *refCollector) References() []model.Reference {
	return c.refs
}

// dedupe drops later elements whose id repeats an earlier one, and imports
// shadowed by a declaration of the same file. It returns the dropped ids.
func dedupe(f *model.FileModel) []string {
	var dropped []string
	declared := make(map[string]bool)
	for _, e := range f.Declarations() {
		declared[e.ID()] = true
	}

	seenVar := make(map[string]bool)
	vars := f.Variables[:0]
	for _, v := range f.Variables {
		if seenVar[v.UniqueID] {
			dropped = append(dropped, v.UniqueID)
			continue
		}
		seenVar[v.UniqueID] = true
		vars = append(vars, v)
	}
	f.Variables = vars

	fns := f.Functions[:0]
	for _, fn := range f.Functions {
		if seenVar[fn.UniqueID] {
			dropped = append(dropped, fn.UniqueID)
			continue
		}
		seenVar[fn.UniqueID] = true
		fns = append(fns, fn)
	}
	f.Functions = fns

	classes := f.Classes[:0]
	for _, c := range f.Classes {
		if seenVar[c.UniqueID] {
			dropped = append(dropped, c.UniqueID)
			continue
		}
		seenVar[c.UniqueID] = true
		dropped = append(dropped, dedupeMembers(c)...)
		classes = append(classes, c)
	}
	f.Classes = classes

	seenImp := make(map[string]bool)
	imps := f.Imports[:0]
	for _, imp := range f.Imports {
		if declared[imp.UniqueID] || seenImp[imp.UniqueID] {
			dropped = append(dropped, imp.UniqueID)
			continue
		}
		seenImp[imp.UniqueID] = true
		imps = append(imps, imp)
	}
	f.Imports = imps
	return dropped
}

func dedupeMembers(c *model.ClassDefinition) []string {
	var dropped []string
	seen := make(map[string]bool)
	attrs := c.Attributes[:0]
	for _, a := range c.Attributes {
		if seen[a.UniqueID] {
			dropped = append(dropped, a.UniqueID)
			continue
		}
		seen[a.UniqueID] = true
		attrs = append(attrs, a)
	}
	c.Attributes = attrs
	methods := c.Methods[:0]
	for _, m := range c.Methods {
		if seen[m.UniqueID] {
			dropped = append(dropped, m.UniqueID)
			continue
		}
		seen[m.UniqueID] = true
		methods = append(methods, m)
	}
	c.Methods = methods
	return dropped
}
