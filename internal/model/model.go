// Package model defines the structural elements of a parsed codebase.
package model

import "strings"

// Kind identifies the concrete type of a code element.
type Kind string

const (
	KindImport    Kind = "import"
	KindVariable  Kind = "variable"
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindAttribute Kind = "attribute"
	KindMethod    Kind = "method"
)

// ImportType describes how an import binds names into a file.
type ImportType string

const (
	ImportPlain     ImportType = "plain"     // from m import x
	ImportAliased   ImportType = "aliased"   // from m import x as y, import m as y
	ImportNamespace ImportType = "namespace" // import m, from m import *
)

// Resolution records which resolution phase bound a reference.
type Resolution string

const (
	Unresolved     Resolution = ""
	ResolvedLocal  Resolution = "local"
	ResolvedGlobal Resolution = "global"
)

// Visibility of a class attribute, derived from its name.
type Visibility string

const (
	Public    Visibility = "public"
	Protected Visibility = "protected"
	Private   Visibility = "private"
)

// Element is the capability set shared by every code element.
type Element interface {
	ID() string
	Kind() Kind
	File() string
	Text() string
	// Refs returns the outgoing references owned by the element itself.
	Refs() []Reference
}

// Reference is a name used inside an element, optionally bound to the id
// of the element it denotes. An empty UniqueID means unresolved.
type Reference struct {
	Name       string     `json:"name"`
	UniqueID   string     `json:"unique_id,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// Resolved reports whether the reference is bound.
func (r Reference) Resolved() bool { return r.UniqueID != "" }

// CodeElement holds the fields common to all element kinds.
type CodeElement struct {
	UniqueID  string `json:"unique_id"`
	FilePath  string `json:"file_path"`
	Raw       string `json:"raw"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (c *CodeElement) ID() string   { return c.UniqueID }
func (c *CodeElement) File() string { return c.FilePath }
func (c *CodeElement) Text() string { return c.Raw }

// ImportStatement is a single imported name (or module) bound in a file.
type ImportStatement struct {
	CodeElement
	Source       string     `json:"source"`
	Name         string     `json:"name,omitempty"`
	Alias        string     `json:"alias,omitempty"`
	ImportType   ImportType `json:"import_type"`
	Relative     bool       `json:"relative,omitempty"`
	DefinitionID string     `json:"definition_id,omitempty"`
}

func (i *ImportStatement) Kind() Kind        { return KindImport }
func (i *ImportStatement) Refs() []Reference { return nil }

// LocalName is the name the import binds in the importing file.
func (i *ImportStatement) LocalName() string {
	switch {
	case i.Alias != "":
		return i.Alias
	case i.Name != "":
		return i.Name
	default:
		return i.Source
	}
}

// Wildcard reports whether this is a `from m import *` style import.
func (i *ImportStatement) Wildcard() bool { return i.Name == "*" }

// VariableDeclaration is a module-level variable.
type VariableDeclaration struct {
	CodeElement
	Name       string      `json:"name"`
	TypeHint   string      `json:"type_hint,omitempty"`
	Value      string      `json:"value,omitempty"`
	Modifiers  []string    `json:"modifiers,omitempty"`
	References []Reference `json:"references,omitempty"`
}

func (v *VariableDeclaration) Kind() Kind        { return KindVariable }
func (v *VariableDeclaration) Refs() []Reference { return v.References }

// Parameter is one function parameter.
type Parameter struct {
	Name         string `json:"name"`
	TypeHint     string `json:"type_hint,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
}

// IsOptional reports whether the parameter has a default value.
func (p Parameter) IsOptional() bool { return p.DefaultValue != "" }

// FunctionSignature lists parameters in declaration order.
type FunctionSignature struct {
	Parameters []Parameter `json:"parameters,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`
}

// FunctionDefinition is a top-level function.
type FunctionDefinition struct {
	CodeElement
	Name       string            `json:"name"`
	Signature  FunctionSignature `json:"signature"`
	Decorators []string          `json:"decorators,omitempty"`
	Modifiers  []string          `json:"modifiers,omitempty"`
	References []Reference       `json:"references,omitempty"`
}

func (f *FunctionDefinition) Kind() Kind        { return KindFunction }
func (f *FunctionDefinition) Refs() []Reference { return f.References }

// MethodDefinition is a function owned by a class.
type MethodDefinition struct {
	FunctionDefinition
	ClassID string `json:"class_id"`
}

func (m *MethodDefinition) Kind() Kind { return KindMethod }

// ClassAttribute is a variable declared in a class body.
type ClassAttribute struct {
	VariableDeclaration
	ClassID    string     `json:"class_id"`
	Visibility Visibility `json:"visibility"`
}

func (a *ClassAttribute) Kind() Kind { return KindAttribute }

// ClassDefinition is a class with its members.
type ClassDefinition struct {
	CodeElement
	Name            string              `json:"name"`
	Bases           []string            `json:"bases,omitempty"`
	BasesReferences []Reference         `json:"bases_references,omitempty"`
	Decorators      []string            `json:"decorators,omitempty"`
	Attributes      []*ClassAttribute   `json:"attributes,omitempty"`
	Methods         []*MethodDefinition `json:"methods,omitempty"`
}

func (c *ClassDefinition) Kind() Kind        { return KindClass }
func (c *ClassDefinition) Refs() []Reference { return c.BasesReferences }

// Members returns attributes followed by methods.
func (c *ClassDefinition) Members() []Element {
	out := make([]Element, 0, len(c.Attributes)+len(c.Methods))
	for _, a := range c.Attributes {
		out = append(out, a)
	}
	for _, m := range c.Methods {
		out = append(out, m)
	}
	return out
}

// Header returns the declaration line of the class source, skipping
// decorator lines.
func (c *ClassDefinition) Header() string {
	for _, line := range strings.Split(c.Raw, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "@") {
			return line
		}
	}
	return firstLine(c.Raw)
}

// VisibilityOf derives visibility from underscore naming.
func VisibilityOf(name string) Visibility {
	switch {
	case len(name) > 4 && name[:2] == "__" && name[len(name)-2:] == "__":
		return Public
	case len(name) > 1 && name[:2] == "__":
		return Private
	case len(name) > 0 && name[0] == '_':
		return Protected
	}
	return Public
}

// Targets returns the resolved ids an element points at: its references,
// an import's definition and a class's bases.
func Targets(e Element) []string {
	var out []string
	if imp, ok := e.(*ImportStatement); ok {
		if imp.DefinitionID != "" {
			out = append(out, imp.DefinitionID)
		}
		return out
	}
	for _, r := range e.Refs() {
		if r.UniqueID != "" {
			out = append(out, r.UniqueID)
		}
	}
	return out
}

// OwnerClassID returns the class id of a member element, or "".
func OwnerClassID(e Element) string {
	switch m := e.(type) {
	case *MethodDefinition:
		return m.ClassID
	case *ClassAttribute:
		return m.ClassID
	}
	return ""
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
