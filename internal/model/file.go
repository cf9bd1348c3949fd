package model

import "strings"

// FileState tracks a file through one resolution run.
type FileState string

const (
	StateUnparsed      FileState = "unparsed"
	StateParsed        FileState = "parsed"
	StateIntraResolved FileState = "intra_resolved"
	StateFullyResolved FileState = "fully_resolved"
	StateFailed        FileState = "failed"
)

// FileModel is the structural model of one source file.
type FileModel struct {
	FilePath   string                 `json:"file_path"`
	ModulePath string                 `json:"module_path"`
	Language   string                 `json:"language"`
	Raw        string                 `json:"raw,omitempty"`
	Imports    []*ImportStatement     `json:"imports,omitempty"`
	Variables  []*VariableDeclaration `json:"variables,omitempty"`
	Functions  []*FunctionDefinition  `json:"functions,omitempty"`
	Classes    []*ClassDefinition     `json:"classes,omitempty"`
	State      FileState              `json:"state"`
}

// NewFileModel creates an empty model for relPath in module.
func NewFileModel(relPath, module, language string) *FileModel {
	return &FileModel{
		FilePath:   relPath,
		ModulePath: module,
		Language:   language,
		State:      StateUnparsed,
	}
}

// AddImport assigns the import its id and appends it.
func (f *FileModel) AddImport(imp *ImportStatement) {
	imp.FilePath = f.FilePath
	imp.UniqueID = QualifiedID(f.ModulePath, importKey(imp))
	f.Imports = append(f.Imports, imp)
}

// AddVariable assigns the variable its id and appends it.
func (f *FileModel) AddVariable(v *VariableDeclaration) {
	v.FilePath = f.FilePath
	v.UniqueID = QualifiedID(f.ModulePath, v.Name)
	f.Variables = append(f.Variables, v)
}

// AddFunction assigns the function its id and appends it.
func (f *FileModel) AddFunction(fn *FunctionDefinition) {
	fn.FilePath = f.FilePath
	fn.UniqueID = QualifiedID(f.ModulePath, fn.Name)
	f.Functions = append(f.Functions, fn)
}

// AddClass assigns ids to the class and all of its members, then appends it.
func (f *FileModel) AddClass(c *ClassDefinition) {
	c.FilePath = f.FilePath
	c.UniqueID = QualifiedID(f.ModulePath, c.Name)
	for _, a := range c.Attributes {
		a.FilePath = f.FilePath
		a.ClassID = c.UniqueID
		a.UniqueID = QualifiedID(c.UniqueID, a.Name)
	}
	for _, m := range c.Methods {
		m.FilePath = f.FilePath
		m.ClassID = c.UniqueID
		m.UniqueID = QualifiedID(c.UniqueID, m.Name)
	}
	f.Classes = append(f.Classes, c)
}

func importKey(imp *ImportStatement) string {
	source := strings.TrimLeft(strings.ReplaceAll(imp.Source, "/", "."), ".")
	if imp.Wildcard() {
		return QualifiedID(source, "*")
	}
	if imp.Alias != "" {
		return imp.Alias
	}
	if imp.Name != "" {
		return imp.Name
	}
	return source
}

// Declarations returns variables, functions, classes and class members in
// source-grouped order.
func (f *FileModel) Declarations() []Element {
	var out []Element
	for _, v := range f.Variables {
		out = append(out, v)
	}
	for _, fn := range f.Functions {
		out = append(out, fn)
	}
	for _, c := range f.Classes {
		out = append(out, c)
		out = append(out, c.Members()...)
	}
	return out
}

// Elements returns declarations followed by imports.
func (f *FileModel) Elements() []Element {
	out := f.Declarations()
	for _, imp := range f.Imports {
		out = append(out, imp)
	}
	return out
}

// IDs returns the ids of every element in the file.
func (f *FileModel) IDs() []string {
	elems := f.Elements()
	ids := make([]string, 0, len(elems))
	for _, e := range elems {
		ids = append(ids, e.ID())
	}
	return ids
}

// Get returns the element with the given id.
func (f *FileModel) Get(id string) (Element, bool) {
	for _, e := range f.Elements() {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// ImportIDs returns the ids of the file's imports, used to detect whether
// an edit changed the file's dependencies.
func (f *FileModel) ImportIDs() []string {
	ids := make([]string, len(f.Imports))
	for i, imp := range f.Imports {
		ids[i] = imp.UniqueID
	}
	return ids
}

// RawContents returns the source of every declaration, used for rendering.
func (f *FileModel) RawContents() []string {
	var raw []string
	for _, c := range f.Classes {
		raw = append(raw, c.Raw)
	}
	for _, fn := range f.Functions {
		raw = append(raw, fn.Raw)
	}
	for _, v := range f.Variables {
		raw = append(raw, v.Raw)
	}
	return raw
}

// ReferenceSlices returns pointers to every reference list in the file so
// resolvers can update bindings in place.
func (f *FileModel) ReferenceSlices() []ReferenceOwner {
	var out []ReferenceOwner
	for _, v := range f.Variables {
		out = append(out, ReferenceOwner{Element: v, Refs: v.References})
	}
	for _, fn := range f.Functions {
		out = append(out, ReferenceOwner{Element: fn, Refs: fn.References})
	}
	for _, c := range f.Classes {
		out = append(out, ReferenceOwner{Element: c, Refs: c.BasesReferences})
		for _, a := range c.Attributes {
			out = append(out, ReferenceOwner{Element: a, Refs: a.References, ClassName: c.Name})
		}
		for _, m := range c.Methods {
			out = append(out, ReferenceOwner{Element: m, Refs: m.References, ClassName: c.Name})
		}
	}
	return out
}

// ReferenceOwner pairs an element with its reference slice. Refs shares
// its backing array with the element, so writes through Refs[i] are
// visible on the element.
type ReferenceOwner struct {
	Element   Element
	Refs      []Reference
	ClassName string
}
