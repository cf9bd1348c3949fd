package model

import (
	"fmt"
	"strings"
)

const packagesBlock = "PACKAGES"

// ContextInstruction precedes supporting blocks in rendered context.
const ContextInstruction = `
[CONTEXT FILES START BELOW]
These files provide dependencies, configuration, and supporting logic.
You may modify them **only if absolutely necessary** to implement the desired logic or ensure compatibility with the changes in the target file.
Otherwise, leave them unchanged.
`

// TargetInstruction precedes the requested elements in rendered context.
const TargetInstruction = `
[TARGET FILE STARTS BELOW]
The following file is the main focus.
Apply your changes primarily to this file.
Use the context above to ensure correctness and compatibility.
`

// Group is an insertion-ordered, id-deduplicated set of elements.
type Group struct {
	ids  []string
	byID map[string]Element
}

// Add inserts e unless an element with the same id is present.
func (g *Group) Add(e Element) bool {
	if g.byID == nil {
		g.byID = make(map[string]Element)
	}
	if _, ok := g.byID[e.ID()]; ok {
		return false
	}
	g.byID[e.ID()] = e
	g.ids = append(g.ids, e.ID())
	return true
}

func (g *Group) Has(id string) bool {
	_, ok := g.byID[id]
	return ok
}

func (g *Group) IDs() []string { return append([]string(nil), g.ids...) }
func (g *Group) Len() int      { return len(g.ids) }

// Elements returns the group's elements in insertion order.
func (g *Group) Elements() []Element {
	out := make([]Element, len(g.ids))
	for i, id := range g.ids {
		out[i] = g.byID[id]
	}
	return out
}

// ContextStructure is the kind-grouped result of a context query.
type ContextStructure struct {
	Imports         Group
	Classes         Group
	Functions       Group
	Variables       Group
	ClassAttributes Group
	ClassMethods    Group

	// RequestedElements are the resolved seeds, in request order.
	RequestedElements []Element
	// Preloaded holds already rendered text keyed by unique id.
	Preloaded map[string]string

	order  []string
	lookup func(id string) (Element, bool)
}

// NewContextStructure returns an empty structure. lookup resolves class ids
// when rendering members whose class was not retrieved.
func NewContextStructure(lookup func(id string) (Element, bool)) *ContextStructure {
	return &ContextStructure{
		Preloaded: make(map[string]string),
		lookup:    lookup,
	}
}

// AddRequested records a seed element.
func (cs *ContextStructure) AddRequested(e Element) bool {
	if cs.Contains(e.ID()) {
		return false
	}
	cs.RequestedElements = append(cs.RequestedElements, e)
	cs.order = append(cs.order, e.ID())
	return true
}

// Add routes e into the group for its kind.
func (cs *ContextStructure) Add(e Element) bool {
	if cs.Contains(e.ID()) {
		return false
	}
	var added bool
	switch e.Kind() {
	case KindImport:
		added = cs.Imports.Add(e)
	case KindClass:
		added = cs.Classes.Add(e)
	case KindFunction:
		added = cs.Functions.Add(e)
	case KindVariable:
		added = cs.Variables.Add(e)
	case KindAttribute:
		added = cs.ClassAttributes.Add(e)
	case KindMethod:
		added = cs.ClassMethods.Add(e)
	}
	if added {
		cs.order = append(cs.order, e.ID())
	}
	return added
}

func (cs *ContextStructure) requested(id string) bool {
	for _, r := range cs.RequestedElements {
		if r.ID() == id {
			return true
		}
	}
	return false
}

// Contains reports whether id is a seed or a grouped element.
func (cs *ContextStructure) Contains(id string) bool {
	if cs.requested(id) {
		return true
	}
	for _, g := range cs.groups() {
		if g.Has(id) {
			return true
		}
	}
	return false
}

// IDs returns every id in discovery order, seeds first.
func (cs *ContextStructure) IDs() []string { return append([]string(nil), cs.order...) }

// Len is the total number of elements.
func (cs *ContextStructure) Len() int { return len(cs.order) }

func (cs *ContextStructure) groups() []*Group {
	return []*Group{&cs.Imports, &cs.Classes, &cs.Functions, &cs.Variables, &cs.ClassAttributes, &cs.ClassMethods}
}

func (cs *ContextStructure) text(e Element) string {
	if t, ok := cs.Preloaded[e.ID()]; ok {
		return t
	}
	return e.Text()
}

func (cs *ContextStructure) classHeader(classID string) (string, string, bool) {
	if cs.lookup == nil {
		return "", "", false
	}
	e, ok := cs.lookup(classID)
	if !ok {
		return "", "", false
	}
	c, ok := e.(*ClassDefinition)
	if !ok {
		return "", "", false
	}
	return c.FilePath, c.Header(), true
}

type partialClass struct {
	file    string
	header  string
	attrs   []string
	methods []string
}

func (p *partialClass) render() string {
	var sb strings.Builder
	sb.WriteString(p.header)
	if len(p.attrs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(p.attrs, "\n"))
	}
	if len(p.methods) > 0 {
		sb.WriteString("\n    ...\n\n")
		sb.WriteString(strings.Join(p.methods, "\n\n"))
	}
	return sb.String()
}

// Blocks renders the structure into wrapped per-file blocks: supporting
// context first, requested elements last.
func (cs *ContextStructure) Blocks() (context []string, targets []string) {
	var files []string
	byFile := make(map[string][]string)
	push := func(file, text string) {
		if _, ok := byFile[file]; !ok {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], text)
	}

	for _, e := range cs.Imports.Elements() {
		push(packagesBlock, cs.text(e))
	}
	for _, g := range []*Group{&cs.Variables, &cs.Functions, &cs.Classes} {
		for _, e := range g.Elements() {
			push(e.File(), cs.text(e))
		}
	}

	var partialOrder []string
	partials := make(map[string]*partialClass)
	addMember := func(e Element, method bool) {
		classID := OwnerClassID(e)
		if cs.Classes.Has(classID) || cs.requested(classID) {
			return
		}
		p, ok := partials[classID]
		if !ok {
			file, header, found := cs.classHeader(classID)
			if !found {
				file, header = e.File(), ""
			}
			p = &partialClass{file: file, header: header}
			partials[classID] = p
			partialOrder = append(partialOrder, classID)
		}
		if method {
			p.methods = append(p.methods, cs.text(e))
		} else {
			p.attrs = append(p.attrs, cs.text(e))
		}
	}
	for _, e := range cs.ClassAttributes.Elements() {
		addMember(e, false)
	}
	for _, e := range cs.ClassMethods.Elements() {
		addMember(e, true)
	}
	for _, id := range partialOrder {
		p := partials[id]
		push(p.file, p.render())
	}

	for _, file := range files {
		context = append(context, Wrap(strings.Join(byFile[file], "\n\n"), file))
	}

	for _, e := range cs.RequestedElements {
		text := cs.text(e)
		if classID := OwnerClassID(e); classID != "" {
			if _, header, ok := cs.classHeader(classID); ok {
				text = fmt.Sprintf("%s\n    ...\n\n%s", header, text)
			}
		}
		targets = append(targets, Wrap(text, e.File()))
	}
	return context, targets
}

// String renders the structure as text, adding instructions when
// supporting context accompanies the requested elements.
func (cs *ContextStructure) String() string {
	context, targets := cs.Blocks()
	if len(context) == 0 {
		return strings.Join(targets, "\n\n")
	}
	parts := make([]string, 0, len(context)+len(targets)+2)
	parts = append(parts, ContextInstruction)
	parts = append(parts, context...)
	if len(targets) > 0 {
		parts = append(parts, TargetInstruction)
		parts = append(parts, targets...)
	}
	return strings.Join(parts, "\n\n")
}

// Wrap encloses content in file markers, or a package block for imports.
func Wrap(content, file string) string {
	if file == packagesBlock {
		return fmt.Sprintf("<PACKAGE_DEPENDENCIES_START>\n%s\n</PACKAGE_DEPENDENCIES_END>", content)
	}
	return fmt.Sprintf("<FILE_START::%s>\n%s\n</FILE_END::%s>", file, content, file)
}
