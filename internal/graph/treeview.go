package graph

import (
	"sort"
	"strings"

	"github.com/BrunoV21/CodeTide/internal/model"
)

type treeNode struct {
	name     string
	file     *model.FileModel
	children map[string]*treeNode
}

func (n *treeNode) sorted() []*treeNode {
	out := make([]*treeNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	// Directories before files, then by name.
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].file == nil, out[j].file == nil
		if di != dj {
			return di
		}
		return out[i].name < out[j].name
	})
	return out
}

type treeItem struct {
	rank     int
	label    string
	children []treeItem
}

// TreeView renders the project as an ASCII tree of directories and files.
// includeModules lists each file's variables, functions and classes (with
// their members); includeTypes prefixes elements with V, F, C, A or M.
func (cb *Codebase) TreeView(includeModules, includeTypes bool) string {
	root := &treeNode{children: make(map[string]*treeNode)}
	for _, path := range cb.paths {
		parts := strings.Split(path, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				cur.children[part] = &treeNode{name: part, file: cb.files[path]}
				break
			}
			next, ok := cur.children[part]
			if !ok || next.file != nil {
				next = &treeNode{name: part, children: make(map[string]*treeNode)}
				cur.children[part] = next
			}
			cur = next
		}
	}
	var lines []string
	renderDir(root, "", &lines, includeModules, includeTypes)
	return strings.Join(lines, "\n")
}

func renderDir(n *treeNode, prefix string, lines *[]string, includeModules, includeTypes bool) {
	children := n.sorted()
	for i, c := range children {
		branch, next := branches(prefix, i == len(children)-1)
		*lines = append(*lines, branch+c.name)
		if c.file == nil {
			renderDir(c, next, lines, includeModules, includeTypes)
		} else if includeModules {
			renderItems(fileItems(c.file, includeTypes), next, lines)
		}
	}
}

func renderItems(items []treeItem, prefix string, lines *[]string) {
	for i, it := range items {
		branch, next := branches(prefix, i == len(items)-1)
		*lines = append(*lines, branch+it.label)
		renderItems(it.children, next, lines)
	}
}

func branches(prefix string, last bool) (string, string) {
	if last {
		return prefix + "└── ", prefix + "    "
	}
	return prefix + "├── ", prefix + "│   "
}

func label(tag, name string, includeTypes bool) string {
	if includeTypes {
		return tag + " " + name
	}
	return name
}

func fileItems(f *model.FileModel, includeTypes bool) []treeItem {
	var items []treeItem
	for _, v := range f.Variables {
		items = append(items, treeItem{rank: 0, label: label("V", v.Name, includeTypes)})
	}
	for _, fn := range f.Functions {
		items = append(items, treeItem{rank: 1, label: label("F", fn.Name, includeTypes)})
	}
	for _, c := range f.Classes {
		var members []treeItem
		for _, a := range c.Attributes {
			members = append(members, treeItem{rank: 0, label: label("A", a.Name, includeTypes)})
		}
		for _, m := range c.Methods {
			members = append(members, treeItem{rank: 1, label: label("M", m.Name, includeTypes)})
		}
		sortItems(members)
		items = append(items, treeItem{rank: 2, label: label("C", c.Name, includeTypes), children: members})
	}
	sortItems(items)
	return items
}

func sortItems(items []treeItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].label < items[j].label
	})
}
