package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// EdgeKind is the relationship an edge of the dependency graph records.
type EdgeKind string

const (
	ReferenceEdge   EdgeKind = "reference"   // element uses target, or import defines target
	InheritanceEdge EdgeKind = "inheritance" // class extends target
	MembershipEdge  EdgeKind = "membership"  // class owns target
)

var edgeKinds = []EdgeKind{ReferenceEdge, InheritanceEdge, MembershipEdge}

// DependencyGraph stores the resolved relationships between elements, one
// gonum directed graph per edge kind over a shared node numbering.
type DependencyGraph struct {
	graphs map[EdgeKind]*simple.DirectedGraph
	ids    map[string]int64
	names  map[int64]string
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	d := &DependencyGraph{
		graphs: make(map[EdgeKind]*simple.DirectedGraph, len(edgeKinds)),
		ids:    make(map[string]int64),
		names:  make(map[int64]string),
	}
	for _, k := range edgeKinds {
		d.graphs[k] = simple.NewDirectedGraph()
	}
	return d
}

// AddNode registers id and returns its node number.
func (d *DependencyGraph) AddNode(id string) int64 {
	if n, ok := d.ids[id]; ok {
		return n
	}
	n := int64(len(d.ids))
	d.ids[id] = n
	d.names[n] = id
	for _, g := range d.graphs {
		g.AddNode(simple.Node(n))
	}
	return n
}

// AddEdge adds a directed edge from source to target. Self-loops and
// duplicates are ignored.
func (d *DependencyGraph) AddEdge(kind EdgeKind, source, target string) {
	if source == target {
		return
	}
	g := d.graphs[kind]
	from, to := d.AddNode(source), d.AddNode(target)
	if g.HasEdgeFromTo(from, to) {
		return
	}
	g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
}

// Successors returns the sorted targets of kind edges leaving id.
func (d *DependencyGraph) Successors(kind EdgeKind, id string) []string {
	n, ok := d.ids[id]
	if !ok {
		return nil
	}
	return d.collect(d.graphs[kind].From(n))
}

// Predecessors returns the sorted sources of kind edges entering id.
func (d *DependencyGraph) Predecessors(kind EdgeKind, id string) []string {
	n, ok := d.ids[id]
	if !ok {
		return nil
	}
	return d.collect(d.graphs[kind].To(n))
}

func (d *DependencyGraph) collect(it gonum.Nodes) []string {
	var out []string
	for it.Next() {
		out = append(out, d.names[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// NodeCount returns the number of nodes.
func (d *DependencyGraph) NodeCount() int { return len(d.ids) }

// EdgeCount returns the number of kind edges.
func (d *DependencyGraph) EdgeCount(kind EdgeKind) int {
	return d.graphs[kind].Edges().Len()
}

// Cycles returns every strongly connected component of the reference and
// inheritance edges that has more than one element. Components and their
// members are sorted.
func (d *DependencyGraph) Cycles() [][]string {
	combined := simple.NewDirectedGraph()
	for n := range d.names {
		combined.AddNode(simple.Node(n))
	}
	for _, k := range []EdgeKind{ReferenceEdge, InheritanceEdge} {
		edges := d.graphs[k].Edges()
		for edges.Next() {
			e := edges.Edge()
			if !combined.HasEdgeFromTo(e.From().ID(), e.To().ID()) {
				combined.SetEdge(combined.NewEdge(e.From(), e.To()))
			}
		}
	}
	var cycles [][]string
	for _, scc := range topo.TarjanSCC(combined) {
		if len(scc) < 2 {
			continue
		}
		ids := make([]string, len(scc))
		for i, n := range scc {
			ids[i] = d.names[n.ID()]
		}
		sort.Strings(ids)
		cycles = append(cycles, ids)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// buildDependencyGraph derives the graph from resolved elements in id order.
func buildDependencyGraph(ids []string, elements map[string]model.Element) *DependencyGraph {
	d := NewDependencyGraph()
	for _, id := range ids {
		d.AddNode(id)
	}
	exists := func(id string) bool { _, ok := elements[id]; return ok }
	for _, id := range ids {
		e := elements[id]
		if c, ok := e.(*model.ClassDefinition); ok {
			for _, r := range c.BasesReferences {
				if r.Resolved() && exists(r.UniqueID) {
					d.AddEdge(InheritanceEdge, id, r.UniqueID)
				}
			}
			for _, m := range c.Members() {
				if exists(m.ID()) {
					d.AddEdge(MembershipEdge, id, m.ID())
				}
			}
			continue
		}
		for _, target := range model.Targets(e) {
			if exists(target) {
				d.AddEdge(ReferenceEdge, id, target)
			}
		}
	}
	return d
}

// Stats summarizes the dependency graph.
type Stats struct {
	Files       int `json:"files"`
	Elements    int `json:"elements"`
	References  int `json:"reference_edges"`
	Inheritance int `json:"inheritance_edges"`
	Membership  int `json:"membership_edges"`
	Cycles      int `json:"cycles"`
	Unresolved  int `json:"unresolved_references"`
}
