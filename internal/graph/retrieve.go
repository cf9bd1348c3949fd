package graph

import (
	"sort"
	"strings"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// ResolveIdentifier maps a full or partial identifier to a unique id. An
// exact id wins; otherwise the query must match exactly one id on a dotted
// segment boundary. An import id stands for the element it defines.
func (cb *Codebase) ResolveIdentifier(query string) (string, error) {
	q := strings.TrimSpace(query)
	if e, ok := cb.elements[q]; ok {
		if imp, isImport := e.(*model.ImportStatement); isImport && imp.DefinitionID != "" {
			if _, ok := cb.elements[imp.DefinitionID]; ok {
				return imp.DefinitionID, nil
			}
		}
		return q, nil
	}
	var candidates []string
	for _, id := range cb.bySegment[model.LastSegment(q)] {
		if model.HasSuffixSegment(id, q) {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 0:
		return "", &UnknownIdentifierError{Query: query}
	case 1:
		return candidates[0], nil
	}
	sort.Strings(candidates)
	return "", &AmbiguousIdentifierError{Query: query, Candidates: candidates}
}

// neighbors returns the ids one hop away from id: its references, an
// import's definition, a class's bases and its members' references.
func (cb *Codebase) neighbors(id string) []string {
	out := append(cb.deps.Successors(ReferenceEdge, id), cb.deps.Successors(InheritanceEdge, id)...)
	for _, m := range cb.deps.Successors(MembershipEdge, id) {
		out = append(out, cb.deps.Successors(ReferenceEdge, m)...)
	}
	return out
}

// Get collects the seeds named by identifiers plus every element within
// degree hops of them. Classes bring their members along without spending
// a hop. Get does not modify the codebase.
func (cb *Codebase) Get(identifiers []string, degree int) (*model.ContextStructure, error) {
	cs := model.NewContextStructure(cb.Element)
	visited := make(map[string]bool)
	var frontier []string
	for _, q := range identifiers {
		id, err := cb.ResolveIdentifier(q)
		if err != nil {
			return nil, err
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		cs.AddRequested(cb.elements[id])
		frontier = append(frontier, id)
	}

	addMembers := func(id string) {
		for _, m := range cb.deps.Successors(MembershipEdge, id) {
			if !visited[m] {
				visited[m] = true
				cs.Add(cb.elements[m])
			}
		}
	}
	if degree > 0 {
		for _, id := range frontier {
			addMembers(id)
		}
	}
	for hop := 0; hop < degree && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range cb.neighbors(id) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				cs.Add(cb.elements[nb])
				addMembers(nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}

	for _, id := range cs.IDs() {
		if text, ok := cb.cached[id]; ok {
			cs.Preloaded[id] = text
		}
	}
	return cs, nil
}

// GetString renders the result of Get.
func (cb *Codebase) GetString(identifiers []string, degree int) (string, error) {
	cs, err := cb.Get(identifiers, degree)
	if err != nil {
		return "", err
	}
	return cs.String(), nil
}
