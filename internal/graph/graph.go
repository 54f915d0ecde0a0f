// Package graph resolves raw document references into a directed reference graph.
package graph

import (
	"slices"
	"strings"

	"github.com/starford/docreg/internal/models"
)

// Graph is an immutable set of documents and the reference edges between them.
type Graph struct {
	docs  []*models.Document
	byID  map[string]*models.Document
	edges []models.ReferenceEdge
	out   map[string][]int    // edge indexes by source id
	succ  map[string][]string // distinct resolved targets by source id, first-seen order
	pred  map[string][]string // distinct resolved sources by target id, sorted
	diags []models.Diagnostic
}

// Stats summarizes a graph.
type Stats struct {
	Documents  int                     `json:"documents"`
	Edges      int                     `json:"edges"`
	Resolved   int                     `json:"resolved"`
	Dangling   int                     `json:"dangling"`
	Cycles     int                     `json:"cycles"`
	ByCategory map[models.Category]int `json:"by_category"`
}

// Documents returns all documents ordered by id.
func (g *Graph) Documents() []*models.Document {
	return slices.Clone(g.docs)
}

// Document returns the document with the given id.
func (g *Graph) Document(id string) (*models.Document, bool) {
	d, ok := g.byID[id]
	return d, ok
}

// Edges returns every edge: documents by id, then references in original order.
func (g *Graph) Edges() []models.ReferenceEdge {
	return slices.Clone(g.edges)
}

// Outgoing returns the edges whose source is id, in reference order.
func (g *Graph) Outgoing(id string) []models.ReferenceEdge {
	idx := g.out[id]
	out := make([]models.ReferenceEdge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// Incoming returns the ids of documents with a resolved edge to id, sorted.
func (g *Graph) Incoming(id string) []string {
	return slices.Clone(g.pred[id])
}

// Diagnostics returns dangling references in edge order followed by cycles.
func (g *Graph) Diagnostics() []models.Diagnostic {
	return slices.Clone(g.diags)
}

// ByCategory returns the documents of category c ordered by id.
func (g *Graph) ByCategory(c models.Category) []*models.Document {
	out := []*models.Document{}
	for _, d := range g.docs {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Closure returns the document id plus every document reachable from it over
// resolved edges within maxDepth hops, ordered by id. A negative maxDepth is
// unbounded. The visited set guarantees termination on cyclic graphs.
func (g *Graph) Closure(id string, maxDepth int) ([]*models.Document, bool) {
	if _, ok := g.byID[id]; !ok {
		return nil, false
	}
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	for depth := 0; len(frontier) > 0 && (maxDepth < 0 || depth < maxDepth); depth++ {
		var next []string
		for _, cur := range frontier {
			for _, s := range g.succ[cur] {
				if _, seen := visited[s]; seen {
					continue
				}
				visited[s] = struct{}{}
				next = append(next, s)
			}
		}
		frontier = next
	}

	out := make([]*models.Document, 0, len(visited))
	for vid := range visited {
		out = append(out, g.byID[vid])
	}
	slices.SortFunc(out, func(a, b *models.Document) int { return strings.Compare(a.ID, b.ID) })
	return out, true
}

// Stats counts documents, edges and diagnostics.
func (g *Graph) Stats() Stats {
	s := Stats{
		Documents:  len(g.docs),
		Edges:      len(g.edges),
		ByCategory: make(map[models.Category]int, len(models.Categories)),
	}
	for _, c := range models.Categories {
		s.ByCategory[c] = 0
	}
	for _, d := range g.docs {
		s.ByCategory[d.Category]++
	}
	for _, e := range g.edges {
		if e.Resolved {
			s.Resolved++
		}
	}
	for _, d := range g.diags {
		switch d.Kind {
		case models.DiagnosticDangling:
			s.Dangling++
		case models.DiagnosticCycle:
			s.Cycles++
		}
	}
	return s
}
