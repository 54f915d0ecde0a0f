package graph

import (
	"path"
	"slices"
	"strings"

	"github.com/starford/docreg/internal/models"
)

// Resolve builds a Graph from docs. Each raw reference yields exactly one edge;
// references that match no document id become unresolved edges with a dangling
// diagnostic. Cycles are reported as diagnostics and never fail resolution.
//
// Output is deterministic: documents are visited in id order and each
// document's references in their original order. If docs contains the same id
// twice, the earlier entry is kept.
func Resolve(docs []*models.Document, exts models.Extensions) *Graph {
	sorted := slices.Clone(docs)
	slices.SortStableFunc(sorted, func(a, b *models.Document) int { return strings.Compare(a.ID, b.ID) })
	sorted = slices.CompactFunc(sorted, func(a, b *models.Document) bool { return a.ID == b.ID })

	g := &Graph{
		docs: sorted,
		byID: make(map[string]*models.Document, len(sorted)),
		out:  make(map[string][]int, len(sorted)),
		succ: make(map[string][]string, len(sorted)),
		pred: make(map[string][]string),
	}
	for _, d := range sorted {
		g.byID[d.ID] = d
	}

	for _, d := range sorted {
		seen := map[string]struct{}{}
		for _, raw := range d.References {
			edge := models.ReferenceEdge{From: d.ID, Raw: raw}
			if to, ok := g.match(d, raw, exts); ok {
				edge.To = to
				edge.Resolved = true
				if _, dup := seen[to]; !dup {
					seen[to] = struct{}{}
					g.succ[d.ID] = append(g.succ[d.ID], to)
					g.pred[to] = append(g.pred[to], d.ID)
				}
			} else {
				g.diags = append(g.diags, models.DanglingDiagnostic(d.ID, raw))
			}
			g.out[d.ID] = append(g.out[d.ID], len(g.edges))
			g.edges = append(g.edges, edge)
		}
	}
	for id := range g.pred {
		slices.Sort(g.pred[id])
	}

	g.diags = append(g.diags, g.findCycles()...)
	return g
}

// match resolves raw against the loaded ids: root-relative first, then, for
// explicitly relative references, against the directory of the referencing document.
func (g *Graph) match(from *models.Document, raw string, exts models.Extensions) (string, bool) {
	id := models.NormalizeID(raw, exts)
	if _, ok := g.byID[id]; ok {
		return id, true
	}
	p := strings.ReplaceAll(raw, `\`, "/")
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		rel := models.NormalizeID(path.Join(path.Dir(from.ID), p), exts)
		if _, ok := g.byID[rel]; ok {
			return rel, true
		}
	}
	return "", false
}
