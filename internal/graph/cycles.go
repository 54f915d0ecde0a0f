package graph

import (
	"strings"

	"github.com/starford/docreg/internal/models"
)

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // finished
)

// findCycles runs a coloured depth-first search over resolved edges and
// reports one cycle per back edge. Roots are taken in id order and successors
// in reference order, so the result is deterministic.
func (g *Graph) findCycles() []models.Diagnostic {
	color := make(map[string]int, len(g.docs))
	onStack := make(map[string]int, len(g.docs))
	var stack []string
	var out []models.Diagnostic

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, next := range g.succ[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				cycle := append([]string{}, stack[onStack[next]:]...)
				cycle = append(cycle, next)
				out = append(out, models.Diagnostic{
					Kind:    models.DiagnosticCycle,
					From:    id,
					Cycle:   cycle,
					Message: "reference cycle: " + strings.Join(cycle, " -> "),
				})
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		color[id] = black
	}

	for _, d := range g.docs {
		if color[d.ID] == white {
			visit(d.ID)
		}
	}
	return out
}
