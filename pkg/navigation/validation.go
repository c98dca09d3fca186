package navigation

import (
	"context"
	"sort"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// ValidationSequence produces a single linear transition sequence that
// visits every edge at least once, suitable for a validator to execute.
//
// Starting at each entry point, outgoing edges are walked depth-first in a
// deterministic sorted order; for each unvisited edge the forward transition
// is emitted, the child is recursed into, and — when a reverse edge exists —
// the return transition is emitted on the way back. The visited set tracks
// edges, not nodes: the graph is cyclic by design.
func (p *Pathfinder) ValidationSequence(ctx context.Context, treeRef, teamID string) ([]models.Transition, error) {
	entry, err := p.cache.GetGraph(ctx, treeRef, teamID)
	if err != nil {
		return nil, err
	}
	g := entry.Graph

	starts := g.EntryPoints()
	if len(starts) == 0 {
		if first, ok := g.DefaultStart(); ok {
			starts = []string{first.NodeID}
		}
	}

	walker := &validationWalker{graph: g, visited: make(map[string]bool)}
	for _, start := range starts {
		walker.walk(start)
	}

	for i := range walker.sequence {
		walker.sequence[i].TransitionNumber = i + 1
	}
	return walker.sequence, nil
}

type validationWalker struct {
	graph    *Graph
	visited  map[string]bool // edge ids
	sequence []models.Transition
}

func (w *validationWalker) walk(nodeID string) {
	for _, e := range sortedEdges(w.graph.Outgoing(nodeID)) {
		if w.visited[e.EdgeID] {
			continue
		}
		w.visited[e.EdgeID] = true
		w.sequence = append(w.sequence, transitionFromEdge(w.graph, e, 0))

		// Reserve the return edge before recursing so the child walk
		// does not consume it as a forward edge; it is emitted on the
		// way back, keeping the sequence linearly executable.
		rev, hasReturn := w.reverseEdge(e)
		if hasReturn {
			w.visited[rev.EdgeID] = true
		}

		w.walk(e.ToNode)

		if hasReturn {
			w.sequence = append(w.sequence, transitionFromEdge(w.graph, rev, 0))
		}
	}
}

// reverseEdge finds an unvisited edge running child -> parent, preferring
// the first in sorted order.
func (w *validationWalker) reverseEdge(forward models.Edge) (models.Edge, bool) {
	for _, e := range sortedEdges(w.graph.Outgoing(forward.ToNode)) {
		if e.ToNode == forward.FromNode && !w.visited[e.EdgeID] {
			return e, true
		}
	}
	return models.Edge{}, false
}

// sortedEdges orders edges by destination node id then edge id so the
// traversal is deterministic regardless of declaration order.
func sortedEdges(edges []models.Edge) []models.Edge {
	out := append([]models.Edge(nil), edges...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ToNode != out[j].ToNode {
			return out[i].ToNode < out[j].ToNode
		}
		return out[i].EdgeID < out[j].EdgeID
	})
	return out
}
