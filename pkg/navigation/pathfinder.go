package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Pathfinder answers shortest-path and validation-sequence queries over
// cached graphs. All errors it returns are non-fatal to the pathfinder
// itself; a missing path is a nil result, not an error.
type Pathfinder struct {
	cache *Cache
}

// NewPathfinder creates a pathfinder over the given cache.
func NewPathfinder(cache *Cache) *Pathfinder {
	return &Pathfinder{cache: cache}
}

// FindShortestPath returns the ordered transition list from start to target,
// shortest by hop count. When startRef is empty the graph's default start is
// used. Returns an empty (non-nil) list when already at target, and nil with
// a diagnostic dump when no path exists. An unresolvable target or start is
// an error.
func (p *Pathfinder) FindShortestPath(ctx context.Context, treeRef, teamID, targetRef, startRef string) ([]models.Transition, error) {
	entry, err := p.cache.GetGraph(ctx, treeRef, teamID)
	if err != nil {
		return nil, err
	}
	g := entry.Graph

	target, ok := g.ResolveNode(targetRef)
	if !ok {
		return nil, fmt.Errorf("target node %q not found in tree %q", targetRef, treeRef)
	}

	var start models.Node
	if startRef != "" {
		start, ok = g.ResolveNode(startRef)
		if !ok {
			return nil, fmt.Errorf("start node %q not found in tree %q", startRef, treeRef)
		}
	} else {
		start, ok = g.DefaultStart()
		if !ok {
			return nil, fmt.Errorf("tree %q has no nodes", treeRef)
		}
	}

	if start.NodeID == target.NodeID {
		return []models.Transition{}, nil
	}

	path := shortestEdgePath(g, start.NodeID, target.NodeID)
	if path == nil {
		p.dumpNoPathDiagnostics(g, start.NodeID, target.NodeID)
		return nil, nil
	}

	transitions := make([]models.Transition, 0, len(path))
	for i, e := range path {
		transitions = append(transitions, transitionFromEdge(g, e, i+1))
	}
	return transitions, nil
}

// shortestEdgePath runs an unweighted BFS and returns the edge sequence from
// start to target, or nil when target is unreachable. The graph is cyclic by
// nature, so BFS with a visited set is required rather than DFS.
func shortestEdgePath(g *Graph, startID, targetID string) []models.Edge {
	type hop struct {
		nodeID string
		via    models.Edge
		prev   int // index into hops; -1 for start
	}
	hops := []hop{{nodeID: startID, prev: -1}}
	visited := map[string]bool{startID: true}

	for i := 0; i < len(hops); i++ {
		cur := hops[i]
		for _, e := range g.Outgoing(cur.nodeID) {
			if visited[e.ToNode] {
				continue
			}
			visited[e.ToNode] = true
			hops = append(hops, hop{nodeID: e.ToNode, via: e, prev: i})
			if e.ToNode == targetID {
				// Walk back to the start to reconstruct the edge path.
				var path []models.Edge
				for j := len(hops) - 1; j > 0; j = hops[j].prev {
					path = append(path, hops[j].via)
				}
				for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path
			}
		}
	}
	return nil
}

// dumpNoPathDiagnostics logs the reachable set and undirected connectivity
// to aid debugging when no path exists.
func (p *Pathfinder) dumpNoPathDiagnostics(g *Graph, startID, targetID string) {
	reachable := g.reachableFrom(startID)
	reachableIDs := make([]string, 0, len(reachable))
	for id := range reachable {
		reachableIDs = append(reachableIDs, id)
	}
	sort.Strings(reachableIDs)

	slog.Warn("No navigation path found",
		"tree_id", g.TreeID,
		"start", startID,
		"target", targetID,
		"reachable_from_start", reachableIDs,
		"undirected_components", g.undirectedComponents())
}

// transitionFromEdge materializes an edge into an executable transition with
// human-readable labels.
func transitionFromEdge(g *Graph, e models.Edge, number int) models.Transition {
	fromLabel := e.FromNode
	if n, ok := g.Node(e.FromNode); ok && n.Label != "" {
		fromLabel = n.Label
	}
	toLabel := e.ToNode
	if n, ok := g.Node(e.ToNode); ok && n.Label != "" {
		toLabel = n.Label
	}
	return models.Transition{
		TransitionNumber: number,
		EdgeID:           e.EdgeID,
		FromNodeID:       e.FromNode,
		ToNodeID:         e.ToNode,
		FromLabel:        fromLabel,
		ToLabel:          toLabel,
		Actions:          e.Actions,
		RetryActions:     e.RetryActions,
		FailureActions:   e.FailureActions,
		FinalWaitTime:    e.FinalWaitTime,
		Description:      fmt.Sprintf("%s -> %s (%d actions)", fromLabel, toLabel, len(e.Actions)),
	}
}
