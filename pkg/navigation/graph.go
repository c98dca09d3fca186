// Package navigation builds and caches in-memory navigation graphs and
// answers pathfinding queries over them.
package navigation

import (
	"sort"
	"strings"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Graph is a directed multigraph over node ids. Vertices carry node
// metadata; each edge carries its resolved action lists. Graphs are built
// once per tree by the cache and treated as immutable afterwards.
type Graph struct {
	TreeID            string
	TreeName          string
	UserinterfaceName string
	TeamID            string

	nodes    map[string]models.Node
	outgoing map[string][]models.Edge
	incoming map[string][]models.Edge
	order    []string // node ids in insertion order
}

// NewGraph creates an empty graph for the given tree.
func NewGraph(tree *models.NavigationTree) *Graph {
	return &Graph{
		TreeID:            tree.TreeID,
		TreeName:          tree.Name,
		UserinterfaceName: tree.UserinterfaceName,
		TeamID:            tree.TeamID,
		nodes:             make(map[string]models.Node),
		outgoing:          make(map[string][]models.Edge),
		incoming:          make(map[string][]models.Edge),
	}
}

// AddNode registers a vertex. Re-adding an id overwrites its metadata.
func (g *Graph) AddNode(n models.Node) {
	if _, ok := g.nodes[n.NodeID]; !ok {
		g.order = append(g.order, n.NodeID)
	}
	g.nodes[n.NodeID] = n
}

// AddEdge registers a directed edge. Parallel edges between the same pair
// of nodes are kept (multigraph).
func (g *Graph) AddEdge(e models.Edge) {
	g.outgoing[e.FromNode] = append(g.outgoing[e.FromNode], e)
	g.incoming[e.ToNode] = append(g.incoming[e.ToNode], e)
}

// Node returns the vertex metadata for an id.
func (g *Graph) Node(id string) (models.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Outgoing returns the edges leaving a node.
func (g *Graph) Outgoing(id string) []models.Edge {
	return g.outgoing[id]
}

// NodeCount returns the number of vertices.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, edges := range g.outgoing {
		total += len(edges)
	}
	return total
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Edges returns every edge in the graph, ordered by source node insertion
// order then edge declaration order.
func (g *Graph) Edges() []models.Edge {
	var out []models.Edge
	for _, id := range g.order {
		out = append(out, g.outgoing[id]...)
	}
	return out
}

// EntryPoints returns the ids of entry-typed nodes, sorted for determinism.
func (g *Graph) EntryPoints() []string {
	var entries []string
	for _, id := range g.order {
		if g.nodes[id].NodeType == models.NodeTypeEntry {
			entries = append(entries, id)
		}
	}
	sort.Strings(entries)
	return entries
}

// ResolveNode resolves a node reference: exact id match, then exact label
// match, then case-insensitive label match.
func (g *Graph) ResolveNode(ref string) (models.Node, bool) {
	if n, ok := g.nodes[ref]; ok {
		return n, true
	}
	for _, id := range g.order {
		if g.nodes[id].Label == ref {
			return g.nodes[id], true
		}
	}
	for _, id := range g.order {
		if strings.EqualFold(g.nodes[id].Label, ref) {
			return g.nodes[id], true
		}
	}
	return models.Node{}, false
}

// DefaultStart picks the pathfinding start when none is given: a dedicated
// entry-typed node if one exists, otherwise the first entry point, otherwise
// the first vertex.
func (g *Graph) DefaultStart() (models.Node, bool) {
	if entries := g.EntryPoints(); len(entries) > 0 {
		return g.nodes[entries[0]], true
	}
	if len(g.order) > 0 {
		return g.nodes[g.order[0]], true
	}
	return models.Node{}, false
}

// reachableFrom returns the set of node ids reachable from source following
// edge direction. Used for no-path diagnostics.
func (g *Graph) reachableFrom(source string) map[string]bool {
	seen := map[string]bool{source: true}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.outgoing[cur] {
			if !seen[e.ToNode] {
				seen[e.ToNode] = true
				queue = append(queue, e.ToNode)
			}
		}
	}
	return seen
}

// undirectedComponents returns connected components ignoring edge direction.
// Used for no-path diagnostics.
func (g *Graph) undirectedComponents() [][]string {
	seen := make(map[string]bool)
	var components [][]string
	for _, start := range g.order {
		if seen[start] {
			continue
		}
		var component []string
		queue := []string{start}
		seen[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, e := range g.outgoing[cur] {
				if !seen[e.ToNode] {
					seen[e.ToNode] = true
					queue = append(queue, e.ToNode)
				}
			}
			for _, e := range g.incoming[cur] {
				if !seen[e.FromNode] {
					seen[e.FromNode] = true
					queue = append(queue, e.FromNode)
				}
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}
	return components
}
