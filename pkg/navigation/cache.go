package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

// DefaultEntryMaxAge is how long a cached graph is kept before the sweeper
// may evict it.
const DefaultEntryMaxAge = 24 * time.Hour

// Entry is an immutable snapshot of a resolved tree: the graph plus the
// resolved node and edge records it was built from. Readers hold no lock
// past the cache lookup.
type Entry struct {
	Graph   *Graph
	Nodes   map[string]models.Node
	Edges   []models.Edge
	BuiltAt time.Time
}

// Cache maintains the process-wide mapping from tree references to built
// graphs. Each graph is registered under three equivalent keys — tree id,
// tree name, and userinterface name, all suffixed by team id — so the same
// in-memory object answers lookups by any of them.
type Cache struct {
	store store.Store

	mu      sync.Mutex
	entries map[string]*Entry

	// now is overridable in tests.
	now func() time.Time
}

// NewCache creates an empty cache backed by the given store.
func NewCache(s store.Store) *Cache {
	return &Cache{
		store:   s,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func cacheKey(ref, teamID string) string {
	return ref + "_" + teamID
}

// GetGraph returns the cached entry for a tree reference, loading and
// building it on miss. The reference may be a tree id, tree name, or
// userinterface name; id keys are tried first, then case-sensitive names,
// then case-insensitive.
func (c *Cache) GetGraph(ctx context.Context, treeRef, teamID string) (*Entry, error) {
	c.mu.Lock()
	if entry, ok := c.lookupLocked(treeRef, teamID); ok {
		c.mu.Unlock()
		return entry, nil
	}
	c.mu.Unlock()

	return c.build(ctx, treeRef, teamID)
}

// lookupLocked tries the exact key first, then a case-insensitive scan over
// the reference part of each key. Caller holds c.mu.
func (c *Cache) lookupLocked(treeRef, teamID string) (*Entry, bool) {
	if entry, ok := c.entries[cacheKey(treeRef, teamID)]; ok {
		return entry, true
	}
	suffix := "_" + teamID
	for key, entry := range c.entries {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		ref := strings.TrimSuffix(key, suffix)
		if strings.EqualFold(ref, treeRef) {
			return entry, true
		}
	}
	return nil, false
}

// Invalidate removes every key registered for the given tree and rebuilds
// the entry eagerly, so concurrent readers never observe a half-built graph
// under any of the three keys.
func (c *Cache) Invalidate(ctx context.Context, treeID, teamID string) error {
	c.mu.Lock()
	c.removeTreeLocked(treeID, teamID)
	c.mu.Unlock()

	_, err := c.build(ctx, treeID, teamID)
	return err
}

// removeTreeLocked drops all keys whose entry belongs to treeID.
func (c *Cache) removeTreeLocked(treeID, teamID string) {
	suffix := "_" + teamID
	for key, entry := range c.entries {
		if strings.HasSuffix(key, suffix) && entry.Graph.TreeID == treeID {
			delete(c.entries, key)
		}
	}
}

// Sweep removes entries older than maxAge. It is called on demand (by the
// cleanup service), not from a dedicated timer, so the cache stays usable in
// library contexts. Returns the number of evicted keys.
func (c *Cache) Sweep(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if entry.BuiltAt.Before(cutoff) {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("Navigation cache swept", "evicted_keys", evicted, "max_age", maxAge)
	}
	return evicted
}

// build loads the tree, resolves action/verification ids into objects,
// constructs the graph, and registers it atomically under all three keys.
func (c *Cache) build(ctx context.Context, treeRef, teamID string) (*Entry, error) {
	tree, err := c.store.GetTree(ctx, treeRef, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %q: %w", treeRef, err)
	}

	resolved, err := c.resolveTree(ctx, tree)
	if err != nil {
		return nil, err
	}

	graph := NewGraph(resolved)
	for _, n := range resolved.Nodes {
		graph.AddNode(n)
	}
	for _, e := range resolved.Edges {
		graph.AddEdge(e)
	}

	entry := &Entry{
		Graph:   graph,
		Nodes:   make(map[string]models.Node, len(resolved.Nodes)),
		Edges:   resolved.Edges,
		BuiltAt: c.now(),
	}
	for _, n := range resolved.Nodes {
		entry.Nodes[n.NodeID] = n
	}

	// Register under all three keys atomically. Consistency invariant:
	// the three keys always dereference to the same object.
	c.mu.Lock()
	c.removeTreeLocked(tree.TreeID, teamID)
	c.entries[cacheKey(tree.TreeID, teamID)] = entry
	if tree.Name != "" {
		c.entries[cacheKey(tree.Name, teamID)] = entry
	}
	if tree.UserinterfaceName != "" {
		c.entries[cacheKey(tree.UserinterfaceName, teamID)] = entry
	}
	c.mu.Unlock()

	slog.Info("Navigation graph built",
		"tree_id", tree.TreeID,
		"tree_name", tree.Name,
		"userinterface", tree.UserinterfaceName,
		"nodes", graph.NodeCount(),
		"edges", graph.EdgeCount())

	return entry, nil
}

// resolveTree materializes the id lists on nodes and edges into concrete
// Action / Verification objects via two bulk lookups. Missing ids are
// dropped silently — resolution is best-effort; the action simply won't run.
func (c *Cache) resolveTree(ctx context.Context, tree *models.NavigationTree) (*models.NavigationTree, error) {
	actionIDs := make(map[string]bool)
	verificationIDs := make(map[string]bool)
	for _, e := range tree.Edges {
		for _, id := range e.ActionIDs {
			actionIDs[id] = true
		}
		for _, id := range e.RetryActionIDs {
			actionIDs[id] = true
		}
		for _, id := range e.FailureActionIDs {
			actionIDs[id] = true
		}
	}
	for _, n := range tree.Nodes {
		for _, id := range n.VerificationIDs {
			verificationIDs[id] = true
		}
	}

	actionMap, err := c.store.GetActionsByIDs(ctx, tree.TeamID, keys(actionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-load actions: %w", err)
	}
	verificationMap, err := c.store.GetVerificationsByIDs(ctx, tree.TeamID, keys(verificationIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-load verifications: %w", err)
	}

	resolved := &models.NavigationTree{
		TreeID:            tree.TreeID,
		TeamID:            tree.TeamID,
		Name:              tree.Name,
		UserinterfaceName: tree.UserinterfaceName,
	}

	for _, n := range tree.Nodes {
		node := n
		node.Verifications = nil
		for _, id := range n.VerificationIDs {
			if v, ok := verificationMap[id]; ok {
				node.Verifications = append(node.Verifications, v)
			}
		}
		resolved.Nodes = append(resolved.Nodes, node)
	}

	for _, e := range tree.Edges {
		edge := e
		edge.Actions = resolveActions(e.ActionIDs, actionMap)
		edge.RetryActions = resolveActions(e.RetryActionIDs, actionMap)
		edge.FailureActions = resolveActions(e.FailureActionIDs, actionMap)
		if edge.FinalWaitTime == 0 {
			edge.FinalWaitTime = models.DefaultFinalWaitTime
		}
		resolved.Edges = append(resolved.Edges, edge)
	}

	return resolved, nil
}

// resolveActions substitutes ids for action copies, injecting the default
// wait_time where the action does not declare one. The copies own their
// params map so cached graphs never alias store records.
func resolveActions(ids []string, actionMap map[string]models.Action) []models.Action {
	var out []models.Action
	for _, id := range ids {
		a, ok := actionMap[id]
		if !ok {
			continue
		}
		params := make(map[string]any, len(a.Params)+1)
		for k, v := range a.Params {
			params[k] = v
		}
		if _, ok := params["wait_time"]; !ok {
			params["wait_time"] = models.DefaultActionWaitTime
		}
		a.Params = params
		out = append(out, a)
	}
	return out
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
