// Package dag is a small directed graph of named nodes with cycle detection
// and deterministic topological ordering. The record batch helper uses it to
// order writes by foreign key dependencies between tables.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Graph is a directed graph where an edge parent -> child means the child
// depends on the parent.
type Graph struct {
	nodes   map[string]struct{}
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// HasNode reports whether id was added.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if !g.HasNode(parentID) {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if !g.HasNode(childID) {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Parents returns the direct dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the direct dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// Nodes returns all node IDs, sorted.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// FindCycle returns a cycle path, or nil when the graph is acyclic.
// Nodes are visited in sorted order so the reported cycle is stable.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	via := make(map[string]string)

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		children := slices.Clone(g.edges[id])
		sort.Strings(children)
		for _, childID := range children {
			if !visited[childID] {
				via[childID] = id
				if dfs(childID) {
					return true
				}
			} else if onStack[childID] {
				cycle = []string{id, childID}
				for curr := id; curr != childID; curr = via[curr] {
					cycle = append([]string{via[curr]}, cycle...)
				}
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.Nodes() {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns node IDs with every node after all of its
// dependencies. Unrelated nodes keep sorted order. It returns a *CycleError
// when the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	visited := make(map[string]bool)
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		parents := slices.Clone(g.parents[id])
		sort.Strings(parents)
		for _, parentID := range parents {
			visit(parentID)
		}
		result = append(result, id)
	}

	for _, id := range g.Nodes() {
		visit(id)
	}
	return result, nil
}

// Levels groups nodes by depth: level 0 holds nodes without dependencies and
// level N nodes whose deepest dependency sits on level N-1.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	maxLevel := -1
	for _, id := range order {
		l := 0
		for _, p := range g.parents[id] {
			if level[p]+1 > l {
				l = level[p] + 1
			}
		}
		level[id] = l
		maxLevel = max(maxLevel, l)
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Upstream returns every transitive dependency of id, sorted.
func (g *Graph) Upstream(id string) []string {
	seen := make(map[string]bool)

	var walk func(nodeID string)
	walk = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !seen[parentID] {
				seen[parentID] = true
				walk(parentID)
			}
		}
	}
	walk(id)

	result := make([]string, 0, len(seen))
	for nodeID := range seen {
		result = append(result, nodeID)
	}
	sort.Strings(result)
	return result
}
