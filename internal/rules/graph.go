// internal/rules/graph.go
package rules

import (
	"github.com/quillform/quillform/internal/types"
)

/*
 * Rule dependency graph.
 *
 * Rules within a survey form a directed graph via parent -> child dependency
 * edges. The edge set must stay acyclic: a cycle would make the rule set
 * undecidable, so every proposed edge is checked before it is persisted.
 *
 * Implementation: arena-indexed adjacency. Rules map to dense integer nodes,
 * edges to an adjacency list, and cycle checks are iterative depth-first
 * reachability over the full transitive edge set. Cycles through chains of
 * intermediate rules are caught, not just direct back-edges. Storage-level
 * recursive queries are deliberately avoided; the whole edge set of one
 * survey is small enough to walk in memory.
 */

// Graph is a dependency graph over one survey's rules.
type Graph struct {
	index map[types.RuleID]int
	ids   []types.RuleID
	adj   [][]int
}

// NewGraph builds an empty graph over the given rule set.
func NewGraph(ruleIDs []types.RuleID) *Graph {
	g := &Graph{
		index: make(map[types.RuleID]int, len(ruleIDs)),
		ids:   make([]types.RuleID, 0, len(ruleIDs)),
		adj:   make([][]int, 0, len(ruleIDs)),
	}
	for _, id := range ruleIDs {
		g.node(id)
	}
	return g
}

// BuildGraph constructs the dependency graph from a survey's persisted edges.
// Rules referenced only by edges are added implicitly.
func BuildGraph(ruleIDs []types.RuleID, edges []types.RuleDependency) *Graph {
	g := NewGraph(ruleIDs)
	for _, e := range edges {
		g.AddEdge(e.ParentRuleID, e.ChildRuleID)
	}
	return g
}

// node returns the arena index for a rule, allocating one if needed.
func (g *Graph) node(id types.RuleID) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.index[id] = i
	g.ids = append(g.ids, id)
	g.adj = append(g.adj, nil)
	return i
}

// AddEdge records a parent -> child dependency. Callers must check
// WouldCreateCycle first; AddEdge does not validate.
func (g *Graph) AddEdge(parent, child types.RuleID) {
	p := g.node(parent)
	c := g.node(child)
	g.adj[p] = append(g.adj[p], c)
}

// HasEdge reports whether the exact parent -> child edge already exists.
func (g *Graph) HasEdge(parent, child types.RuleID) bool {
	p, ok := g.index[parent]
	if !ok {
		return false
	}
	c, ok := g.index[child]
	if !ok {
		return false
	}
	for _, n := range g.adj[p] {
		if n == c {
			return true
		}
	}
	return false
}

// WouldCreateCycle reports whether adding parent -> child would close a
// cycle: either the edge is a self-loop or a path of existing edges already
// leads from child back to parent.
func (g *Graph) WouldCreateCycle(parent, child types.RuleID) bool {
	if parent == child {
		return true
	}
	c, ok := g.index[child]
	if !ok {
		return false
	}
	p, ok := g.index[parent]
	if !ok {
		return false
	}
	return g.reachable(c, p)
}

// reachable performs iterative DFS from src looking for dst.
func (g *Graph) reachable(src, dst int) bool {
	visited := make([]bool, len(g.adj))
	stack := []int{src}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == dst {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, g.adj[n]...)
	}
	return false
}

// HasCycle reports whether the graph already contains any cycle. Used as an
// integrity check over persisted edge sets.
func (g *Graph) HasCycle() bool {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, len(g.adj))

	var visit func(n int) bool
	visit = func(n int) bool {
		state[n] = inStack
		for _, next := range g.adj[n] {
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[n] = done
		return false
	}

	for n := range g.adj {
		if state[n] == unvisited && visit(n) {
			return true
		}
	}
	return false
}
