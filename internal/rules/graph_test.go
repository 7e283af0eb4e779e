// internal/rules/graph_test.go
package rules

import (
	"testing"

	"github.com/quillform/quillform/internal/types"
)

func ruleIDs(ids ...string) []types.RuleID {
	out := make([]types.RuleID, len(ids))
	for i, id := range ids {
		out[i] = types.RuleID(id)
	}
	return out
}

func TestGraph_WouldCreateCycle(t *testing.T) {
	tests := []struct {
		name   string
		edges  [][2]string
		parent string
		child  string
		want   bool
	}{
		{"self loop", nil, "a", "a", true},
		{"first edge", nil, "a", "b", false},
		{"direct back edge", [][2]string{{"a", "b"}}, "b", "a", true},
		{"transitive cycle", [][2]string{{"a", "b"}, {"b", "c"}}, "c", "a", true},
		{"long chain cycle", [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "e"}}, "e", "a", true},
		{"forward edge no cycle", [][2]string{{"a", "b"}, {"b", "c"}}, "a", "c", false},
		{"diamond no cycle", [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}}, "c", "d", false},
		{"disjoint components", [][2]string{{"a", "b"}, {"c", "d"}}, "b", "c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(ruleIDs("a", "b", "c", "d", "e"))
			for _, e := range tt.edges {
				g.AddEdge(types.RuleID(e[0]), types.RuleID(e[1]))
			}
			got := g.WouldCreateCycle(types.RuleID(tt.parent), types.RuleID(tt.child))
			if got != tt.want {
				t.Errorf("WouldCreateCycle(%s, %s) = %v, want %v", tt.parent, tt.child, got, tt.want)
			}
		})
	}
}

func TestGraph_HasEdge(t *testing.T) {
	g := NewGraph(ruleIDs("a", "b"))
	if g.HasEdge("a", "b") {
		t.Error("HasEdge on empty graph = true, want false")
	}
	g.AddEdge("a", "b")
	if !g.HasEdge("a", "b") {
		t.Error("HasEdge after AddEdge = false, want true")
	}
	if g.HasEdge("b", "a") {
		t.Error("HasEdge is directional; reverse edge should be absent")
	}
}

func TestGraph_HasCycle(t *testing.T) {
	acyclic := BuildGraph(ruleIDs("a", "b", "c"), []types.RuleDependency{
		{ParentRuleID: "a", ChildRuleID: "b"},
		{ParentRuleID: "b", ChildRuleID: "c"},
		{ParentRuleID: "a", ChildRuleID: "c"},
	})
	if acyclic.HasCycle() {
		t.Error("HasCycle() = true on a DAG, want false")
	}

	cyclic := BuildGraph(ruleIDs("a", "b", "c"), []types.RuleDependency{
		{ParentRuleID: "a", ChildRuleID: "b"},
		{ParentRuleID: "b", ChildRuleID: "c"},
		{ParentRuleID: "c", ChildRuleID: "a"},
	})
	if !cyclic.HasCycle() {
		t.Error("HasCycle() = false on a cycle, want true")
	}
}

func TestBuildGraph_ImplicitNodes(t *testing.T) {
	// Edges may reference rules not in the ID list.
	g := BuildGraph(ruleIDs("a"), []types.RuleDependency{
		{ParentRuleID: "a", ChildRuleID: "x"},
	})
	if !g.HasEdge("a", "x") {
		t.Error("edge to implicitly added node missing")
	}
	if !g.WouldCreateCycle("x", "a") {
		t.Error("cycle through implicit node not detected")
	}
}
