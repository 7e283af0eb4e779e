// internal/rules/evaluate.go
package rules

import (
	"github.com/quillform/quillform/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluates a parsed condition tree against the responses collected so far
 * in a session. Evaluation is a total function: every structurally valid
 * node produces a boolean, structurally questionable leaves produce false,
 * and nothing here returns an error or panics. Failure handling (malformed
 * persisted JSON, storage errors) lives in the engine, not here.
 *
 * Group semantics:
 *   - and: true iff no child evaluated false
 *   - or:  true iff at least one child evaluated true
 *   - not: negation of the FIRST child only; extra children are ignored
 *   - empty child list at any level: false (a condition that proves
 *     nothing is never satisfied); a childless "not" is therefore false
 *   - unknown operator: false
 *
 * Leaf semantics: a leaf referencing an unanswered question is false for
 * every operator, including empty/not_empty. Operator comparisons live in
 * operators.go.
 *
 * The single-child "not" is preserved deliberately; persisted rule data may
 * depend on it. Widening it to NAND/NOR would silently change decisions.
 */

// ResponseSet maps question IDs to the raw stored response values.
type ResponseSet map[types.QuestionID]string

// Evaluate walks the condition tree and reports whether it is satisfied by
// the given responses. Nil nodes evaluate false.
func Evaluate(node *types.ConditionNode, responses ResponseSet) bool {
	if node == nil {
		return false
	}
	if node.Group != nil {
		return evaluateGroup(node.Group, responses)
	}
	if node.Leaf != nil {
		return evaluateLeaf(node.Leaf, responses)
	}
	return false
}

func evaluateGroup(group *types.GroupCondition, responses ResponseSet) bool {
	if len(group.Children) == 0 {
		return false
	}

	results := make([]bool, len(group.Children))
	for i := range group.Children {
		results[i] = Evaluate(&group.Children[i], responses)
	}

	switch group.Operator {
	case types.GroupAnd:
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	case types.GroupOr:
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	case types.GroupNot:
		return !results[0]
	default:
		return false
	}
}

func evaluateLeaf(leaf *types.LeafCondition, responses ResponseSet) bool {
	if leaf.QuestionID == "" {
		return false
	}

	// Unanswered question: condition not satisfied regardless of operator.
	stored, ok := responses[leaf.QuestionID]
	if !ok {
		return false
	}

	return compareLeaf(leaf, stored)
}
