// internal/rules/validate.go
package rules

import (
	"errors"
	"fmt"

	"github.com/quillform/quillform/internal/types"
)

/*
 * Structural rule validation.
 *
 * Runs at rule creation and update, before anything is persisted. All
 * violations are collected and returned together so an author sees every
 * problem in one pass instead of fixing them one round-trip at a time.
 *
 * Validation is structural only: operators must be known, groups must be
 * non-empty, every question reference must resolve to a question of the
 * rule's own survey, and actions must carry usable destinations. Cycle
 * detection over the dependency edge set is a separate concern (graph.go)
 * because it needs the survey's full edge set, not just one rule.
 */

// QuestionSet reports whether a question ID belongs to the survey a rule is
// scoped to.
type QuestionSet map[types.QuestionID]bool

// ValidateRule checks a rule's condition and action structure. The returned
// list is empty when the rule is valid.
func ValidateRule(rule *types.SurveyRule, questions QuestionSet) []string {
	var problems []string

	if len(rule.ConditionJSON) == 0 {
		problems = append(problems, "rule condition cannot be empty")
	} else {
		problems = append(problems, ValidateCondition(rule.ConditionJSON, questions)...)
	}

	if len(rule.ActionJSON) == 0 {
		problems = append(problems, "rule action cannot be empty")
	} else {
		problems = append(problems, ValidateAction(rule.ActionJSON, questions)...)
	}

	return problems
}

// ValidateCondition parses and structurally checks condition JSON.
func ValidateCondition(raw []byte, questions QuestionSet) []string {
	node, err := ParseCondition(raw)
	if err != nil {
		if errors.Is(err, types.ErrConditionTooDeep) {
			return []string{fmt.Sprintf("condition nesting exceeds maximum depth of %d", types.MaxConditionDepth)}
		}
		return []string{fmt.Sprintf("condition is not valid JSON: %v", err)}
	}

	var problems []string
	validateNode(node, questions, &problems)
	return problems
}

func validateNode(node *types.ConditionNode, questions QuestionSet, problems *[]string) {
	if node.Group != nil {
		group := node.Group
		if !types.ValidGroupOperator(group.Operator) {
			*problems = append(*problems, fmt.Sprintf("invalid condition operator: %q", group.Operator))
		}
		if len(group.Children) == 0 {
			*problems = append(*problems, "condition must have at least one sub-condition")
		}
		for i := range group.Children {
			validateNode(&group.Children[i], questions, problems)
		}
		return
	}

	leaf := node.Leaf
	if !types.ValidLeafOperator(leaf.Operator) {
		*problems = append(*problems, fmt.Sprintf("invalid comparison operator: %q", leaf.Operator))
	}
	if leaf.QuestionID == "" {
		*problems = append(*problems, "condition references no question")
	} else if !questions[leaf.QuestionID] {
		*problems = append(*problems, fmt.Sprintf("invalid question ID in condition: %s", leaf.QuestionID))
	}
}

// ValidateAction parses and structurally checks action JSON.
func ValidateAction(raw []byte, questions QuestionSet) []string {
	action, err := ParseAction(raw)
	if err != nil {
		return []string{fmt.Sprintf("action is not valid JSON: %v", err)}
	}

	var problems []string

	if !types.ValidActionType(action.Type) {
		problems = append(problems, fmt.Sprintf("invalid action type: %q", action.Type))
		return problems
	}

	switch action.Type {
	case types.ActionShowQuestion, types.ActionSkipToQuestion:
		if action.QuestionID == "" {
			problems = append(problems, fmt.Sprintf("%s action requires a question ID", action.Type))
		} else if !questions[action.QuestionID] {
			problems = append(problems, fmt.Sprintf("invalid question ID in action: %s", action.QuestionID))
		}
	case types.ActionShowSection:
		if len(action.QuestionIDs) == 0 {
			problems = append(problems, "show_section action requires at least one question ID")
		}
		for _, id := range action.QuestionIDs {
			if !questions[id] {
				problems = append(problems, fmt.Sprintf("invalid question ID in action: %s", id))
			}
		}
	case types.ActionEndSurvey:
		// No destination to check.
	}

	return problems
}
