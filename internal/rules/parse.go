// internal/rules/parse.go
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/quillform/quillform/internal/types"
)

/*
 * Rule JSON parsing.
 *
 * Converts persisted condition/action JSON into the typed trees in
 * internal/types. Parsing is the only place raw rule JSON is touched; the
 * evaluator and validator operate on the tagged form exclusively.
 *
 * Node discrimination follows the persisted format: a node carrying a
 * "conditions" key is a group, anything else is a leaf. Missing group
 * operators default to "and" and missing leaf operators to "equals",
 * matching the behavior rule data in the wild already depends on. Unknown
 * operators survive parsing; validation flags them and evaluation treats
 * them as never-satisfied.
 *
 * Why a depth limit: condition groups nest recursively and the evaluator
 * walks them recursively. MaxConditionDepth caps nesting at parse time so
 * adversarial rule JSON cannot exhaust the stack during evaluation.
 */

// rawConditionNode mirrors the persisted node shape. Conditions is a pointer
// so an explicitly empty group is distinguishable from a leaf.
type rawConditionNode struct {
	Operator   *string            `json:"operator"`
	Conditions *[]json.RawMessage `json:"conditions"`
	QuestionID string             `json:"questionId"`
	Value      json.RawMessage    `json:"value"`
}

// rawAction mirrors the persisted action descriptor.
type rawAction struct {
	Type        *string  `json:"type"`
	QuestionID  string   `json:"questionId"`
	QuestionIDs []string `json:"questionIds"`
}

// ParseCondition converts persisted condition JSON into a typed tree.
// The root is always treated as a group. Returns ErrMalformedCondition for
// JSON that is not an object and ErrConditionTooDeep past MaxConditionDepth.
func ParseCondition(raw json.RawMessage) (*types.ConditionNode, error) {
	if len(raw) == 0 {
		return nil, types.ErrMalformedCondition
	}

	node, err := parseNode(raw, 1)
	if err != nil {
		return nil, err
	}

	// The persisted root is a group even when the "conditions" key is
	// absent; an operator with nothing to prove evaluates false.
	if node.Leaf != nil {
		return nil, fmt.Errorf("%w: root must be a condition group", types.ErrMalformedCondition)
	}

	return node, nil
}

func parseNode(raw json.RawMessage, depth int) (*types.ConditionNode, error) {
	if depth > types.MaxConditionDepth {
		return nil, types.ErrConditionTooDeep
	}

	var rn rawConditionNode
	if err := json.Unmarshal(raw, &rn); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedCondition, err)
	}

	if rn.Conditions != nil || rn.QuestionID == "" {
		return parseGroup(rn, depth)
	}
	return parseLeaf(rn)
}

func parseGroup(rn rawConditionNode, depth int) (*types.ConditionNode, error) {
	op := types.GroupAnd
	if rn.Operator != nil {
		op = types.GroupOperator(*rn.Operator)
	}

	group := &types.GroupCondition{Operator: op}
	if rn.Conditions != nil {
		group.Children = make([]types.ConditionNode, 0, len(*rn.Conditions))
		for _, childRaw := range *rn.Conditions {
			child, err := parseNode(childRaw, depth+1)
			if err != nil {
				return nil, err
			}
			group.Children = append(group.Children, *child)
		}
	}

	return &types.ConditionNode{Group: group}, nil
}

func parseLeaf(rn rawConditionNode) (*types.ConditionNode, error) {
	op := types.OpEquals
	if rn.Operator != nil {
		op = types.LeafOperator(*rn.Operator)
	}

	leaf := &types.LeafCondition{
		QuestionID: types.QuestionID(rn.QuestionID),
		Operator:   op,
	}

	if len(rn.Value) > 0 {
		var v any
		if err := json.Unmarshal(rn.Value, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedCondition, err)
		}
		if list, ok := v.([]any); ok {
			leaf.Values = list
			leaf.HasList = true
		} else {
			leaf.Value = v
		}
	}

	return &types.ConditionNode{Leaf: leaf}, nil
}

// ParseAction converts persisted action JSON into a typed descriptor.
// A missing type defaults to show_question; unknown types survive parsing
// and resolve to no destination at execution time.
func ParseAction(raw json.RawMessage) (*types.Action, error) {
	if len(raw) == 0 {
		return nil, types.ErrMalformedAction
	}

	var ra rawAction
	if err := json.Unmarshal(raw, &ra); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedAction, err)
	}

	actionType := types.ActionShowQuestion
	if ra.Type != nil {
		actionType = types.ActionType(*ra.Type)
	}

	action := &types.Action{
		Type:       actionType,
		QuestionID: types.QuestionID(ra.QuestionID),
	}
	for _, id := range ra.QuestionIDs {
		action.QuestionIDs = append(action.QuestionIDs, types.QuestionID(id))
	}

	return action, nil
}
