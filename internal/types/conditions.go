// internal/types/conditions.go
package types

/*
 * Typed condition and action trees.
 *
 * Persisted rule JSON is duck-typed (a node is a group when it carries a
 * "conditions" key, a leaf otherwise). These types are the parsed, tagged
 * form the evaluator and validator operate on; raw JSON is converted once at
 * the boundary by rules.ParseCondition / rules.ParseAction and never walked
 * as loose maps afterwards.
 *
 * Key types:
 *   - ConditionNode: tagged union, exactly one of Group/Leaf set
 *   - GroupCondition: and/or/not over child nodes
 *   - LeafCondition: single comparison against one question's response
 *   - Action: descriptor resolved by the engine after a rule matches
 *
 * Dependencies: none (stdlib only).
 */

// GroupOperator combines child condition results.
type GroupOperator string

const (
	GroupAnd GroupOperator = "and"
	GroupOr  GroupOperator = "or"
	GroupNot GroupOperator = "not"
)

// ValidGroupOperator reports whether op is a known group operator.
func ValidGroupOperator(op GroupOperator) bool {
	return op == GroupAnd || op == GroupOr || op == GroupNot
}

// LeafOperator compares one stored response value against a comparand.
type LeafOperator string

const (
	OpEquals       LeafOperator = "equals"
	OpNotEquals    LeafOperator = "not_equals"
	OpContains     LeafOperator = "contains"
	OpNotContains  LeafOperator = "not_contains"
	OpGreaterThan  LeafOperator = "greater_than"
	OpLessThan     LeafOperator = "less_than"
	OpGreaterEqual LeafOperator = "greater_equal"
	OpLessEqual    LeafOperator = "less_equal"
	OpIn           LeafOperator = "in"
	OpNotIn        LeafOperator = "not_in"
	OpEmpty        LeafOperator = "empty"
	OpNotEmpty     LeafOperator = "not_empty"
)

// ValidLeafOperator reports whether op is a known leaf operator.
func ValidLeafOperator(op LeafOperator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual,
		OpIn, OpNotIn, OpEmpty, OpNotEmpty:
		return true
	default:
		return false
	}
}

// ConditionNode is one node of a condition tree. Exactly one of Group or
// Leaf is non-nil after parsing.
type ConditionNode struct {
	Group *GroupCondition
	Leaf  *LeafCondition
}

// GroupCondition combines child results with a boolean operator.
// A "not" group negates its first child only; extra children are ignored.
type GroupCondition struct {
	Operator GroupOperator
	Children []ConditionNode
}

// LeafCondition compares a single question's response against a comparand.
// Value holds scalar comparands (string, float64, bool, or nil) with their
// JSON types preserved; Values holds the list comparand for in/not_in.
type LeafCondition struct {
	QuestionID QuestionID
	Operator   LeafOperator
	Value      any
	Values     []any
	HasList    bool
}

// ActionType enumerates what a matched rule does.
type ActionType string

const (
	ActionShowQuestion   ActionType = "show_question"
	ActionSkipToQuestion ActionType = "skip_to_question"
	ActionShowSection    ActionType = "show_section"
	ActionEndSurvey      ActionType = "end_survey"
)

// ValidActionType reports whether t is a known action type.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionShowQuestion, ActionSkipToQuestion, ActionShowSection, ActionEndSurvey:
		return true
	default:
		return false
	}
}

// Action is a matched rule's resolved descriptor. QuestionID is set for
// show_question/skip_to_question; QuestionIDs for show_section, whose first
// entry is the destination (a section action always targets its first
// question, never the whole list).
type Action struct {
	Type        ActionType
	QuestionID  QuestionID
	QuestionIDs []QuestionID
}
