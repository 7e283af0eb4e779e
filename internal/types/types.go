// Package types provides domain models shared across quillform components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library. ID and token utilities in ids.go import uuid but are isolated so
// consumers embedding the evaluator don't pull in more than they need.
package types

import (
	"encoding/json"
	"time"
)

// SurveyID represents a UUIDv7 survey identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes and
// makes lexicographic ORDER BY equivalent to insertion order.
type SurveyID string

// QuestionID represents a UUIDv7 question identifier.
type QuestionID string

// RuleID represents a UUIDv7 rule identifier.
// Lexicographic ordering of RuleIDs matches creation order, which is what
// breaks priority ties during rule evaluation.
type RuleID string

// SessionID represents a UUIDv7 survey session identifier.
type SessionID string

// ResponseID represents a UUIDv7 response identifier.
type ResponseID string

// QuestionType enumerates the supported question input kinds.
type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionTextarea QuestionType = "textarea"
	QuestionEmail    QuestionType = "email"
	QuestionNumber   QuestionType = "number"
	QuestionSelect   QuestionType = "select"
	QuestionRadio    QuestionType = "radio"
	QuestionCheckbox QuestionType = "checkbox"
	QuestionDate     QuestionType = "date"
	QuestionRating   QuestionType = "rating"
)

// ValidQuestionType reports whether t is one of the enumerated kinds.
func ValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionText, QuestionTextarea, QuestionEmail, QuestionNumber,
		QuestionSelect, QuestionRadio, QuestionCheckbox, QuestionDate, QuestionRating:
		return true
	default:
		return false
	}
}

// Resource limits enforced by the rule engine and authoring layer.
const (
	// MaxRulesPerSurvey caps the rule set so a single decision never scans
	// an unbounded list. Enforced before rule creation, not at evaluation.
	MaxRulesPerSurvey = 50

	// MaxConditionDepth bounds condition group nesting to prevent stack
	// exhaustion on adversarial rule JSON. Enforced at parse time; the
	// evaluator never recurses deeper than a parsed tree.
	MaxConditionDepth = 10

	// SessionTimeout is the soft expiry applied to sessions. A session
	// whose last_activity is older than this is treated as nonexistent.
	SessionTimeout = 24 * time.Hour

	// RuleCacheTTL bounds staleness of the per-survey active-rule cache.
	// Mutations invalidate synchronously; the TTL is a backstop only.
	RuleCacheTTL = 5 * time.Minute
)

// Survey owns an ordered question list, a rule set, and respondent sessions.
type Survey struct {
	ID               SurveyID
	Title            string
	Description      string
	BranchingEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Question is a single survey question. OrderIndex is unique per survey,
// strictly increasing and dense; it defines the sequential fallback order.
type Question struct {
	ID         QuestionID
	SurveyID   SurveyID
	Type       QuestionType
	Content    string
	Options    []string
	OrderIndex int
	RuleTarget bool
	Required   bool
	CreatedAt  time.Time
}

// SurveyRule is a (condition, action, priority) triple scoped to a survey.
// ConditionJSON and ActionJSON hold the persisted raw trees; parse them with
// rules.ParseCondition / rules.ParseAction before use. Lower priority values
// evaluate first, ties broken by ID (creation order).
type SurveyRule struct {
	ID            RuleID
	SurveyID      SurveyID
	ConditionJSON json.RawMessage
	ActionJSON    json.RawMessage
	Priority      int
	Active        bool
	CreatedAt     time.Time
}

// RuleDependency is a directed parent -> child edge between two rules of the
// same survey. The edge set must stay acyclic at all times; it exists solely
// so authoring-time cycle detection can reject undecidable rule sets.
type RuleDependency struct {
	ID             string
	ParentRuleID   RuleID
	ChildRuleID    RuleID
	DependencyType string
	CreatedAt      time.Time
}

// SurveySession is one respondent's pass through a survey.
// CurrentQuestionID is empty once the session completes or when the survey
// has no questions. Completed is terminal; CompletedAt is set exactly once.
type SurveySession struct {
	ID                SessionID
	SurveyID          SurveyID
	Token             string
	CurrentQuestionID QuestionID
	ProgressData      json.RawMessage
	Completed         bool
	CompletedAt       *time.Time
	CreatedAt         time.Time
	LastActivity      time.Time
}

// Expired reports whether the session's soft expiry has passed at now. A
// non-positive timeout selects SessionTimeout.
func (s *SurveySession) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = SessionTimeout
	}
	return now.After(s.LastActivity.Add(timeout))
}

// Response is a respondent's answer to one question. Values are type-erased
// strings regardless of question type. Unique per (session, question);
// resubmission overwrites in place and sets UpdatedAt.
type Response struct {
	ID         ResponseID
	SessionID  SessionID
	QuestionID QuestionID
	Value      string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// ResponseAudit records one rule's evaluation outcome during one branching
// decision. A row is appended for every rule examined, matched or not.
type ResponseAudit struct {
	ID         string
	ResponseID ResponseID
	RuleID     RuleID
	Result     EvaluationResult
	Timestamp  time.Time
}

// EvaluationResult is the audit payload explaining why a rule did or did not
// fire. Summary carries coarse stats about the evaluated condition tree.
type EvaluationResult struct {
	Matched bool             `json:"matched"`
	Reason  string           `json:"reason"`
	Summary ConditionSummary `json:"evaluated_conditions"`
}

// ConditionSummary is a shallow description of the condition that was
// evaluated, for audit diagnostics.
type ConditionSummary struct {
	ConditionType      string `json:"condition_type"`
	ConditionsCount    int    `json:"conditions_count"`
	ResponsesAvailable int    `json:"responses_available"`
}

// Progress is the derived snapshot of a session's advancement. Percentage is
// rounded to two decimal places.
type Progress struct {
	TotalQuestions    int        `json:"total_questions"`
	AnsweredQuestions int        `json:"answered_questions"`
	Percentage        float64    `json:"progress_percentage"`
	Completed         bool       `json:"completed"`
	CurrentQuestionID QuestionID `json:"current_question_id,omitempty"`
	Token             string     `json:"session_token"`
}
