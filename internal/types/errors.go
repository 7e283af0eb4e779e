package types

import "errors"

// Sentinel errors for quillform operations.
//
// Validation problems (bad rule structure, dangling question references) are
// reported as []string lists by the rules package, not as errors; the
// sentinels below are true state and misuse signals.
var (
	// ErrSessionCompleted indicates a response submission against a
	// completed session. Completed is terminal.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrSessionNotFound indicates an unknown or expired session token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoResponseHistory indicates back-navigation on a session with no
	// submitted responses.
	ErrNoResponseHistory = errors.New("session has no response history")

	// ErrQuestionNotInSurvey indicates a question reference outside the
	// session's survey.
	ErrQuestionNotInSurvey = errors.New("question does not belong to survey")

	// ErrRuleLimitExceeded indicates the per-survey rule cap was hit.
	ErrRuleLimitExceeded = errors.New("survey rule limit exceeded")

	// ErrBranchingDisabled indicates a rule mutation on a survey whose
	// branching flag is off.
	ErrBranchingDisabled = errors.New("survey branching is disabled")

	// ErrCircularDependency indicates a dependency edge that would close a
	// cycle in a survey's rule dependency graph.
	ErrCircularDependency = errors.New("rule dependency would create a cycle")

	// ErrDuplicateDependency indicates a (parent, child) edge that already
	// exists.
	ErrDuplicateDependency = errors.New("rule dependency already exists")

	// ErrRuleNotInSurvey indicates a dependency edge across two surveys.
	ErrRuleNotInSurvey = errors.New("rule does not belong to survey")

	// ErrInvalidRule indicates a rule that failed structural validation and
	// cannot be persisted.
	ErrInvalidRule = errors.New("rule failed validation")

	// ErrConditionTooDeep indicates condition nesting beyond MaxConditionDepth.
	ErrConditionTooDeep = errors.New("condition nesting exceeds maximum depth")

	// ErrMalformedCondition indicates condition JSON that cannot be parsed
	// into a condition tree.
	ErrMalformedCondition = errors.New("malformed condition")

	// ErrMalformedAction indicates action JSON that cannot be parsed into
	// an action descriptor.
	ErrMalformedAction = errors.New("malformed action")

	// ErrSurveyNotFound indicates an unknown survey ID.
	ErrSurveyNotFound = errors.New("survey not found")

	// ErrQuestionNotFound indicates an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrRuleNotFound indicates an unknown rule ID.
	ErrRuleNotFound = errors.New("rule not found")
)
