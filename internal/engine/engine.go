// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/rules"
	"github.com/quillform/quillform/internal/types"
)

/*
 * Branching decision orchestrator.
 *
 * After every answer the engine decides what the respondent sees next:
 * either a rule fires and its action names the destination, or the survey
 * proceeds to the next question in order_index order.
 *
 * Decision procedure:
 *   1. Branching disabled: sequential order, no rules consulted.
 *   2. Otherwise scan active rules in (priority, id) order. Every examined
 *      rule gets an audit row, matched or not. The first rule whose
 *      condition holds is final: its action resolves the destination and no
 *      later rule is consulted. A matched action with no destination
 *      (end_survey, or a dangling target) means "no next question"; the
 *      scan is never re-opened after a match.
 *   3. No rule matches, or anything goes wrong mid-decision: sequential
 *      order. Branching failures must never strand a respondent, so every
 *      error path degrades to the sequential walk and logs why.
 *
 * An empty next question with EndSurvey false means the sequence is
 * exhausted; the session manager completes the session either way.
 */

// Decision is the outcome of one branching evaluation.
type Decision struct {
	// NextQuestionID is empty when the survey should end.
	NextQuestionID types.QuestionID

	// EndSurvey is set when an end_survey action fired; exhausting the
	// question sequence ends the survey too but leaves this false.
	EndSurvey bool

	// MatchedRuleID identifies the rule that decided, empty on the
	// sequential path.
	MatchedRuleID types.RuleID

	// Sequential reports that order_index ordering produced the decision.
	Sequential bool
}

// Engine evaluates survey rules against session responses.
type Engine struct {
	rules *RuleStore
	log   *zap.Logger
}

// New builds an Engine over a cached rule store.
func New(ruleStore *RuleStore, log *zap.Logger) *Engine {
	return &Engine{rules: ruleStore, log: log}
}

// Decide determines what follows the triggering response. The store argument
// carries the caller's transaction so audit rows commit atomically with the
// response that produced them.
func (e *Engine) Decide(ctx context.Context, store *db.Store, survey *types.Survey, session *types.SurveySession, triggering *types.Response) (Decision, error) {
	if !survey.BranchingEnabled {
		return e.sequential(ctx, store, survey, triggering)
	}

	activeRules, err := e.rules.ActiveRules(ctx, survey.ID)
	if err != nil {
		e.log.Warn("rule lookup failed, falling back to sequential order",
			zap.String("survey_id", string(survey.ID)), zap.Error(err))
		return e.sequential(ctx, store, survey, triggering)
	}
	if len(activeRules) == 0 {
		return e.sequential(ctx, store, survey, triggering)
	}

	responses, err := e.responseSet(ctx, store, session.ID)
	if err != nil {
		e.log.Warn("response lookup failed, falling back to sequential order",
			zap.String("session_id", string(session.ID)), zap.Error(err))
		return e.sequential(ctx, store, survey, triggering)
	}
	// Rules are scanned even with no stored responses: a not group matches
	// against unanswered questions.
	for _, rule := range activeRules {
		condition, err := rules.ParseCondition(rule.ConditionJSON)
		if err != nil {
			e.log.Warn("malformed rule condition, falling back to sequential order",
				zap.String("rule_id", string(rule.ID)), zap.Error(err))
			e.audit(ctx, store, triggering, rule, types.EvaluationResult{
				Reason: "evaluation error: " + err.Error(),
				Summary: types.ConditionSummary{
					ResponsesAvailable: len(responses),
				},
			})
			return e.sequential(ctx, store, survey, triggering)
		}

		matched := rules.Evaluate(condition, responses)
		reason := "rule conditions not met"
		if matched {
			reason = "rule conditions satisfied"
		}
		e.audit(ctx, store, triggering, rule, types.EvaluationResult{
			Matched: matched,
			Reason:  reason,
			Summary: types.ConditionSummary{
				ConditionType:      string(condition.Group.Operator),
				ConditionsCount:    len(condition.Group.Children),
				ResponsesAvailable: len(responses),
			},
		})
		if !matched {
			continue
		}

		action, err := rules.ParseAction(rule.ActionJSON)
		if err != nil {
			e.log.Warn("malformed rule action, falling back to sequential order",
				zap.String("rule_id", string(rule.ID)), zap.Error(err))
			return e.sequential(ctx, store, survey, triggering)
		}

		decision, err := e.execute(ctx, store, survey, action)
		if err != nil {
			e.log.Warn("rule action failed, falling back to sequential order",
				zap.String("rule_id", string(rule.ID)), zap.Error(err))
			return e.sequential(ctx, store, survey, triggering)
		}
		// The match is final even when the destination resolved to nothing:
		// an empty next question is an accepted outcome, not a reason to
		// consult later rules or the sequential order.
		decision.MatchedRuleID = rule.ID
		return decision, nil
	}

	return e.sequential(ctx, store, survey, triggering)
}

// execute resolves a matched rule's action to a destination. Targets outside
// the survey resolve to nothing rather than redirecting across surveys.
func (e *Engine) execute(ctx context.Context, store *db.Store, survey *types.Survey, action *types.Action) (Decision, error) {
	switch action.Type {
	case types.ActionShowQuestion, types.ActionSkipToQuestion:
		id, err := e.resolveTarget(ctx, store, survey, action.QuestionID)
		if err != nil {
			return Decision{}, err
		}
		return Decision{NextQuestionID: id}, nil

	case types.ActionShowSection:
		// A section action targets its first question.
		if len(action.QuestionIDs) == 0 {
			return Decision{}, nil
		}
		id, err := e.resolveTarget(ctx, store, survey, action.QuestionIDs[0])
		if err != nil {
			return Decision{}, err
		}
		return Decision{NextQuestionID: id}, nil

	case types.ActionEndSurvey:
		return Decision{EndSurvey: true}, nil

	default:
		return Decision{}, nil
	}
}

// resolveTarget confirms the target question exists and belongs to the
// survey; anything else resolves to no destination.
func (e *Engine) resolveTarget(ctx context.Context, store *db.Store, survey *types.Survey, id types.QuestionID) (types.QuestionID, error) {
	if id == "" {
		return "", nil
	}
	question, err := store.GetQuestion(ctx, id)
	if errors.Is(err, types.ErrQuestionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if question.SurveyID != survey.ID {
		return "", nil
	}
	return question.ID, nil
}

// sequential returns the question following the triggering response's
// question in order_index order.
func (e *Engine) sequential(ctx context.Context, store *db.Store, survey *types.Survey, triggering *types.Response) (Decision, error) {
	answered, err := store.GetQuestion(ctx, triggering.QuestionID)
	if err != nil {
		return Decision{}, err
	}
	next, err := store.NextQuestionAfter(ctx, survey.ID, answered.OrderIndex)
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{Sequential: true}
	if next != nil {
		decision.NextQuestionID = next.ID
	}
	return decision, nil
}

// responseSet flattens a session's responses into the evaluator's lookup map.
func (e *Engine) responseSet(ctx context.Context, store *db.Store, sessionID types.SessionID) (rules.ResponseSet, error) {
	responses, err := store.ListResponses(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	set := make(rules.ResponseSet, len(responses))
	for _, resp := range responses {
		set[resp.QuestionID] = resp.Value
	}
	return set, nil
}

// audit appends one evaluation record. Audit failures are logged and
// swallowed: diagnostics must never break a respondent's session.
func (e *Engine) audit(ctx context.Context, store *db.Store, triggering *types.Response, rule *types.SurveyRule, result types.EvaluationResult) {
	record := &types.ResponseAudit{
		ID:         types.NewAuditID(),
		ResponseID: triggering.ID,
		RuleID:     rule.ID,
		Result:     result,
		Timestamp:  time.Now().UTC(),
	}
	if err := store.InsertAudit(ctx, record); err != nil {
		e.log.Warn("failed to record rule evaluation audit",
			zap.String("rule_id", string(rule.ID)), zap.Error(err))
	}
}
