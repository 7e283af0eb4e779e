// internal/survey/manager.go
package survey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/engine"
	"github.com/quillform/quillform/internal/rules"
	"github.com/quillform/quillform/internal/types"
)

/*
 * Survey authoring.
 *
 * The Manager owns every mutation an author performs: surveys, their
 * question sequences, branching rules, and rule dependencies. All rule-set
 * integrity checks live here, at write time, so the evaluation path can
 * trust what it reads: rules are structurally validated before persisting,
 * the per-survey rule cap is enforced, and dependency edges are rejected
 * when they would close a cycle.
 *
 * Question order maintenance keeps order_index dense and 1-based: new
 * questions append at max+1, deletion closes the gap it leaves, reordering
 * renumbers the full sequence. The sequential fallback walk depends on this.
 *
 * Every rule mutation invalidates the survey's cached rule set before
 * returning.
 */

// Manager performs authoring operations over surveys, questions, and rules.
type Manager struct {
	store *db.Store
	rules *engine.RuleStore
	log   *zap.Logger
	now   func() time.Time
}

// NewManager builds an authoring Manager. The rule store is shared with the
// engine so cache invalidation reaches the decisions being made.
func NewManager(store *db.Store, ruleStore *engine.RuleStore, log *zap.Logger) *Manager {
	return &Manager{store: store, rules: ruleStore, log: log, now: time.Now}
}

// CreateSurvey persists a new survey.
func (m *Manager) CreateSurvey(ctx context.Context, title, description string, branchingEnabled bool) (*types.Survey, error) {
	now := m.now().UTC()
	survey := &types.Survey{
		ID:               types.NewSurveyID(),
		Title:            title,
		Description:      description,
		BranchingEnabled: branchingEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.InsertSurvey(ctx, survey); err != nil {
		return nil, err
	}
	return survey, nil
}

// UpdateSurvey changes a survey's metadata and branching flag. Disabling
// branching leaves rules in place but stops them from being consulted.
func (m *Manager) UpdateSurvey(ctx context.Context, id types.SurveyID, title, description string, branchingEnabled bool) (*types.Survey, error) {
	survey, err := m.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	survey.Title = title
	survey.Description = description
	survey.BranchingEnabled = branchingEnabled
	survey.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateSurvey(ctx, survey); err != nil {
		return nil, err
	}
	return survey, nil
}

// DeleteSurvey removes a survey and everything it owns.
func (m *Manager) DeleteSurvey(ctx context.Context, id types.SurveyID) error {
	if err := m.store.DeleteSurvey(ctx, id); err != nil {
		return err
	}
	m.rules.Invalidate(id)
	return nil
}

// AddQuestion appends a question to the end of the survey's sequence.
func (m *Manager) AddQuestion(ctx context.Context, surveyID types.SurveyID, questionType types.QuestionType, content string, options []string, required, ruleTarget bool) (*types.Question, error) {
	if !types.ValidQuestionType(questionType) {
		return nil, fmt.Errorf("unknown question type: %q", questionType)
	}
	if _, err := m.store.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}

	max, err := m.store.MaxOrderIndex(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	question := &types.Question{
		ID:         types.NewQuestionID(),
		SurveyID:   surveyID,
		Type:       questionType,
		Content:    content,
		Options:    options,
		OrderIndex: max + 1,
		RuleTarget: ruleTarget,
		Required:   required,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.InsertQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// UpdateQuestion changes a question's content; its position is untouched.
func (m *Manager) UpdateQuestion(ctx context.Context, id types.QuestionID, questionType types.QuestionType, content string, options []string, required, ruleTarget bool) (*types.Question, error) {
	if !types.ValidQuestionType(questionType) {
		return nil, fmt.Errorf("unknown question type: %q", questionType)
	}
	question, err := m.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	question.Type = questionType
	question.Content = content
	question.Options = options
	question.Required = required
	question.RuleTarget = ruleTarget
	if err := m.store.UpdateQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// ReorderQuestions renumbers the survey's sequence to match orderedIDs. The
// list must name every question of the survey exactly once.
func (m *Manager) ReorderQuestions(ctx context.Context, surveyID types.SurveyID, orderedIDs []types.QuestionID) error {
	existing, err := m.store.ListQuestions(ctx, surveyID)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(existing) {
		return fmt.Errorf("reorder list names %d questions, survey has %d", len(orderedIDs), len(existing))
	}
	known := make(map[types.QuestionID]bool, len(existing))
	for _, q := range existing {
		known[q.ID] = true
	}
	seen := make(map[types.QuestionID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return fmt.Errorf("question %s does not belong to this survey", id)
		}
		if seen[id] {
			return fmt.Errorf("question %s appears twice in reorder list", id)
		}
		seen[id] = true
	}

	return m.store.Transact(ctx, func(tx *db.Store) error {
		for i, id := range orderedIDs {
			if err := tx.SetQuestionOrder(ctx, id, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteQuestion removes a question and closes the order gap it leaves.
func (m *Manager) DeleteQuestion(ctx context.Context, id types.QuestionID) error {
	question, err := m.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	return m.store.Transact(ctx, func(tx *db.Store) error {
		if err := tx.DeleteQuestion(ctx, id); err != nil {
			return err
		}
		return tx.CloseOrderGap(ctx, question.SurveyID, question.OrderIndex)
	})
}

// AddRule validates and persists a branching rule. Fails with
// ErrBranchingDisabled when the survey doesn't use branching,
// ErrRuleLimitExceeded at the per-survey cap, and ErrInvalidRule carrying
// every structural problem found.
func (m *Manager) AddRule(ctx context.Context, surveyID types.SurveyID, conditionJSON, actionJSON []byte, priority int) (*types.SurveyRule, error) {
	survey, err := m.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if !survey.BranchingEnabled {
		return nil, types.ErrBranchingDisabled
	}

	count, err := m.store.CountRules(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if count >= types.MaxRulesPerSurvey {
		return nil, fmt.Errorf("%w: survey already has %d rules", types.ErrRuleLimitExceeded, count)
	}

	rule := &types.SurveyRule{
		ID:            types.NewRuleID(),
		SurveyID:      surveyID,
		ConditionJSON: conditionJSON,
		ActionJSON:    actionJSON,
		Priority:      priority,
		Active:        true,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.validateRule(ctx, rule); err != nil {
		return nil, err
	}

	if err := m.store.InsertRule(ctx, rule); err != nil {
		return nil, err
	}
	m.rules.Invalidate(surveyID)
	m.log.Info("rule added",
		zap.String("survey_id", string(surveyID)),
		zap.String("rule_id", string(rule.ID)),
		zap.Int("priority", priority))
	return rule, nil
}

// UpdateRule revalidates and persists changed rule content.
func (m *Manager) UpdateRule(ctx context.Context, id types.RuleID, conditionJSON, actionJSON []byte, priority int) (*types.SurveyRule, error) {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.ConditionJSON = conditionJSON
	rule.ActionJSON = actionJSON
	rule.Priority = priority
	if err := m.validateRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := m.store.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	m.rules.Invalidate(rule.SurveyID)
	return rule, nil
}

// SetRuleActive toggles a rule without deleting its definition.
func (m *Manager) SetRuleActive(ctx context.Context, id types.RuleID, active bool) error {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.SetRuleActive(ctx, id, active); err != nil {
		return err
	}
	m.rules.Invalidate(rule.SurveyID)
	return nil
}

// DeleteRule removes a rule and its dependency edges.
func (m *Manager) DeleteRule(ctx context.Context, id types.RuleID) error {
	rule, err := m.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	m.rules.Invalidate(rule.SurveyID)
	return nil
}

// AddRuleDependency records a parent -> child edge between two rules of the
// same survey. Rejects cross-survey edges, duplicates, and any edge that
// would close a cycle, including cycles through intermediate rules.
func (m *Manager) AddRuleDependency(ctx context.Context, parentID, childID types.RuleID, dependencyType string) (*types.RuleDependency, error) {
	parent, err := m.store.GetRule(ctx, parentID)
	if err != nil {
		return nil, err
	}
	child, err := m.store.GetRule(ctx, childID)
	if err != nil {
		return nil, err
	}
	if parent.SurveyID != child.SurveyID {
		return nil, types.ErrRuleNotInSurvey
	}

	ruleIDs, err := m.store.ListRuleIDs(ctx, parent.SurveyID)
	if err != nil {
		return nil, err
	}
	edges, err := m.store.ListDependencies(ctx, parent.SurveyID)
	if err != nil {
		return nil, err
	}

	graph := rules.BuildGraph(ruleIDs, edges)
	if graph.HasEdge(parentID, childID) {
		return nil, types.ErrDuplicateDependency
	}
	if graph.WouldCreateCycle(parentID, childID) {
		return nil, types.ErrCircularDependency
	}

	if dependencyType == "" {
		dependencyType = "prerequisite"
	}
	dep := &types.RuleDependency{
		ID:             types.NewDependencyID(),
		ParentRuleID:   parentID,
		ChildRuleID:    childID,
		DependencyType: dependencyType,
		CreatedAt:      m.now().UTC(),
	}
	if err := m.store.InsertDependency(ctx, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

// Stats summarizes a survey's authoring state.
type Stats struct {
	Questions   int
	Rules       int
	CanAddRules bool
}

// SurveyStats reports question and rule counts and whether the survey has
// headroom under the rule cap.
func (m *Manager) SurveyStats(ctx context.Context, surveyID types.SurveyID) (*Stats, error) {
	questions, err := m.store.CountQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	ruleCount, err := m.store.CountRules(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Questions:   questions,
		Rules:       ruleCount,
		CanAddRules: ruleCount < types.MaxRulesPerSurvey,
	}, nil
}

// validateRule runs structural validation against the survey's question set.
func (m *Manager) validateRule(ctx context.Context, rule *types.SurveyRule) error {
	questions, err := m.store.ListQuestions(ctx, rule.SurveyID)
	if err != nil {
		return err
	}
	set := make(rules.QuestionSet, len(questions))
	for _, q := range questions {
		set[q.ID] = true
	}
	if problems := rules.ValidateRule(rule, set); len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidRule, strings.Join(problems, "; "))
	}
	return nil
}
