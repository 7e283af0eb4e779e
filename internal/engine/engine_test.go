// internal/engine/engine_test.go
package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/types"
)

type fixture struct {
	store     *db.Store
	engine    *Engine
	ruleStore *RuleStore
	survey    *types.Survey
	questions []*types.Question
	session   *types.SurveySession
}

func newFixture(t *testing.T, branching bool, questionCount int) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	conn, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(conn))

	store, err := db.NewStore(conn)
	require.NoError(t, err)

	now := time.Now().UTC()
	survey := &types.Survey{
		ID:               types.NewSurveyID(),
		Title:            "fixture",
		BranchingEnabled: branching,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, store.InsertSurvey(ctx, survey))

	questions := make([]*types.Question, questionCount)
	for i := 0; i < questionCount; i++ {
		q := &types.Question{
			ID:         types.NewQuestionID(),
			SurveyID:   survey.ID,
			Type:       types.QuestionText,
			Content:    "question",
			OrderIndex: i + 1,
			CreatedAt:  now,
		}
		require.NoError(t, store.InsertQuestion(ctx, q))
		questions[i] = q
	}

	token, err := types.NewSessionToken()
	require.NoError(t, err)
	session := &types.SurveySession{
		ID:           types.NewSessionID(),
		SurveyID:     survey.ID,
		Token:        token,
		CreatedAt:    now,
		LastActivity: now,
	}
	if questionCount > 0 {
		session.CurrentQuestionID = questions[0].ID
	}
	require.NoError(t, store.InsertSession(ctx, session))

	ruleStore := NewRuleStore(store, 0)
	return &fixture{
		store:     store,
		engine:    New(ruleStore, zap.NewNop()),
		ruleStore: ruleStore,
		survey:    survey,
		questions: questions,
		session:   session,
	}
}

func (f *fixture) addRule(t *testing.T, priority int, condition, action string) *types.SurveyRule {
	t.Helper()
	rule := &types.SurveyRule{
		ID:            types.NewRuleID(),
		SurveyID:      f.survey.ID,
		ConditionJSON: json.RawMessage(condition),
		ActionJSON:    json.RawMessage(action),
		Priority:      priority,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.InsertRule(context.Background(), rule))
	f.ruleStore.Invalidate(f.survey.ID)
	return rule
}

func (f *fixture) answer(t *testing.T, question *types.Question, value string) *types.Response {
	t.Helper()
	stored, err := f.store.UpsertResponse(context.Background(), &types.Response{
		ID:         types.NewResponseID(),
		SessionID:  f.session.ID,
		QuestionID: question.ID,
		Value:      value,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return stored
}

func equalsCondition(q *types.Question, value string) string {
	return `{"operator":"and","conditions":[{"questionId":"` + string(q.ID) + `","operator":"equals","value":"` + value + `"}]}`
}

func skipAction(q *types.Question) string {
	return `{"type":"skip_to_question","questionId":"` + string(q.ID) + `"}`
}

func TestDecide_BranchingDisabled(t *testing.T) {
	f := newFixture(t, false, 3)
	ctx := context.Background()

	f.addRule(t, 1, equalsCondition(f.questions[0], "x"), skipAction(f.questions[2]))
	resp := f.answer(t, f.questions[0], "x")

	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.True(t, decision.Sequential)
	require.Equal(t, f.questions[1].ID, decision.NextQuestionID)
}

func TestDecide_NoRulesSequential(t *testing.T) {
	f := newFixture(t, true, 2)
	ctx := context.Background()

	resp := f.answer(t, f.questions[0], "anything")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.True(t, decision.Sequential)
	require.Equal(t, f.questions[1].ID, decision.NextQuestionID)
}

func TestDecide_NotGroupMatchesWithoutResponses(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	// No response is stored, so the inner equals reads an unanswered
	// question and the negation holds.
	condition := `{"operator":"not","conditions":[{"questionId":"` + string(f.questions[0].ID) + `","operator":"equals","value":"x"}]}`
	rule := f.addRule(t, 10, condition, skipAction(f.questions[2]))

	transient := &types.Response{
		ID:         types.NewResponseID(),
		SessionID:  f.session.ID,
		QuestionID: f.questions[0].ID,
		CreatedAt:  time.Now().UTC(),
	}
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, transient)
	require.NoError(t, err)
	require.Equal(t, rule.ID, decision.MatchedRuleID)
	require.Equal(t, f.questions[2].ID, decision.NextQuestionID)
}

func TestDecide_SequenceExhausted(t *testing.T) {
	f := newFixture(t, false, 2)
	ctx := context.Background()

	resp := f.answer(t, f.questions[1], "last")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Empty(t, decision.NextQuestionID)
	require.False(t, decision.EndSurvey)
}

func TestDecide_PriorityOrder(t *testing.T) {
	f := newFixture(t, true, 4)
	ctx := context.Background()

	// Both rules match; the lower priority value wins.
	f.addRule(t, 20, equalsCondition(f.questions[0], "x"), skipAction(f.questions[3]))
	winner := f.addRule(t, 10, equalsCondition(f.questions[0], "x"), skipAction(f.questions[2]))

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Equal(t, winner.ID, decision.MatchedRuleID)
	require.Equal(t, f.questions[2].ID, decision.NextQuestionID)
}

func TestDecide_PriorityTieBrokenByCreation(t *testing.T) {
	f := newFixture(t, true, 4)
	ctx := context.Background()

	// Same priority; the earlier-created rule has the smaller UUIDv7 and wins.
	first := f.addRule(t, 10, equalsCondition(f.questions[0], "x"), skipAction(f.questions[2]))
	f.addRule(t, 10, equalsCondition(f.questions[0], "x"), skipAction(f.questions[3]))

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Equal(t, first.ID, decision.MatchedRuleID)
	require.Equal(t, f.questions[2].ID, decision.NextQuestionID)
}

func TestDecide_FirstMatchIsFinal(t *testing.T) {
	f := newFixture(t, true, 4)
	ctx := context.Background()

	// The matching rule targets a question that doesn't exist. The match is
	// still final: the later rule must not be consulted, and the empty
	// destination is the accepted outcome.
	matched := f.addRule(t, 10, equalsCondition(f.questions[0], "x"),
		`{"type":"skip_to_question","questionId":"`+string(types.NewQuestionID())+`"}`)
	f.addRule(t, 20, equalsCondition(f.questions[0], "x"), skipAction(f.questions[3]))

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Equal(t, matched.ID, decision.MatchedRuleID)
	require.Empty(t, decision.NextQuestionID)
	require.False(t, decision.Sequential)

	// Only the first rule was examined.
	audits, err := f.store.ListAuditsByResponse(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, matched.ID, audits[0].RuleID)
}

func TestDecide_InactiveRulesSkipped(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	rule := f.addRule(t, 10, equalsCondition(f.questions[0], "x"), skipAction(f.questions[2]))
	require.NoError(t, f.store.SetRuleActive(ctx, rule.ID, false))
	f.ruleStore.Invalidate(f.survey.ID)

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.True(t, decision.Sequential)
	require.Equal(t, f.questions[1].ID, decision.NextQuestionID)
}

func TestDecide_ShowSectionTargetsFirstQuestion(t *testing.T) {
	f := newFixture(t, true, 4)
	ctx := context.Background()

	action := `{"type":"show_section","questionIds":["` + string(f.questions[2].ID) + `","` + string(f.questions[3].ID) + `"]}`
	f.addRule(t, 10, equalsCondition(f.questions[0], "x"), action)

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Equal(t, f.questions[2].ID, decision.NextQuestionID)
}

func TestDecide_EndSurvey(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	f.addRule(t, 10, equalsCondition(f.questions[0], "x"), `{"type":"end_survey"}`)

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.True(t, decision.EndSurvey)
	require.Empty(t, decision.NextQuestionID)
}

func TestDecide_ForeignTargetYieldsNoNext(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	// A question of a different survey is not a valid destination.
	foreign := &types.Question{
		ID:         types.NewQuestionID(),
		SurveyID:   types.NewSurveyID(),
		Type:       types.QuestionText,
		Content:    "foreign",
		OrderIndex: 1,
		CreatedAt:  time.Now().UTC(),
	}
	foreignSurvey := &types.Survey{
		ID:        foreign.SurveyID,
		Title:     "other",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.InsertSurvey(ctx, foreignSurvey))
	require.NoError(t, f.store.InsertQuestion(ctx, foreign))

	rule := f.addRule(t, 10, equalsCondition(f.questions[0], "x"), skipAction(foreign))

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.Equal(t, rule.ID, decision.MatchedRuleID)
	require.Empty(t, decision.NextQuestionID)
	require.False(t, decision.Sequential)
}

func TestDecide_MalformedConditionFallsBack(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	f.addRule(t, 10, `{{{not json`, skipAction(f.questions[2]))

	resp := f.answer(t, f.questions[0], "x")
	decision, err := f.engine.Decide(ctx, f.store, f.survey, f.session, resp)
	require.NoError(t, err)
	require.True(t, decision.Sequential)
	require.Equal(t, f.questions[1].ID, decision.NextQuestionID)

	// The failed evaluation is still audited.
	audits, err := f.store.ListAuditsByResponse(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.False(t, audits[0].Result.Matched)
	require.Contains(t, audits[0].Result.Reason, "evaluation error:")
}

func TestRuleStore_CachesUntilInvalidated(t *testing.T) {
	f := newFixture(t, true, 3)
	ctx := context.Background()

	rules, err := f.ruleStore.ActiveRules(ctx, f.survey.ID)
	require.NoError(t, err)
	require.Empty(t, rules)

	// A write without invalidation is not observed through the cache.
	rule := &types.SurveyRule{
		ID:            types.NewRuleID(),
		SurveyID:      f.survey.ID,
		ConditionJSON: json.RawMessage(equalsCondition(f.questions[0], "x")),
		ActionJSON:    json.RawMessage(skipAction(f.questions[2])),
		Priority:      10,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.store.InsertRule(ctx, rule))

	rules, err = f.ruleStore.ActiveRules(ctx, f.survey.ID)
	require.NoError(t, err)
	require.Empty(t, rules)

	f.ruleStore.Invalidate(f.survey.ID)
	rules, err = f.ruleStore.ActiveRules(ctx, f.survey.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}
