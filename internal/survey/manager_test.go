// internal/survey/manager_test.go
package survey

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/engine"
	"github.com/quillform/quillform/internal/types"
)

func newManager(t *testing.T) (*Manager, *db.Store) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	conn, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(conn))

	store, err := db.NewStore(conn)
	require.NoError(t, err)
	return NewManager(store, engine.NewRuleStore(store, 0), zap.NewNop()), store
}

func seed(t *testing.T, m *Manager, branching bool, questionCount int) (*types.Survey, []*types.Question) {
	t.Helper()
	ctx := context.Background()
	s, err := m.CreateSurvey(ctx, "survey", "about things", branching)
	require.NoError(t, err)
	questions := make([]*types.Question, questionCount)
	for i := range questions {
		q, err := m.AddQuestion(ctx, s.ID, types.QuestionText, "q", nil, false, false)
		require.NoError(t, err)
		questions[i] = q
	}
	return s, questions
}

func validRuleJSON(q, target *types.Question) (condition, action []byte) {
	condition = []byte(`{"operator":"and","conditions":[{"questionId":"` + string(q.ID) + `","operator":"equals","value":"yes"}]}`)
	action = []byte(`{"type":"skip_to_question","questionId":"` + string(target.ID) + `"}`)
	return
}

func TestAddQuestion_AppendsInOrder(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, false, 3)

	for i, q := range questions {
		require.Equal(t, i+1, q.OrderIndex)
	}

	listed, err := store.ListQuestions(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, q := range listed {
		require.Equal(t, questions[i].ID, q.ID)
	}
}

func TestAddQuestion_RejectsUnknownType(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, _ := seed(t, m, false, 0)

	_, err := m.AddQuestion(ctx, s.ID, "hologram", "q", nil, false, false)
	require.Error(t, err)
}

func TestDeleteQuestion_ClosesOrderGap(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, false, 4)

	require.NoError(t, m.DeleteQuestion(ctx, questions[1].ID))

	listed, err := store.ListQuestions(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, q := range listed {
		require.Equal(t, i+1, q.OrderIndex)
	}
	require.Equal(t, questions[0].ID, listed[0].ID)
	require.Equal(t, questions[2].ID, listed[1].ID)
	require.Equal(t, questions[3].ID, listed[2].ID)
}

func TestReorderQuestions(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, false, 3)

	err := m.ReorderQuestions(ctx, s.ID, []types.QuestionID{
		questions[2].ID, questions[0].ID, questions[1].ID,
	})
	require.NoError(t, err)

	listed, err := store.ListQuestions(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, questions[2].ID, listed[0].ID)
	require.Equal(t, questions[0].ID, listed[1].ID)
	require.Equal(t, questions[1].ID, listed[2].ID)
}

func TestReorderQuestions_RejectsBadLists(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, false, 3)

	// Incomplete list.
	err := m.ReorderQuestions(ctx, s.ID, []types.QuestionID{questions[0].ID})
	require.Error(t, err)

	// Duplicate entry.
	err = m.ReorderQuestions(ctx, s.ID, []types.QuestionID{
		questions[0].ID, questions[0].ID, questions[1].ID,
	})
	require.Error(t, err)

	// Foreign question.
	err = m.ReorderQuestions(ctx, s.ID, []types.QuestionID{
		questions[0].ID, questions[1].ID, types.NewQuestionID(),
	})
	require.Error(t, err)
}

func TestAddRule_BranchingDisabled(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, false, 2)

	condition, action := validRuleJSON(questions[0], questions[1])
	_, err := m.AddRule(ctx, s.ID, condition, action, 10)
	require.ErrorIs(t, err, types.ErrBranchingDisabled)
}

func TestAddRule_InvalidRule(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 2)

	// Condition references a question outside the survey.
	condition := []byte(`{"operator":"and","conditions":[{"questionId":"` + string(types.NewQuestionID()) + `","operator":"equals","value":"yes"}]}`)
	action := []byte(`{"type":"skip_to_question","questionId":"` + string(questions[1].ID) + `"}`)
	_, err := m.AddRule(ctx, s.ID, condition, action, 10)
	require.ErrorIs(t, err, types.ErrInvalidRule)
}

func TestAddRule_LimitEnforced(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 2)

	condition, action := validRuleJSON(questions[0], questions[1])
	for i := 0; i < types.MaxRulesPerSurvey; i++ {
		_, err := m.AddRule(ctx, s.ID, condition, action, i)
		require.NoError(t, err)
	}

	_, err := m.AddRule(ctx, s.ID, condition, action, 99)
	require.ErrorIs(t, err, types.ErrRuleLimitExceeded)
}

func TestUpdateRule_Revalidates(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 2)

	condition, action := validRuleJSON(questions[0], questions[1])
	rule, err := m.AddRule(ctx, s.ID, condition, action, 10)
	require.NoError(t, err)

	badAction := []byte(`{"type":"skip_to_question"}`)
	_, err = m.UpdateRule(ctx, rule.ID, condition, badAction, 10)
	require.ErrorIs(t, err, types.ErrInvalidRule)
}

func TestAddRuleDependency(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 2)

	condition, action := validRuleJSON(questions[0], questions[1])
	a, err := m.AddRule(ctx, s.ID, condition, action, 1)
	require.NoError(t, err)
	b, err := m.AddRule(ctx, s.ID, condition, action, 2)
	require.NoError(t, err)
	c, err := m.AddRule(ctx, s.ID, condition, action, 3)
	require.NoError(t, err)

	_, err = m.AddRuleDependency(ctx, a.ID, b.ID, "")
	require.NoError(t, err)
	_, err = m.AddRuleDependency(ctx, b.ID, c.ID, "")
	require.NoError(t, err)

	// Duplicate edge.
	_, err = m.AddRuleDependency(ctx, a.ID, b.ID, "")
	require.ErrorIs(t, err, types.ErrDuplicateDependency)

	// Self loop.
	_, err = m.AddRuleDependency(ctx, a.ID, a.ID, "")
	require.ErrorIs(t, err, types.ErrCircularDependency)

	// Transitive cycle: c -> a would close a -> b -> c -> a.
	_, err = m.AddRuleDependency(ctx, c.ID, a.ID, "")
	require.ErrorIs(t, err, types.ErrCircularDependency)

	// The forward edge is still fine.
	_, err = m.AddRuleDependency(ctx, a.ID, c.ID, "")
	require.NoError(t, err)
}

func TestAddRuleDependency_CrossSurvey(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s1, q1 := seed(t, m, true, 2)
	s2, q2 := seed(t, m, true, 2)

	c1, a1 := validRuleJSON(q1[0], q1[1])
	r1, err := m.AddRule(ctx, s1.ID, c1, a1, 1)
	require.NoError(t, err)

	c2, a2 := validRuleJSON(q2[0], q2[1])
	r2, err := m.AddRule(ctx, s2.ID, c2, a2, 1)
	require.NoError(t, err)

	_, err = m.AddRuleDependency(ctx, r1.ID, r2.ID, "")
	require.ErrorIs(t, err, types.ErrRuleNotInSurvey)
}

func TestDeleteSurvey_Cascades(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 2)

	condition, action := validRuleJSON(questions[0], questions[1])
	rule, err := m.AddRule(ctx, s.ID, condition, action, 1)
	require.NoError(t, err)

	require.NoError(t, m.DeleteSurvey(ctx, s.ID))

	_, err = store.GetSurvey(ctx, s.ID)
	require.ErrorIs(t, err, types.ErrSurveyNotFound)
	_, err = store.GetQuestion(ctx, questions[0].ID)
	require.ErrorIs(t, err, types.ErrQuestionNotFound)
	_, err = store.GetRule(ctx, rule.ID)
	require.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestSurveyStats(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	s, questions := seed(t, m, true, 3)

	condition, action := validRuleJSON(questions[0], questions[1])
	_, err := m.AddRule(ctx, s.ID, condition, action, 1)
	require.NoError(t, err)

	stats, err := m.SurveyStats(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Questions)
	require.Equal(t, 1, stats.Rules)
	require.True(t, stats.CanAddRules)
}
