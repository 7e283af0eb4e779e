package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quillform/quillform/internal/types"
)

/*
 * Typed storage for survey entities.
 *
 * Store wraps sqlx with the named queries from queries/*.sql and converts
 * between database rows and domain types. Timestamps are persisted as
 * fixed-width UTC strings so lexicographic comparison in SQL equals
 * chronological comparison on both SQLite and PostgreSQL; rows carry string
 * timestamps and are parsed when domain objects are built.
 *
 * Transactions: Transact runs a closure against a transaction-bound Store
 * copy. A "submit response -> decide next question" sequence is one such
 * unit; either every write in it commits or none do.
 *
 * Not-found mapping: point lookups return sentinel errors; positional
 * lookups where absence is a normal outcome (next question in order, latest
 * response) return nil, nil.
 */

// timeFormat keeps nanosecond precision with fixed width; trailing zeros are
// not trimmed, so string ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// Store provides typed access to quillform storage.
type Store struct {
	db  *sqlx.DB
	q   *Queries
	ext sqlx.ExtContext
}

// NewStore loads the embedded named queries and binds them to a database.
func NewStore(database *sqlx.DB) (*Store, error) {
	q, err := LoadQueries()
	if err != nil {
		return nil, err
	}
	return &Store{db: database, q: q, ext: database}, nil
}

// Transact executes fn against a transaction-bound Store. The transaction
// commits iff fn returns nil; any error rolls back every write.
func (s *Store) Transact(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &Store{db: s.db, q: s.q, ext: tx}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, name string, dest any, args ...any) error {
	query, err := s.q.Raw(name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, s.ext, dest, s.ext.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, name string, dest any, args ...any) error {
	query, err := s.q.Raw(name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.ext, dest, s.ext.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := s.q.Raw(name)
	if err != nil {
		return nil, err
	}
	return s.ext.ExecContext(ctx, s.ext.Rebind(query), args...)
}

// --- surveys ---

type surveyRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Description      sql.NullString `db:"description"`
	BranchingEnabled bool           `db:"branching_enabled"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

func (r *surveyRow) toDomain() (*types.Survey, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &types.Survey{
		ID:               types.SurveyID(r.ID),
		Title:            r.Title,
		Description:      r.Description.String,
		BranchingEnabled: r.BranchingEnabled,
		CreatedAt:        created,
		UpdatedAt:        updated,
	}, nil
}

// InsertSurvey persists a new survey.
func (s *Store) InsertSurvey(ctx context.Context, survey *types.Survey) error {
	_, err := s.exec(ctx, "insert-survey",
		string(survey.ID), survey.Title, nullString(survey.Description),
		survey.BranchingEnabled, formatTime(survey.CreatedAt), formatTime(survey.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// GetSurvey loads a survey by ID.
func (s *Store) GetSurvey(ctx context.Context, id types.SurveyID) (*types.Survey, error) {
	var row surveyRow
	if err := s.get(ctx, "get-survey", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSurveyNotFound
		}
		return nil, fmt.Errorf("failed to load survey: %w", err)
	}
	return row.toDomain()
}

// UpdateSurvey persists title, description, and branching flag changes.
func (s *Store) UpdateSurvey(ctx context.Context, survey *types.Survey) error {
	_, err := s.exec(ctx, "update-survey",
		survey.Title, nullString(survey.Description), survey.BranchingEnabled,
		formatTime(survey.UpdatedAt), string(survey.ID))
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}
	return nil
}

// DeleteSurvey removes a survey; owned questions, rules, sessions, and
// responses cascade at the schema level.
func (s *Store) DeleteSurvey(ctx context.Context, id types.SurveyID) error {
	_, err := s.exec(ctx, "delete-survey", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	return nil
}

// --- questions ---

type questionRow struct {
	ID         string         `db:"id"`
	SurveyID   string         `db:"survey_id"`
	Type       string         `db:"type"`
	Content    string         `db:"content"`
	Options    sql.NullString `db:"options"`
	OrderIndex int            `db:"order_index"`
	RuleTarget bool           `db:"rule_target"`
	Required   bool           `db:"required"`
	CreatedAt  string         `db:"created_at"`
}

func (r *questionRow) toDomain() (*types.Question, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	q := &types.Question{
		ID:         types.QuestionID(r.ID),
		SurveyID:   types.SurveyID(r.SurveyID),
		Type:       types.QuestionType(r.Type),
		Content:    r.Content,
		OrderIndex: r.OrderIndex,
		RuleTarget: r.RuleTarget,
		Required:   r.Required,
		CreatedAt:  created,
	}
	if r.Options.Valid && r.Options.String != "" {
		if err := json.Unmarshal([]byte(r.Options.String), &q.Options); err != nil {
			return nil, fmt.Errorf("invalid stored question options: %w", err)
		}
	}
	return q, nil
}

func questionArgs(q *types.Question) ([]any, error) {
	var options sql.NullString
	if q.Options != nil {
		encoded, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode question options: %w", err)
		}
		options = sql.NullString{String: string(encoded), Valid: true}
	}
	return []any{
		string(q.ID), string(q.SurveyID), string(q.Type), q.Content, options,
		q.OrderIndex, q.RuleTarget, q.Required, formatTime(q.CreatedAt),
	}, nil
}

// InsertQuestion persists a new question.
func (s *Store) InsertQuestion(ctx context.Context, q *types.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, "insert-question", args...); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// GetQuestion loads a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id types.QuestionID) (*types.Question, error) {
	var row questionRow
	if err := s.get(ctx, "get-question", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	return row.toDomain()
}

// UpdateQuestion persists content changes. OrderIndex mutations go through
// SetQuestionOrder / CloseOrderGap to keep sequence maintenance explicit.
func (s *Store) UpdateQuestion(ctx context.Context, q *types.Question) error {
	var options sql.NullString
	if q.Options != nil {
		encoded, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to encode question options: %w", err)
		}
		options = sql.NullString{String: string(encoded), Valid: true}
	}
	_, err := s.exec(ctx, "update-question",
		string(q.Type), q.Content, options, q.RuleTarget, q.Required, string(q.ID))
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	return nil
}

// DeleteQuestion removes a question row.
func (s *Store) DeleteQuestion(ctx context.Context, id types.QuestionID) error {
	if _, err := s.exec(ctx, "delete-question", string(id)); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

// ListQuestions returns a survey's questions in order_index order.
func (s *Store) ListQuestions(ctx context.Context, surveyID types.SurveyID) ([]*types.Question, error) {
	var rows []questionRow
	if err := s.selectAll(ctx, "list-questions", &rows, string(surveyID)); err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	questions := make([]*types.Question, 0, len(rows))
	for i := range rows {
		q, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// FirstQuestion returns the lowest order_index question, or nil if the
// survey has none.
func (s *Store) FirstQuestion(ctx context.Context, surveyID types.SurveyID) (*types.Question, error) {
	var row questionRow
	if err := s.get(ctx, "first-question", &row, string(surveyID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load first question: %w", err)
	}
	return row.toDomain()
}

// NextQuestionAfter returns the question with the next-higher order_index in
// the same survey, or nil at the end of the sequence.
func (s *Store) NextQuestionAfter(ctx context.Context, surveyID types.SurveyID, orderIndex int) (*types.Question, error) {
	var row questionRow
	if err := s.get(ctx, "next-question-after", &row, string(surveyID), orderIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load next question: %w", err)
	}
	return row.toDomain()
}

// CountQuestions returns the number of questions in a survey.
func (s *Store) CountQuestions(ctx context.Context, surveyID types.SurveyID) (int, error) {
	var count int
	if err := s.get(ctx, "count-questions", &count, string(surveyID)); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// MaxOrderIndex returns the highest order_index in a survey, 0 when empty.
func (s *Store) MaxOrderIndex(ctx context.Context, surveyID types.SurveyID) (int, error) {
	var max int
	if err := s.get(ctx, "max-order-index", &max, string(surveyID)); err != nil {
		return 0, fmt.Errorf("failed to read max order index: %w", err)
	}
	return max, nil
}

// SetQuestionOrder assigns an order_index to a single question.
func (s *Store) SetQuestionOrder(ctx context.Context, id types.QuestionID, orderIndex int) error {
	if _, err := s.exec(ctx, "set-question-order", orderIndex, string(id)); err != nil {
		return fmt.Errorf("failed to set question order: %w", err)
	}
	return nil
}

// CloseOrderGap decrements the order_index of every question after the given
// position, keeping the sequence dense after a deletion.
func (s *Store) CloseOrderGap(ctx context.Context, surveyID types.SurveyID, orderIndex int) error {
	if _, err := s.exec(ctx, "close-order-gap", string(surveyID), orderIndex); err != nil {
		return fmt.Errorf("failed to close order gap: %w", err)
	}
	return nil
}

// --- rules ---

type ruleRow struct {
	ID            string `db:"id"`
	SurveyID      string `db:"survey_id"`
	ConditionJSON string `db:"condition_json"`
	ActionJSON    string `db:"action_json"`
	Priority      int    `db:"priority"`
	Active        bool   `db:"active"`
	CreatedAt     string `db:"created_at"`
}

func (r *ruleRow) toDomain() (*types.SurveyRule, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &types.SurveyRule{
		ID:            types.RuleID(r.ID),
		SurveyID:      types.SurveyID(r.SurveyID),
		ConditionJSON: json.RawMessage(r.ConditionJSON),
		ActionJSON:    json.RawMessage(r.ActionJSON),
		Priority:      r.Priority,
		Active:        r.Active,
		CreatedAt:     created,
	}, nil
}

// InsertRule persists a new rule.
func (s *Store) InsertRule(ctx context.Context, rule *types.SurveyRule) error {
	_, err := s.exec(ctx, "insert-rule",
		string(rule.ID), string(rule.SurveyID), string(rule.ConditionJSON),
		string(rule.ActionJSON), rule.Priority, rule.Active, formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// GetRule loads a rule by ID.
func (s *Store) GetRule(ctx context.Context, id types.RuleID) (*types.SurveyRule, error) {
	var row ruleRow
	if err := s.get(ctx, "get-rule", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return row.toDomain()
}

// UpdateRule persists condition, action, and priority changes.
func (s *Store) UpdateRule(ctx context.Context, rule *types.SurveyRule) error {
	_, err := s.exec(ctx, "update-rule",
		string(rule.ConditionJSON), string(rule.ActionJSON), rule.Priority, string(rule.ID))
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// SetRuleActive toggles a rule's active flag.
func (s *Store) SetRuleActive(ctx context.Context, id types.RuleID, active bool) error {
	if _, err := s.exec(ctx, "set-rule-active", active, string(id)); err != nil {
		return fmt.Errorf("failed to set rule active flag: %w", err)
	}
	return nil
}

// DeleteRule removes a rule; its dependency edges cascade.
func (s *Store) DeleteRule(ctx context.Context, id types.RuleID) error {
	if _, err := s.exec(ctx, "delete-rule", string(id)); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// ActiveRules returns a survey's active rules ordered by (priority, id)
// ascending: the engine's evaluation order.
func (s *Store) ActiveRules(ctx context.Context, surveyID types.SurveyID) ([]*types.SurveyRule, error) {
	var rows []ruleRow
	if err := s.selectAll(ctx, "active-rules", &rows, string(surveyID), true); err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	result := make([]*types.SurveyRule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, nil
}

// CountRules returns the total rule count for a survey, active or not.
func (s *Store) CountRules(ctx context.Context, surveyID types.SurveyID) (int, error) {
	var count int
	if err := s.get(ctx, "count-rules", &count, string(surveyID)); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// ListRuleIDs returns all rule IDs of a survey.
func (s *Store) ListRuleIDs(ctx context.Context, surveyID types.SurveyID) ([]types.RuleID, error) {
	var raw []string
	if err := s.selectAll(ctx, "list-rule-ids", &raw, string(surveyID)); err != nil {
		return nil, fmt.Errorf("failed to list rule ids: %w", err)
	}
	ids := make([]types.RuleID, len(raw))
	for i, id := range raw {
		ids[i] = types.RuleID(id)
	}
	return ids, nil
}

// --- rule dependencies ---

type dependencyRow struct {
	ID             string `db:"id"`
	ParentRuleID   string `db:"parent_rule_id"`
	ChildRuleID    string `db:"child_rule_id"`
	DependencyType string `db:"dependency_type"`
	CreatedAt      string `db:"created_at"`
}

// InsertDependency persists a parent -> child dependency edge.
func (s *Store) InsertDependency(ctx context.Context, dep *types.RuleDependency) error {
	_, err := s.exec(ctx, "insert-dependency",
		dep.ID, string(dep.ParentRuleID), string(dep.ChildRuleID),
		dep.DependencyType, formatTime(dep.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert rule dependency: %w", err)
	}
	return nil
}

// ListDependencies returns every dependency edge within a survey's rule set.
func (s *Store) ListDependencies(ctx context.Context, surveyID types.SurveyID) ([]types.RuleDependency, error) {
	var rows []dependencyRow
	if err := s.selectAll(ctx, "list-dependencies", &rows, string(surveyID)); err != nil {
		return nil, fmt.Errorf("failed to list rule dependencies: %w", err)
	}
	deps := make([]types.RuleDependency, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		deps = append(deps, types.RuleDependency{
			ID:             r.ID,
			ParentRuleID:   types.RuleID(r.ParentRuleID),
			ChildRuleID:    types.RuleID(r.ChildRuleID),
			DependencyType: r.DependencyType,
			CreatedAt:      created,
		})
	}
	return deps, nil
}

// --- sessions ---

type sessionRow struct {
	ID                string         `db:"id"`
	SurveyID          string         `db:"survey_id"`
	SessionToken      string         `db:"session_token"`
	CurrentQuestionID sql.NullString `db:"current_question_id"`
	ProgressData      sql.NullString `db:"progress_data"`
	Completed         bool           `db:"completed"`
	CompletedAt       sql.NullString `db:"completed_at"`
	CreatedAt         string         `db:"created_at"`
	LastActivity      string         `db:"last_activity"`
}

func (r *sessionRow) toDomain() (*types.SurveySession, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	activity, err := parseTime(r.LastActivity)
	if err != nil {
		return nil, err
	}
	session := &types.SurveySession{
		ID:                types.SessionID(r.ID),
		SurveyID:          types.SurveyID(r.SurveyID),
		Token:             r.SessionToken,
		CurrentQuestionID: types.QuestionID(r.CurrentQuestionID.String),
		Completed:         r.Completed,
		CreatedAt:         created,
		LastActivity:      activity,
	}
	if r.ProgressData.Valid && r.ProgressData.String != "" {
		session.ProgressData = json.RawMessage(r.ProgressData.String)
	}
	if r.CompletedAt.Valid {
		completedAt, err := parseTime(r.CompletedAt.String)
		if err != nil {
			return nil, err
		}
		session.CompletedAt = &completedAt
	}
	return session, nil
}

func sessionArgs(session *types.SurveySession) []any {
	var completedAt sql.NullString
	if session.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*session.CompletedAt), Valid: true}
	}
	var progress sql.NullString
	if len(session.ProgressData) > 0 {
		progress = sql.NullString{String: string(session.ProgressData), Valid: true}
	}
	return []any{
		nullString(string(session.CurrentQuestionID)), progress,
		session.Completed, completedAt, formatTime(session.LastActivity),
	}
}

// InsertSession persists a new session.
func (s *Store) InsertSession(ctx context.Context, session *types.SurveySession) error {
	args := sessionArgs(session)
	_, err := s.exec(ctx, "insert-session",
		string(session.ID), string(session.SurveyID), session.Token,
		args[0], args[1], args[2], args[3], formatTime(session.CreatedAt), args[4])
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id types.SessionID) (*types.SurveySession, error) {
	var row sessionRow
	if err := s.get(ctx, "get-session", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.toDomain()
}

// GetSessionByToken loads a session by its opaque token. Expiry is a policy
// concern applied by the session manager, not here.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*types.SurveySession, error) {
	var row sessionRow
	if err := s.get(ctx, "get-session-by-token", &row, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session by token: %w", err)
	}
	return row.toDomain()
}

// UpdateSession persists pointer, progress, completion, and activity state.
func (s *Store) UpdateSession(ctx context.Context, session *types.SurveySession) error {
	args := append(sessionArgs(session), string(session.ID))
	if _, err := s.exec(ctx, "update-session", args...); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// TouchSession refreshes last_activity.
func (s *Store) TouchSession(ctx context.Context, id types.SessionID, at time.Time) error {
	if _, err := s.exec(ctx, "touch-session", formatTime(at), string(id)); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose last_activity predates
// the cutoff, returning the number removed. Responses and audit rows cascade.
func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx, "delete-expired-sessions", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return removed, nil
}

// --- responses ---

type responseRow struct {
	ID         string         `db:"id"`
	SessionID  string         `db:"session_id"`
	QuestionID string         `db:"question_id"`
	Value      string         `db:"value"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  sql.NullString `db:"updated_at"`
}

func (r *responseRow) toDomain() (*types.Response, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	resp := &types.Response{
		ID:         types.ResponseID(r.ID),
		SessionID:  types.SessionID(r.SessionID),
		QuestionID: types.QuestionID(r.QuestionID),
		Value:      r.Value,
		CreatedAt:  created,
	}
	if r.UpdatedAt.Valid {
		updated, err := parseTime(r.UpdatedAt.String)
		if err != nil {
			return nil, err
		}
		resp.UpdatedAt = &updated
	}
	return resp, nil
}

// UpsertResponse inserts a response or overwrites the existing one for the
// same (session, question) pair in a single statement, so concurrent
// submitters cannot race an insert-then-check into duplicate rows. The
// stored row is returned: on overwrite it keeps its original ID and
// created_at and gains an updated_at.
func (s *Store) UpsertResponse(ctx context.Context, resp *types.Response) (*types.Response, error) {
	_, err := s.exec(ctx, "upsert-response",
		string(resp.ID), string(resp.SessionID), string(resp.QuestionID),
		resp.Value, formatTime(resp.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert response: %w", err)
	}
	return s.GetResponse(ctx, resp.SessionID, resp.QuestionID)
}

// GetResponse loads the response for a (session, question) pair, nil if the
// question is unanswered.
func (s *Store) GetResponse(ctx context.Context, sessionID types.SessionID, questionID types.QuestionID) (*types.Response, error) {
	var row responseRow
	if err := s.get(ctx, "get-response", &row, string(sessionID), string(questionID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load response: %w", err)
	}
	return row.toDomain()
}

// ListResponses returns a session's responses in submission order.
func (s *Store) ListResponses(ctx context.Context, sessionID types.SessionID) ([]*types.Response, error) {
	var rows []responseRow
	if err := s.selectAll(ctx, "list-responses", &rows, string(sessionID)); err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	responses := make([]*types.Response, 0, len(rows))
	for i := range rows {
		resp, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// LatestResponse returns the most recently created response of a session,
// nil when the session has none.
func (s *Store) LatestResponse(ctx context.Context, sessionID types.SessionID) (*types.Response, error) {
	var row responseRow
	if err := s.get(ctx, "latest-response", &row, string(sessionID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest response: %w", err)
	}
	return row.toDomain()
}

// CountAnswered returns the number of distinct questions answered in a
// session.
func (s *Store) CountAnswered(ctx context.Context, sessionID types.SessionID) (int, error) {
	var count int
	if err := s.get(ctx, "count-answered", &count, string(sessionID)); err != nil {
		return 0, fmt.Errorf("failed to count answered questions: %w", err)
	}
	return count, nil
}

// CountResponses returns the total response row count for a session.
func (s *Store) CountResponses(ctx context.Context, sessionID types.SessionID) (int, error) {
	var count int
	if err := s.get(ctx, "count-responses", &count, string(sessionID)); err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return count, nil
}

// --- audits ---

type auditRow struct {
	ID               string `db:"id"`
	ResponseID       string `db:"response_id"`
	RuleID           string `db:"rule_id"`
	EvaluationResult string `db:"evaluation_result"`
	CreatedAt        string `db:"created_at"`
}

// InsertAudit appends a rule evaluation audit row.
func (s *Store) InsertAudit(ctx context.Context, audit *types.ResponseAudit) error {
	encoded, err := json.Marshal(audit.Result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	_, err = s.exec(ctx, "insert-audit",
		audit.ID, string(audit.ResponseID), string(audit.RuleID),
		string(encoded), formatTime(audit.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert audit: %w", err)
	}
	return nil
}

// ListAuditsByResponse returns the audit rows attached to one response in
// insertion order.
func (s *Store) ListAuditsByResponse(ctx context.Context, responseID types.ResponseID) ([]*types.ResponseAudit, error) {
	var rows []auditRow
	if err := s.selectAll(ctx, "list-audits-by-response", &rows, string(responseID)); err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	audits := make([]*types.ResponseAudit, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		audit := &types.ResponseAudit{
			ID:         r.ID,
			ResponseID: types.ResponseID(r.ResponseID),
			RuleID:     types.RuleID(r.RuleID),
			Timestamp:  created,
		}
		if err := json.Unmarshal([]byte(r.EvaluationResult), &audit.Result); err != nil {
			return nil, fmt.Errorf("invalid stored evaluation result: %w", err)
		}
		audits = append(audits, audit)
	}
	return audits, nil
}

// CountAuditsBySession returns the audit row count across all of a session's
// responses.
func (s *Store) CountAuditsBySession(ctx context.Context, sessionID types.SessionID) (int, error) {
	var count int
	if err := s.get(ctx, "count-audits-by-session", &count, string(sessionID)); err != nil {
		return 0, fmt.Errorf("failed to count audits: %w", err)
	}
	return count, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
