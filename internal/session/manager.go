// internal/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/engine"
	"github.com/quillform/quillform/internal/types"
)

/*
 * Survey session lifecycle.
 *
 * A session is one respondent's pass through a survey, addressed by an
 * opaque token the respondent holds. The manager owns the full lifecycle:
 * creation and token-based resumption, answer submission with the branching
 * decision that follows, backwards navigation, progress reporting, and
 * expiry cleanup.
 *
 * Sessions expire softly: a session whose last_activity is older than the
 * timeout is treated as nonexistent on lookup, and resuming with its token
 * silently starts a fresh session. Completion is terminal; no mutation is
 * accepted afterwards.
 *
 * SubmitResponse is the one compound write. The response upsert, the audit
 * rows the decision produces, and the session pointer/progress update commit
 * in a single transaction, so a crash mid-decision never leaves an answer
 * recorded with a stale position.
 */

// SubmitResult reports the outcome of one answer submission.
type SubmitResult struct {
	Session        *types.SurveySession
	Response       *types.Response
	NextQuestionID types.QuestionID
	Completed      bool
	Progress       *types.Progress
}

// Manager drives survey sessions.
type Manager struct {
	store   *db.Store
	engine  *engine.Engine
	log     *zap.Logger
	timeout time.Duration

	// now is replaceable in tests to step through expiry windows.
	now func() time.Time
}

// NewManager builds a session Manager. A non-positive timeout selects the
// default soft-expiry window.
func NewManager(store *db.Store, eng *engine.Engine, log *zap.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = types.SessionTimeout
	}
	return &Manager{store: store, engine: eng, log: log, timeout: timeout, now: time.Now}
}

// GetOrCreate resumes the session behind token, or starts a new one when the
// token is empty, unknown, bound to a different survey, or expired. Resuming
// refreshes last_activity.
func (m *Manager) GetOrCreate(ctx context.Context, surveyID types.SurveyID, token string) (*types.SurveySession, error) {
	survey, err := m.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	if token != "" {
		existing, err := m.store.GetSessionByToken(ctx, token)
		switch {
		case errors.Is(err, types.ErrSessionNotFound):
			// Unknown token, fall through to creation.
		case err != nil:
			return nil, err
		case existing.SurveyID == survey.ID && !existing.Expired(m.now(), m.timeout):
			now := m.now().UTC()
			if err := m.store.TouchSession(ctx, existing.ID, now); err != nil {
				return nil, err
			}
			existing.LastActivity = now
			return existing, nil
		}
	}

	return m.create(ctx, survey)
}

func (m *Manager) create(ctx context.Context, survey *types.Survey) (*types.SurveySession, error) {
	token, err := types.NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	session := &types.SurveySession{
		ID:           types.NewSessionID(),
		SurveyID:     survey.ID,
		Token:        token,
		CreatedAt:    now,
		LastActivity: now,
	}

	first, err := m.store.FirstQuestion(ctx, survey.ID)
	if err != nil {
		return nil, err
	}
	if first != nil {
		session.CurrentQuestionID = first.ID
	}

	if err := m.store.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	m.log.Info("session created",
		zap.String("survey_id", string(survey.ID)),
		zap.String("session_id", string(session.ID)))
	return session, nil
}

// SubmitResponse records an answer and advances the session. The answer
// overwrites any earlier answer to the same question. Returns
// ErrSessionCompleted for finished sessions and ErrQuestionNotInSurvey when
// the question belongs elsewhere.
func (m *Manager) SubmitResponse(ctx context.Context, token string, questionID types.QuestionID, value string) (*SubmitResult, error) {
	session, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, types.ErrSessionCompleted
	}

	question, err := m.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.SurveyID != session.SurveyID {
		return nil, types.ErrQuestionNotInSurvey
	}

	survey, err := m.store.GetSurvey(ctx, session.SurveyID)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	err = m.store.Transact(ctx, func(tx *db.Store) error {
		now := m.now().UTC()
		stored, err := tx.UpsertResponse(ctx, &types.Response{
			ID:         types.NewResponseID(),
			SessionID:  session.ID,
			QuestionID: questionID,
			Value:      value,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		decision, err := m.engine.Decide(ctx, tx, survey, session, stored)
		if err != nil {
			return fmt.Errorf("branching decision failed: %w", err)
		}

		session.CurrentQuestionID = decision.NextQuestionID
		session.LastActivity = now
		if decision.NextQuestionID == "" {
			session.Completed = true
			completedAt := now
			session.CompletedAt = &completedAt
		}

		progress, err := m.snapshot(ctx, tx, session)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("failed to encode progress snapshot: %w", err)
		}
		session.ProgressData = encoded

		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}

		result = SubmitResult{
			Session:        session,
			Response:       stored,
			NextQuestionID: decision.NextQuestionID,
			Completed:      session.Completed,
			Progress:       progress,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Completed {
		m.log.Info("session completed",
			zap.String("session_id", string(session.ID)),
			zap.String("survey_id", string(session.SurveyID)))
	}
	return &result, nil
}

// GoBack moves the session pointer to the most recently answered question,
// by submission time rather than question order, so a respondent who was
// branched backwards returns to where they actually were. Returns
// ErrNoResponseHistory when nothing has been answered yet.
func (m *Manager) GoBack(ctx context.Context, token string) (*types.SurveySession, error) {
	session, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, types.ErrSessionCompleted
	}

	latest, err := m.store.LatestResponse(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, types.ErrNoResponseHistory
	}

	session.CurrentQuestionID = latest.QuestionID
	session.LastActivity = m.now().UTC()
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Progress computes the session's current progress snapshot.
func (m *Manager) Progress(ctx context.Context, token string) (*types.Progress, error) {
	session, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.snapshot(ctx, m.store, session)
}

// CleanupExpiredSessions removes every session idle past the timeout and
// returns how many were removed. Responses and audit rows cascade with them.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := m.now().UTC().Add(-m.timeout)
	removed, err := m.store.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.log.Info("expired sessions removed", zap.Int64("count", removed))
	}
	return removed, nil
}

// lookup resolves a token to a live session; expired sessions are reported
// as not found.
func (m *Manager) lookup(ctx context.Context, token string) (*types.SurveySession, error) {
	session, err := m.store.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired(m.now(), m.timeout) {
		return nil, types.ErrSessionNotFound
	}
	return session, nil
}

// snapshot derives the progress view from stored counts. Percentage is
// rounded to two decimals; a survey with no questions reports zero.
func (m *Manager) snapshot(ctx context.Context, store *db.Store, session *types.SurveySession) (*types.Progress, error) {
	total, err := store.CountQuestions(ctx, session.SurveyID)
	if err != nil {
		return nil, err
	}
	answered, err := store.CountAnswered(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	var percentage float64
	if total > 0 {
		percentage = math.Round(float64(answered)/float64(total)*10000) / 100
	}

	return &types.Progress{
		TotalQuestions:    total,
		AnsweredQuestions: answered,
		Percentage:        percentage,
		Completed:         session.Completed,
		CurrentQuestionID: session.CurrentQuestionID,
		Token:             session.Token,
	}, nil
}
