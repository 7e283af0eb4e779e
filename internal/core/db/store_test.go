package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillform/quillform/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn := openTestDB(t)
	require.NoError(t, MigrateUp(conn))
	store, err := NewStore(conn)
	require.NoError(t, err)
	return store
}

func seedSession(t *testing.T, store *Store) (*types.Survey, *types.Question, *types.SurveySession) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	survey := &types.Survey{
		ID: types.NewSurveyID(), Title: "s", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.InsertSurvey(ctx, survey))

	question := &types.Question{
		ID: types.NewQuestionID(), SurveyID: survey.ID, Type: types.QuestionText,
		Content: "q", OrderIndex: 1, CreatedAt: now,
	}
	require.NoError(t, store.InsertQuestion(ctx, question))

	session := &types.SurveySession{
		ID: types.NewSessionID(), SurveyID: survey.ID, Token: "token-" + string(survey.ID),
		CurrentQuestionID: question.ID, CreatedAt: now, LastActivity: now,
	}
	require.NoError(t, store.InsertSession(ctx, session))
	return survey, question, session
}

func TestTimestampRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 7, 4, 9, 30, 15, 123456789, time.UTC)
	survey := &types.Survey{
		ID: types.NewSurveyID(), Title: "s", CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, store.InsertSurvey(ctx, survey))

	loaded, err := store.GetSurvey(ctx, survey.ID)
	require.NoError(t, err)
	require.True(t, loaded.CreatedAt.Equal(created), "nanosecond precision lost: %v", loaded.CreatedAt)
}

func TestUpsertResponse_OverwritesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, question, session := seedSession(t, store)

	t0 := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	first, err := store.UpsertResponse(ctx, &types.Response{
		ID: types.NewResponseID(), SessionID: session.ID,
		QuestionID: question.ID, Value: "one", CreatedAt: t0,
	})
	require.NoError(t, err)
	require.Nil(t, first.UpdatedAt)

	second, err := store.UpsertResponse(ctx, &types.Response{
		ID: types.NewResponseID(), SessionID: session.ID,
		QuestionID: question.ID, Value: "two", CreatedAt: t0.Add(time.Minute),
	})
	require.NoError(t, err)

	// Original row survives: same ID and created_at, new value, updated_at set.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "two", second.Value)
	require.True(t, second.CreatedAt.Equal(t0))
	require.NotNil(t, second.UpdatedAt)
	require.True(t, second.UpdatedAt.Equal(t0.Add(time.Minute)))

	count, err := store.CountResponses(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLatestResponse_OrdersBySubmissionTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	survey, _, session := seedSession(t, store)

	base := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		q := &types.Question{
			ID: types.NewQuestionID(), SurveyID: survey.ID, Type: types.QuestionText,
			Content: "q", OrderIndex: i + 2, CreatedAt: base,
		}
		require.NoError(t, store.InsertQuestion(ctx, q))
		_, err := store.UpsertResponse(ctx, &types.Response{
			ID: types.NewResponseID(), SessionID: session.ID,
			QuestionID: q.ID, Value: "v", CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	latest, err := store.LatestResponse(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, latest.CreatedAt.Equal(base.Add(2*time.Second)))

	none, err := store.LatestResponse(ctx, types.NewSessionID())
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestDeleteExpiredSessions_CutoffBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, _, stale := seedSession(t, store)
	_, _, fresh := seedSession(t, store)

	cutoff := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchSession(ctx, stale.ID, cutoff.Add(-time.Second)))
	require.NoError(t, store.TouchSession(ctx, fresh.ID, cutoff))

	removed, err := store.DeleteExpiredSessions(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	// Exactly-at-cutoff survives; strictly-older goes.
	_, err = store.GetSession(ctx, stale.ID)
	require.ErrorIs(t, err, types.ErrSessionNotFound)
	_, err = store.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestTransact_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, question, session := seedSession(t, store)

	sentinel := types.ErrInvalidRule
	err := store.Transact(ctx, func(tx *Store) error {
		_, err := tx.UpsertResponse(ctx, &types.Response{
			ID: types.NewResponseID(), SessionID: session.ID,
			QuestionID: question.ID, Value: "doomed", CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	count, err := store.CountResponses(ctx, session.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}
