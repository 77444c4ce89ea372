package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/prompting-realities/backend/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedAssistant(t *testing.T, st *Store, userID string) *model.Assistant {
	t.Helper()
	a := &model.Assistant{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          "counter",
		ModelProvider: model.ProviderOpenAI,
	}
	require.NoError(t, st.CreateAssistant(context.Background(), a))
	return a
}

func seedSession(t *testing.T, st *Store, assistantID string) *model.Session {
	t.Helper()
	sess := &model.Session{
		ID:          uuid.NewString(),
		AssistantID: assistantID,
		Status:      model.SessionRunning,
		Active:      true,
		ShareToken:  uuid.NewString(),
	}
	require.NoError(t, st.CreateSession(context.Background(), sess))
	return sess
}

func TestAssistantSoftDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	msg := &model.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		AssistantID: a.ID,
		ThreadID:    "t1",
		Kind:        model.KindTurn,
	}
	require.NoError(t, st.CreateMessage(ctx, msg))

	require.NoError(t, st.DeleteAssistant(ctx, a.ID, "u1"))

	_, err := st.GetAssistant(ctx, a.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	// History survives the delete.
	rows, err := st.ListSessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	exported, err := st.ListAssistantsForExport(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.True(t, exported[0].DeletedAt.Valid)
}

func TestDeleteAssistantWrongOwner(t *testing.T) {
	st := newTestStore(t)
	a := seedAssistant(t, st, "u1")

	err := st.DeleteAssistant(context.Background(), a.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestSessionPicksNewest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")

	first := seedSession(t, st, a.ID)
	require.NoError(t, st.DB().Model(first).Update("created_at", time.Now().Add(-time.Hour)).Error)
	second := seedSession(t, st, a.ID)

	latest, err := st.LatestSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestGetOrCreateViewerThreadIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.GetOrCreateViewerThread(ctx, "s1", "user:alice", uuid.NewString())
	require.NoError(t, err)

	// A second call with a different candidate id keeps the original.
	second, err := st.GetOrCreateViewerThread(ctx, "s1", "user:alice", uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A different viewer gets a different thread.
	other, err := st.GetOrCreateViewerThread(ctx, "s1", "device:d9", uuid.NewString())
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestRotateViewerThread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old, err := st.GetOrCreateViewerThread(ctx, "s1", "user:alice", uuid.NewString())
	require.NoError(t, err)

	fresh := uuid.NewString()
	require.NoError(t, st.RotateViewerThread(ctx, "s1", "user:alice", fresh))

	current, err := st.GetOrCreateViewerThread(ctx, "s1", "user:alice", uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, fresh, current)
	assert.NotEqual(t, old, current)
}

func TestListThreadMessagesExcludesMarkers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	text := "hello"
	turn := &model.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		AssistantID: a.ID,
		ThreadID:    "t1",
		Kind:        model.KindTurn,
		UserText:    &text,
	}
	cid := "resp_123"
	marker := &model.ChatMessage{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		AssistantID:    a.ID,
		ThreadID:       "t1",
		Kind:           model.KindMarker,
		ContinuationID: &cid,
	}
	otherThread := &model.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		AssistantID: a.ID,
		ThreadID:    "t2",
		Kind:        model.KindTurn,
	}
	require.NoError(t, st.CreateMessage(ctx, turn))
	require.NoError(t, st.CreateMessage(ctx, marker))
	require.NoError(t, st.CreateMessage(ctx, otherThread))

	rows, err := st.ListThreadMessages(ctx, sess.ID, "t1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, turn.ID, rows[0].ID)

	// Everything is visible to the audit listing.
	all, err := st.ListSessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLatestContinuationID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	got, err := st.LatestContinuationID(ctx, sess.ID, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	old := "resp_old"
	oldMarker := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindMarker, ContinuationID: &old,
	}
	require.NoError(t, st.CreateMessage(ctx, oldMarker))
	require.NoError(t, st.DB().Model(oldMarker).Update("created_at", time.Now().Add(-time.Hour)).Error)

	latest := "resp_new"
	newMarker := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindMarker, ContinuationID: &latest,
	}
	require.NoError(t, st.CreateMessage(ctx, newMarker))

	got, err = st.LatestContinuationID(ctx, sess.ID, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "resp_new", *got)
}

func TestSetReaction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	turn := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn,
	}
	require.NoError(t, st.CreateMessage(ctx, turn))

	like := model.ReactionLike
	require.NoError(t, st.SetReaction(ctx, sess.ID, turn.ID, &like))

	rows, err := st.ListThreadMessages(ctx, sess.ID, "t1")
	require.NoError(t, err)
	require.NotNil(t, rows[0].Reaction)
	assert.Equal(t, model.ReactionLike, *rows[0].Reaction)

	// Clearing works.
	require.NoError(t, st.SetReaction(ctx, sess.ID, turn.ID, nil))
	rows, err = st.ListThreadMessages(ctx, sess.ID, "t1")
	require.NoError(t, err)
	assert.Nil(t, rows[0].Reaction)
}

func TestSetReactionRejectsMarkers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	cid := "resp_1"
	marker := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindMarker, ContinuationID: &cid,
	}
	require.NoError(t, st.CreateMessage(ctx, marker))

	like := model.ReactionLike
	err := st.SetReaction(ctx, sess.ID, marker.ID, &like)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMQTTLogOnlyAttemptedTurns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	delivered := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn,
		AssistantPayload: datatypes.JSON(`{"MQTT_value":7}`),
		MQTTAttempted:    true,
		MQTTPayload:      datatypes.JSON(`7`),
	}
	failed := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn,
		AssistantPayload: datatypes.JSON(`{"MQTT_value":8}`),
		MQTTAttempted:    true,
	}
	plain := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn,
	}
	require.NoError(t, st.CreateMessage(ctx, delivered))
	require.NoError(t, st.CreateMessage(ctx, failed))
	require.NoError(t, st.CreateMessage(ctx, plain))

	rows, err := st.MQTTLog(ctx, sess.ID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.False(t, delivered.MQTTFailed())
	assert.True(t, failed.MQTTFailed())
	assert.False(t, plain.MQTTFailed())
}

func TestScalarPayloadSurvivesRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := seedAssistant(t, st, "u1")
	sess := seedSession(t, st, a.ID)

	// Scalar JSON values must come back as stored. A sqlite column with
	// numeric affinity would return 7 as an integer and break the scan.
	text := "what number"
	msg := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn,
		UserText:         &text,
		AssistantPayload: datatypes.JSON(`{"MQTT_value":7}`),
		MQTTAttempted:    true,
		MQTTPayload:      datatypes.JSON(`7`),
	}
	require.NoError(t, st.CreateMessage(ctx, msg))

	rows, err := st.ListThreadMessages(ctx, sess.ID, "t1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, datatypes.JSON(`7`), rows[0].MQTTPayload)
	assert.Equal(t, datatypes.JSON(`{"MQTT_value":7}`), rows[0].AssistantPayload)

	log, err := st.MQTTLog(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, datatypes.JSON(`7`), log[0].MQTTPayload)
}
