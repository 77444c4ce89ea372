package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
)

func TestExportCoversDeletedAssistants(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := &model.Assistant{ID: uuid.NewString(), UserID: "owner", Name: "old one"}
	require.NoError(t, st.CreateAssistant(ctx, a))

	sess := &model.Session{
		ID: uuid.NewString(), AssistantID: a.ID,
		Status: model.SessionStopped, ShareToken: uuid.NewString(),
	}
	require.NoError(t, st.CreateSession(ctx, sess))

	text := "hello"
	msg := &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn, UserText: &text,
	}
	require.NoError(t, st.CreateMessage(ctx, msg))

	require.NoError(t, st.DeleteAssistant(ctx, a.ID, "owner"))

	svc := NewExportService(st, logger.NewNop())
	export, err := svc.Build(ctx, "owner")
	require.NoError(t, err)

	require.Len(t, export.Assistants, 1)
	assert.True(t, export.Assistants[0].Deleted)
	require.Len(t, export.Assistants[0].Sessions, 1)
	assert.Len(t, export.Assistants[0].Sessions[0].Messages, 1)
}

func TestWriteZipLayout(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := &model.Assistant{ID: uuid.NewString(), UserID: "owner", Name: "zipped"}
	require.NoError(t, st.CreateAssistant(ctx, a))
	sess := &model.Session{
		ID: uuid.NewString(), AssistantID: a.ID,
		Status: model.SessionRunning, Active: true, ShareToken: uuid.NewString(),
	}
	require.NoError(t, st.CreateSession(ctx, sess))

	text := "ping"
	require.NoError(t, st.CreateMessage(ctx, &model.ChatMessage{
		ID: uuid.NewString(), SessionID: sess.ID, AssistantID: a.ID,
		ThreadID: "t1", Kind: model.KindTurn, UserText: &text,
	}))

	svc := NewExportService(st, logger.NewNop())
	export, err := svc.Build(ctx, "owner")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteZip(&buf, export))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "sessions.csv")
	require.Contains(t, names, "assistants/"+a.ID+"/messages.csv")

	rc, err := names["assistants/"+a.ID+"/messages.csv"].Open()
	require.NoError(t, err)
	defer rc.Close()

	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "session_id", records[0][0])
	assert.Equal(t, "ping", records[1][4])
}
