package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
)

func newSessionFixture(t *testing.T, mutate func(*model.Assistant)) (*SessionService, *store.Store, *model.Assistant, *fakePublisher) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := &model.Assistant{
		ID:            uuid.NewString(),
		UserID:        "owner",
		Name:          "greeter",
		ModelProvider: model.ProviderOpenAI,
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, st.CreateAssistant(context.Background(), a))

	pub := &fakePublisher{}
	svc := NewSessionService(st, pub, logger.NewNop())
	return svc, st, a, pub
}

func TestStartCreatesSessionOnce(t *testing.T) {
	svc, _, a, _ := newSessionFixture(t, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, first.Status)
	assert.True(t, first.Active)
	assert.NotEmpty(t, first.ShareToken)

	// Restarting reuses the session and keeps the share link stable.
	second, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ShareToken, second.ShareToken)
}

func TestStartReactivatesStoppedSession(t *testing.T) {
	svc, _, a, _ := newSessionFixture(t, nil)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)

	sess, err = svc.Stop(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopped, sess.Status)
	assert.False(t, sess.Active)

	revived, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, revived.ID)
	assert.Equal(t, model.SessionRunning, revived.Status)
	assert.True(t, revived.Active)
}

func TestStartProbesBroker(t *testing.T) {
	svc, _, a, pub := newSessionFixture(t, func(a *model.Assistant) {
		a.MQTTHost = "broker.local"
		a.MQTTTopic = "lamps/1"
	})
	ctx := context.Background()

	sess, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.True(t, sess.MQTTConnected)

	pub.fail = true
	sess, err = svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)
	// A broken broker does not block the session.
	assert.False(t, sess.MQTTConnected)
	assert.True(t, sess.Active)
}

func TestStartRequiresOwnership(t *testing.T) {
	svc, _, a, _ := newSessionFixture(t, nil)

	_, err := svc.Start(context.Background(), "intruder", a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveAccess(t *testing.T) {
	svc, _, a, _ := newSessionFixture(t, nil)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "owner", a.ID)
	require.NoError(t, err)

	// Owner with no token.
	got, gotA, err := svc.ResolveAccess(ctx, sess.ID, "owner", "")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, a.ID, gotA.ID)

	// Guest with the share token.
	_, _, err = svc.ResolveAccess(ctx, sess.ID, "", sess.ShareToken)
	require.NoError(t, err)

	// Guest with a bad token.
	_, _, err = svc.ResolveAccess(ctx, sess.ID, "", "wrong-token")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// Different signed-in user without the token.
	_, _, err = svc.ResolveAccess(ctx, sess.ID, "someone-else", "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestTestBrokerRequiresConfiguration(t *testing.T) {
	svc, _, a, _ := newSessionFixture(t, nil)

	_, err := svc.TestBroker(context.Background(), "owner", a.ID)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}
