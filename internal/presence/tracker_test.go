package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompting-realities/backend/pkg/logger"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(nil, "test-origin", 30*time.Second, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

func drain(ch <-chan []Record) []Record {
	var last []Record
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return last
			}
			last = snap
		default:
			return last
		}
	}
}

func TestTrackAssignsMonotonicSeq(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	at := time.Now()

	subA, err := tr.Track(ctx, "s1", Record{DeviceID: "a", JoinedAt: at})
	require.NoError(t, err)
	subB, err := tr.Track(ctx, "s1", Record{DeviceID: "b", JoinedAt: at})
	require.NoError(t, err)
	defer tr.Untrack(ctx, subA)
	defer tr.Untrack(ctx, subB)

	members := tr.Members("s1")
	require.Len(t, members, 2)

	// Identical join times still rank deterministically, first tracked first.
	ranked := Rank(members)
	assert.Equal(t, "a", ranked[0].DeviceID)
	assert.Equal(t, "b", ranked[1].DeviceID)
}

func TestUntrackPromotesNextViewer(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	base := time.Now()

	subA, err := tr.Track(ctx, "s1", Record{DeviceID: "a", JoinedAt: base})
	require.NoError(t, err)
	subB, err := tr.Track(ctx, "s1", Record{DeviceID: "b", JoinedAt: base.Add(time.Second)})
	require.NoError(t, err)
	defer tr.Untrack(ctx, subB)

	assert.False(t, Resolve(tr.Members("s1"), "b").IsActive)

	tr.Untrack(ctx, subA)

	state := Resolve(tr.Members("s1"), "b")
	assert.True(t, state.IsActive)
	assert.Equal(t, 1, state.QueuePosition)
}

func TestTrackBroadcastsSnapshots(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	subA, err := tr.Track(ctx, "s1", Record{DeviceID: "a", JoinedAt: time.Now()})
	require.NoError(t, err)
	defer tr.Untrack(ctx, subA)

	subB, err := tr.Track(ctx, "s1", Record{DeviceID: "b", JoinedAt: time.Now()})
	require.NoError(t, err)

	// A sees B join.
	snap := drain(subA.Updates())
	require.NotNil(t, snap)
	assert.Len(t, snap, 2)

	tr.Untrack(ctx, subB)
	snap = drain(subA.Updates())
	require.NotNil(t, snap)
	assert.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].DeviceID)
}

func TestSessionsAreIsolated(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	subA, err := tr.Track(ctx, "s1", Record{DeviceID: "a", JoinedAt: time.Now()})
	require.NoError(t, err)
	defer tr.Untrack(ctx, subA)
	subB, err := tr.Track(ctx, "s2", Record{DeviceID: "b", JoinedAt: time.Now()})
	require.NoError(t, err)
	defer tr.Untrack(ctx, subB)

	assert.Len(t, tr.Members("s1"), 1)
	assert.Len(t, tr.Members("s2"), 1)
	assert.True(t, Resolve(tr.Members("s1"), "a").IsActive)
	assert.True(t, Resolve(tr.Members("s2"), "b").IsActive)
}

func TestUntrackClosesSubscription(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	sub, err := tr.Track(ctx, "s1", Record{DeviceID: "a", JoinedAt: time.Now()})
	require.NoError(t, err)
	tr.Untrack(ctx, sub)

	for {
		_, open := <-sub.Updates()
		if !open {
			return
		}
	}
}
