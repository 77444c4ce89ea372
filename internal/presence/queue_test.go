package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByJoinTime(t *testing.T) {
	base := time.Now()
	members := []Record{
		{DeviceID: "c", JoinedAt: base.Add(2 * time.Second), Seq: 3},
		{DeviceID: "a", JoinedAt: base, Seq: 1},
		{DeviceID: "b", JoinedAt: base.Add(time.Second), Seq: 2},
	}

	ranked := Rank(members)

	assert.Equal(t, "a", ranked[0].DeviceID)
	assert.Equal(t, "b", ranked[1].DeviceID)
	assert.Equal(t, "c", ranked[2].DeviceID)
	// Input is left alone.
	assert.Equal(t, "c", members[0].DeviceID)
}

func TestRankBreaksTiesBySeq(t *testing.T) {
	at := time.Now()
	members := []Record{
		{DeviceID: "later", JoinedAt: at, Seq: 9},
		{DeviceID: "earlier", JoinedAt: at, Seq: 4},
	}

	ranked := Rank(members)

	assert.Equal(t, "earlier", ranked[0].DeviceID)
	assert.Equal(t, "later", ranked[1].DeviceID)
}

func TestResolveExactlyOneActive(t *testing.T) {
	base := time.Now()
	members := []Record{
		{DeviceID: "a", JoinedAt: base, Seq: 1},
		{DeviceID: "b", JoinedAt: base.Add(time.Second), Seq: 2},
		{DeviceID: "c", JoinedAt: base.Add(2 * time.Second), Seq: 3},
	}

	active := 0
	for _, m := range members {
		if Resolve(members, m.DeviceID).IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestResolvePositions(t *testing.T) {
	base := time.Now()
	members := []Record{
		{DeviceID: "a", JoinedAt: base, Seq: 1},
		{DeviceID: "b", JoinedAt: base.Add(time.Second), Seq: 2},
	}

	first := Resolve(members, "a")
	assert.True(t, first.IsActive)
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 0, first.ViewersAhead)

	second := Resolve(members, "b")
	assert.False(t, second.IsActive)
	assert.Equal(t, 2, second.QueuePosition)
	assert.Equal(t, 1, second.ViewersAhead)
}

func TestResolveAbsentDevice(t *testing.T) {
	members := []Record{{DeviceID: "a", JoinedAt: time.Now(), Seq: 1}}

	state := Resolve(members, "ghost")

	assert.False(t, state.IsActive)
	assert.Equal(t, 0, state.QueuePosition)
	assert.Equal(t, 0, state.ViewersAhead)
}

func TestResolveEmptyMembership(t *testing.T) {
	state := Resolve(nil, "a")
	assert.Equal(t, QueueState{}, state)
}
