// Package presence tracks which devices are viewing a session and derives
// the exclusive-active-speaker queue from the live membership set.
package presence

import (
	"sort"
	"time"
)

// Record is one device's ephemeral presence in a session. It lives only in
// the tracker's broadcast state and vanishes on disconnect.
type Record struct {
	DeviceID string    `json:"device_id"`
	Email    string    `json:"email,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	// Seq is a monotonic per-connection counter assigned at track time. It
	// breaks JoinedAt ties deterministically.
	Seq uint64 `json:"seq"`
}

// QueueState is one device's view of the turn-taking queue.
type QueueState struct {
	IsActive      bool `json:"is_active"`
	QueuePosition int  `json:"queue_position"`
	ViewersAhead  int  `json:"viewers_ahead"`
}

// Rank orders members by join time, earliest first, ties broken by Seq.
// The input slice is not modified.
func Rank(members []Record) []Record {
	ranked := make([]Record, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		return ranked[i].Seq < ranked[j].Seq
	})
	return ranked
}

// Resolve derives the queue state for one device from the membership set.
// The device at rank 0 is active; everyone else holds a 1-indexed queue
// position. A device not present in the set resolves to inactive with
// position 0.
func Resolve(members []Record, deviceID string) QueueState {
	ranked := Rank(members)
	for i, rec := range ranked {
		if rec.DeviceID == deviceID {
			return QueueState{
				IsActive:      i == 0,
				QueuePosition: i + 1,
				ViewersAhead:  i,
			}
		}
	}
	return QueueState{}
}
