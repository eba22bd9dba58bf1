// Package readiness tracks the ephemeral ready sets and leader records used
// to boot a game session.
//
// Ready sets are keyed by (room, team) and cleared the moment a session is
// activated for that key; they are never persisted. The coordinator has its
// own lock and is independent of room locking: membership validation happens
// at ready-time under the room lock, before the coordinator is touched.
package readiness

import (
	"sort"
	"sync"
)

// Quorum is the ready-player count required to begin session initialization.
const Quorum = 4

// Key identifies a team's ready set.
type Key struct {
	RoomID string
	TeamID string
}

// Coordinator owns ready sets and elected-leader records.
type Coordinator struct {
	mu      sync.Mutex
	ready   map[Key]map[int64]struct{}
	leaders map[Key]int64
}

// NewCoordinator creates an empty coordinator. One instance lives for the
// whole process.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		ready:   make(map[Key]map[int64]struct{}),
		leaders: make(map[Key]int64),
	}
}

// Ready marks the user ready, returning the resulting count and the full
// sorted id list.
func (c *Coordinator) Ready(key Key, userID int64) (int, []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.ready[key]
	if !ok {
		set = make(map[int64]struct{})
		c.ready[key] = set
	}
	set[userID] = struct{}{}
	return len(set), sortedIDs(set)
}

// Unready removes the user from the ready set, returning the resulting count
// and the full sorted id list.
func (c *Coordinator) Unready(key Key, userID int64) (int, []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.ready[key]
	if !ok {
		return 0, nil
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(c.ready, key)
		return 0, nil
	}
	return len(set), sortedIDs(set)
}

// ReadyIDs returns the sorted ready ids for a key.
func (c *Coordinator) ReadyIDs(key Key) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedIDs(c.ready[key])
}

// ElectLeader deterministically records the minimum ready id as the key's
// leader, unless one is already recorded. Later readies never change a
// recorded leader. It reports true only on the call that records the leader:
// concurrent callers racing past the same quorum observation all reach this
// point, and exactly one of them may proceed with leader-only delivery.
func (c *Coordinator) ElectLeader(key Key) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if leader, ok := c.leaders[key]; ok {
		return leader, false
	}
	set := c.ready[key]
	if len(set) == 0 {
		return 0, false
	}
	leader := int64(0)
	for id := range set {
		if leader == 0 || id < leader {
			leader = id
		}
	}
	c.leaders[key] = leader
	return leader, true
}

// Leader returns the recorded leader for a key, if any.
func (c *Coordinator) Leader(key Key) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	leader, ok := c.leaders[key]
	return leader, ok
}

// Clear drops the ready set and leader record for a key. Called when the
// session is activated or the team goes away.
func (c *Coordinator) Clear(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ready, key)
	delete(c.leaders, key)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
