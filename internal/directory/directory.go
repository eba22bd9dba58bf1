// Package directory owns the nested Room→Team→Session graph.
//
// Each room carries one exclusive lock guarding the room, its teams and their
// sessions. The lock is the sole consistency boundary: there is no cross-room
// locking and no operation ever holds two room locks. Callers outside the
// package reach the graph only through id-based operations; raw references
// never escape the lock's scope.
package directory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/notice"
	"github.com/praxisplay/gameroom/internal/session"
	"github.com/praxisplay/gameroom/internal/user"
)

// Room is a top-level space containing teams and its own membership.
type Room struct {
	ID            string
	Name          string
	Description   string
	Whitelist     []string
	Members       []user.User
	Teams         []*Team
	Notifications []notice.Notification

	mu sync.Mutex
	// removed marks a room destroyed while a caller may still hold its
	// pointer; it is only read and written under mu.
	removed bool
}

// Team is a sub-space within a room where a single game session runs.
type Team struct {
	ID        string
	Name      string
	Whitelist []string
	Members   []user.User
	Session   *session.Session
}

// Directory is the process-wide registry of rooms. The directory map has its
// own lock; per-room state is guarded by the room lock.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// room fetches a room without locking it.
func (d *Directory) room(roomID string) (*Room, *errors.Rejection) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, errors.Reject(errors.CodeRoomNotFound, "room %q does not exist", roomID)
	}
	return room, nil
}

// WithRoom runs fn while holding the room's exclusive lock. fn must not
// perform network I/O or acquire another room's lock.
func (d *Directory) WithRoom(roomID string, fn func(*Room) *errors.Rejection) *errors.Rejection {
	room, rej := d.room(roomID)
	if rej != nil {
		return rej
	}
	return withRoomLocked(room, fn)
}

// withRoomLocked locks the room and runs fn, refusing a room destroyed after
// the caller resolved its pointer.
func withRoomLocked(room *Room, fn func(*Room) *errors.Rejection) *errors.Rejection {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.removed {
		return errors.Reject(errors.CodeRoomNotFound, "room %q does not exist", room.ID)
	}
	return fn(room)
}

// WithTeam runs fn with the room lock held and the team resolved.
func (d *Directory) WithTeam(roomID, teamID string, fn func(*Room, *Team) *errors.Rejection) *errors.Rejection {
	return d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		team := room.team(teamID)
		if team == nil {
			return errors.Reject(errors.CodeTeamNotFound, "team %q does not exist in room %q", teamID, roomID)
		}
		return fn(room, team)
	})
}

// WithSession runs fn with the room lock held and the team's session resolved.
func (d *Directory) WithSession(roomID, teamID string, fn func(*Room, *Team, *session.Session) *errors.Rejection) *errors.Rejection {
	return d.WithTeam(roomID, teamID, func(room *Room, team *Team) *errors.Rejection {
		if team.Session == nil {
			return errors.Reject(errors.CodeNoGame, "team %q has no session", teamID)
		}
		return fn(room, team, team.Session)
	})
}

// CreateRoom registers a new room. The id must be non-blank and unused.
func (d *Directory) CreateRoom(roomID, name, description string, whitelist []string) *errors.Rejection {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return errors.Reject(errors.CodeInvalidArgument, "room id is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.rooms[roomID]; exists {
		return errors.Reject(errors.CodeRoomExists, "room %q already exists", roomID)
	}
	d.rooms[roomID] = &Room{
		ID:          roomID,
		Name:        name,
		Description: description,
		Whitelist:   append([]string(nil), whitelist...),
	}
	return nil
}

// RemoveRoom destroys a room, cascading to its teams and their sessions. It
// returns the ids of every member across the room and its teams so the caller
// can notify and evict them.
func (d *Directory) RemoveRoom(roomID string, now time.Time) ([]int64, []session.Session, *errors.Rejection) {
	room, rej := d.room(roomID)
	if rej != nil {
		return nil, nil, rej
	}

	// Tombstone under the room lock first: callers that resolved the room
	// pointer before the map delete still observe the removal.
	room.mu.Lock()
	if room.removed {
		room.mu.Unlock()
		return nil, nil, errors.Reject(errors.CodeRoomNotFound, "room %q does not exist", roomID)
	}
	room.removed = true

	affected := make(map[int64]struct{})
	for _, member := range room.Members {
		affected[member.ID] = struct{}{}
	}

	var finished []session.Session
	for _, team := range room.Teams {
		for _, member := range team.Members {
			affected[member.ID] = struct{}{}
		}
		if team.Session != nil {
			for _, player := range team.Session.Players {
				affected[player.User.ID] = struct{}{}
			}
			if team.Session.Active {
				team.Session.Finish(now)
				finished = append(finished, team.Session.Clone())
			}
			team.Session = nil
		}
		team.Members = nil
	}
	room.Teams = nil
	room.Members = nil
	room.Notifications = nil
	room.mu.Unlock()

	d.mu.Lock()
	delete(d.rooms, roomID)
	d.mu.Unlock()

	return sortedIDs(affected), finished, nil
}

// JoinRoom adds the user to the room's membership, rejecting a duplicate join
// by id. The room whitelist follows the same rules as the team one:
// administrators bypass it, an empty list is open, otherwise membership is by
// case-insensitive name match.
func (d *Directory) JoinRoom(roomID string, u user.User) *errors.Rejection {
	return d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		for _, member := range room.Members {
			if member.ID == u.ID {
				return errors.Reject(errors.CodeDuplicateMember, "user %d is already in room %q", u.ID, roomID)
			}
		}
		if !u.IsAdministrator() && !whitelisted(room.Whitelist, u.Name) {
			return errors.Reject(errors.CodeWhitelistDenied, "user %q is not on room %q whitelist", u.Name, roomID)
		}
		room.Members = append(room.Members, u)
		return nil
	})
}

// LeaveRoom removes the user from the room's membership. Removing an absent
// user is a no-op.
func (d *Directory) LeaveRoom(roomID string, userID int64) *errors.Rejection {
	return d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		room.Members = removeByID(room.Members, userID)
		return nil
	})
}

// CreateTeam registers a team under a room. The team id must be unused within
// the room.
func (d *Directory) CreateTeam(roomID, teamID, name string, whitelist []string) *errors.Rejection {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return errors.Reject(errors.CodeInvalidArgument, "team id is required")
	}
	return d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		if room.team(teamID) != nil {
			return errors.Reject(errors.CodeTeamExists, "team %q already exists in room %q", teamID, roomID)
		}
		room.Teams = append(room.Teams, &Team{
			ID:        teamID,
			Name:      name,
			Whitelist: append([]string(nil), whitelist...),
		})
		return nil
	})
}

// DeleteTeam removes a team from its room, returning the affected member ids
// and the finished session snapshot when one was live.
func (d *Directory) DeleteTeam(roomID, teamID string, now time.Time) ([]int64, *session.Session, *errors.Rejection) {
	var affected []int64
	var finished *session.Session
	rej := d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		for i, team := range room.Teams {
			if team.ID != teamID {
				continue
			}
			ids := make(map[int64]struct{})
			for _, member := range team.Members {
				ids[member.ID] = struct{}{}
			}
			if team.Session != nil {
				for _, player := range team.Session.Players {
					ids[player.User.ID] = struct{}{}
				}
				if team.Session.Active {
					team.Session.Finish(now)
					snapshot := team.Session.Clone()
					finished = &snapshot
				}
				team.Session = nil
			}
			team.Members = nil
			room.Teams = append(room.Teams[:i], room.Teams[i+1:]...)
			affected = sortedIDs(ids)
			return nil
		}
		return errors.Reject(errors.CodeTeamNotFound, "team %q does not exist in room %q", teamID, roomID)
	})
	if rej != nil {
		return nil, nil, rej
	}
	return affected, finished, nil
}

// JoinTeam adds the user to a team. Administrators bypass the whitelist; an
// empty whitelist is open; otherwise membership is by case-insensitive name
// match. A duplicate join by id is rejected.
func (d *Directory) JoinTeam(roomID, teamID string, u user.User) *errors.Rejection {
	return d.WithTeam(roomID, teamID, func(_ *Room, team *Team) *errors.Rejection {
		for _, member := range team.Members {
			if member.ID == u.ID {
				return errors.Reject(errors.CodeDuplicateMember, "user %d is already in team %q", u.ID, teamID)
			}
		}
		if !u.IsAdministrator() && !whitelisted(team.Whitelist, u.Name) {
			return errors.Reject(errors.CodeWhitelistDenied, "user %q is not on team %q whitelist", u.Name, teamID)
		}
		team.Members = append(team.Members, u)
		return nil
	})
}

// LeaveTeam removes the user from a team. Removing an absent user is a no-op.
func (d *Directory) LeaveTeam(roomID, teamID string, userID int64) *errors.Rejection {
	return d.WithTeam(roomID, teamID, func(_ *Room, team *Team) *errors.Rejection {
		team.Members = removeByID(team.Members, userID)
		return nil
	})
}

// RoomRoster returns a copy of the room's membership.
func (d *Directory) RoomRoster(roomID string) ([]user.User, *errors.Rejection) {
	var roster []user.User
	rej := d.WithRoom(roomID, func(room *Room) *errors.Rejection {
		roster = append([]user.User(nil), room.Members...)
		return nil
	})
	if rej != nil {
		return nil, rej
	}
	return roster, nil
}

// TeamRoster returns a copy of the team's membership.
func (d *Directory) TeamRoster(roomID, teamID string) ([]user.User, *errors.Rejection) {
	var roster []user.User
	rej := d.WithTeam(roomID, teamID, func(_ *Room, team *Team) *errors.Rejection {
		roster = append([]user.User(nil), team.Members...)
		return nil
	})
	if rej != nil {
		return nil, rej
	}
	return roster, nil
}

// team fetches a team by id. Callers must hold the room lock.
func (r *Room) team(teamID string) *Team {
	for _, team := range r.Teams {
		if team.ID == teamID {
			return team
		}
	}
	return nil
}

// whitelisted reports whether a name passes the whitelist. An empty
// whitelist admits everyone.
func whitelisted(whitelist []string, name string) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, allowed := range whitelist {
		if strings.EqualFold(allowed, name) {
			return true
		}
	}
	return false
}

func removeByID(members []user.User, userID int64) []user.User {
	for i, member := range members {
		if member.ID == userID {
			return append(members[:i], members[i+1:]...)
		}
	}
	return members
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
