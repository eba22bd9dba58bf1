// Package route computes recipient sets for room, team and direct messages.
//
// Resolution only computes user-id sets; delivery belongs to the connection
// registry. The sender is always part of the set so its own message echoes
// back.
package route

import (
	"sort"

	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/user"
)

// Scope selects the audience of a message target.
type Scope string

const (
	// ScopeRoom addresses the whole room membership.
	ScopeRoom Scope = "room"
	// ScopeTeam addresses one team's membership.
	ScopeTeam Scope = "team"
	// ScopeUser addresses a single user.
	ScopeUser Scope = "user"
)

// Target describes where a message should go.
type Target struct {
	Scope  Scope  `json:"scope"`
	RoomID string `json:"room_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

// Resolver computes recipient id sets from the room/team directory.
type Resolver struct {
	dir *directory.Directory
}

// NewResolver creates a resolver over the given directory.
func NewResolver(dir *directory.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve computes the user-id set for a target. The sender id is always
// included.
func (r *Resolver) Resolve(target Target, senderID int64) ([]int64, *errors.Rejection) {
	switch target.Scope {
	case ScopeRoom:
		roster, rej := r.dir.RoomRoster(target.RoomID)
		if rej != nil {
			return nil, rej
		}
		return Recipients(roster, senderID), nil
	case ScopeTeam:
		roster, rej := r.dir.TeamRoster(target.RoomID, target.TeamID)
		if rej != nil {
			return nil, rej
		}
		return Recipients(roster, senderID), nil
	case ScopeUser:
		if target.UserID == 0 {
			return nil, errors.Reject(errors.CodeInvalidArgument, "target user id is required")
		}
		if target.UserID == senderID {
			return []int64{senderID}, nil
		}
		return []int64{target.UserID, senderID}, nil
	default:
		return nil, errors.Reject(errors.CodeInvalidArgument, "unknown target scope %q", target.Scope)
	}
}

// Recipients converts a membership roster into a sorted, de-duplicated id set
// that includes the sender.
func Recipients(members []user.User, senderID int64) []int64 {
	set := make(map[int64]struct{}, len(members)+1)
	for _, member := range members {
		set[member.ID] = struct{}{}
	}
	if senderID != 0 {
		set[senderID] = struct{}{}
	}
	return sortedIDs(set)
}

// NotificationRecipients selects the members that receive room notifications:
// holders of the administrator or observer role tag, matched without case
// sensitivity.
func NotificationRecipients(members []user.User) []int64 {
	set := make(map[int64]struct{})
	for _, member := range members {
		if member.IsAdministrator() || member.IsObserver() {
			set[member.ID] = struct{}{}
		}
	}
	return sortedIDs(set)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
