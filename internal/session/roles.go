package session

import (
	"strings"

	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/user"
)

// Role is an assignable in-game role. RoleNone is the unassigned sentinel.
type Role string

const (
	RoleNone           Role = "none"
	RoleDirector       Role = "director"
	RoleFinance        Role = "finance"
	RoleOperations     Role = "operations"
	RoleCommunications Role = "communications"
	RoleObserver       Role = "observer"
)

// canonicalRoles are the four roles that must be distinctly held before play
// advances past role selection.
var canonicalRoles = [...]Role{RoleDirector, RoleFinance, RoleOperations, RoleCommunications}

// minPlayersForRoleLock is the player count required before role selection can
// complete.
const minPlayersForRoleLock = 4

// ParseRole normalizes a role name, reporting whether it is assignable.
// RoleNone is not assignable.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleDirector:
		return RoleDirector, true
	case RoleFinance:
		return RoleFinance, true
	case RoleOperations:
		return RoleOperations, true
	case RoleCommunications:
		return RoleCommunications, true
	case RoleObserver:
		return RoleObserver, true
	default:
		return RoleNone, false
	}
}

// AssignRole gives the user the wanted role, creating the player state when
// absent. A role held by a different user is refused with role-taken; picking
// a new role for oneself is allowed and re-evaluates the step condition.
func (s *Session) AssignRole(u user.User, wanted Role) *errors.Rejection {
	if wanted == RoleNone {
		return errors.Reject(errors.CodeInvalidRole, "role %q is not assignable", wanted)
	}

	for i := range s.Players {
		holder := &s.Players[i]
		if holder.Role == wanted && holder.User.ID != u.ID {
			return errors.Reject(errors.CodeRoleTaken, "role %q is held by user %d", wanted, holder.User.ID)
		}
	}

	player := s.Player(u.ID)
	if player == nil {
		// Late joiner: additive creation is allowed until roles lock.
		s.Players = append(s.Players, PlayerState{User: u, Role: RoleNone})
		player = &s.Players[len(s.Players)-1]
	}
	player.Role = wanted

	s.advanceWhenRolesChosen()
	return nil
}

// advanceWhenRolesChosen moves NOTSTARTED/CHOSEROLE to ROLECHOSEN once the
// session has enough players and the four canonical roles are all distinctly
// assigned. The membership scan is recomputed on every assignment; sessions
// are small enough that incremental tracking is not worth the bookkeeping.
func (s *Session) advanceWhenRolesChosen() {
	if s.Step != StepNotStarted && s.Step != StepChooseRole {
		return
	}
	if len(s.Players) < minPlayersForRoleLock {
		return
	}

	holders := make(map[Role]int64, len(canonicalRoles))
	for _, player := range s.Players {
		for _, canonical := range canonicalRoles {
			if player.Role == canonical {
				holders[canonical] = player.User.ID
			}
		}
	}
	if len(holders) == len(canonicalRoles) {
		s.Step = StepRoleChosen
	}
}
