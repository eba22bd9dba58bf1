package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/praxisplay/gameroom/internal/content"
	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/readiness"
	"github.com/praxisplay/gameroom/internal/route"
	"github.com/praxisplay/gameroom/internal/session"
	"github.com/praxisplay/gameroom/internal/stats"
	"github.com/praxisplay/gameroom/internal/user"
)

type gamePayload struct {
	RoomID string `json:"room_id"`
	TeamID string `json:"team_id"`

	Role     string              `json:"role,omitempty"`
	CardID   int                 `json:"card_id,omitempty"`
	Response string              `json:"response,omitempty"`
	Result   string              `json:"result,omitempty"`
	Message  string              `json:"message,omitempty"`
	Areas    []session.AreaState `json:"areas,omitempty"`
	Cards    []session.Card      `json:"cards,omitempty"`
	Category string              `json:"category,omitempty"`
	Style    string              `json:"style,omitempty"`
	Budget   *session.Budget     `json:"budget,omitempty"`
	Crisis   *session.Crisis     `json:"crisis,omitempty"`
}

type readyStatePayload struct {
	RoomID   string  `json:"room_id"`
	TeamID   string  `json:"team_id"`
	Count    int     `json:"count"`
	ReadyIDs []int64 `json:"ready_ids"`
}

type gameStatePayload struct {
	RoomID  string          `json:"room_id"`
	TeamID  string          `json:"team_id"`
	Session session.Session `json:"session"`
}

// initializePayload hands the elected leader everything board computation
// needs: the loaded rule set alongside the session skeleton.
type initializePayload struct {
	RoomID  string          `json:"room_id"`
	TeamID  string          `json:"team_id"`
	Rules   content.Rules   `json:"rules"`
	Session session.Session `json:"session"`
}

func memberOf(members []user.User, userID int64) bool {
	for _, member := range members {
		if member.ID == userID {
			return true
		}
	}
	return false
}

// handleReady marks the sender ready. Membership and an inactive session are
// validated under the room lock before the coordinator is touched; reaching
// quorum elects the minimum ready id as leader and hands only that user the
// session skeleton.
func (e *Engine) handleReady(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}

	var roster []user.User
	rej := e.dir.WithTeam(p.RoomID, p.TeamID, func(_ *directory.Room, team *directory.Team) *errors.Rejection {
		if !memberOf(team.Members, sender.ID) {
			return errors.Reject(errors.CodeNotTeamMember, "user %d is not a member of team %q", sender.ID, p.TeamID)
		}
		if team.Session != nil && team.Session.Active {
			return errors.Reject(errors.CodeGameAlreadyActive, "team %q already has an active session", p.TeamID)
		}
		roster = make([]user.User, len(team.Members))
		copy(roster, team.Members)
		return nil
	})
	if rej != nil {
		return rej
	}

	key := readiness.Key{RoomID: p.RoomID, TeamID: p.TeamID}
	count, readyIDs := e.ready.Ready(key, sender.ID)

	recipients := route.Recipients(roster, sender.ID)
	e.send(recipients, TypeReadyState, readyStatePayload{RoomID: p.RoomID, TeamID: p.TeamID, Count: count, ReadyIDs: readyIDs})

	if count < readiness.Quorum {
		return nil
	}
	// ElectLeader reports true for exactly one caller, so concurrent readies
	// past the quorum cannot deliver the skeleton twice.
	leader, elected := e.ready.ElectLeader(key)
	if !elected {
		return nil
	}
	return e.deliverSkeleton(ctx, p.RoomID, p.TeamID, leader)
}

// deliverSkeleton installs an inactive session skeleton for the team and sends
// it to the elected leader for board computation.
func (e *Engine) deliverSkeleton(ctx context.Context, roomID, teamID string, leader int64) *errors.Rejection {
	var snapshot session.Session
	rej := e.dir.WithTeam(roomID, teamID, func(_ *directory.Room, team *directory.Team) *errors.Rejection {
		if team.Session != nil && team.Session.Active {
			return errors.Reject(errors.CodeGameAlreadyActive, "team %q already has an active session", teamID)
		}
		team.Session = session.NewSkeleton(e.content.CardDeck(), team.Members)
		snapshot = team.Session.Clone()
		return nil
	})
	if rej != nil {
		return rej
	}

	e.send([]int64{leader}, TypeInitialize, initializePayload{
		RoomID:  roomID,
		TeamID:  teamID,
		Rules:   e.content.RuleSet(),
		Session: snapshot,
	})
	e.emit(ctx, "session.initialized", roomID, teamID, leader)
	return nil
}

func (e *Engine) handleUnready(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}

	var roster []user.User
	rej := e.dir.WithTeam(p.RoomID, p.TeamID, func(_ *directory.Room, team *directory.Team) *errors.Rejection {
		roster = make([]user.User, len(team.Members))
		copy(roster, team.Members)
		return nil
	})
	if rej != nil {
		return rej
	}

	key := readiness.Key{RoomID: p.RoomID, TeamID: p.TeamID}
	count, readyIDs := e.ready.Unready(key, sender.ID)

	recipients := route.Recipients(roster, sender.ID)
	e.send(recipients, TypeReadyState, readyStatePayload{RoomID: p.RoomID, TeamID: p.TeamID, Count: count, ReadyIDs: readyIDs})
	return nil
}

// handleBoard accepts the leader-computed board layout and activates the
// session. The layout itself is trusted as computed; only the sender's leader
// record is checked.
func (e *Engine) handleBoard(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}

	key := readiness.Key{RoomID: p.RoomID, TeamID: p.TeamID}
	leader, ok := e.ready.Leader(key)
	if !ok {
		return errors.Reject(errors.CodeQuorumNotMet, "team %q has no elected leader", p.TeamID)
	}
	if leader != sender.ID {
		return errors.Reject(errors.CodeNotLeader, "user %d is not the elected leader for team %q", sender.ID, p.TeamID)
	}
	readyIDs := e.ready.ReadyIDs(key)

	var snapshot session.Session
	var recipients []int64
	rej := e.dir.WithSession(p.RoomID, p.TeamID, func(_ *directory.Room, team *directory.Team, s *session.Session) *errors.Rejection {
		if s.Active {
			return errors.Reject(errors.CodeGameAlreadyActive, "team %q already has an active session", p.TeamID)
		}
		active := selectActivePlayers(team.Members, readyIDs)
		s.Activate(p.Areas, active, e.clock())
		snapshot = s.Clone()
		recipients = route.Recipients(team.Members, sender.ID)
		return nil
	})
	if rej != nil {
		return rej
	}

	e.ready.Clear(key)
	e.bumpStats(func(doc *stats.Stats) { doc.SessionsStarted++ })
	e.emit(ctx, "session.activated", p.RoomID, p.TeamID, sender.ID)
	e.send(recipients, TypeGameState, gameStatePayload{RoomID: p.RoomID, TeamID: p.TeamID, Session: snapshot})
	return nil
}

// selectActivePlayers picks up to four members from the ready set in
// ascending id order, falling back to the first four members by id when the
// ready set matches nobody.
func selectActivePlayers(members []user.User, readyIDs []int64) []user.User {
	ready := make(map[int64]struct{}, len(readyIDs))
	for _, id := range readyIDs {
		ready[id] = struct{}{}
	}

	sorted := make([]user.User, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	active := make([]user.User, 0, readiness.Quorum)
	for _, member := range sorted {
		if _, ok := ready[member.ID]; ok {
			active = append(active, member)
			if len(active) == readiness.Quorum {
				return active
			}
		}
	}
	if len(active) > 0 {
		return active
	}
	if len(sorted) > readiness.Quorum {
		sorted = sorted[:readiness.Quorum]
	}
	return sorted
}

// mutateSession runs a session mutation for a team member and broadcasts the
// post-mutation snapshot to the team.
func (e *Engine) mutateSession(sender user.User, roomID, teamID string, fn func(*session.Session) *errors.Rejection) *errors.Rejection {
	var snapshot session.Session
	var recipients []int64
	rej := e.dir.WithSession(roomID, teamID, func(_ *directory.Room, team *directory.Team, s *session.Session) *errors.Rejection {
		if !memberOf(team.Members, sender.ID) {
			return errors.Reject(errors.CodeNotTeamMember, "user %d is not a member of team %q", sender.ID, teamID)
		}
		if rej := fn(s); rej != nil {
			return rej
		}
		snapshot = s.Clone()
		recipients = route.Recipients(team.Members, sender.ID)
		return nil
	})
	if rej != nil {
		return rej
	}

	e.send(recipients, TypeGameState, gameStatePayload{RoomID: roomID, TeamID: teamID, Session: snapshot})
	return nil
}

func (e *Engine) handleRole(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	wanted, ok := session.ParseRole(p.Role)
	if !ok {
		return errors.Reject(errors.CodeInvalidRole, "unknown role %q", p.Role)
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		return s.AssignRole(sender, wanted)
	})
}

func (e *Engine) handleCard(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	rej := e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		return s.UnlockCard(p.CardID)
	})
	if rej != nil {
		return rej
	}
	e.bumpStats(func(doc *stats.Stats) { doc.CardsUnlocked++ })
	e.emit(ctx, "card.unlocked", p.RoomID, p.TeamID, sender.ID)
	return nil
}

func (e *Engine) handleAnswer(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	rej := e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		return s.SubmitAnswer(p.CardID, sender.ID, p.Response, e.clock())
	})
	if rej != nil {
		return rej
	}
	e.bumpStats(func(doc *stats.Stats) { doc.AnswersSubmitted++ })
	e.emit(ctx, "answer.submitted", p.RoomID, p.TeamID, sender.ID)
	return nil
}

func (e *Engine) handleEvaluate(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		return s.Evaluate(p.CardID, p.Result)
	})
}

func (e *Engine) handleProfile(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if len(p.Cards) == 0 && strings.TrimSpace(p.Category) == "" {
		return errors.Reject(errors.CodeInvalidArgument, "profile cards or a management style are required")
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		if strings.TrimSpace(p.Category) != "" {
			if rej := s.SetManagementStyle(sender.ID, p.Category, p.Style); rej != nil {
				return rej
			}
		}
		if len(p.Cards) > 0 {
			if rej := s.SubmitProfile(sender.ID, p.Cards); rej != nil {
				return rej
			}
		}
		return nil
	})
}

func (e *Engine) handleBudget(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if p.Budget == nil {
		return errors.Reject(errors.CodeInvalidArgument, "budget payload is required")
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		s.SubmitBudget(*p.Budget, e.clock())
		return nil
	})
}

func (e *Engine) handleCrisis(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if p.Crisis == nil {
		return errors.Reject(errors.CodeInvalidArgument, "crisis payload is required")
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		s.SubmitCrisis(*p.Crisis, e.clock())
		return nil
	})
}

func (e *Engine) handleMessage(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p gamePayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	return e.mutateSession(sender, p.RoomID, p.TeamID, func(s *session.Session) *errors.Rejection {
		s.SetSharedMessage(p.Message)
		return nil
	})
}
