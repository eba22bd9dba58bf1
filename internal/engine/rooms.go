package engine

import (
	"context"
	"encoding/json"

	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/readiness"
	"github.com/praxisplay/gameroom/internal/route"
	"github.com/praxisplay/gameroom/internal/session"
	"github.com/praxisplay/gameroom/internal/stats"
	"github.com/praxisplay/gameroom/internal/user"
)

type roomPayload struct {
	RoomID      string   `json:"room_id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Whitelist   []string `json:"whitelist,omitempty"`
}

type teamPayload struct {
	RoomID    string   `json:"room_id"`
	TeamID    string   `json:"team_id"`
	Name      string   `json:"name,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
}

// evictionPayload tells a displaced member which space disappeared.
type evictionPayload struct {
	RoomID string `json:"room_id"`
	TeamID string `json:"team_id,omitempty"`
	Reason string `json:"reason"`
}

type rosterPayload struct {
	RoomID  string      `json:"room_id"`
	TeamID  string      `json:"team_id,omitempty"`
	Members []user.User `json:"members"`
}

func (e *Engine) handleRoomCreate(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p roomPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.CreateRoom(p.RoomID, p.Name, p.Description, p.Whitelist); rej != nil {
		return rej
	}
	e.bumpStats(func(doc *stats.Stats) { doc.RoomsCreated++ })
	e.send([]int64{sender.ID}, TypeRoomCreated, roomPayload{RoomID: p.RoomID, Name: p.Name})
	return nil
}

func (e *Engine) handleRoomDelete(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p roomPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	affected, finished, rej := e.dir.RemoveRoom(p.RoomID, e.clock())
	if rej != nil {
		return rej
	}

	// Evict before the ids become unroutable through the directory.
	e.send(affected, TypeEvicted, evictionPayload{RoomID: p.RoomID, Reason: "room-deleted"})
	e.recordFinishedSessions(ctx, p.RoomID, "", finished)
	e.emit(ctx, "room.deleted", p.RoomID, "", sender.ID)
	return nil
}

func (e *Engine) handleRoomJoin(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p roomPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.JoinRoom(p.RoomID, sender); rej != nil {
		return rej
	}
	return e.broadcastRoomRoster(p.RoomID, sender.ID)
}

func (e *Engine) handleRoomLeave(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p roomPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.LeaveRoom(p.RoomID, sender.ID); rej != nil {
		return rej
	}
	return e.broadcastRoomRoster(p.RoomID, sender.ID)
}

func (e *Engine) handleTeamCreate(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p teamPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.CreateTeam(p.RoomID, p.TeamID, p.Name, p.Whitelist); rej != nil {
		return rej
	}
	e.send([]int64{sender.ID}, TypeTeamCreated, teamPayload{RoomID: p.RoomID, TeamID: p.TeamID, Name: p.Name})
	return nil
}

func (e *Engine) handleTeamDelete(ctx context.Context, sender user.User, raw json.RawMessage) *errors.Rejection {
	var p teamPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	affected, finished, rej := e.dir.DeleteTeam(p.RoomID, p.TeamID, e.clock())
	if rej != nil {
		return rej
	}
	e.ready.Clear(readiness.Key{RoomID: p.RoomID, TeamID: p.TeamID})

	e.send(affected, TypeEvicted, evictionPayload{RoomID: p.RoomID, TeamID: p.TeamID, Reason: "team-deleted"})
	if finished != nil {
		e.recordFinishedSessions(ctx, p.RoomID, p.TeamID, []session.Session{*finished})
	}
	e.emit(ctx, "team.deleted", p.RoomID, p.TeamID, sender.ID)
	return nil
}

func (e *Engine) handleTeamJoin(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p teamPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.JoinTeam(p.RoomID, p.TeamID, sender); rej != nil {
		return rej
	}
	return e.broadcastTeamRoster(p.RoomID, p.TeamID, sender.ID)
}

func (e *Engine) handleTeamLeave(sender user.User, raw json.RawMessage) *errors.Rejection {
	var p teamPayload
	if rej := decode(raw, &p); rej != nil {
		return rej
	}
	if rej := e.dir.LeaveTeam(p.RoomID, p.TeamID, sender.ID); rej != nil {
		return rej
	}
	e.ready.Unready(readiness.Key{RoomID: p.RoomID, TeamID: p.TeamID}, sender.ID)
	return e.broadcastTeamRoster(p.RoomID, p.TeamID, sender.ID)
}

func (e *Engine) broadcastRoomRoster(roomID string, senderID int64) *errors.Rejection {
	roster, rej := e.dir.RoomRoster(roomID)
	if rej != nil {
		return rej
	}
	recipients := route.Recipients(roster, senderID)
	e.send(recipients, TypeRoomRoster, rosterPayload{RoomID: roomID, Members: roster})
	return nil
}

func (e *Engine) broadcastTeamRoster(roomID, teamID string, senderID int64) *errors.Rejection {
	roster, rej := e.dir.TeamRoster(roomID, teamID)
	if rej != nil {
		return rej
	}
	recipients := route.Recipients(roster, senderID)
	e.send(recipients, TypeTeamRoster, rosterPayload{RoomID: roomID, TeamID: teamID, Members: roster})
	return nil
}
