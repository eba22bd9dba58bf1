// Package engine dispatches client command envelopes against the room
// directory and session state machine.
//
// The engine is the only component that combines locking domains: directory
// mutations run inside per-room locks, readiness bookkeeping inside the
// coordinator lock, and every registry send happens strictly after all locks
// are released. Handlers collect recipient ids and payload snapshots inside
// the critical section, then fan out.
package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/praxisplay/gameroom/internal/content"
	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/platform/id"
	"github.com/praxisplay/gameroom/internal/readiness"
	"github.com/praxisplay/gameroom/internal/registry"
	"github.com/praxisplay/gameroom/internal/route"
	"github.com/praxisplay/gameroom/internal/session"
	"github.com/praxisplay/gameroom/internal/stats"
	"github.com/praxisplay/gameroom/internal/storage"
	"github.com/praxisplay/gameroom/internal/telemetry"
	"github.com/praxisplay/gameroom/internal/user"
)

// Envelope is the wire frame exchanged with clients: a type tag and a
// type-specific JSON payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outgoing envelope types.
const (
	TypeError               = "error"
	TypeRoomCreated         = "room.created"
	TypeRoomRoster          = "room.roster"
	TypeTeamCreated         = "team.created"
	TypeTeamRoster          = "team.roster"
	TypeEvicted             = "evicted"
	TypeReadyState          = "game.ready"
	TypeInitialize          = "game.initialize"
	TypeGameState           = "game.state"
	TypeNotificationAdded   = "notification.added"
	TypeNotificationDeleted = "notification.deleted"
	TypeChatMessage         = "chat.message"
	TypeInviteLink          = "invite.link"
)

// errorPayload is the body of an error envelope sent back to the sender of a
// failed command.
type errorPayload struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// Engine wires the directory, readiness coordinator, connection registry and
// storage backends behind the command surface.
type Engine struct {
	dir      *directory.Directory
	ready    *readiness.Coordinator
	registry *registry.Registry
	content  *content.Provider
	resolver *route.Resolver

	stats     *stats.Store
	archive   storage.ArchiveStore
	telemetry *telemetry.Emitter

	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
}

// Options carries the optional storage backends. Nil fields disable the
// corresponding side effect rather than failing commands.
type Options struct {
	Stats     *stats.Store
	Archive   storage.ArchiveStore
	Telemetry *telemetry.Emitter
}

// New creates an engine over the given directory, registry and content
// provider.
func New(dir *directory.Directory, reg *registry.Registry, provider *content.Provider, opts Options) *Engine {
	return &Engine{
		dir:         dir,
		ready:       readiness.NewCoordinator(),
		registry:    reg,
		content:     provider,
		resolver:    route.NewResolver(dir),
		stats:       opts.Stats,
		archive:     opts.Archive,
		telemetry:   opts.Telemetry,
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer("gameroom/engine"),
	}
}

// Handle dispatches one command envelope from sender. Domain failures are
// reported to the sender as an error envelope and returned for logging; nobody
// else is notified of a failed command.
func (e *Engine) Handle(ctx context.Context, sender user.User, env Envelope) *errors.Rejection {
	ctx, span := e.tracer.Start(ctx, "engine.handle",
		trace.WithAttributes(
			attribute.String("command", env.Type),
			attribute.Int64("user.id", sender.ID),
		))
	defer span.End()

	rej := e.dispatch(ctx, sender, env)
	if rej != nil {
		span.SetStatus(codes.Error, string(rej.Code))
		e.sendError(sender.ID, rej)
	}
	return rej
}

func (e *Engine) dispatch(ctx context.Context, sender user.User, env Envelope) *errors.Rejection {
	switch env.Type {
	case "room.create":
		return e.handleRoomCreate(sender, env.Data)
	case "room.delete":
		return e.handleRoomDelete(ctx, sender, env.Data)
	case "room.join":
		return e.handleRoomJoin(sender, env.Data)
	case "room.leave":
		return e.handleRoomLeave(sender, env.Data)
	case "team.create":
		return e.handleTeamCreate(sender, env.Data)
	case "team.delete":
		return e.handleTeamDelete(ctx, sender, env.Data)
	case "team.join":
		return e.handleTeamJoin(sender, env.Data)
	case "team.leave":
		return e.handleTeamLeave(sender, env.Data)
	case "game.ready":
		return e.handleReady(ctx, sender, env.Data)
	case "game.unready":
		return e.handleUnready(sender, env.Data)
	case "game.board":
		return e.handleBoard(ctx, sender, env.Data)
	case "game.role":
		return e.handleRole(sender, env.Data)
	case "game.card":
		return e.handleCard(ctx, sender, env.Data)
	case "game.answer":
		return e.handleAnswer(ctx, sender, env.Data)
	case "game.evaluate":
		return e.handleEvaluate(sender, env.Data)
	case "game.profile":
		return e.handleProfile(sender, env.Data)
	case "game.budget":
		return e.handleBudget(sender, env.Data)
	case "game.crisis":
		return e.handleCrisis(sender, env.Data)
	case "game.message":
		return e.handleMessage(sender, env.Data)
	case "notification.send":
		return e.handleNotificationSend(sender, env.Data)
	case "notification.delete":
		return e.handleNotificationDelete(sender, env.Data)
	case "chat.message":
		return e.handleChat(sender, env.Data)
	case "invite.request":
		return e.handleInvite(sender)
	default:
		return errors.Reject(errors.CodeUnknownType, "unrecognized command %q", env.Type)
	}
}

// decode unmarshals a command payload, mapping malformed JSON to an
// invalid-argument rejection.
func decode[T any](raw json.RawMessage, out *T) *errors.Rejection {
	if len(raw) == 0 {
		return errors.Reject(errors.CodeInvalidArgument, "command payload is required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Reject(errors.CodeInvalidArgument, "malformed command payload: %v", err)
	}
	return nil
}

// send marshals an envelope and delivers it to every given recipient. Sends
// are best-effort; failed recipients are unregistered by the registry.
func (e *Engine) send(recipients []int64, envType string, data any) {
	payload, err := marshalEnvelope(envType, data)
	if err != nil {
		log.Printf("marshal envelope failed type=%s err=%v", envType, err)
		return
	}
	e.registry.SendToSet(recipients, payload)
}

func (e *Engine) sendError(userID int64, rej *errors.Rejection) {
	payload, err := marshalEnvelope(TypeError, errorPayload{Code: rej.Code, Message: rej.Message})
	if err != nil {
		log.Printf("marshal error envelope failed err=%v", err)
		return
	}
	e.registry.SendToUser(userID, payload)
}

func marshalEnvelope(envType string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: envType, Data: body})
}

// recordFinishedSessions archives finished sessions and bumps the completion
// counter. Best-effort: failures are logged, never surfaced to the command.
func (e *Engine) recordFinishedSessions(ctx context.Context, roomID, teamID string, finished []session.Session) {
	for _, s := range finished {
		e.archiveSession(ctx, roomID, teamID, s)
	}
	if len(finished) > 0 && e.stats != nil {
		e.bumpStats(func(doc *stats.Stats) {
			doc.SessionsCompleted += int64(len(finished))
		})
	}
}

// archiveSession stores a summary record for a finished session.
func (e *Engine) archiveSession(ctx context.Context, roomID, teamID string, s session.Session) {
	if e.archive == nil {
		return
	}
	recordID, err := e.idGenerator()
	if err != nil {
		log.Printf("archive id generation failed err=%v", err)
		return
	}
	record := storage.SessionRecord{
		ID:          recordID,
		RoomID:      roomID,
		TeamID:      teamID,
		TotalScore:  s.TotalScore,
		FinalStep:   string(s.Step),
		PlayerCount: len(s.Players),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
	if err := e.archive.PutSessionRecord(ctx, record); err != nil {
		log.Printf("archive write failed room=%s team=%s err=%v", roomID, teamID, err)
	}
}

func (e *Engine) bumpStats(apply func(*stats.Stats)) {
	if e.stats == nil {
		return
	}
	err := e.stats.UpdateAtomically(func(doc *stats.Stats) bool {
		apply(doc)
		return true
	})
	if err != nil {
		log.Printf("stats update failed err=%v", err)
	}
}

func (e *Engine) emit(ctx context.Context, name, roomID, teamID string, userID int64) {
	if e.telemetry == nil {
		return
	}
	eventID, err := e.idGenerator()
	if err != nil {
		log.Printf("telemetry id generation failed err=%v", err)
		return
	}
	event := storage.TelemetryEvent{
		ID:     eventID,
		Name:   name,
		RoomID: roomID,
		TeamID: teamID,
		UserID: userID,
	}
	if err := e.telemetry.Emit(ctx, event); err != nil {
		log.Printf("telemetry emit failed event=%s err=%v", name, err)
	}
}
