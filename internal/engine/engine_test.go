package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/praxisplay/gameroom/internal/content"
	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/registry"
	"github.com/praxisplay/gameroom/internal/route"
	"github.com/praxisplay/gameroom/internal/session"
	"github.com/praxisplay/gameroom/internal/user"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed []string
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make([]byte, len(payload))
	copy(frame, payload)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, reason)
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, frame := range c.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) byType(t *testing.T, envType string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range c.envelopes(t) {
		if env.Type == envType {
			out = append(out, env)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	deck := `[
		{"id":1,"area_id":1,"type":"task","title":"Opening","points":2},
		{"id":2,"area_id":1,"type":"task","title":"Kickoff","points":3},
		{"id":3,"area_id":2,"type":"event","title":"Audit","points":0}
	]`
	rules := `{"max_players":4,"quorum":4,
		"roles":["director","finance","operations","communications","observer"],
		"areas":[{"id":1,"name":"north","cases":2},{"id":2,"name":"south","cases":1}]}`
	if err := os.WriteFile(filepath.Join(dir, "deck.json"), []byte(deck), 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rules.json"), []byte(rules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "invites.txt"), []byte("https://example.com/invite/abc\n"), 0o644); err != nil {
		t.Fatalf("write invites: %v", err)
	}

	provider, err := content.Load(dir)
	if err != nil {
		t.Fatalf("load content: %v", err)
	}

	reg := registry.New()
	e := New(directory.New(), reg, provider, Options{})
	e.clock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	sequence := 0
	e.idGenerator = func() (string, error) {
		sequence++
		return fmt.Sprintf("id-%d", sequence), nil
	}
	return e, reg
}

func connect(t *testing.T, reg *registry.Registry, userID int64) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	reg.Register(userID, conn)
	return conn
}

func member(id int64) user.User {
	return user.User{ID: id, Name: fmt.Sprintf("player-%d", id)}
}

// seedTeam builds a room with one team and the given members, bypassing the
// command surface.
func seedTeam(t *testing.T, e *Engine, members ...user.User) {
	t.Helper()
	if rej := e.dir.CreateRoom("room-1", "Room One", "", nil); rej != nil {
		t.Fatalf("create room: %v", rej)
	}
	if rej := e.dir.CreateTeam("room-1", "team-1", "Team One", nil); rej != nil {
		t.Fatalf("create team: %v", rej)
	}
	for _, m := range members {
		if rej := e.dir.JoinRoom("room-1", m); rej != nil {
			t.Fatalf("join room: %v", rej)
		}
		if rej := e.dir.JoinTeam("room-1", "team-1", m); rej != nil {
			t.Fatalf("join team: %v", rej)
		}
	}
}

func handle(t *testing.T, e *Engine, sender user.User, envType string, data any) *errors.Rejection {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return e.Handle(context.Background(), sender, Envelope{Type: envType, Data: body})
}

func readyAll(t *testing.T, e *Engine, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if rej := handle(t, e, member(id), "game.ready", gamePayload{RoomID: "room-1", TeamID: "team-1"}); rej != nil {
			t.Fatalf("ready user %d: %v", id, rej)
		}
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	e, reg := newTestEngine(t)
	conn := connect(t, reg, 1)

	rej := e.Handle(context.Background(), member(1), Envelope{Type: "bogus"})
	if rej == nil || rej.Code != errors.CodeUnknownType {
		t.Fatalf("expected unknown-type, got %v", rej)
	}
	if got := conn.byType(t, TypeError); len(got) != 1 {
		t.Fatalf("expected one error envelope, got %d", len(got))
	}
}

func TestReadyQuorumDeliversSkeletonToLeaderOnly(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4))
	conns := map[int64]*fakeConn{}
	for id := int64(1); id <= 4; id++ {
		conns[id] = connect(t, reg, id)
	}

	readyAll(t, e, 4, 3, 2)
	for id := int64(1); id <= 4; id++ {
		if got := conns[id].byType(t, TypeInitialize); len(got) != 0 {
			t.Fatalf("user %d received initialize before quorum", id)
		}
	}

	readyAll(t, e, 1)

	init := conns[1].byType(t, TypeInitialize)
	if len(init) != 1 {
		t.Fatalf("expected one initialize for leader, got %d", len(init))
	}
	for id := int64(2); id <= 4; id++ {
		if got := conns[id].byType(t, TypeInitialize); len(got) != 0 {
			t.Fatalf("non-leader %d received initialize", id)
		}
	}

	var state initializePayload
	if err := json.Unmarshal(init[0].Data, &state); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if state.Session.Active {
		t.Fatal("skeleton must be inactive")
	}
	if state.Session.Step != session.StepNotStarted {
		t.Fatalf("skeleton step = %s, want %s", state.Session.Step, session.StepNotStarted)
	}
	if len(state.Session.Players) != 4 {
		t.Fatalf("skeleton players = %d, want 4", len(state.Session.Players))
	}
	if state.Session.Players[0].User.ID != 1 {
		t.Fatalf("players not in id order: first = %d", state.Session.Players[0].User.ID)
	}
	if len(state.Session.Board) != 3 {
		t.Fatalf("skeleton board = %d cards, want 3", len(state.Session.Board))
	}
	// The leader computes the layout from the rule set, so the payload must
	// carry it.
	if state.Rules.Quorum != 4 {
		t.Fatalf("rules quorum = %d, want 4", state.Rules.Quorum)
	}
	if len(state.Rules.Areas) != 2 {
		t.Fatalf("rules areas = %d, want 2", len(state.Rules.Areas))
	}
}

func TestExtraReadiesDoNotRedeliverSkeleton(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4), member(5))
	conn1 := connect(t, reg, 1)

	readyAll(t, e, 1, 2, 3, 4)
	if got := conn1.byType(t, TypeInitialize); len(got) != 1 {
		t.Fatalf("leader got %d initialize envelopes, want 1", len(got))
	}

	// Readies past the quorum keep the recorded leader and must not tear
	// down and re-deliver the skeleton.
	readyAll(t, e, 5)
	readyAll(t, e, 2)

	if got := conn1.byType(t, TypeInitialize); len(got) != 1 {
		t.Fatalf("leader got %d initialize envelopes after extra readies, want 1", len(got))
	}
}

func TestReadyStateBroadcastToTeam(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2))
	conn2 := connect(t, reg, 2)

	readyAll(t, e, 1)

	got := conn2.byType(t, TypeReadyState)
	if len(got) != 1 {
		t.Fatalf("expected one ready-state envelope, got %d", len(got))
	}
	var state readyStatePayload
	if err := json.Unmarshal(got[0].Data, &state); err != nil {
		t.Fatalf("decode ready state: %v", err)
	}
	if state.Count != 1 || len(state.ReadyIDs) != 1 || state.ReadyIDs[0] != 1 {
		t.Fatalf("unexpected ready state %+v", state)
	}
}

func TestReadyRejectsNonMember(t *testing.T) {
	e, _ := newTestEngine(t)
	seedTeam(t, e, member(1))

	rej := handle(t, e, member(9), "game.ready", gamePayload{RoomID: "room-1", TeamID: "team-1"})
	if rej == nil || rej.Code != errors.CodeNotTeamMember {
		t.Fatalf("expected not-a-team-member, got %v", rej)
	}
}

func TestBoardRejectedFromNonLeader(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4))
	connect(t, reg, 1)

	readyAll(t, e, 1, 2, 3, 4)

	rej := handle(t, e, member(2), "game.board", gamePayload{RoomID: "room-1", TeamID: "team-1"})
	if rej == nil || rej.Code != errors.CodeNotLeader {
		t.Fatalf("expected not-leader, got %v", rej)
	}
}

func TestBoardActivatesSessionAndBroadcastsState(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4))
	conns := map[int64]*fakeConn{}
	for id := int64(1); id <= 4; id++ {
		conns[id] = connect(t, reg, id)
	}

	readyAll(t, e, 1, 2, 3, 4)

	layout := []session.AreaState{
		{ID: 1, Cases: []session.CaseState{{CardID: 1}, {CardID: 2}}},
		{ID: 2, Cases: []session.CaseState{{CardID: 3}}},
	}
	rej := handle(t, e, member(1), "game.board", gamePayload{RoomID: "room-1", TeamID: "team-1", Areas: layout})
	if rej != nil {
		t.Fatalf("board: %v", rej)
	}

	for id := int64(1); id <= 4; id++ {
		got := conns[id].byType(t, TypeGameState)
		if len(got) != 1 {
			t.Fatalf("user %d got %d state envelopes, want 1", id, len(got))
		}
		var state gameStatePayload
		if err := json.Unmarshal(got[0].Data, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if !state.Session.Active {
			t.Fatal("session must be active")
		}
		if state.Session.Step != session.StepChooseRole {
			t.Fatalf("step = %s, want %s", state.Session.Step, session.StepChooseRole)
		}
		if state.Session.CurrentPlayerID != 1 {
			t.Fatalf("current player = %d, want 1", state.Session.CurrentPlayerID)
		}
		if len(state.Session.Areas) != 2 {
			t.Fatalf("areas = %d, want 2", len(state.Session.Areas))
		}
	}

	// Activation clears the ready set and leader record.
	rej = handle(t, e, member(1), "game.board", gamePayload{RoomID: "room-1", TeamID: "team-1", Areas: layout})
	if rej == nil || rej.Code != errors.CodeQuorumNotMet {
		t.Fatalf("expected quorum-not-met after clear, got %v", rej)
	}
}

func TestReadyRejectedWhileSessionActive(t *testing.T) {
	e, _ := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4))
	readyAll(t, e, 1, 2, 3, 4)
	if rej := handle(t, e, member(1), "game.board", gamePayload{RoomID: "room-1", TeamID: "team-1"}); rej != nil {
		t.Fatalf("board: %v", rej)
	}

	rej := handle(t, e, member(2), "game.ready", gamePayload{RoomID: "room-1", TeamID: "team-1"})
	if rej == nil || rej.Code != errors.CodeGameAlreadyActive {
		t.Fatalf("expected game-already-active, got %v", rej)
	}
}

func TestRoleConflictRejectsSecondClaimant(t *testing.T) {
	e, _ := newTestEngine(t)
	seedTeam(t, e, member(1), member(2), member(3), member(4))
	readyAll(t, e, 1, 2, 3, 4)
	if rej := handle(t, e, member(1), "game.board", gamePayload{RoomID: "room-1", TeamID: "team-1"}); rej != nil {
		t.Fatalf("board: %v", rej)
	}

	if rej := handle(t, e, member(1), "game.role", gamePayload{RoomID: "room-1", TeamID: "team-1", Role: "director"}); rej != nil {
		t.Fatalf("first role claim: %v", rej)
	}
	rej := handle(t, e, member(2), "game.role", gamePayload{RoomID: "room-1", TeamID: "team-1", Role: "director"})
	if rej == nil || rej.Code != errors.CodeRoleTaken {
		t.Fatalf("expected role-taken, got %v", rej)
	}
}

func TestRoomDeleteEvictsMembers(t *testing.T) {
	e, reg := newTestEngine(t)
	if rej := e.dir.CreateRoom("room-1", "Room One", "", nil); rej != nil {
		t.Fatalf("create room: %v", rej)
	}
	if rej := e.dir.JoinRoom("room-1", member(7)); rej != nil {
		t.Fatalf("join room: %v", rej)
	}
	conn := connect(t, reg, 7)

	if rej := handle(t, e, member(1), "room.delete", roomPayload{RoomID: "room-1"}); rej != nil {
		t.Fatalf("delete room: %v", rej)
	}

	evicted := conn.byType(t, TypeEvicted)
	if len(evicted) != 1 {
		t.Fatalf("expected one eviction envelope, got %d", len(evicted))
	}
	var p evictionPayload
	if err := json.Unmarshal(evicted[0].Data, &p); err != nil {
		t.Fatalf("decode eviction: %v", err)
	}
	if p.RoomID != "room-1" || p.Reason != "room-deleted" {
		t.Fatalf("unexpected eviction %+v", p)
	}

	rej := handle(t, e, member(7), "room.join", roomPayload{RoomID: "room-1"})
	if rej == nil || rej.Code != errors.CodeRoomNotFound {
		t.Fatalf("expected room-not-found after delete, got %v", rej)
	}
}

func TestRoomJoinBroadcastsRoster(t *testing.T) {
	e, reg := newTestEngine(t)
	if rej := e.dir.CreateRoom("room-1", "Room One", "", nil); rej != nil {
		t.Fatalf("create room: %v", rej)
	}
	if rej := e.dir.JoinRoom("room-1", member(1)); rej != nil {
		t.Fatalf("seed member: %v", rej)
	}
	conn1 := connect(t, reg, 1)

	if rej := handle(t, e, member(2), "room.join", roomPayload{RoomID: "room-1"}); rej != nil {
		t.Fatalf("join: %v", rej)
	}

	got := conn1.byType(t, TypeRoomRoster)
	if len(got) != 1 {
		t.Fatalf("expected one roster envelope, got %d", len(got))
	}
	var roster rosterPayload
	if err := json.Unmarshal(got[0].Data, &roster); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(roster.Members) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster.Members))
	}
}

func TestChatEchoesToSender(t *testing.T) {
	e, reg := newTestEngine(t)
	seedTeam(t, e, member(1), member(2))
	conn1 := connect(t, reg, 1)
	conn2 := connect(t, reg, 2)

	payload := chatPayload{
		Target: route.Target{Scope: route.ScopeTeam, RoomID: "room-1", TeamID: "team-1"},
		Text:   "hello",
	}
	if rej := handle(t, e, member(1), "chat.message", payload); rej != nil {
		t.Fatalf("chat: %v", rej)
	}

	for name, conn := range map[string]*fakeConn{"sender": conn1, "teammate": conn2} {
		got := conn.byType(t, TypeChatMessage)
		if len(got) != 1 {
			t.Fatalf("%s got %d chat envelopes, want 1", name, len(got))
		}
	}
}

func TestInviteRequestExhaustion(t *testing.T) {
	e, reg := newTestEngine(t)
	conn := connect(t, reg, 1)

	if rej := e.Handle(context.Background(), member(1), Envelope{Type: "invite.request"}); rej != nil {
		t.Fatalf("first request: %v", rej)
	}
	links := conn.byType(t, TypeInviteLink)
	if len(links) != 1 {
		t.Fatalf("expected one link envelope, got %d", len(links))
	}

	rej := e.Handle(context.Background(), member(1), Envelope{Type: "invite.request"})
	if rej == nil || rej.Code != errors.CodeNoInvites {
		t.Fatalf("expected no-invites, got %v", rej)
	}
}

func TestNotificationFanoutTargetsPrivilegedTags(t *testing.T) {
	e, reg := newTestEngine(t)
	if rej := e.dir.CreateRoom("room-1", "Room One", "", nil); rej != nil {
		t.Fatalf("create room: %v", rej)
	}
	admin := user.User{ID: 10, Name: "warden", Roles: []string{"Administrator"}}
	plain := member(20)
	sender := member(30)
	for _, m := range []user.User{admin, plain, sender} {
		if rej := e.dir.JoinRoom("room-1", m); rej != nil {
			t.Fatalf("join room: %v", rej)
		}
	}
	adminConn := connect(t, reg, 10)
	plainConn := connect(t, reg, 20)
	senderConn := connect(t, reg, 30)

	payload := notificationPayload{RoomID: "room-1"}
	payload.Notification.Title = "maintenance"
	payload.Notification.Body = "restart at noon"
	if rej := handle(t, e, sender, "notification.send", payload); rej != nil {
		t.Fatalf("send notification: %v", rej)
	}

	if got := adminConn.byType(t, TypeNotificationAdded); len(got) != 1 {
		t.Fatalf("admin got %d notification envelopes, want 1", len(got))
	}
	if got := senderConn.byType(t, TypeNotificationAdded); len(got) != 1 {
		t.Fatalf("sender got %d notification envelopes, want 1", len(got))
	}
	if got := plainConn.byType(t, TypeNotificationAdded); len(got) != 0 {
		t.Fatalf("plain member got %d notification envelopes, want 0", len(got))
	}
}

func TestSelectActivePlayersFallsBackToFirstFour(t *testing.T) {
	members := []user.User{member(5), member(3), member(8), member(1), member(9)}

	active := selectActivePlayers(members, nil)
	if len(active) != 4 {
		t.Fatalf("active = %d, want 4", len(active))
	}
	want := []int64{1, 3, 5, 8}
	for i, m := range active {
		if m.ID != want[i] {
			t.Fatalf("active[%d] = %d, want %d", i, m.ID, want[i])
		}
	}
}

func TestSelectActivePlayersPrefersReadySet(t *testing.T) {
	members := []user.User{member(1), member(2), member(3), member(4), member(5)}

	active := selectActivePlayers(members, []int64{2, 4, 5})
	want := []int64{2, 4, 5}
	if len(active) != len(want) {
		t.Fatalf("active = %d, want %d", len(active), len(want))
	}
	for i, m := range active {
		if m.ID != want[i] {
			t.Fatalf("active[%d] = %d, want %d", i, m.ID, want[i])
		}
	}
}
