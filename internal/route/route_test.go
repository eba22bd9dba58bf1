package route

import (
	"reflect"
	"testing"

	"github.com/praxisplay/gameroom/internal/directory"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/user"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	d := directory.New()
	if rej := d.CreateRoom("r1", "Room", "", nil); rej != nil {
		t.Fatalf("create room: %v", rej)
	}
	if rej := d.CreateTeam("r1", "t1", "Team", nil); rej != nil {
		t.Fatalf("create team: %v", rej)
	}
	for _, u := range []user.User{{ID: 1, Name: "Ari"}, {ID: 2, Name: "Blake"}, {ID: 3, Name: "Chris"}} {
		if rej := d.JoinRoom("r1", u); rej != nil {
			t.Fatalf("join room: %v", rej)
		}
	}
	for _, u := range []user.User{{ID: 1, Name: "Ari"}, {ID: 2, Name: "Blake"}} {
		if rej := d.JoinTeam("r1", "t1", u); rej != nil {
			t.Fatalf("join team: %v", rej)
		}
	}
	return NewResolver(d)
}

func TestResolveRoomIncludesSender(t *testing.T) {
	r := testResolver(t)

	ids, rej := r.Resolve(Target{Scope: ScopeRoom, RoomID: "r1"}, 9)
	if rej != nil {
		t.Fatalf("resolve: %v", rej)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2, 3, 9}) {
		t.Fatalf("unexpected recipients %v", ids)
	}
}

func TestResolveTeam(t *testing.T) {
	r := testResolver(t)

	ids, rej := r.Resolve(Target{Scope: ScopeTeam, RoomID: "r1", TeamID: "t1"}, 1)
	if rej != nil {
		t.Fatalf("resolve: %v", rej)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2}) {
		t.Fatalf("unexpected recipients %v", ids)
	}
}

func TestResolveUser(t *testing.T) {
	r := testResolver(t)

	ids, rej := r.Resolve(Target{Scope: ScopeUser, UserID: 5}, 1)
	if rej != nil {
		t.Fatalf("resolve: %v", rej)
	}
	if !reflect.DeepEqual(ids, []int64{5, 1}) {
		t.Fatalf("unexpected recipients %v", ids)
	}

	// Messaging yourself yields a single recipient.
	ids, rej = r.Resolve(Target{Scope: ScopeUser, UserID: 1}, 1)
	if rej != nil {
		t.Fatalf("resolve: %v", rej)
	}
	if !reflect.DeepEqual(ids, []int64{1}) {
		t.Fatalf("unexpected recipients %v", ids)
	}
}

func TestResolveFailures(t *testing.T) {
	r := testResolver(t)

	if _, rej := r.Resolve(Target{Scope: ScopeRoom, RoomID: "missing"}, 1); rej == nil || rej.Code != errors.CodeRoomNotFound {
		t.Fatalf("expected room-not-found, got %v", rej)
	}
	if _, rej := r.Resolve(Target{Scope: ScopeTeam, RoomID: "r1", TeamID: "missing"}, 1); rej == nil || rej.Code != errors.CodeTeamNotFound {
		t.Fatalf("expected team-not-found, got %v", rej)
	}
	if _, rej := r.Resolve(Target{Scope: ScopeUser}, 1); rej == nil || rej.Code != errors.CodeInvalidArgument {
		t.Fatalf("expected invalid-argument, got %v", rej)
	}
	if _, rej := r.Resolve(Target{Scope: "galaxy"}, 1); rej == nil || rej.Code != errors.CodeInvalidArgument {
		t.Fatalf("expected invalid-argument, got %v", rej)
	}
}

func TestNotificationRecipients(t *testing.T) {
	members := []user.User{
		{ID: 1, Name: "Ari", Roles: []string{"Administrator"}},
		{ID: 2, Name: "Blake"},
		{ID: 3, Name: "Chris", Roles: []string{"OBSERVER"}},
		{ID: 4, Name: "Dana", Roles: []string{"player"}},
	}

	ids := NotificationRecipients(members)
	if !reflect.DeepEqual(ids, []int64{1, 3}) {
		t.Fatalf("unexpected recipients %v", ids)
	}
}

func TestRecipientsDeduplicates(t *testing.T) {
	members := []user.User{{ID: 2}, {ID: 2}, {ID: 1}}
	ids := Recipients(members, 2)
	if !reflect.DeepEqual(ids, []int64{1, 2}) {
		t.Fatalf("unexpected recipients %v", ids)
	}
}
