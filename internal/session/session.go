// Package session implements the turn-structured game session state machine.
//
// A session is owned by a team and mutated only while the owning room's lock
// is held; the package itself carries no synchronization. Operations return a
// nil *errors.Rejection on success and never panic on domain failures.
package session

import (
	"sort"
	"time"

	"github.com/praxisplay/gameroom/internal/notice"
	"github.com/praxisplay/gameroom/internal/user"
)

// Step is the coarse phase of a session's lifecycle.
type Step string

const (
	StepNotStarted     Step = "NOTSTARTED"
	StepStarted        Step = "STARTED"
	StepChooseRole     Step = "CHOSEROLE"
	StepRoleChosen     Step = "ROLECHOSEN"
	StepPlayCard       Step = "PLAYCARD"
	StepSelectTeam     Step = "SELECTTEAM"
	StepNextPartCard   Step = "NEXTPARTCARD"
	StepNextSelectTeam Step = "NEXTSELECTTEAM"
	StepFinalCard      Step = "FINALCARD"
)

// Card is one board card. IDs are unique within a board.
type Card struct {
	ID                     int    `json:"id"`
	AreaID                 int    `json:"area_id"`
	Type                   string `json:"type"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Unlocked               bool   `json:"unlocked"`
	AutoEvaluation         string `json:"auto_evaluation,omitempty"`
	ProfessionalEvaluation string `json:"professional_evaluation,omitempty"`
	Points                 int    `json:"points"`
	Response               string `json:"response,omitempty"`
}

// CaseState is one board case within an area, occupied by a card.
type CaseState struct {
	CardID  int  `json:"card_id"`
	Visited bool `json:"visited"`
}

// AreaState is the ordered list of board cases for one area.
type AreaState struct {
	ID    int         `json:"id"`
	Cases []CaseState `json:"cases"`
}

// PlayerState tracks one player's role, score and selections.
type PlayerState struct {
	User             user.User         `json:"user"`
	Score            int               `json:"score"`
	Role             Role              `json:"role"`
	ProfileCards     []Card            `json:"profile_cards,omitempty"`
	ManagementStyles map[string]string `json:"management_styles,omitempty"`
}

// Budget is the structured budget payload submitted during play.
type Budget struct {
	Period   string `json:"period"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Notes    string `json:"notes,omitempty"`
}

// Crisis is the structured crisis payload submitted during play.
type Crisis struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Response    string `json:"response,omitempty"`
}

// Session is one in-progress or finished game instance. Board and player
// order are fixed at creation; the only membership change allowed afterwards
// is additive player creation during role assignment.
type Session struct {
	Active    bool `json:"active"`
	Completed bool `json:"completed"`
	Step      Step `json:"step"`

	Board   []Card        `json:"board"`
	Players []PlayerState `json:"players"`

	CurrentPlayerID int64 `json:"current_player_id"`
	CurrentPosition int   `json:"current_position"`
	CurrentArea     int   `json:"current_area"`

	Areas []AreaState `json:"areas"`

	SharedMessage string `json:"shared_message,omitempty"`
	TotalScore    int    `json:"total_score"`

	StartedAt  time.Time `json:"started_at"`
	LastTurnAt time.Time `json:"last_turn_at"`
	EndedAt    time.Time `json:"ended_at,omitzero"`

	Budget *Budget `json:"budget,omitempty"`
	Crisis *Crisis `json:"crisis,omitempty"`

	Notifications []notice.Notification `json:"notifications,omitempty"`
}

// NewSkeleton builds the inactive session skeleton delivered to the elected
// leader. Players are synthesized from the current team members in id order.
func NewSkeleton(board []Card, members []user.User) *Session {
	sorted := make([]user.User, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	players := make([]PlayerState, 0, len(sorted))
	for _, member := range sorted {
		players = append(players, PlayerState{User: member, Role: RoleNone})
	}

	deck := make([]Card, len(board))
	copy(deck, board)

	return &Session{
		Step:    StepNotStarted,
		Board:   deck,
		Players: players,
	}
}

// Activate applies the leader-computed board layout and opens role selection.
//
// The layout is trusted as computed by the leader; the server does not
// validate area or case placement. The active player list is fixed to the
// provided users in id order.
func (s *Session) Activate(layout []AreaState, active []user.User, now time.Time) {
	sorted := make([]user.User, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	players := make([]PlayerState, 0, len(sorted))
	for _, member := range sorted {
		players = append(players, PlayerState{User: member, Role: RoleNone})
	}
	s.Players = players
	if len(players) > 0 {
		s.CurrentPlayerID = players[0].User.ID
	}

	s.Areas = make([]AreaState, len(layout))
	copy(s.Areas, layout)

	s.Active = true
	s.Step = StepChooseRole
	s.StartedAt = now.UTC()
	s.LastTurnAt = now.UTC()
}

// Finish marks the session completed. Called when play reaches its end or the
// owning team is destroyed while a session is live.
func (s *Session) Finish(now time.Time) {
	if s.Completed {
		return
	}
	s.Active = false
	s.Completed = true
	s.EndedAt = now.UTC()
}

// SetSharedMessage replaces the session's free-form broadcast text.
func (s *Session) SetSharedMessage(message string) {
	s.SharedMessage = message
}

// Player returns the player state for a user id, or nil when absent.
func (s *Session) Player(userID int64) *PlayerState {
	for i := range s.Players {
		if s.Players[i].User.ID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to marshal after the room lock is released.
func (s *Session) Clone() Session {
	clone := *s

	clone.Board = make([]Card, len(s.Board))
	copy(clone.Board, s.Board)

	clone.Players = make([]PlayerState, len(s.Players))
	for i, player := range s.Players {
		cloned := player
		if player.ProfileCards != nil {
			cloned.ProfileCards = make([]Card, len(player.ProfileCards))
			copy(cloned.ProfileCards, player.ProfileCards)
		}
		if player.ManagementStyles != nil {
			cloned.ManagementStyles = make(map[string]string, len(player.ManagementStyles))
			for category, style := range player.ManagementStyles {
				cloned.ManagementStyles[category] = style
			}
		}
		clone.Players[i] = cloned
	}

	clone.Areas = make([]AreaState, len(s.Areas))
	for i, area := range s.Areas {
		cases := make([]CaseState, len(area.Cases))
		copy(cases, area.Cases)
		clone.Areas[i] = AreaState{ID: area.ID, Cases: cases}
	}

	if s.Budget != nil {
		budget := *s.Budget
		clone.Budget = &budget
	}
	if s.Crisis != nil {
		crisis := *s.Crisis
		clone.Crisis = &crisis
	}

	if s.Notifications != nil {
		clone.Notifications = make([]notice.Notification, len(s.Notifications))
		copy(clone.Notifications, s.Notifications)
	}

	return clone
}
