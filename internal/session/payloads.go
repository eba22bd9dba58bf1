package session

import (
	"strings"
	"time"

	"github.com/praxisplay/gameroom/internal/errors"
)

// SubmitProfile attaches a chosen card list to a player's profile. Once every
// current player has a non-empty selection the step advances to SELECTTEAM.
func (s *Session) SubmitProfile(userID int64, cards []Card) *errors.Rejection {
	player := s.Player(userID)
	if player == nil {
		return errors.Reject(errors.CodePlayerNotFound, "user %d is not a session player", userID)
	}

	player.ProfileCards = make([]Card, len(cards))
	copy(player.ProfileCards, cards)

	for _, candidate := range s.Players {
		if len(candidate.ProfileCards) == 0 {
			return nil
		}
	}
	s.Step = StepSelectTeam
	return nil
}

// SetManagementStyle records a player's per-category management selection.
func (s *Session) SetManagementStyle(userID int64, category, style string) *errors.Rejection {
	category = strings.TrimSpace(category)
	if category == "" {
		return errors.Reject(errors.CodeInvalidArgument, "management style category is required")
	}
	player := s.Player(userID)
	if player == nil {
		return errors.Reject(errors.CodePlayerNotFound, "user %d is not a session player", userID)
	}
	if player.ManagementStyles == nil {
		player.ManagementStyles = make(map[string]string)
	}
	player.ManagementStyles[category] = strings.TrimSpace(style)
	return nil
}

// SubmitBudget replaces the session budget payload. Free-text fields are
// trimmed; the step does not change.
func (s *Session) SubmitBudget(budget Budget, now time.Time) {
	budget.Period = strings.TrimSpace(budget.Period)
	budget.Income = strings.TrimSpace(budget.Income)
	budget.Expenses = strings.TrimSpace(budget.Expenses)
	budget.Notes = strings.TrimSpace(budget.Notes)
	s.Budget = &budget
	s.LastTurnAt = now.UTC()
}

// SubmitCrisis replaces the session crisis payload. Free-text fields are
// trimmed; the step does not change.
func (s *Session) SubmitCrisis(crisis Crisis, now time.Time) {
	crisis.Title = strings.TrimSpace(crisis.Title)
	crisis.Description = strings.TrimSpace(crisis.Description)
	crisis.Response = strings.TrimSpace(crisis.Response)
	s.Crisis = &crisis
	s.LastTurnAt = now.UTC()
}
