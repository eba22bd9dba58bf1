package session

import (
	"time"

	"github.com/praxisplay/gameroom/internal/errors"
)

// card returns the board card with the given id, or nil when absent.
func (s *Session) card(cardID int) *Card {
	for i := range s.Board {
		if s.Board[i].ID == cardID {
			return &s.Board[i]
		}
	}
	return nil
}

// UnlockCard selects a board card: it becomes the current position, every
// board case occupied by it is marked visited, and the step advances.
// Unlocking is idempotent; repeating the call changes nothing beyond
// re-selecting the same card.
func (s *Session) UnlockCard(cardID int) *errors.Rejection {
	card := s.card(cardID)
	if card == nil {
		return errors.Reject(errors.CodeCardNotFound, "card %d is not on the board", cardID)
	}

	s.CurrentPosition = card.ID
	for i := range s.Areas {
		for j := range s.Areas[i].Cases {
			if s.Areas[i].Cases[j].CardID == card.ID {
				s.Areas[i].Cases[j].Visited = true
			}
		}
	}

	switch s.Step {
	case StepSelectTeam:
		s.Step = StepNextPartCard
	case StepNextPartCard:
		// Second selection phase stays put.
	default:
		s.Step = StepPlayCard
	}

	card.Unlocked = true
	return nil
}

// SubmitAnswer records a response on a board card, scores it against the
// acting player, and rotates the turn.
func (s *Session) SubmitAnswer(cardID int, actingUserID int64, response string, now time.Time) *errors.Rejection {
	card := s.card(cardID)
	if card == nil {
		return errors.Reject(errors.CodeCardNotFound, "card %d is not on the board", cardID)
	}

	card.Response = response
	if card.Points != 0 {
		if player := s.Player(actingUserID); player != nil {
			player.Score += card.Points
			s.TotalScore += card.Points
		}
	}

	s.rotateTurn()
	s.LastTurnAt = now.UTC()
	s.recomputeCurrentArea()
	return nil
}

// Evaluate sets a card's professional evaluation result. It advances neither
// the turn nor the step.
func (s *Session) Evaluate(cardID int, result string) *errors.Rejection {
	card := s.card(cardID)
	if card == nil {
		return errors.Reject(errors.CodeCardNotFound, "card %d is not on the board", cardID)
	}
	card.ProfessionalEvaluation = result
	return nil
}

// rotateTurn advances CurrentPlayerID to the next player in fixed order,
// wrapping around. When the current id is not found the cycle restarts at
// index 0.
func (s *Session) rotateTurn() {
	if len(s.Players) == 0 {
		return
	}
	for i := range s.Players {
		if s.Players[i].User.ID == s.CurrentPlayerID {
			s.CurrentPlayerID = s.Players[(i+1)%len(s.Players)].User.ID
			return
		}
	}
	s.CurrentPlayerID = s.Players[0].User.ID
}

// recomputeCurrentArea sets CurrentArea to the first area in list order with
// any visited case, keeping the previous value when none qualifies. Multiple
// areas can legally hold visited cases at once; ties resolve to list order,
// not recency.
func (s *Session) recomputeCurrentArea() {
	for _, area := range s.Areas {
		for _, boardCase := range area.Cases {
			if boardCase.Visited {
				s.CurrentArea = area.ID
				return
			}
		}
	}
}
