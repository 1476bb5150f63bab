package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the archived record of a finished game. Nothing mutates it after
// it is built.
type Outcome struct {
	ID           string
	RoomID       string
	StartedAt    time.Time
	EndedAt      time.Time
	Winner       Team
	Reason       EndReason
	Players      []PlayerID
	Roles        map[PlayerID]Role
	QuestResults []bool
}

// NewOutcome snapshots a finished game. It returns nil if the game is still
// running.
func NewOutcome(roomID string, state *GameState) *Outcome {
	if state.Phase != PhaseGameOver {
		return nil
	}

	return &Outcome{
		ID:           uuid.New().String(),
		RoomID:       roomID,
		StartedAt:    state.StartedAt,
		EndedAt:      state.EndedAt,
		Winner:       state.Winner,
		Reason:       state.Reason,
		Players:      cloneSlice(state.Players),
		Roles:        cloneMap(state.Roles),
		QuestResults: cloneSlice(state.QuestResults),
	}
}

// Won reports whether the player was on the winning side.
func (o *Outcome) Won(player PlayerID) bool {
	role, ok := o.Roles[player]
	if !ok {
		return false
	}
	return role.Team() == o.Winner
}

// Announcement is the message sent to the room when the game ends. It reveals
// every role.
func (o *Outcome) Announcement() string {
	var headline string
	switch o.Reason {
	case EndReasonHammer:
		headline = "Five proposals in a row were rejected. Evil wins!"
	case EndReasonQuests:
		headline = "Three quests have failed. Evil wins!"
	case EndReasonAssassination:
		if o.Winner == TeamEvil {
			headline = "The assassin found Merlin. Evil wins!"
		} else {
			headline = "The assassin missed Merlin. Good wins!"
		}
	default:
		headline = fmt.Sprintf("%s wins!", o.Winner)
	}

	lines := []string{headline, "Roles:"}
	for i, player := range o.Players {
		lines = append(lines, fmt.Sprintf("  player %d: %s", i+1, o.Roles[player].Title()))
	}

	return strings.Join(lines, "\n")
}
