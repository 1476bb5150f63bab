package game

import (
	"fmt"
	"strings"
	"time"
)

// Summary is the public state of a game: nothing in it reveals roles or how
// anyone voted on a quest.
type Summary struct {
	Phase        Phase
	NumPlayers   int
	Round        int
	VoteTrack    int
	LeaderSeat   int
	TeamSeats    []int
	TeamSize     int
	QuestResults []bool
	// Seats that still owe an action in this phase.
	WaitingOn []int
	// Zero when the phase has no deadline.
	Remaining time.Duration
	Winner    Team
	Reason    EndReason
}

func Summarize(state *GameState, now time.Time) *Summary {
	summary := Summary{
		Phase:        state.Phase,
		NumPlayers:   len(state.Players),
		Round:        state.Round,
		VoteTrack:    state.VoteTrack,
		TeamSeats:    state.Seats(state.Team),
		QuestResults: cloneSlice(state.QuestResults),
		WaitingOn:    state.Seats(state.Pending()),
		Winner:       state.Winner,
		Reason:       state.Reason,
	}

	if state.Phase != PhaseWaiting {
		summary.LeaderSeat = state.LeaderIndex + 1
	}

	if size, err := QuestSize(len(state.Players), state.Round); err == nil {
		summary.TeamSize = size
	}

	deadline := state.Deadline()
	if !deadline.IsZero() {
		summary.Remaining = deadline.Sub(now)
		if summary.Remaining < 0 {
			summary.Remaining = 0
		}
	}

	return &summary
}

func formatResults(results []bool) string {
	if len(results) == 0 {
		return "none yet"
	}

	marks := make([]string, 0, len(results))
	for _, result := range results {
		if result {
			marks = append(marks, "success")
		} else {
			marks = append(marks, "fail")
		}
	}
	return strings.Join(marks, ", ")
}

func (s *Summary) String() string {
	lines := []string{
		fmt.Sprintf("Phase: %s", s.Phase),
		fmt.Sprintf("Players: %d", s.NumPlayers),
	}

	if s.Phase == PhaseWaiting {
		return strings.Join(lines, "\n")
	}

	lines = append(
		lines,
		fmt.Sprintf("Quest: %d (team of %d)", s.Round, s.TeamSize),
		fmt.Sprintf("Rejected proposals: %d/%d", s.VoteTrack, MAX_VOTE_TRACK),
		fmt.Sprintf("Leader: player %d", s.LeaderSeat),
		fmt.Sprintf("Quest results: %s", formatResults(s.QuestResults)),
	)

	if s.Phase == PhaseTeamVote || s.Phase == PhaseQuestPerform {
		lines = append(lines, fmt.Sprintf("Team: %s", FormatSeats(s.TeamSeats)))
		lines = append(lines, fmt.Sprintf("Waiting on: %s", FormatSeats(s.WaitingOn)))
		lines = append(lines, fmt.Sprintf("Time left: %s", s.Remaining.Round(time.Second)))
	}

	if s.Phase == PhaseGameOver {
		lines = append(lines, fmt.Sprintf("Winner: %s (%s)", s.Winner, s.Reason))
	}

	return strings.Join(lines, "\n")
}
