package game

import (
	"fmt"
	"strings"
	"time"
)

// A stable identifier for a participant, e.g. a chat account id.
type PlayerID string

type Phase string

const (
	PhaseWaiting       Phase = "WAITING"
	PhaseTeamSelection Phase = "TEAM_SELECTION"
	PhaseTeamVote      Phase = "TEAM_VOTE"
	PhaseQuestPerform  Phase = "QUEST_PERFORM"
	PhaseAssassination Phase = "ASSASSINATION"
	PhaseGameOver      Phase = "GAME_OVER"
)

// Whether participants owe an action with a deadline in this phase.
func (p Phase) HasDeadline() bool {
	return p == PhaseTeamVote || p == PhaseQuestPerform
}

type TeamVote string

const (
	VoteYes TeamVote = "yes"
	VoteNo  TeamVote = "no"
)

func ParseTeamVote(value string) (TeamVote, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "approve", "赞成":
		return VoteYes, nil
	case "no", "n", "reject", "反对":
		return VoteNo, nil
	}
	return "", fmt.Errorf("vote must be yes or no")
}

type QuestVote string

const (
	QuestSuccess QuestVote = "success"
	QuestFail    QuestVote = "fail"
)

func ParseQuestVote(value string) (QuestVote, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "success", "s", "成功":
		return QuestSuccess, nil
	case "fail", "f", "失败":
		return QuestFail, nil
	}
	return "", fmt.Errorf("quest vote must be success or fail")
}

type EndReason string

const (
	EndReasonNone          EndReason = ""
	EndReasonQuests        EndReason = "quests"
	EndReasonHammer        EndReason = "hammer"
	EndReasonAssassination EndReason = "assassination"
)

// GameState is everything needed to resume one room's game. It is mutated
// only by the Engine.
type GameState struct {
	Phase   Phase
	Players []PlayerID
	// Index into Players of the current team proposer.
	LeaderIndex int
	Round       int
	// Consecutive rejected proposals in the current round.
	VoteTrack    int
	Team         []PlayerID
	TeamVotes    map[PlayerID]TeamVote
	QuestVotes   map[PlayerID]QuestVote
	QuestResults []bool
	Roles        map[PlayerID]Role

	PhaseStartedAt time.Time
	TimeoutSeconds int

	Winner    Team
	Reason    EndReason
	StartedAt time.Time
	EndedAt   time.Time
}

func NewGameState(timeoutSeconds int) *GameState {
	return &GameState{
		Phase:          PhaseWaiting,
		Players:        make([]PlayerID, 0),
		TeamVotes:      make(map[PlayerID]TeamVote),
		QuestVotes:     make(map[PlayerID]QuestVote),
		TimeoutSeconds: timeoutSeconds,
	}
}

func (s *GameState) NumPlayers() int {
	return len(s.Players)
}

// Seat returns the 1-based seat number of the player, or 0 if they are not
// seated.
func (s *GameState) Seat(player PlayerID) int {
	for i, other := range s.Players {
		if other == player {
			return i + 1
		}
	}
	return 0
}

func (s *GameState) HasPlayer(player PlayerID) bool {
	return s.Seat(player) != 0
}

func (s *GameState) OnTeam(player PlayerID) bool {
	for _, member := range s.Team {
		if member == player {
			return true
		}
	}
	return false
}

func (s *GameState) Leader() PlayerID {
	if s.LeaderIndex < 0 || s.LeaderIndex >= len(s.Players) {
		return ""
	}
	return s.Players[s.LeaderIndex]
}

func (s *GameState) RoleOf(player PlayerID) Role {
	return s.Roles[player]
}

func (s *GameState) Seats(players []PlayerID) []int {
	seats := make([]int, 0, len(players))
	for _, player := range players {
		seats = append(seats, s.Seat(player))
	}
	return seats
}

func (s *GameState) countResults(value bool) int {
	count := 0
	for _, result := range s.QuestResults {
		if result == value {
			count++
		}
	}
	return count
}

func (s *GameState) Successes() int {
	return s.countResults(true)
}

func (s *GameState) Failures() int {
	return s.countResults(false)
}

func (s *GameState) IsOver() bool {
	return s.Phase == PhaseGameOver
}

// Pending lists the participants who still owe an action in the current
// phase, in seat order. Only TEAM_VOTE and QUEST_PERFORM have any.
func (s *GameState) Pending() []PlayerID {
	pending := make([]PlayerID, 0)
	switch s.Phase {
	case PhaseTeamVote:
		for _, player := range s.Players {
			if _, ok := s.TeamVotes[player]; !ok {
				pending = append(pending, player)
			}
		}
	case PhaseQuestPerform:
		for _, player := range s.Players {
			if !s.OnTeam(player) {
				continue
			}
			if _, ok := s.QuestVotes[player]; !ok {
				pending = append(pending, player)
			}
		}
	}
	return pending
}

func (s *GameState) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Deadline is when the current phase times out. It is zero for phases that
// have no deadline.
func (s *GameState) Deadline() time.Time {
	if !s.Phase.HasDeadline() || s.PhaseStartedAt.IsZero() {
		return time.Time{}
	}
	return s.PhaseStartedAt.Add(s.Timeout())
}

// Expired reports whether the current phase's deadline has passed at now.
func (s *GameState) Expired(now time.Time) bool {
	deadline := s.Deadline()
	if deadline.IsZero() {
		return false
	}
	return now.Sub(s.PhaseStartedAt) >= s.Timeout()
}
