package game

import (
	"math/rand"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Rand is the subset of *rand.Rand the engine draws from.
type Rand interface {
	Shuffle(n int, swap func(i, j int))
	Float64() float64
}

// LockedRand makes a Rand safe to share between rooms that are processed
// concurrently.
type LockedRand struct {
	mutex deadlock.Mutex
	rand  Rand
}

func NewLockedRand(source Rand) *LockedRand {
	return &LockedRand{rand: source}
}

func (r *LockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mutex.Lock()
	r.rand.Shuffle(n, swap)
	r.mutex.Unlock()
}

func (r *LockedRand) Float64() float64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rand.Float64()
}

type EngineConfig struct {
	Rand  Rand
	Clock func() time.Time
	// Reject fail cards from good players.
	StrictQuests bool
}

// Engine applies player actions to a GameState. It keeps no per-game state of
// its own, so a single Engine serves every room; callers are responsible for
// serializing operations on the same GameState.
type Engine struct {
	rand         Rand
	clock        func() time.Time
	strictQuests bool
}

func NewEngine(config EngineConfig) *Engine {
	engine := Engine{
		rand:         config.Rand,
		clock:        config.Clock,
		strictQuests: config.StrictQuests,
	}

	if engine.rand == nil {
		engine.rand = NewLockedRand(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	if engine.clock == nil {
		engine.clock = time.Now
	}

	return &engine
}

// Times are kept in UTC without a monotonic reading so they survive
// serialization unchanged.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Round(0)
}

func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) Rand() Rand {
	return e.rand
}

func (e *Engine) resetClock(state *GameState) {
	state.PhaseStartedAt = e.now()
}

func (e *Engine) finish(state *GameState, winner Team, reason EndReason) {
	state.Phase = PhaseGameOver
	state.Winner = winner
	state.Reason = reason
	state.EndedAt = e.now()
	state.PhaseStartedAt = state.EndedAt
}

// Resolution describes what an action did to the game beyond recording it.
type Resolution struct {
	// The phase the action targeted finished resolving.
	Resolved bool

	// Team vote tallies, set when a team vote resolved.
	Yes      int
	No       int
	Approved bool

	// Quest tallies, set when a quest resolved.
	Quest     int
	Fails     int
	Succeeded bool

	// Assassination target, set when the assassin fired.
	Target     PlayerID
	TargetRole Role

	// The game reached GAME_OVER as a result of this action.
	Over bool
}

// StartGame seats the joined players in a random order, deals roles and opens
// the first team selection.
func (e *Engine) StartGame(state *GameState, owner PlayerID, caller PlayerID) error {
	if state.Phase != PhaseWaiting {
		return newError(ErrorWrongPhase, "the game has already started")
	}

	if caller != owner {
		return newError(ErrorPermissionDenied, "only the room owner can start the game")
	}

	numPlayers := len(state.Players)
	if numPlayers < MIN_PLAYERS {
		return newError(
			ErrorInsufficientPlayers,
			"not enough players: have %d, need at least %d",
			numPlayers,
			MIN_PLAYERS,
		)
	}

	if numPlayers > MAX_PLAYERS {
		return newError(
			ErrorTooManyPlayers,
			"too many players: have %d, at most %d can play",
			numPlayers,
			MAX_PLAYERS,
		)
	}

	players := make([]PlayerID, numPlayers)
	copy(players, state.Players)
	e.rand.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})

	roles, err := e.assignRoles(players)
	if err != nil {
		return err
	}

	state.Players = players
	state.Roles = roles
	state.Phase = PhaseTeamSelection
	state.Round = 1
	state.VoteTrack = 0
	state.LeaderIndex = 0
	state.Team = make([]PlayerID, 0)
	state.TeamVotes = make(map[PlayerID]TeamVote)
	state.QuestVotes = make(map[PlayerID]QuestVote)
	state.QuestResults = make([]bool, 0)
	state.Winner = TeamNone
	state.Reason = EndReasonNone
	state.EndedAt = time.Time{}
	state.StartedAt = e.now()
	state.PhaseStartedAt = state.StartedAt

	return nil
}

// teamVoteResolved reports whether a team vote arriving in the current phase
// is late, i.e. the phase can only have been reached by resolving a vote.
func teamVoteResolved(state *GameState) bool {
	switch state.Phase {
	case PhaseQuestPerform, PhaseAssassination, PhaseGameOver:
		return true
	case PhaseTeamSelection:
		return state.Round > 1 || state.VoteTrack > 0
	}
	return false
}

// questVoteResolved only treats a quest card as late until the next
// proposal is made or rejected; after that it is early for the next quest.
func questVoteResolved(state *GameState) bool {
	switch state.Phase {
	case PhaseAssassination, PhaseGameOver:
		return true
	case PhaseTeamSelection:
		return len(state.QuestResults) > 0 && state.VoteTrack == 0
	}
	return false
}

// PickTeam records the leader's proposal. Seats are 1-based.
func (e *Engine) PickTeam(state *GameState, leader PlayerID, seats []int) error {
	if state.Phase != PhaseTeamSelection {
		return newError(ErrorWrongPhase, "it is not time to pick a team")
	}

	if state.Leader() != leader {
		return newError(ErrorNotLeader, "you are not the current leader")
	}

	required, err := QuestSize(len(state.Players), state.Round)
	if err != nil {
		return err
	}

	if len(seats) != required {
		return newError(
			ErrorInvalidTeamSize,
			"quest %d needs a team of %d",
			state.Round,
			required,
		)
	}

	team := make([]PlayerID, 0, len(seats))
	chosen := make(map[int]struct{})
	for _, seat := range seats {
		if seat < 1 || seat > len(state.Players) {
			return newError(ErrorInvalidSeat, "invalid player number: %d", seat)
		}

		if _, ok := chosen[seat]; ok {
			return newError(ErrorInvalidSeat, "player %d was picked twice", seat)
		}
		chosen[seat] = struct{}{}

		team = append(team, state.Players[seat-1])
	}

	state.Team = team
	state.TeamVotes = make(map[PlayerID]TeamVote)
	state.Phase = PhaseTeamVote
	e.resetClock(state)

	return nil
}

// CastTeamVote records a player's approval or rejection of the proposed team
// and resolves the vote once everyone has voted. Voting again before
// resolution replaces the earlier vote.
func (e *Engine) CastTeamVote(state *GameState, player PlayerID, vote TeamVote) (*Resolution, error) {
	if state.Phase != PhaseTeamVote {
		if teamVoteResolved(state) {
			return nil, newError(ErrorPhaseAlreadyResolved, "the team vote has already been decided")
		}
		return nil, newError(ErrorWrongPhase, "there is no team to vote on")
	}

	if !state.HasPlayer(player) {
		return nil, newError(ErrorNotInGame, "you are not in this game")
	}

	if vote != VoteYes && vote != VoteNo {
		return nil, newError(ErrorInvalidVote, "vote must be yes or no")
	}

	if state.TeamVotes == nil {
		state.TeamVotes = make(map[PlayerID]TeamVote)
	}
	state.TeamVotes[player] = vote

	resolution := Resolution{}
	if len(state.TeamVotes) == len(state.Players) {
		e.resolveTeamVote(state, &resolution)
	}

	return &resolution, nil
}

func (e *Engine) resolveTeamVote(state *GameState, resolution *Resolution) {
	for _, vote := range state.TeamVotes {
		if vote == VoteYes {
			resolution.Yes++
		} else {
			resolution.No++
		}
	}

	resolution.Resolved = true
	resolution.Approved = resolution.Yes > resolution.No

	if resolution.Approved {
		state.Phase = PhaseQuestPerform
		state.VoteTrack = 0
		state.QuestVotes = make(map[PlayerID]QuestVote)
		e.resetClock(state)
		return
	}

	state.VoteTrack++
	if state.VoteTrack >= MAX_VOTE_TRACK {
		e.finish(state, TeamEvil, EndReasonHammer)
		resolution.Over = true
		return
	}

	state.LeaderIndex = (state.LeaderIndex + 1) % len(state.Players)
	state.Phase = PhaseTeamSelection
	e.resetClock(state)
}

// PerformQuest records a team member's quest card and resolves the quest once
// the whole team has played.
func (e *Engine) PerformQuest(state *GameState, player PlayerID, vote QuestVote) (*Resolution, error) {
	if state.Phase != PhaseQuestPerform {
		if questVoteResolved(state) {
			return nil, newError(ErrorPhaseAlreadyResolved, "the quest has already been decided")
		}
		return nil, newError(ErrorWrongPhase, "no quest is under way")
	}

	if !state.OnTeam(player) {
		return nil, newError(ErrorNotOnTeam, "you are not on this quest's team")
	}

	if vote != QuestSuccess && vote != QuestFail {
		return nil, newError(ErrorInvalidVote, "quest vote must be success or fail")
	}

	if e.strictQuests && vote == QuestFail && state.RoleOf(player).IsGood() {
		return nil, newError(ErrorPermissionDenied, "loyal servants of Arthur must play success")
	}

	if state.QuestVotes == nil {
		state.QuestVotes = make(map[PlayerID]QuestVote)
	}
	state.QuestVotes[player] = vote

	resolution := Resolution{}
	if len(state.QuestVotes) == len(state.Team) {
		e.resolveQuest(state, &resolution)
	}

	return &resolution, nil
}

func (e *Engine) resolveQuest(state *GameState, resolution *Resolution) {
	for _, vote := range state.QuestVotes {
		if vote == QuestFail {
			resolution.Fails++
		}
	}

	resolution.Resolved = true
	resolution.Quest = state.Round
	resolution.Succeeded = resolution.Fails < RequiredFails(len(state.Players), state.Round)

	state.QuestResults = append(state.QuestResults, resolution.Succeeded)

	if state.Failures() >= QUESTS_TO_WIN {
		e.finish(state, TeamEvil, EndReasonQuests)
		resolution.Over = true
		return
	}

	if state.Successes() >= QUESTS_TO_WIN {
		state.Phase = PhaseAssassination
		e.resetClock(state)
		return
	}

	state.Round++
	state.VoteTrack = 0
	state.LeaderIndex = (state.LeaderIndex + 1) % len(state.Players)
	state.Phase = PhaseTeamSelection
	state.QuestVotes = make(map[PlayerID]QuestVote)
	e.resetClock(state)
}

// Assassinate is evil's last chance: naming Merlin's seat steals the win.
func (e *Engine) Assassinate(state *GameState, assassin PlayerID, seat int) (*Resolution, error) {
	if state.Phase != PhaseAssassination {
		return nil, newError(ErrorWrongPhase, "it is not time for the assassination")
	}

	if state.RoleOf(assassin) != RoleAssassin {
		return nil, newError(ErrorPermissionDenied, "only the assassin can do that")
	}

	if seat < 1 || seat > len(state.Players) {
		return nil, newError(ErrorInvalidSeat, "invalid player number: %d", seat)
	}

	target := state.Players[seat-1]
	targetRole := state.RoleOf(target)

	winner := TeamGood
	if targetRole == RoleMerlin {
		winner = TeamEvil
	}

	e.finish(state, winner, EndReasonAssassination)

	return &Resolution{
		Resolved:   true,
		Target:     target,
		TargetRole: targetRole,
		Over:       true,
	}, nil
}
