package game

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var EPOCH = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestEngine(seed int64) (*Engine, *testClock) {
	clock := &testClock{now: EPOCH}
	engine := NewEngine(EngineConfig{
		Rand:  rand.New(rand.NewSource(seed)),
		Clock: clock.Now,
	})
	return engine, clock
}

func playerIDs(n int) []PlayerID {
	players := make([]PlayerID, n)
	for i := range players {
		players[i] = PlayerID(fmt.Sprintf("p%d", i+1))
	}
	return players
}

// Starts a game of n players owned by p1.
func startedGame(t *testing.T, engine *Engine, n int) *GameState {
	state := NewGameState(60)
	state.Players = playerIDs(n)
	require.NoError(t, engine.StartGame(state, "p1", "p1"))
	return state
}

func seatsUpTo(n int) []int {
	seats := make([]int, n)
	for i := range seats {
		seats[i] = i + 1
	}
	return seats
}

func proposeFirstSeats(t *testing.T, engine *Engine, state *GameState) {
	size, err := QuestSize(len(state.Players), state.Round)
	require.NoError(t, err)
	require.NoError(t, engine.PickTeam(state, state.Leader(), seatsUpTo(size)))
}

// Everyone votes; the first `yes` players in seat order approve.
func voteAll(t *testing.T, engine *Engine, state *GameState, yes int) *Resolution {
	var resolution *Resolution
	for i, player := range state.Players {
		vote := VoteNo
		if i < yes {
			vote = VoteYes
		}
		var err error
		resolution, err = engine.CastTeamVote(state, player, vote)
		require.NoError(t, err)
	}
	return resolution
}

// The first `fails` team members play fail.
func questAll(t *testing.T, engine *Engine, state *GameState, fails int) *Resolution {
	var resolution *Resolution
	team := append([]PlayerID(nil), state.Team...)
	for i, player := range team {
		vote := QuestSuccess
		if i < fails {
			vote = QuestFail
		}
		var err error
		resolution, err = engine.PerformQuest(state, player, vote)
		require.NoError(t, err)
	}
	return resolution
}

func playQuest(t *testing.T, engine *Engine, state *GameState, fails int) *Resolution {
	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, len(state.Players))
	require.Equal(t, PhaseQuestPerform, state.Phase)
	return questAll(t, engine, state, fails)
}

func TestStartGame(t *testing.T) {
	engine, _ := newTestEngine(1)

	state := NewGameState(60)
	state.Players = playerIDs(4)
	err := engine.StartGame(state, "p1", "p1")
	assert.True(t, IsKind(err, ErrorInsufficientPlayers))
	assert.Equal(t, PhaseWaiting, state.Phase)

	state.Players = playerIDs(5)
	err = engine.StartGame(state, "p1", "p2")
	assert.True(t, IsKind(err, ErrorPermissionDenied))

	state.Players = playerIDs(11)
	err = engine.StartGame(state, "p1", "p1")
	assert.True(t, IsKind(err, ErrorTooManyPlayers))

	state.Players = playerIDs(5)
	require.NoError(t, engine.StartGame(state, "p1", "p1"))
	assert.Equal(t, PhaseTeamSelection, state.Phase)
	assert.Equal(t, 1, state.Round)
	assert.Equal(t, 0, state.VoteTrack)
	assert.Equal(t, 0, state.LeaderIndex)
	assert.Empty(t, state.Team)
	assert.Empty(t, state.TeamVotes)
	assert.Empty(t, state.QuestVotes)
	assert.Empty(t, state.QuestResults)
	assert.Equal(t, EPOCH, state.PhaseStartedAt)
	assert.Equal(t, EPOCH, state.StartedAt)
	assert.ElementsMatch(t, playerIDs(5), state.Players)

	err = engine.StartGame(state, "p1", "p1")
	assert.True(t, IsKind(err, ErrorWrongPhase))
}

func TestRoleDistribution(t *testing.T) {
	for numPlayers := MIN_PLAYERS; numPlayers <= MAX_PLAYERS; numPlayers++ {
		good, evil, err := Distribution(numPlayers)
		require.NoError(t, err)
		require.Equal(t, numPlayers, good+evil)

		for seed := int64(0); seed < 50; seed++ {
			engine, _ := newTestEngine(seed)
			state := startedGame(t, engine, numPlayers)

			require.Len(t, state.Roles, numPlayers)
			for _, player := range state.Players {
				_, ok := state.Roles[player]
				require.True(t, ok, "every seat gets a role")
			}

			counts := make(map[Role]int)
			numGood, numEvil := 0, 0
			for _, role := range state.Roles {
				counts[role]++
				if role.IsGood() {
					numGood++
				} else {
					numEvil++
				}
			}

			assert.Equal(t, good, numGood, "%d players", numPlayers)
			assert.Equal(t, evil, numEvil, "%d players", numPlayers)
			assert.Equal(t, 1, counts[RoleAssassin])
			assert.Equal(t, 1, counts[RoleMerlin])
			assert.Equal(t, 1, counts[RolePercival])
			assert.Equal(t, good-2, counts[RoleLoyal])
			for _, special := range []Role{RoleMorgana, RoleMordred, RoleOberon} {
				assert.LessOrEqual(t, counts[special], 1)
			}
		}
	}
}

func TestDealRolesCoversEveryEvilRole(t *testing.T) {
	engine, _ := newTestEngine(7)
	seen := make(map[Role]bool)
	for i := 0; i < 200; i++ {
		pool, err := engine.DealRoles(10)
		require.NoError(t, err)
		for _, role := range pool {
			seen[role] = true
		}
	}

	for _, role := range specialEvil {
		assert.True(t, seen[role], "%s should eventually be dealt", role)
	}
}

func TestPickTeamSizes(t *testing.T) {
	for numPlayers := MIN_PLAYERS; numPlayers <= MAX_PLAYERS; numPlayers++ {
		for round := 1; round <= NUM_QUESTS; round++ {
			engine, _ := newTestEngine(int64(numPlayers*10 + round))
			state := startedGame(t, engine, numPlayers)
			state.Round = round

			required, err := QuestSize(numPlayers, round)
			require.NoError(t, err)

			for size := 1; size <= numPlayers; size++ {
				if size == required {
					continue
				}
				err := engine.PickTeam(state, state.Leader(), seatsUpTo(size))
				assert.True(
					t,
					IsKind(err, ErrorInvalidTeamSize),
					"%d players round %d size %d",
					numPlayers,
					round,
					size,
				)
				assert.Equal(t, PhaseTeamSelection, state.Phase)
			}

			require.NoError(t, engine.PickTeam(state, state.Leader(), seatsUpTo(required)))
			assert.Equal(t, PhaseTeamVote, state.Phase)
			assert.Len(t, state.Team, required)
		}
	}
}

func TestPickTeamValidation(t *testing.T) {
	engine, clock := newTestEngine(3)
	state := startedGame(t, engine, 5)

	notLeader := state.Players[1]
	err := engine.PickTeam(state, notLeader, []int{1, 2})
	assert.True(t, IsKind(err, ErrorNotLeader))

	err = engine.PickTeam(state, state.Leader(), []int{0, 2})
	assert.True(t, IsKind(err, ErrorInvalidSeat))

	err = engine.PickTeam(state, state.Leader(), []int{1, 6})
	assert.True(t, IsKind(err, ErrorInvalidSeat))

	err = engine.PickTeam(state, state.Leader(), []int{2, 2})
	assert.True(t, IsKind(err, ErrorInvalidSeat))

	clock.Advance(time.Minute)
	require.NoError(t, engine.PickTeam(state, state.Leader(), []int{2, 4}))
	assert.Equal(t, []PlayerID{state.Players[1], state.Players[3]}, state.Team)
	assert.Equal(t, EPOCH.Add(time.Minute), state.PhaseStartedAt)

	err = engine.PickTeam(state, state.Leader(), []int{1, 2})
	assert.True(t, IsKind(err, ErrorWrongPhase))
}

func TestVotePasses(t *testing.T) {
	engine, _ := newTestEngine(4)
	state := startedGame(t, engine, 5)
	proposeFirstSeats(t, engine, state)

	resolution := voteAll(t, engine, state, 3)
	assert.True(t, resolution.Resolved)
	assert.True(t, resolution.Approved)
	assert.Equal(t, 3, resolution.Yes)
	assert.Equal(t, 2, resolution.No)
	assert.Equal(t, PhaseQuestPerform, state.Phase)
	assert.Equal(t, 0, state.VoteTrack)
}

func TestVoteRejected(t *testing.T) {
	engine, _ := newTestEngine(5)
	state := startedGame(t, engine, 5)
	proposeFirstSeats(t, engine, state)

	resolution := voteAll(t, engine, state, 2)
	assert.True(t, resolution.Resolved)
	assert.False(t, resolution.Approved)
	assert.Equal(t, PhaseTeamSelection, state.Phase)
	assert.Equal(t, 1, state.VoteTrack)
	assert.Equal(t, 1, state.LeaderIndex)
}

func TestTiedVoteRejects(t *testing.T) {
	engine, _ := newTestEngine(6)
	state := startedGame(t, engine, 6)
	proposeFirstSeats(t, engine, state)

	resolution := voteAll(t, engine, state, 3)
	assert.False(t, resolution.Approved)
	assert.Equal(t, 1, state.VoteTrack)
}

func TestRevoteIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(8)
	state := startedGame(t, engine, 5)
	proposeFirstSeats(t, engine, state)

	player := state.Players[2]
	for i := 0; i < 3; i++ {
		resolution, err := engine.CastTeamVote(state, player, VoteYes)
		require.NoError(t, err)
		assert.False(t, resolution.Resolved)
		assert.Len(t, state.TeamVotes, 1)
	}

	_, err := engine.CastTeamVote(state, player, VoteNo)
	require.NoError(t, err)
	assert.Len(t, state.TeamVotes, 1)
	assert.Equal(t, VoteNo, state.TeamVotes[player])

	_, err = engine.CastTeamVote(state, "stranger", VoteYes)
	assert.True(t, IsKind(err, ErrorNotInGame))

	_, err = engine.CastTeamVote(state, player, TeamVote("maybe"))
	assert.True(t, IsKind(err, ErrorInvalidVote))

	voteAll(t, engine, state, 5)
	require.Equal(t, PhaseQuestPerform, state.Phase)

	member := state.Team[0]
	for i := 0; i < 3; i++ {
		_, err := engine.PerformQuest(state, member, QuestSuccess)
		require.NoError(t, err)
		assert.Len(t, state.QuestVotes, 1)
	}
}

func TestHammer(t *testing.T) {
	for _, round := range []int{1, 3, 5} {
		engine, _ := newTestEngine(int64(round))
		state := startedGame(t, engine, 5)
		state.Round = round

		var resolution *Resolution
		for i := 0; i < MAX_VOTE_TRACK; i++ {
			require.Equal(t, PhaseTeamSelection, state.Phase)
			proposeFirstSeats(t, engine, state)
			resolution = voteAll(t, engine, state, 0)
		}

		assert.True(t, resolution.Over)
		assert.Equal(t, PhaseGameOver, state.Phase)
		assert.Equal(t, TeamEvil, state.Winner)
		assert.Equal(t, EndReasonHammer, state.Reason)
		assert.Equal(t, MAX_VOTE_TRACK, state.VoteTrack)
		assert.Equal(t, EPOCH, state.EndedAt)
	}
}

func TestVoteTrackResetsOnPass(t *testing.T) {
	engine, _ := newTestEngine(9)
	state := startedGame(t, engine, 5)

	for i := 0; i < 4; i++ {
		proposeFirstSeats(t, engine, state)
		voteAll(t, engine, state, 0)
	}
	assert.Equal(t, 4, state.VoteTrack)
	assert.Equal(t, 4, state.LeaderIndex)

	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, 5)
	assert.Equal(t, PhaseQuestPerform, state.Phase)
	assert.Equal(t, 0, state.VoteTrack)
}

func TestQuestFourNeedsTwoFails(t *testing.T) {
	engine, _ := newTestEngine(10)
	state := startedGame(t, engine, 7)
	state.Round = 4
	state.QuestResults = []bool{true, false, true}

	resolution := playQuest(t, engine, state, 1)
	assert.True(t, resolution.Resolved)
	assert.True(t, resolution.Succeeded)
	assert.Equal(t, 1, resolution.Fails)
	assert.Equal(t, []bool{true, false, true, true}, state.QuestResults)
	assert.Equal(t, PhaseAssassination, state.Phase)

	engine, _ = newTestEngine(11)
	state = startedGame(t, engine, 7)
	state.Round = 4
	state.QuestResults = []bool{true, false, true}

	resolution = playQuest(t, engine, state, 2)
	assert.False(t, resolution.Succeeded)
	assert.Equal(t, []bool{true, false, true, false}, state.QuestResults)
	assert.Equal(t, PhaseTeamSelection, state.Phase)
	assert.Equal(t, 5, state.Round)
}

func TestQuestFourSmallGame(t *testing.T) {
	engine, _ := newTestEngine(12)
	state := startedGame(t, engine, 6)
	state.Round = 4
	state.QuestResults = []bool{true, false, false}

	resolution := playQuest(t, engine, state, 1)
	assert.False(t, resolution.Succeeded)
	assert.True(t, resolution.Over)
	assert.Equal(t, TeamEvil, state.Winner)
}

func TestNextRound(t *testing.T) {
	engine, clock := newTestEngine(13)
	state := startedGame(t, engine, 5)

	clock.Advance(time.Hour)
	resolution := playQuest(t, engine, state, 0)
	assert.True(t, resolution.Succeeded)
	assert.False(t, resolution.Over)
	assert.Equal(t, PhaseTeamSelection, state.Phase)
	assert.Equal(t, 2, state.Round)
	assert.Equal(t, 1, state.LeaderIndex)
	assert.Empty(t, state.QuestVotes)
	assert.Equal(t, EPOCH.Add(time.Hour), state.PhaseStartedAt)

	_, err := engine.PerformQuest(state, state.Players[0], QuestSuccess)
	assert.True(t, IsKind(err, ErrorPhaseAlreadyResolved))

	// Once the next proposal is on the table a quest card is early, not late
	proposeFirstSeats(t, engine, state)
	_, err = engine.PerformQuest(state, state.Players[0], QuestSuccess)
	assert.True(t, IsKind(err, ErrorWrongPhase))

	voteAll(t, engine, state, 0)
	assert.Equal(t, PhaseTeamSelection, state.Phase)
	_, err = engine.PerformQuest(state, state.Players[0], QuestSuccess)
	assert.True(t, IsKind(err, ErrorWrongPhase))
}

func TestThreeFailsEndGame(t *testing.T) {
	orders := [][]bool{
		{false, false, false},
		{true, false, true, false, false},
		{false, true, false, false},
	}

	for _, order := range orders {
		engine, _ := newTestEngine(14)
		state := startedGame(t, engine, 5)

		var resolution *Resolution
		for _, success := range order {
			fails := 0
			if !success {
				fails = 1
			}
			resolution = playQuest(t, engine, state, fails)
		}

		assert.True(t, resolution.Over)
		assert.Equal(t, PhaseGameOver, state.Phase)
		assert.Equal(t, TeamEvil, state.Winner)
		assert.Equal(t, EndReasonQuests, state.Reason)
		assert.Equal(t, order, state.QuestResults)
	}
}

func TestThreeSuccessesGoToAssassination(t *testing.T) {
	engine, _ := newTestEngine(15)
	state := startedGame(t, engine, 5)

	for _, success := range []bool{true, false, true, true} {
		fails := 0
		if !success {
			fails = 1
		}
		playQuest(t, engine, state, fails)
	}

	assert.Equal(t, PhaseAssassination, state.Phase)
	assert.Equal(t, TeamNone, state.Winner)
}

func findRole(state *GameState, role Role) (PlayerID, int) {
	for i, player := range state.Players {
		if state.Roles[player] == role {
			return player, i + 1
		}
	}
	return "", 0
}

func reachAssassination(t *testing.T, seed int64) (*Engine, *GameState) {
	engine, _ := newTestEngine(seed)
	state := startedGame(t, engine, 5)
	for i := 0; i < 3; i++ {
		playQuest(t, engine, state, 0)
	}
	require.Equal(t, PhaseAssassination, state.Phase)
	return engine, state
}

func TestAssassination(t *testing.T) {
	engine, state := reachAssassination(t, 16)
	assassin, _ := findRole(state, RoleAssassin)
	_, merlinSeat := findRole(state, RoleMerlin)

	notAssassin := state.Players[0]
	if notAssassin == assassin {
		notAssassin = state.Players[1]
	}
	_, err := engine.Assassinate(state, notAssassin, merlinSeat)
	assert.True(t, IsKind(err, ErrorPermissionDenied))

	_, err = engine.Assassinate(state, assassin, 9)
	assert.True(t, IsKind(err, ErrorInvalidSeat))
	assert.Equal(t, PhaseAssassination, state.Phase)

	resolution, err := engine.Assassinate(state, assassin, merlinSeat)
	require.NoError(t, err)
	assert.True(t, resolution.Over)
	assert.Equal(t, RoleMerlin, resolution.TargetRole)
	assert.Equal(t, PhaseGameOver, state.Phase)
	assert.Equal(t, TeamEvil, state.Winner)

	outcome := NewOutcome("1234", state)
	require.NotNil(t, outcome)
	assert.Equal(t, TeamEvil, outcome.Winner)
	assert.Equal(t, EndReasonAssassination, outcome.Reason)
	assert.True(t, outcome.Won(assassin))

	_, err = engine.Assassinate(state, assassin, merlinSeat)
	assert.True(t, IsKind(err, ErrorWrongPhase))
}

func TestAssassinationMisses(t *testing.T) {
	engine, state := reachAssassination(t, 17)
	assassin, _ := findRole(state, RoleAssassin)

	for seat, player := range state.Players {
		if state.Roles[player] == RoleMerlin {
			continue
		}

		resolution, err := engine.Assassinate(state, assassin, seat+1)
		require.NoError(t, err)
		assert.True(t, resolution.Over)
		assert.Equal(t, PhaseGameOver, state.Phase)
		assert.Equal(t, TeamGood, state.Winner)
		break
	}

	assert.Equal(t, "1234", NewOutcome("1234", state).RoomID)
}

func TestOutcomeOnlyWhenOver(t *testing.T) {
	engine, _ := newTestEngine(18)
	state := startedGame(t, engine, 5)
	assert.Nil(t, NewOutcome("1234", state))
}

func TestLateVotes(t *testing.T) {
	engine, _ := newTestEngine(19)
	state := NewGameState(60)
	state.Players = playerIDs(5)

	_, err := engine.CastTeamVote(state, "p1", VoteYes)
	assert.True(t, IsKind(err, ErrorWrongPhase))

	require.NoError(t, engine.StartGame(state, "p1", "p1"))

	_, err = engine.CastTeamVote(state, "p1", VoteYes)
	assert.True(t, IsKind(err, ErrorWrongPhase))
	_, err = engine.PerformQuest(state, "p1", QuestSuccess)
	assert.True(t, IsKind(err, ErrorWrongPhase))

	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, 0)

	// The vote was rejected and the next leader is choosing.
	_, err = engine.CastTeamVote(state, "p1", VoteYes)
	assert.True(t, IsKind(err, ErrorPhaseAlreadyResolved))
	assert.Empty(t, state.QuestVotes)

	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, 5)

	_, err = engine.CastTeamVote(state, "p1", VoteNo)
	assert.True(t, IsKind(err, ErrorPhaseAlreadyResolved))

	nonMember := state.Players[4]
	_, err = engine.PerformQuest(state, nonMember, QuestFail)
	assert.True(t, IsKind(err, ErrorNotOnTeam))
}

func TestStrictQuests(t *testing.T) {
	clock := &testClock{now: EPOCH}
	engine := NewEngine(EngineConfig{
		Rand:         rand.New(rand.NewSource(20)),
		Clock:        clock.Now,
		StrictQuests: true,
	})
	state := startedGame(t, engine, 5)

	for i := range state.Players {
		state.Roles[state.Players[i]] = RoleLoyal
	}
	state.Roles[state.Players[0]] = RoleMinion

	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, 5)

	_, err := engine.PerformQuest(state, state.Players[1], QuestFail)
	assert.True(t, IsKind(err, ErrorPermissionDenied))

	_, err = engine.PerformQuest(state, state.Players[0], QuestFail)
	assert.NoError(t, err)
}

func TestPermissiveQuests(t *testing.T) {
	engine, _ := newTestEngine(21)
	state := startedGame(t, engine, 5)

	proposeFirstSeats(t, engine, state)
	voteAll(t, engine, state, 5)

	var good PlayerID
	for _, member := range state.Team {
		if state.RoleOf(member).IsGood() {
			good = member
			break
		}
	}
	if good == "" {
		t.Skip("team happened to be all evil")
	}

	_, err := engine.PerformQuest(state, good, QuestFail)
	assert.NoError(t, err)
	assert.Equal(t, QuestFail, state.QuestVotes[good])
}

func TestPending(t *testing.T) {
	engine, _ := newTestEngine(22)
	state := startedGame(t, engine, 5)
	assert.Empty(t, state.Pending())

	proposeFirstSeats(t, engine, state)
	assert.Equal(t, state.Players, state.Pending())

	_, err := engine.CastTeamVote(state, state.Players[0], VoteYes)
	require.NoError(t, err)
	assert.Equal(t, state.Players[1:], state.Pending())

	voteAll(t, engine, state, 5)
	assert.Equal(t, state.Team, state.Pending())
}

func TestErrorsMatch(t *testing.T) {
	err := NewError(ErrorConflict, "room %s changed", "1234")
	assert.ErrorIs(t, fmt.Errorf("save: %w", err), &Error{Kind: ErrorConflict})
	assert.NotErrorIs(t, err, &Error{Kind: ErrorNotFound})
	assert.Equal(t, ErrorConflict, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "Conflict", ErrorConflict.String())
	assert.Equal(t, "room 1234 changed", err.Error())
}
