package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	engine, clock := newTestEngine(40)
	state := startedGame(t, engine, 5)

	summary := Summarize(state, clock.Now())
	assert.Equal(t, PhaseTeamSelection, summary.Phase)
	assert.Equal(t, 1, summary.LeaderSeat)
	assert.Equal(t, 2, summary.TeamSize)
	assert.Empty(t, summary.WaitingOn)
	assert.Zero(t, summary.Remaining)

	require.NoError(t, engine.PickTeam(state, state.Leader(), []int{3, 5}))
	_, err := engine.CastTeamVote(state, state.Players[0], VoteYes)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	summary = Summarize(state, clock.Now())
	assert.Equal(t, []int{3, 5}, summary.TeamSeats)
	assert.Equal(t, []int{2, 3, 4, 5}, summary.WaitingOn)
	assert.Equal(t, 40*time.Second, summary.Remaining)

	text := summary.String()
	assert.Contains(t, text, "Team: [Player 3] [Player 5]")
	assert.Contains(t, text, "Time left: 40s")

	clock.Advance(time.Hour)
	assert.Zero(t, Summarize(state, clock.Now()).Remaining)
	assert.True(t, state.Expired(clock.Now()))
}

func TestSummaryWaiting(t *testing.T) {
	state := NewGameState(60)
	state.Players = playerIDs(3)

	summary := Summarize(state, EPOCH)
	assert.Equal(t, 0, summary.LeaderSeat)
	assert.Equal(t, "Phase: WAITING\nPlayers: 3", summary.String())
}

func TestAnnouncement(t *testing.T) {
	engine, _ := newTestEngine(41)
	state := startedGame(t, engine, 5)
	for i := 0; i < MAX_VOTE_TRACK; i++ {
		proposeFirstSeats(t, engine, state)
		voteAll(t, engine, state, 0)
	}

	outcome := NewOutcome("0042", state)
	require.NotNil(t, outcome)
	assert.Contains(t, outcome.Announcement(), "Five proposals in a row were rejected")
	assert.Contains(t, outcome.Announcement(), "player 5:")
	assert.NotEmpty(t, outcome.ID)
	assert.Equal(t, state.QuestResults, outcome.QuestResults)
}
