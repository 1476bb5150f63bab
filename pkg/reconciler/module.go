package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/rooms"
	"github.com/cfoust/avalon/pkg/state"
	"github.com/cfoust/avalon/pkg/utils"

	"github.com/rs/zerolog/log"
)

const (
	// Chance a good player approves a team.
	GOOD_APPROVE = 0.7
	// Chance an evil player rejects a team.
	EVIL_REJECT = 0.6
	// Chance an evil team member fails a quest.
	EVIL_FAIL = 0.4
)

// TeamVoteFor picks a vote on behalf of a player who ran out of time.
func TeamVoteFor(random game.Rand, role game.Role) game.TeamVote {
	if role.IsGood() {
		if random.Float64() < GOOD_APPROVE {
			return game.VoteYes
		}
		return game.VoteNo
	}

	if random.Float64() < EVIL_REJECT {
		return game.VoteNo
	}
	return game.VoteYes
}

// QuestVoteFor picks a quest card on behalf of a team member who ran out of
// time. Good players always succeed.
func QuestVoteFor(random game.Rand, role game.Role) game.QuestVote {
	if role.IsGood() {
		return game.QuestSuccess
	}

	if random.Float64() < EVIL_FAIL {
		return game.QuestFail
	}
	return game.QuestSuccess
}

// Reconciler periodically acts for players who let a vote or quest time out.
// Its actions go through the same engine calls and the same room lock as live
// ones.
type Reconciler struct {
	rooms    *rooms.Service
	interval time.Duration
	session  *utils.Session
}

func New(service *rooms.Service, settings config.ReconcilerSettings) *Reconciler {
	return &Reconciler{
		rooms:    service,
		interval: time.Duration(settings.IntervalSeconds) * time.Second,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	session := utils.NewSession(ctx)
	r.session = &session

	log.Info().Dur("interval", r.interval).Msg("starting timeout reconciler")
	session.Poll(r.interval, func(ctx context.Context) {
		r.Tick(ctx)
	})
}

func (r *Reconciler) Stop() {
	if r.session == nil {
		return
	}

	r.session.Cancel()
	r.session.Wait()
	r.session = nil
}

// Tick checks every game in progress once and returns how many were forced
// forward.
func (r *Reconciler) Tick(ctx context.Context) int {
	playing, err := r.rooms.Store().ListByStatus(ctx, state.StatusPlaying)
	if err != nil {
		log.Error().Err(err).Msg("could not list games in progress")
		return 0
	}

	now := r.rooms.Engine().Now()
	forced := 0
	for _, room := range playing {
		if ctx.Err() != nil {
			break
		}

		// Skip the lock for rooms that are obviously fine
		if !room.State.Expired(now) {
			continue
		}

		ok, err := r.Force(ctx, room.ID)
		if err != nil {
			log.Warn().Err(err).Str("room", room.ID).Msg("failed to reconcile room")
			continue
		}

		if ok {
			forced++
		}
	}

	return forced
}

func describeMissing(gameState *game.GameState, players []game.PlayerID) string {
	return fmt.Sprintf(
		"Time is up. Acting for %s.",
		game.FormatSeats(gameState.Seats(players)),
	)
}

// Force makes the missing choices for a room whose phase has timed out. It
// reports false when there was nothing to do, including when everyone acted
// before the room's lock was acquired.
func (r *Reconciler) Force(ctx context.Context, roomID string) (bool, error) {
	engine := r.rooms.Engine()
	logger := log.With().Str("room", roomID).Logger()

	forced := false
	_, err := r.rooms.Do(ctx, roomID, func(change *rooms.Change) error {
		forced = false
		gameState := change.Room.State
		now := engine.Now()

		if change.Room.Status != state.StatusPlaying || !gameState.Expired(now) {
			change.Discard()
			return nil
		}

		pending := gameState.Pending()
		if len(pending) == 0 {
			change.Discard()
			return nil
		}

		phase := gameState.Phase
		change.Announce("%s", describeMissing(gameState, pending))

		// Nobody sees the expired clock once the phase resolves
		gameState.PhaseStartedAt = now

		choices := make([]string, 0, len(pending))
		var resolution *game.Resolution
		for _, player := range pending {
			if gameState.Phase != phase {
				break
			}

			role := gameState.RoleOf(player)

			var err error
			switch phase {
			case game.PhaseTeamVote:
				vote := TeamVoteFor(engine.Rand(), role)
				resolution, err = engine.CastTeamVote(gameState, player, vote)
				choices = append(choices, fmt.Sprintf("%s=%s", player, vote))
			case game.PhaseQuestPerform:
				vote := QuestVoteFor(engine.Rand(), role)
				resolution, err = engine.PerformQuest(gameState, player, vote)
				choices = append(choices, fmt.Sprintf("%s=%s", player, vote))
			}
			if err != nil {
				return err
			}
		}

		rooms.Describe(change, resolution)

		logger.Info().
			Str("phase", string(phase)).
			Int("players", len(pending)).
			Msg("forced timed out phase")
		logger.Debug().Str("choices", strings.Join(choices, ",")).Msg("synthesized choices")

		forced = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return forced, nil
}
