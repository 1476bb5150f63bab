package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/mmr"
	"github.com/cfoust/avalon/pkg/state"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
)

func (s *Service) roomNumber() string {
	return fmt.Sprintf("%04d", 1000+int(s.engine.Rand().Float64()*9000))
}

// Create opens a new room owned by the caller, who is its first player.
func (s *Service) Create(ctx context.Context, owner game.PlayerID) (*state.Room, error) {
	now := s.engine.Now()

	for attempt := 0; attempt < MAX_NUMBER_ATTEMPTS; attempt++ {
		gameState := game.NewGameState(s.settings.TimeoutSeconds)
		gameState.Players = append(gameState.Players, owner)

		room := state.Room{
			ID:        s.roomNumber(),
			Owner:     owner,
			Status:    state.StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
			State:     gameState,
		}

		lockedCtx, unlock := s.lock(ctx, room.ID)
		err := s.store.Save(lockedCtx, &room)
		unlock()

		if errors.Is(err, state.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		err = s.accounts.SetCurrentRoom(ctx, owner, room.ID)
		if err != nil {
			return nil, err
		}

		log.Info().Str("room", room.ID).Str("owner", string(owner)).Msg("room created")
		return &room, nil
	}

	return nil, game.NewError(game.ErrorConflict, "could not find a free room number, please try again")
}

// Join seats a player in a waiting room. Joining a room twice does nothing.
func (s *Service) Join(ctx context.Context, roomID string, player game.PlayerID) (*state.Room, error) {
	name := s.DisplayName(ctx, player)

	room, err := s.Do(ctx, roomID, func(change *Change) error {
		gameState := change.Room.State
		if change.Room.Status != state.StatusWaiting {
			return game.NewError(game.ErrorWrongPhase, "room %s is no longer accepting players", roomID)
		}

		if gameState.HasPlayer(player) {
			change.Discard()
			return nil
		}

		if len(gameState.Players) >= game.MAX_PLAYERS {
			return game.NewError(game.ErrorRoomFull, "room %s is full", roomID)
		}

		gameState.Players = append(gameState.Players, player)
		change.Announce("%s joined room %s (%d players)", name, roomID, len(gameState.Players))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.accounts.SetCurrentRoom(ctx, player, roomID)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func describeLeader(gameState *game.GameState) string {
	size, _ := game.QuestSize(gameState.NumPlayers(), gameState.Round)
	return fmt.Sprintf(
		"Quest %d: player %d leads and must pick %d players",
		gameState.Round,
		gameState.LeaderIndex+1,
		size,
	)
}

// Start deals the roles. Every player is told their own view privately.
func (s *Service) Start(ctx context.Context, roomID string, caller game.PlayerID) (*state.Room, error) {
	return s.Do(ctx, roomID, func(change *Change) error {
		room := change.Room
		err := s.engine.StartGame(room.State, room.Owner, caller)
		if err != nil {
			return err
		}

		room.Status = state.StatusPlaying

		for _, player := range room.State.Players {
			view, err := game.Visibility(room.State, player)
			if err != nil {
				return err
			}
			change.Whisper(player, "%s", view.String())
		}

		change.Announce(
			"The game has started with %d players.\n%s",
			room.State.NumPlayers(),
			describeLeader(room.State),
		)
		return nil
	})
}

func (s *Service) Pick(ctx context.Context, roomID string, leader game.PlayerID, seats []int) (*state.Room, error) {
	return s.Do(ctx, roomID, func(change *Change) error {
		gameState := change.Room.State
		err := s.engine.PickTeam(gameState, leader, seats)
		if err != nil {
			return err
		}

		change.Announce(
			"Player %d proposes %s for quest %d. Everyone vote yes or no.",
			gameState.LeaderIndex+1,
			game.FormatSeats(gameState.Seats(gameState.Team)),
			gameState.Round,
		)
		return nil
	})
}

// Describe announces what a resolution did to the game. Games that ended are
// announced by Do.
func Describe(change *Change, resolution *game.Resolution) {
	if resolution == nil || !resolution.Resolved {
		return
	}

	gameState := change.Room.State

	switch {
	case resolution.Yes+resolution.No > 0:
		if resolution.Approved {
			change.Announce(
				"The team was approved (%d yes, %d no). Team members, play success or fail.",
				resolution.Yes,
				resolution.No,
			)
			return
		}

		change.Announce(
			"The team was rejected (%d yes, %d no). Rejected proposals: %d/%d",
			resolution.Yes,
			resolution.No,
			gameState.VoteTrack,
			game.MAX_VOTE_TRACK,
		)
	case resolution.Quest > 0:
		result := "succeeded"
		if !resolution.Succeeded {
			result = "failed"
		}
		change.Announce("Quest %d %s with %d fail(s).", resolution.Quest, result, resolution.Fails)

		if gameState.Phase == game.PhaseAssassination {
			change.Announce("Good has completed three quests. The assassin may now name Merlin.")
			return
		}
	}

	if gameState.Phase == game.PhaseTeamSelection {
		change.Announce("%s", describeLeader(gameState))
	}
}

func (s *Service) Vote(ctx context.Context, roomID string, player game.PlayerID, vote game.TeamVote) (*game.Resolution, error) {
	var resolution *game.Resolution
	_, err := s.Do(ctx, roomID, func(change *Change) error {
		var err error
		resolution, err = s.engine.CastTeamVote(change.Room.State, player, vote)
		if err != nil {
			return err
		}
		Describe(change, resolution)
		return nil
	})
	return resolution, err
}

func (s *Service) Quest(ctx context.Context, roomID string, player game.PlayerID, vote game.QuestVote) (*game.Resolution, error) {
	var resolution *game.Resolution
	_, err := s.Do(ctx, roomID, func(change *Change) error {
		var err error
		resolution, err = s.engine.PerformQuest(change.Room.State, player, vote)
		if err != nil {
			return err
		}
		Describe(change, resolution)
		return nil
	})
	return resolution, err
}

func (s *Service) Shoot(ctx context.Context, roomID string, assassin game.PlayerID, seat int) (*game.Resolution, error) {
	var resolution *game.Resolution
	_, err := s.Do(ctx, roomID, func(change *Change) error {
		var err error
		resolution, err = s.engine.Assassinate(change.Room.State, assassin, seat)
		if err != nil {
			return err
		}
		change.Announce("The assassin shoots player %d.", seat)
		return nil
	})
	return resolution, err
}

func (s *Service) View(ctx context.Context, roomID string, player game.PlayerID) (*game.View, error) {
	room, err := s.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return game.Visibility(room.State, player)
}

func (s *Service) Status(ctx context.Context, roomID string) (*game.Summary, error) {
	room, err := s.store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return game.Summarize(room.State, s.engine.Now()), nil
}

func (s *Service) CurrentRoom(ctx context.Context, player game.PlayerID) (opt.Option[string], error) {
	roomID, err := s.accounts.CurrentRoom(ctx, player)
	if err != nil {
		return opt.None[string](), err
	}

	if roomID == "" {
		return opt.None[string](), nil
	}

	return opt.Some(roomID), nil
}

func (s *Service) SetNickname(ctx context.Context, player game.PlayerID, nickname string) error {
	return s.accounts.SetNickname(ctx, player, nickname)
}

func (s *Service) Profile(ctx context.Context, player game.PlayerID) (state.Stats, error) {
	outcomes, err := s.accounts.OutcomesFor(ctx, player)
	if err != nil {
		return state.Stats{}, err
	}
	stats := state.Tally(player, outcomes)
	stats.Rating = mmr.NewElo().Replay(outcomes).Of(player)
	return stats, nil
}

// Delete removes a room and forgets it as anyone's current room.
func (s *Service) Delete(ctx context.Context, roomID string) error {
	_, err := s.Reap(ctx, roomID, func(room *state.Room) bool {
		return true
	})
	return err
}

// Reap deletes a room if it is still stale once its lock is held.
func (s *Service) Reap(ctx context.Context, roomID string, stale func(room *state.Room) bool) (bool, error) {
	ctx, unlock := s.lock(ctx, roomID)
	defer unlock()

	room, err := s.store.Load(ctx, roomID)
	if err != nil {
		return false, err
	}

	if !stale(room) {
		return false, nil
	}

	err = s.store.Delete(ctx, roomID)
	if err != nil {
		return false, err
	}

	return true, s.accounts.ClearRoom(ctx, roomID)
}
