package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/state"
	"github.com/cfoust/avalon/pkg/utils"

	"github.com/rs/zerolog/log"
)

const (
	// Save attempts before a Conflict is handed back to the caller.
	MAX_ATTEMPTS = 3
	// Tries at finding an unused room number.
	MAX_NUMBER_ATTEMPTS = 10
	// How long one locked load/modify/save may take.
	STORE_TIMEOUT = 10 * time.Second
)

// Accounts is everything kept about players outside of rooms.
type Accounts interface {
	state.OutcomeSink
	state.History
	state.Users
}

// RoomEvent is a message for some of the players in a room. Recipients is
// empty when the whole room should see it.
type RoomEvent struct {
	Room       string
	Recipients []game.PlayerID
	Text       string
}

// Change is handed to the function passed to Do. It accumulates the
// messages the change produces, which are only published once the room is
// saved.
type Change struct {
	Room      *state.Room
	events    []RoomEvent
	discarded bool
}

func (c *Change) Announce(format string, args ...interface{}) {
	c.events = append(c.events, RoomEvent{
		Room: c.Room.ID,
		Text: fmt.Sprintf(format, args...),
	})
}

func (c *Change) Whisper(player game.PlayerID, format string, args ...interface{}) {
	c.events = append(c.events, RoomEvent{
		Room:       c.Room.ID,
		Recipients: []game.PlayerID{player},
		Text:       fmt.Sprintf(format, args...),
	})
}

// Discard leaves the stored room untouched.
func (c *Change) Discard() {
	c.discarded = true
}

type Service struct {
	store    state.Store
	accounts Accounts
	engine   *game.Engine
	locks    *utils.Stripes
	settings config.GameSettings
	timeout  time.Duration

	Events *utils.Topic[RoomEvent]
}

func NewService(
	store state.Store,
	accounts Accounts,
	engine *game.Engine,
	settings config.GameSettings,
) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		engine:   engine,
		locks:    utils.NewStripes(utils.DEFAULT_STRIPES),
		settings: settings,
		timeout:  STORE_TIMEOUT,
		Events:   utils.NewTopic[RoomEvent](),
	}
}

// SetStoreTimeout bounds how long a room's lock is held for storage calls.
func (s *Service) SetStoreTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// lock takes the room's stripe. Storage calls made with the returned
// context give up once the store timeout passes, so a stalled database
// cannot hold up the other rooms on the stripe indefinitely.
func (s *Service) lock(ctx context.Context, roomID string) (context.Context, func()) {
	unlock := s.locks.Lock(roomID)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, func() {
		cancel()
		unlock()
	}
}

func (s *Service) Engine() *game.Engine {
	return s.engine
}

func (s *Service) Store() state.Store {
	return s.store
}

func (s *Service) Accounts() Accounts {
	return s.accounts
}

func (s *Service) publish(events []RoomEvent) {
	for _, event := range events {
		s.Events.Publish(event)
	}
}

// Do runs fn against the latest version of a room while holding the room's
// lock and saves the result. A room that was modified elsewhere in the
// meantime is reloaded and fn is run again. If the change ends the game, the
// outcome is archived and announced.
func (s *Service) Do(ctx context.Context, roomID string, fn func(change *Change) error) (*state.Room, error) {
	ctx, unlock := s.lock(ctx, roomID)
	defer unlock()

	logger := log.With().Str("room", roomID).Logger()

	for attempt := 0; attempt < MAX_ATTEMPTS; attempt++ {
		room, err := s.store.Load(ctx, roomID)
		if err != nil {
			return nil, err
		}

		wasOver := room.State.IsOver()
		change := Change{Room: room}
		err = fn(&change)
		if err != nil {
			return nil, err
		}

		if change.discarded {
			s.publish(change.events)
			return room, nil
		}

		var outcome *game.Outcome
		if !wasOver && room.State.IsOver() {
			room.Status = state.StatusEnded
			outcome = game.NewOutcome(room.ID, room.State)
			change.Announce("%s", outcome.Announcement())
		}

		room.UpdatedAt = s.engine.Now()
		err = s.store.Save(ctx, room)
		if errors.Is(err, state.ErrConflict) {
			logger.Warn().Int("attempt", attempt+1).Msg("room changed underneath us, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		if outcome != nil {
			err := s.accounts.Archive(ctx, outcome)
			if err != nil {
				logger.Error().Err(err).Str("outcome", outcome.ID).Msg("failed to archive outcome")
			} else {
				logger.Info().
					Str("outcome", outcome.ID).
					Str("winner", string(outcome.Winner)).
					Str("reason", string(outcome.Reason)).
					Msg("game over")
			}
		}

		s.publish(change.events)
		return room, nil
	}

	return nil, state.ErrConflict
}

// Load returns a snapshot of the room without locking it.
func (s *Service) Load(ctx context.Context, roomID string) (*state.Room, error) {
	return s.store.Load(ctx, roomID)
}

func (s *Service) DisplayName(ctx context.Context, player game.PlayerID) string {
	nickname, err := s.accounts.Nickname(ctx, player)
	if err != nil || nickname == "" {
		return string(player)
	}
	return nickname
}
