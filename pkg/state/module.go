package state

import (
	"context"
	"time"

	"github.com/cfoust/avalon/pkg/game"
)

type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusPlaying Status = "PLAYING"
	StatusEnded   Status = "ENDED"
)

// A room is the lobby around one game. While WAITING the joined players are
// kept in State.Players in join order.
type Room struct {
	ID    string
	Owner game.PlayerID
	// Incremented by the store on every successful save.
	Version   uint64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	State     *game.GameState
}

func (r *Room) Clone() *Room {
	clone := *r
	if r.State != nil {
		clone.State = r.State.Clone()
	}
	return &clone
}

var (
	ErrNotFound error = &game.Error{Kind: game.ErrorNotFound, Message: "room not found"}
	// Someone else saved the room since it was loaded; reload and retry.
	ErrConflict error = &game.Error{Kind: game.ErrorConflict, Message: "the room changed, please try again"}
)

// Store persists rooms. Save fails with ErrConflict if the room's version no
// longer matches what is stored; a room with version 0 is created and
// conflicts if the ID is taken.
type Store interface {
	Load(ctx context.Context, id string) (*Room, error)
	Save(ctx context.Context, room *Room) error
	ListByStatus(ctx context.Context, status Status) ([]*Room, error)
	Delete(ctx context.Context, id string) error
}

// OutcomeSink receives the record of every finished game.
type OutcomeSink interface {
	Archive(ctx context.Context, outcome *game.Outcome) error
}

type History interface {
	OutcomesFor(ctx context.Context, player game.PlayerID) ([]*game.Outcome, error)
}

// Users is the little bookkeeping kept per chat account.
type Users interface {
	SetNickname(ctx context.Context, player game.PlayerID, nickname string) error
	Nickname(ctx context.Context, player game.PlayerID) (string, error)
	// An empty room ID clears the player's current room.
	SetCurrentRoom(ctx context.Context, player game.PlayerID, roomID string) error
	CurrentRoom(ctx context.Context, player game.PlayerID) (string, error)
	ClearRoom(ctx context.Context, roomID string) error
}

type Stats struct {
	Games     int
	Wins      int
	GoodGames int
	GoodWins  int
	EvilGames int
	EvilWins  int
	// Filled in by the caller; Tally leaves it zero.
	Rating int
}

func (s Stats) WinRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Games) * 100
}

// Tally computes a player's record over the given outcomes.
func Tally(player game.PlayerID, outcomes []*game.Outcome) Stats {
	stats := Stats{}
	for _, outcome := range outcomes {
		role, ok := outcome.Roles[player]
		if !ok {
			continue
		}

		stats.Games++
		won := outcome.Won(player)
		if won {
			stats.Wins++
		}

		if role.IsGood() {
			stats.GoodGames++
			if won {
				stats.GoodWins++
			}
		} else {
			stats.EvilGames++
			if won {
				stats.EvilWins++
			}
		}
	}
	return stats
}
