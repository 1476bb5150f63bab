package state

import (
	"context"
	"sort"

	"github.com/cfoust/avalon/pkg/game"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore keeps everything in process. It is used in tests and when no
// database is configured.
type MemoryStore struct {
	mutex    deadlock.RWMutex
	rooms    map[string]*Room
	outcomes []*game.Outcome
	nicks    map[game.PlayerID]string
	current  map[game.PlayerID]string
}

var _ Store = (*MemoryStore)(nil)
var _ OutcomeSink = (*MemoryStore)(nil)
var _ History = (*MemoryStore)(nil)
var _ Users = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*Room),
		outcomes: make([]*game.Outcome, 0),
		nicks:    make(map[game.PlayerID]string),
		current:  make(map[game.PlayerID]string),
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Room, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, room *Room) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.rooms[room.ID]
	if room.Version == 0 && ok {
		return ErrConflict
	}

	if room.Version != 0 && (!ok || existing.Version != room.Version) {
		return ErrConflict
	}

	room.Version++
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]*Room, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rooms := make([]*Room, 0)
	for _, room := range s.rooms {
		if room.Status == status {
			rooms = append(rooms, room.Clone())
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, id)
	return nil
}

func (s *MemoryStore) Archive(ctx context.Context, outcome *game.Outcome) error {
	s.mutex.Lock()
	s.outcomes = append(s.outcomes, outcome)
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Outcomes() []*game.Outcome {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*game.Outcome(nil), s.outcomes...)
}

func (s *MemoryStore) OutcomesFor(ctx context.Context, player game.PlayerID) ([]*game.Outcome, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	outcomes := make([]*game.Outcome, 0)
	for _, outcome := range s.outcomes {
		if _, ok := outcome.Roles[player]; ok {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

func (s *MemoryStore) SetNickname(ctx context.Context, player game.PlayerID, nickname string) error {
	s.mutex.Lock()
	s.nicks[player] = nickname
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Nickname(ctx context.Context, player game.PlayerID) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.nicks[player], nil
}

func (s *MemoryStore) SetCurrentRoom(ctx context.Context, player game.PlayerID, roomID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if roomID == "" {
		delete(s.current, player)
		return nil
	}
	s.current[player] = roomID
	return nil
}

func (s *MemoryStore) CurrentRoom(ctx context.Context, player game.PlayerID) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current[player], nil
}

func (s *MemoryStore) ClearRoom(ctx context.Context, roomID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for player, current := range s.current {
		if current == roomID {
			delete(s.current, player)
		}
	}
	return nil
}
