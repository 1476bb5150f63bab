package game

import (
	"github.com/fxamacker/cbor/v2"
)

// Nanosecond timestamps with their offset, so a decoded state compares equal
// to the one that was encoded.
var encMode, _ = cbor.EncOptions{
	Time: cbor.TimeRFC3339Nano,
	Sort: cbor.SortCanonical,
}.EncMode()

func Marshal(state *GameState) ([]byte, error) {
	return encMode.Marshal(state)
}

func Unmarshal(data []byte) (*GameState, error) {
	state := GameState{}
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	clone := *s
	clone.Players = cloneSlice(s.Players)
	clone.Team = cloneSlice(s.Team)
	clone.QuestResults = cloneSlice(s.QuestResults)
	clone.TeamVotes = cloneMap(s.TeamVotes)
	clone.QuestVotes = cloneMap(s.QuestVotes)
	clone.Roles = cloneMap(s.Roles)
	return &clone
}

func cloneSlice[T any](values []T) []T {
	if values == nil {
		return nil
	}
	clone := make([]T, len(values))
	copy(clone, values)
	return clone
}

func cloneMap[K comparable, V any](values map[K]V) map[K]V {
	if values == nil {
		return nil
	}
	clone := make(map[K]V, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
