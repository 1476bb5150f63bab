package game

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	ErrorPermissionDenied ErrorKind = iota + 1
	ErrorWrongPhase
	ErrorNotInGame
	ErrorNotOnTeam
	ErrorNotLeader
	ErrorInvalidTeamSize
	ErrorInvalidSeat
	ErrorInsufficientPlayers
	ErrorTooManyPlayers
	ErrorPhaseAlreadyResolved
	ErrorConflict
	ErrorNotFound
	ErrorRoomFull
	ErrorInvalidVote
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "PermissionDenied"
	case ErrorWrongPhase:
		return "WrongPhase"
	case ErrorNotInGame:
		return "NotInGame"
	case ErrorNotOnTeam:
		return "NotOnTeam"
	case ErrorNotLeader:
		return "NotLeader"
	case ErrorInvalidTeamSize:
		return "InvalidTeamSize"
	case ErrorInvalidSeat:
		return "InvalidSeat"
	case ErrorInsufficientPlayers:
		return "InsufficientPlayers"
	case ErrorTooManyPlayers:
		return "TooManyPlayers"
	case ErrorPhaseAlreadyResolved:
		return "PhaseAlreadyResolved"
	case ErrorConflict:
		return "Conflict"
	case ErrorNotFound:
		return "NotFound"
	case ErrorRoomFull:
		return "RoomFull"
	case ErrorInvalidVote:
		return "InvalidVote"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is returned by every engine operation that rejects an action. None of
// these are fatal; the message is meant to be shown to the player.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same kind so that sentinel values work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return newError(kind, format, args...)
}

// KindOf returns the kind of a game error anywhere in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Kind
	}
	return 0
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
