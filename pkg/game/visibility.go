package game

import (
	"fmt"
	"sort"
	"strings"
)

// View is what one player knows about the hidden roles at the table.
type View struct {
	Role Role
	Seat int
	// Seats the player can see, ascending.
	Seen    []int
	Caption string
}

// The evil roles that recognize each other at the start of the game.
func knowsAllies(role Role) bool {
	switch role {
	case RoleMorgana, RoleAssassin, RoleMordred, RoleMinion:
		return true
	}
	return false
}

func seesRole(observer Role, target Role) bool {
	switch observer {
	case RoleMerlin:
		switch target {
		case RoleMorgana, RoleAssassin, RoleMinion, RoleOberon:
			return true
		}
	case RolePercival:
		return target == RoleMerlin || target == RoleMorgana
	case RoleMorgana, RoleAssassin, RoleMordred, RoleMinion:
		return knowsAllies(target)
	}
	return false
}

// Visibility computes the observer's view from the dealt roles alone.
func Visibility(state *GameState, observer PlayerID) (*View, error) {
	if state.Phase == PhaseWaiting || len(state.Roles) == 0 {
		return nil, newError(ErrorWrongPhase, "roles have not been dealt yet")
	}

	seat := state.Seat(observer)
	if seat == 0 {
		return nil, newError(ErrorNotInGame, "you are not in this game")
	}

	role := state.RoleOf(observer)
	seen := make([]int, 0)
	for i, player := range state.Players {
		if player == observer {
			continue
		}
		if seesRole(role, state.RoleOf(player)) {
			seen = append(seen, i+1)
		}
	}
	sort.Ints(seen)

	view := View{
		Role: role,
		Seat: seat,
		Seen: seen,
	}
	view.Caption = caption(role)

	return &view, nil
}

func caption(role Role) string {
	switch role {
	case RoleMerlin:
		return "Evil you can see (Mordred is hidden from you)"
	case RolePercival:
		return "Merlin candidates (one may be Morgana)"
	case RoleMorgana, RoleAssassin, RoleMordred, RoleMinion:
		return "Your evil allies (Oberon is unknown to you)"
	case RoleOberon:
		return "You do not know the other evil players, and they do not know you"
	}
	return "You know no one"
}

func FormatSeats(seats []int) string {
	if len(seats) == 0 {
		return "none"
	}

	names := make([]string, 0, len(seats))
	for _, seat := range seats {
		names = append(names, fmt.Sprintf("[Player %d]", seat))
	}
	return strings.Join(names, " ")
}

// String renders the view for display. Seat numbers only; identifiers never
// appear.
func (v *View) String() string {
	lines := []string{
		fmt.Sprintf("You are player %d: %s (%s)", v.Seat, v.Role.Title(), v.Role.Team()),
	}

	switch v.Role {
	case RoleOberon, RoleLoyal:
		lines = append(lines, v.Caption)
	default:
		lines = append(lines, fmt.Sprintf("%s: %s", v.Caption, FormatSeats(v.Seen)))
	}

	return strings.Join(lines, "\n")
}
