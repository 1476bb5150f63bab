package game

import "fmt"

type Role string

const (
	RoleMerlin   Role = "MERLIN"
	RolePercival Role = "PERCIVAL"
	RoleLoyal    Role = "LOYAL"
	RoleAssassin Role = "ASSASSIN"
	RoleMorgana  Role = "MORGANA"
	RoleMordred  Role = "MORDRED"
	RoleOberon   Role = "OBERON"
	RoleMinion   Role = "MINION"
)

type Team string

const (
	TeamNone Team = ""
	TeamGood Team = "GOOD"
	TeamEvil Team = "EVIL"
)

// Team reports the alignment of the role.
func (r Role) Team() Team {
	switch r {
	case RoleMerlin, RolePercival, RoleLoyal:
		return TeamGood
	case RoleAssassin, RoleMorgana, RoleMordred, RoleOberon, RoleMinion:
		return TeamEvil
	}
	return TeamNone
}

func (r Role) IsGood() bool {
	return r.Team() == TeamGood
}

func (r Role) Title() string {
	switch r {
	case RoleMerlin:
		return "Merlin"
	case RolePercival:
		return "Percival"
	case RoleLoyal:
		return "Loyal Servant of Arthur"
	case RoleAssassin:
		return "Assassin"
	case RoleMorgana:
		return "Morgana"
	case RoleMordred:
		return "Mordred"
	case RoleOberon:
		return "Oberon"
	case RoleMinion:
		return "Minion of Mordred"
	}
	return string(r)
}

const (
	MIN_PLAYERS = 5
	MAX_PLAYERS = 10
	NUM_QUESTS  = 5

	// Rejected proposals in a single round before evil wins outright.
	MAX_VOTE_TRACK = 5
	// Quests either side needs to win.
	QUESTS_TO_WIN = 3
)

type distribution struct {
	Good int
	Evil int
}

var distributions = map[int]distribution{
	5:  {3, 2},
	6:  {4, 2},
	7:  {4, 3},
	8:  {5, 3},
	9:  {6, 3},
	10: {6, 4},
}

var questSizes = map[int][NUM_QUESTS]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// Distribution returns the number of good and evil seats for a game of the
// given size.
func Distribution(numPlayers int) (good int, evil int, err error) {
	dist, ok := distributions[numPlayers]
	if !ok {
		return 0, 0, fmt.Errorf("no role distribution for %d players", numPlayers)
	}
	return dist.Good, dist.Evil, nil
}

// QuestSize returns how many players must go on the quest for the given round
// (1-based).
func QuestSize(numPlayers int, round int) (int, error) {
	sizes, ok := questSizes[numPlayers]
	if !ok {
		return 0, fmt.Errorf("no quest sizes for %d players", numPlayers)
	}
	if round < 1 || round > NUM_QUESTS {
		return 0, fmt.Errorf("round %d out of range", round)
	}
	return sizes[round-1], nil
}

// RequiredFails is the number of fail cards that sink a quest. The fourth
// quest of a game with seven or more players needs two.
func RequiredFails(numPlayers int, round int) int {
	if numPlayers >= 7 && round == 4 {
		return 2
	}
	return 1
}
