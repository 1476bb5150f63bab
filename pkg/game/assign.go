package game

// Evil roles beyond the assassin, drawn without replacement.
var specialEvil = []Role{
	RoleMorgana,
	RoleMordred,
	RoleOberon,
	RoleMinion,
}

// DealRoles builds the role pool for a game of numPlayers in a random order.
func (e *Engine) DealRoles(numPlayers int) ([]Role, error) {
	good, evil, err := Distribution(numPlayers)
	if err != nil {
		return nil, newError(ErrorInsufficientPlayers, "%s", err.Error())
	}

	pool := make([]Role, 0, numPlayers)

	pool = append(pool, RoleMerlin, RolePercival)
	for i := 2; i < good; i++ {
		pool = append(pool, RoleLoyal)
	}

	candidates := make([]Role, len(specialEvil))
	copy(candidates, specialEvil)
	e.rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	pool = append(pool, RoleAssassin)
	for i := 1; i < evil; i++ {
		if i-1 < len(candidates) {
			pool = append(pool, candidates[i-1])
			continue
		}
		pool = append(pool, RoleMinion)
	}

	e.rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	return pool, nil
}

func (e *Engine) assignRoles(players []PlayerID) (map[PlayerID]Role, error) {
	pool, err := e.DealRoles(len(players))
	if err != nil {
		return nil, err
	}

	roles := make(map[PlayerID]Role, len(players))
	for i, player := range players {
		roles[player] = pool[i]
	}

	return roles, nil
}
