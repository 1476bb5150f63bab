// https://github.com/kortemy/elo-go
//MIT License

//Copyright (c) 2017 Dusan Lilic

//Permission is hereby granted, free of charge, to any person obtaining a copy
//of this software and associated documentation files (the "Software"), to deal
//in the Software without restriction, including without limitation the rights
//to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//copies of the Software, and to permit persons to whom the Software is
//furnished to do so, subject to the following conditions:

//The above copyright notice and this permission notice shall be included in all
//copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
package mmr

import (
	"fmt"
	"math"

	"github.com/cfoust/avalon/pkg/game"
)

const (
	// K is the default K-Factor
	K = 32
	// D is the default deviation
	D = 400
	// Everyone starts here
	BASE_RATING = 1000
)

// Elo calculates Elo rating changes based on the configured factors.
type Elo struct {
	K int
	D int
}

// Change is how one game moved a player's rating.
type Change struct {
	Delta  int
	Rating int
}

func (c Change) String() string {
	if c.Delta > 0 {
		return fmt.Sprintf("%d (+%d)", c.Rating, c.Delta)
	}
	return fmt.Sprintf("%d (%d)", c.Rating, c.Delta)
}

// NewElo instantiates the Elo object with default factors.
// Default K-Factor is 32
// Default deviation is 400
func NewElo() *Elo {
	return &Elo{K, D}
}

// ExpectedScore gives the expected chance that the first side wins
func (e *Elo) ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/float64(e.D)))
}

// RatingDelta gives the ratings change for the first side for the given score
func (e *Elo) RatingDelta(ratingA, ratingB int, score float64) int {
	return int(float64(e.K) * (score - e.ExpectedScore(ratingA, ratingB)))
}

// Ratings maps players to their current rating. Missing players are at
// BASE_RATING.
type Ratings map[game.PlayerID]int

func (r Ratings) Of(player game.PlayerID) int {
	rating, ok := r[player]
	if !ok {
		return BASE_RATING
	}
	return rating
}

func (r Ratings) average(players []game.PlayerID) int {
	if len(players) == 0 {
		return BASE_RATING
	}

	total := 0
	for _, player := range players {
		total += r.Of(player)
	}
	return total / len(players)
}

// Apply rates a finished game as one match between the good and the evil
// side, each fielding its average rating. Every member of a side moves by the
// same amount.
func (e *Elo) Apply(ratings Ratings, outcome *game.Outcome) map[game.PlayerID]Change {
	var good, evil []game.PlayerID
	for _, player := range outcome.Players {
		if outcome.Roles[player].IsGood() {
			good = append(good, player)
		} else {
			evil = append(evil, player)
		}
	}

	score := 0.0
	if outcome.Winner == game.TeamGood {
		score = 1
	}

	delta := e.RatingDelta(ratings.average(good), ratings.average(evil), score)

	changes := make(map[game.PlayerID]Change, len(outcome.Players))
	for _, player := range good {
		ratings[player] = ratings.Of(player) + delta
		changes[player] = Change{Delta: delta, Rating: ratings[player]}
	}
	for _, player := range evil {
		ratings[player] = ratings.Of(player) - delta
		changes[player] = Change{Delta: -delta, Rating: ratings[player]}
	}
	return changes
}

// Replay rates the outcomes in the order given.
func (e *Elo) Replay(outcomes []*game.Outcome) Ratings {
	ratings := make(Ratings)
	for _, outcome := range outcomes {
		e.Apply(ratings, outcome)
	}
	return ratings
}
