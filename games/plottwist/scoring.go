/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import (
	"math"
	"sort"
)

// maxDistance is the diagonal of the unit square.
var maxDistance = math.Sqrt2

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Contribution scores how close guess is to truth, from 0 to 100.
func Contribution(guess, truth Point) int {
	score := math.Round(100 - (Distance(guess, truth)/maxDistance)*100)
	if score < 0 {
		return 0
	}
	return int(score)
}

// Score totals, for every subject, the contributions of every other rater's
// placement of that subject against the subject's self-placement. Pairs with
// either placement missing add nothing. Everyone in the matrix starts at 0.
func Score(m Matrix) map[string]int {
	scores := make(map[string]int, len(m))
	for rater, row := range m {
		scores[rater] = 0
		for subject := range row {
			scores[subject] = 0
		}
	}

	for rater, row := range m {
		for subject, guess := range row {
			if subject == rater {
				continue
			}
			truth, ok := m.Lookup(subject, subject)
			if !ok {
				continue
			}
			scores[subject] += Contribution(guess, truth)
		}
	}

	return scores
}

// Standing is one row of the final leaderboard.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Rank orders scores from best to worst, breaking ties by name. Tied scores
// share a rank. names maps player ids to display names.
func Rank(scores map[string]int, names map[string]string) []Standing {
	standings := make([]Standing, 0, len(scores))
	for id, score := range scores {
		standings = append(standings, Standing{
			PlayerID: id,
			Name:     names[id],
			Score:    score,
		})
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score == standings[j].Score {
			if standings[i].Name == standings[j].Name {
				return standings[i].PlayerID < standings[j].PlayerID
			}
			return standings[i].Name < standings[j].Name
		}
		return standings[i].Score > standings[j].Score
	})

	for i := range standings {
		if i > 0 && standings[i].Score == standings[i-1].Score {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}

	return standings
}
