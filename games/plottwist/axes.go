/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import (
	"math/rand"
	"slices"
)

// Axis is a labelled line on the board, running from Start to End.
type Axis struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AxisPair is the pair of axes a game is played on.
type AxisPair struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

// DefaultAxes is the catalog new rooms draw their axes from.
var DefaultAxes = []Axis{
	{Start: "Introvert", End: "Extrovert"},
	{Start: "Chaotic", End: "Orderly"},
	{Start: "Night Owl", End: "Early Bird"},
	{Start: "Cautious", End: "Reckless"},
	{Start: "Homebody", End: "Adventurer"},
	{Start: "Planner", End: "Improviser"},
	{Start: "Serious", End: "Silly"},
	{Start: "Thinker", End: "Doer"},
	{Start: "Minimalist", End: "Collector"},
	{Start: "Cat Person", End: "Dog Person"},
	{Start: "Listener", End: "Talker"},
	{Start: "Skeptic", End: "Believer"},
	{Start: "Head", End: "Heart"},
	{Start: "Tea", End: "Coffee"},
	{Start: "Sunrise", End: "Sunset"},
	{Start: "Competitive", End: "Easygoing"},
}

// SelectAxes picks two distinct axes from catalog. With a single entry both
// axes are that entry; an empty catalog yields the zero pair.
func SelectAxes(catalog []Axis, rng *rand.Rand) AxisPair {
	switch len(catalog) {
	case 0:
		return AxisPair{}
	case 1:
		return AxisPair{X: catalog[0], Y: catalog[0]}
	}

	shuffled := slices.Clone(catalog)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return AxisPair{X: shuffled[0], Y: shuffled[1]}
}
