package plottwist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContribution(t *testing.T) {
	t.Run("same point scores 100", func(t *testing.T) {
		require.Equal(t, 100, Contribution(Point{0.5, 0.5}, Point{0.5, 0.5}))
	})

	t.Run("opposite corners score 0", func(t *testing.T) {
		require.Equal(t, 0, Contribution(Point{1, 1}, Point{0, 0}))
		require.Equal(t, 0, Contribution(Point{0, 1}, Point{1, 0}))
	})

	t.Run("rounds to nearest point", func(t *testing.T) {
		// 0.5 / sqrt(2) = 0.35355 -> 100 - 35.355 = 64.64
		require.Equal(t, 65, Contribution(Point{0.5, 0}, Point{0, 0}))
	})
}

func TestScore(t *testing.T) {
	m := Matrix{
		"alice": {
			"alice": {0.5, 0.5},
			"bob":   {0, 0},
		},
		"bob": {
			"bob":   {1, 1},
			"alice": {0.5, 0.5},
		},
	}

	scores := Score(m)

	assert.Equal(t, 100, scores["alice"])
	assert.Equal(t, 0, scores["bob"])
}

func TestScore_MissingPlacementsCountZero(t *testing.T) {
	m := Matrix{
		// alice never placed herself, so guesses about her score nothing
		"alice": {"bob": {0.2, 0.2}},
		"bob":   {"alice": {0.3, 0.3}},
		"carol": {},
	}

	var scores map[string]int
	require.NotPanics(t, func() {
		scores = Score(m)
	})

	assert.Equal(t, map[string]int{"alice": 0, "bob": 0, "carol": 0}, scores)
}

func TestScore_SumsAcrossRaters(t *testing.T) {
	m := Matrix{
		"alice": {"alice": {0.5, 0.5}},
		"bob":   {"alice": {0.5, 0.5}},
		"carol": {"alice": {1, 1}},
		"dave":  {"alice": {0.5, 0.5}},
	}

	// bob and dave are exact, carol is half a diagonal away (50)
	require.Equal(t, 250, Score(m)["alice"])
}

func TestScore_OrderIndependent(t *testing.T) {
	base := Matrix{
		"a": {"a": {0.1, 0.9}, "b": {0.4, 0.4}, "c": {0.7, 0.2}},
		"b": {"b": {0.3, 0.3}, "a": {0.2, 0.8}, "c": {0.9, 0.1}},
		"c": {"c": {0.8, 0.2}, "a": {0.6, 0.6}, "b": {0.35, 0.3}},
	}
	want := Score(base)

	// Rebuild the matrix in a different insertion order; map iteration
	// order differs between runs anyway, so repeat a few times.
	for i := 0; i < 20; i++ {
		reordered := Matrix{}
		for _, rater := range []string{"c", "a", "b"} {
			reordered[rater] = map[string]Point{}
			for _, subject := range []string{"b", "c", "a"} {
				if p, ok := base.Lookup(rater, subject); ok {
					reordered[rater][subject] = p
				}
			}
		}
		require.Equal(t, want, Score(reordered))
	}
}

func TestRank(t *testing.T) {
	scores := map[string]int{"a": 80, "b": 120, "c": 80, "d": 10}
	names := map[string]string{"a": "Alice", "b": "Bob", "c": "Carol", "d": "Dave"}

	got := Rank(scores, names)

	require.Len(t, got, 4)
	assert.Equal(t, Standing{PlayerID: "b", Name: "Bob", Score: 120, Rank: 1}, got[0])
	assert.Equal(t, Standing{PlayerID: "a", Name: "Alice", Score: 80, Rank: 2}, got[1])
	assert.Equal(t, Standing{PlayerID: "c", Name: "Carol", Score: 80, Rank: 2}, got[2])
	assert.Equal(t, Standing{PlayerID: "d", Name: "Dave", Score: 10, Rank: 4}, got[3])
}
