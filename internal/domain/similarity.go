package domain

import (
	"cmp"
	"math"
	"slices"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Zero vectors and vectors of different length score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopMatches sorts matches by descending score, breaking ties by id, and
// keeps at most k of them.
func TopMatches(matches []Match, k int) []Match {
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
