package search

import (
	"cmp"
	"math"
	"slices"
)

// Cosine returns dot(a,b)/(|a||b|). It is 0 when either vector is empty or
// has zero magnitude, and when the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Candidate pairs a vector with the value it identifies. A nil Vector marks a
// degraded candidate.
type Candidate[T any] struct {
	Vector  []float32
	Payload T
}

// Scored is a ranked candidate.
type Scored[T any] struct {
	Payload    T
	Similarity float64
	Embedded   bool
}

// Rank orders candidates by cosine similarity to query and returns the top k.
func Rank[T any](query []float32, candidates []Candidate[T], k int) []Scored[T] {
	return RankBy(func(c Candidate[T]) float64 { return Cosine(query, c.Vector) }, candidates, k)
}

// RankBy orders candidates by similarity. Candidates with a vector precede
// those without, then similarity descends; ties keep input order. Candidates
// without a vector score 0 and similarity is not called for them.
func RankBy[T any](similarity func(c Candidate[T]) float64, candidates []Candidate[T], k int) []Scored[T] {
	if k <= 0 || len(candidates) == 0 {
		return []Scored[T]{}
	}
	scored := make([]Scored[T], len(candidates))
	for i, c := range candidates {
		scored[i] = Scored[T]{Payload: c.Payload}
		if len(c.Vector) > 0 {
			scored[i].Embedded = true
			scored[i].Similarity = similarity(c)
		}
	}
	slices.SortStableFunc(scored, func(a, b Scored[T]) int {
		if a.Embedded != b.Embedded {
			if a.Embedded {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
