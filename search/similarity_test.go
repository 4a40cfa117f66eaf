package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, []float32{1}, 0},
		{"length mismatch", []float32{1, 0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRank(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate[string]{
		{Vector: nil, Payload: "degraded-a"},
		{Vector: []float32{0, 1}, Payload: "orthogonal"},
		{Vector: []float32{1, 0}, Payload: "exact"},
		{Vector: []float32{1, 1}, Payload: "diagonal"},
		{Vector: nil, Payload: "degraded-b"},
		{Vector: []float32{2, 0}, Payload: "exact-scaled"},
	}

	t.Run("order", func(t *testing.T) {
		got := Rank(query, candidates, 10)
		payloads := make([]string, len(got))
		for i, s := range got {
			payloads[i] = s.Payload
		}
		assert.Equal(t, []string{"exact", "exact-scaled", "diagonal", "orthogonal", "degraded-a", "degraded-b"}, payloads)
		assert.False(t, got[4].Embedded)
		assert.Zero(t, got[4].Similarity)
		assert.InDelta(t, 1.0, got[1].Similarity, 1e-9)
	})

	t.Run("top k", func(t *testing.T) {
		got := Rank(query, candidates, 2)
		assert.Len(t, got, 2)
		assert.Equal(t, "exact", got[0].Payload)
	})

	t.Run("zero k", func(t *testing.T) {
		assert.Empty(t, Rank(query, candidates, 0))
	})

	t.Run("no candidates", func(t *testing.T) {
		assert.Empty(t, Rank[string](query, nil, 3))
	})

	t.Run("degraded never ranks above embedded", func(t *testing.T) {
		// Negative similarity still ranks above a degraded chunk.
		got := Rank([]float32{1, 0}, []Candidate[int]{{Payload: 1}, {Vector: []float32{-1, 0}, Payload: 2}}, 2)
		assert.Equal(t, 2, got[0].Payload)
	})
}
