package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestEmbedDeterministic(t *testing.T) {
	text := "The quarterly report shows revenue growth on page two."
	a := Embed(text)
	b := Embed(text)
	require.Len(t, a, Dimension)
	assert.Equal(t, a, b, "identical input yields bit-identical vectors")
}

func TestEmbedUnitNorm(t *testing.T) {
	for _, text := range []string{"a", "hello world", "Ünïcödé wörds 42", "repeat repeat repeat"} {
		t.Run(text, func(t *testing.T) {
			assert.InDelta(t, 1.0, norm(Embed(text)), 1e-5)
		})
	}
}

func TestEmbedEmpty(t *testing.T) {
	v := Embed("")
	require.Len(t, v, Dimension)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbedPunctuationOnly(t *testing.T) {
	// No words, but the character slot is non-zero.
	v := Embed("?!")
	assert.InDelta(t, 1.0, norm(v), 1e-5)
	assert.InDelta(t, 1.0, float64(v[charSlot]), 1e-5)
}

func TestEmbedNonNegative(t *testing.T) {
	for _, x := range Embed("mixed Case words, with punctuation; and numbers 123") {
		assert.GreaterOrEqual(t, x, float32(0))
	}
}

func TestEmbedSimilarity(t *testing.T) {
	base := Embed("solar panels convert sunlight into electricity")
	near := Embed("solar panels convert sunlight into power")
	far := Embed("the recipe needs flour sugar and eggs")
	assert.Greater(t, dot(base, near), dot(base, far))
}

func TestBuckets(t *testing.T) {
	for _, w := range Words("alpha beta gamma delta epsilon zeta eta theta") {
		b := bucket(w)
		o := offsetBucket(w)
		assert.GreaterOrEqual(t, b, reservedSize)
		assert.Less(t, b, Dimension)
		assert.GreaterOrEqual(t, o, reservedSize)
		assert.Less(t, o, Dimension)
		assert.NotEqual(t, b, o)
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"it", "s", "v1", "2", "naïve"}, Words("It's v1.2 -- Naïve!"))
	assert.Empty(t, Words("  ...  "))
}

func TestEmbedderInterface(t *testing.T) {
	e := New()
	assert.Equal(t, ModelName, e.Model())

	v, err := e.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, Embed("x"), v)

	vs, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{Embed("a"), Embed("b")}, vs)
}
