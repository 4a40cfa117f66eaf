package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDefaults(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, a, DefaultDimension)
	assert.Equal(t, a, b)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)

	vecs, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, "mock-embed", m.Model())
}

func TestMockEmbedderOverrides(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("offline")
	}
	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.Error(t, err)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	_, err = m.EmbedTexts(context.Background(), []string{"x"})
	assert.NoError(t, err)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	desc, err := p.PageDescriber().DescribePage(context.Background(), 4, []byte{1}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "figure on page 4", desc)
	assert.Equal(t, []int{4}, p.GetMockDescriber().Pages())

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())

	bare := NewMockProviderWithServices(NewMockEmbedder(), nil)
	assert.Nil(t, bare.PageDescriber())
}
