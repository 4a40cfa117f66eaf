package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/local"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteSuccess(t *testing.T) {
	remote := mock.NewMockEmbedder()
	e := New(remote)

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, mock.DefaultDimension)
	assert.Equal(t, int64(0), e.Fallbacks())
	assert.Equal(t, "mock-embed", e.Model())
}

func TestFallsBackOnError(t *testing.T) {
	remote := mock.NewMockEmbedder()
	remote.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("503")
	}
	remote.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("timeout")
	}
	e := New(remote)

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, local.Embed("hello"), vec)

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{local.Embed("a"), local.Embed("b")}, vecs)
	assert.Equal(t, int64(3), e.Fallbacks())
}

func TestFallsBackOnEmptyVector(t *testing.T) {
	remote := mock.NewMockEmbedder()
	remote.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{}, nil
	}
	remote.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil // wrong count
	}
	e := New(remote)

	vec, err := e.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, local.Dimension)

	vecs, err := e.EmbedTexts(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNilRemote(t *testing.T) {
	e := New(nil)
	assert.Equal(t, local.ModelName, e.Model())
	vec, err := e.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, local.Embed("x"), vec)
}

func TestContextCancelled(t *testing.T) {
	remote := mock.NewMockEmbedder()
	remote.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(remote).EmbedText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCooldown(t *testing.T) {
	remote := mock.NewMockEmbedder()
	remote.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("down")
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(remote, WithCooldown(time.Minute))
	e.now = func() time.Time { return now }

	_, _ = e.EmbedText(context.Background(), "a")
	_, _ = e.EmbedText(context.Background(), "b")
	assert.Equal(t, 1, remote.CallCount(), "remote skipped during cooldown")

	now = now.Add(2 * time.Minute)
	_, _ = e.EmbedText(context.Background(), "c")
	assert.Equal(t, 2, remote.CallCount())
	assert.Equal(t, int64(3), e.Fallbacks())
}

func TestEmbedTextTraced(t *testing.T) {
	ctx := context.Background()
	remote := mock.NewMockEmbedder()
	remote.Dim = local.Dimension
	up := true
	remote.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if !up {
			return nil, errors.New("connection refused")
		}
		return mock.GenerateDeterministicVector(text, local.Dimension), nil
	}
	e := New(remote)

	vec, model, err := e.EmbedTextTraced(ctx, "apples")
	require.NoError(t, err)
	assert.Equal(t, "mock-embed", model)
	assert.Len(t, vec, local.Dimension)

	up = false
	vec, model, err = e.EmbedTextTraced(ctx, "apples")
	require.NoError(t, err)
	assert.Equal(t, local.ModelName, model, "same dimension, still attributed to the local model")
	assert.Equal(t, local.Embed("apples"), vec)
	assert.Equal(t, "mock-embed", e.Model())

	t.Run("EmbedWithModel", func(t *testing.T) {
		_, model, err := ai.EmbedWithModel(ctx, e, "pears")
		require.NoError(t, err)
		assert.Equal(t, local.ModelName, model)

		_, model, err = ai.EmbedWithModel(ctx, mock.NewMockEmbedder(), "pears")
		require.NoError(t, err)
		assert.Equal(t, "mock-embed", model)
	})
}
