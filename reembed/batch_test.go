package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks() []*core.Chunk {
	return []*core.Chunk{
		{ChunkIndex: 0, Text: "apples"},
		{ChunkIndex: 1, Text: "bananas", ImageContext: "\n[Image on page 2: fruit]"},
	}
}

func TestBatchProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("sets embeddings", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		var seen []string
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			seen = texts
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = mock.GenerateDeterministicVector(text, 8)
			}
			return out, nil
		}

		chunks := testChunks()
		require.NoError(t, NewBatchProcessor(embedder, 3, time.Millisecond).Process(ctx, chunks))
		assert.Equal(t, []string{"apples", "bananas\n[Image on page 2: fruit]"}, seen)
		for _, c := range chunks {
			assert.Len(t, c.Embedding, 8)
			assert.Equal(t, "mock-embed", c.EmbeddingModel)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		calls := 0
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("unavailable")
			}
			return [][]float32{{1}, {2}}, nil
		}
		chunks := testChunks()
		require.NoError(t, NewBatchProcessor(embedder, 3, time.Millisecond).Process(ctx, chunks))
		assert.Equal(t, 2, calls)
		assert.Equal(t, []float32{2}, chunks[1].Embedding)
	})

	t.Run("leaves chunks unchanged on failure", func(t *testing.T) {
		for name, fn := range map[string]func(context.Context, []string) ([][]float32, error){
			"error":        func(context.Context, []string) ([][]float32, error) { return nil, errors.New("down") },
			"short":        func(context.Context, []string) ([][]float32, error) { return [][]float32{{1}}, nil },
			"empty vector": func(context.Context, []string) ([][]float32, error) { return [][]float32{{1}, {}}, nil },
		} {
			t.Run(name, func(t *testing.T) {
				embedder := mock.NewMockEmbedder()
				embedder.EmbedTextsFunc = fn
				chunks := testChunks()
				err := NewBatchProcessor(embedder, 2, time.Millisecond).Process(ctx, chunks)
				require.Error(t, err)
				for _, c := range chunks {
					assert.Nil(t, c.Embedding)
					assert.Empty(t, c.EmbeddingModel)
				}
				assert.Equal(t, 2, embedder.CallCount())
			})
		}
	})

	t.Run("mismatch is an embedding failure", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) { return nil, nil }
		err := NewBatchProcessor(embedder, 1, time.Millisecond).Process(ctx, testChunks())
		assert.ErrorIs(t, err, ai.ErrEmbeddingFailed)
	})

	t.Run("empty batch", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		require.NoError(t, NewBatchProcessor(embedder, 1, time.Millisecond).Process(ctx, nil))
		assert.Zero(t, embedder.CallCount())
	})
}
