package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

// BatchProcessor embeds batches of chunks with retries.
type BatchProcessor struct {
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per batch
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the chunks and sets their embeddings and model. On failure
// no chunk is modified.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}

	embeddings, err := Retry(ctx, bp.maxRetries, bp.retryBaseDelay, func() ([][]float32, error) {
		vecs, err := bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ai.ErrEmbeddingFailed, len(texts), len(vecs))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty embedding for chunk %d", ai.ErrEmbeddingFailed, chunks[i].ChunkIndex)
			}
		}
		return vecs, nil
	})
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	model := bp.embedder.Model()
	for i, c := range chunks {
		c.Embedding, c.EmbeddingModel = embeddings[i], model
	}
	return nil
}
