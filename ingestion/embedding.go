package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"golang.org/x/sync/errgroup"
)

// embeddingProcessor embeds the chunks of one run, one at a time. A chunk
// whose embedding fails is left without one.
type embeddingProcessor struct {
	embedder  ai.Embedder
	heartbeat time.Duration
	logger    *slog.Logger

	done atomic.Int64
}

func newEmbeddingProcessor(embedder ai.Embedder, heartbeat time.Duration, logger *slog.Logger) *embeddingProcessor {
	return &embeddingProcessor{
		embedder:  embedder,
		heartbeat: heartbeat,
		logger:    logger.With("processor", "embeddings"),
	}
}

// process embeds every chunk in order and returns how many were left
// degraded. It only fails when ctx is done.
func (ep *embeddingProcessor) process(ctx context.Context, chunks []*core.Chunk, rep *reporter) (int, error) {
	if ep.heartbeat <= 0 {
		return ep.embedAll(ctx, chunks, rep)
	}

	// The heartbeat runs beside the embedding loop and stops with it.
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(hbCtx)

	var degraded int
	g.Go(func() error {
		defer stop()
		var err error
		degraded, err = ep.embedAll(gctx, chunks, rep)
		return err
	})
	g.Go(func() error {
		ep.beat(gctx, len(chunks), rep)
		return nil
	})
	err := g.Wait()
	return degraded, err
}

func (ep *embeddingProcessor) embedAll(ctx context.Context, chunks []*core.Chunk, rep *reporter) (int, error) {
	ep.done.Store(0)
	degraded := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return degraded, err
		}

		vec, model, err := ep.embed(ctx, chunk.EmbeddingText())
		switch {
		case err != nil && ctx.Err() != nil:
			return degraded, ctx.Err()
		case err != nil:
			ep.logger.Warn("chunk embedding failed, storing without embedding",
				"document", chunk.DocumentID, "chunk", chunk.ChunkIndex, "err", err)
			chunk.Embedding, chunk.EmbeddingModel = nil, ""
			degraded++
		case len(vec) == 0:
			ep.logger.Warn("empty chunk embedding, storing without embedding",
				"document", chunk.DocumentID, "chunk", chunk.ChunkIndex)
			chunk.Embedding, chunk.EmbeddingModel = nil, ""
			degraded++
		default:
			chunk.Embedding, chunk.EmbeddingModel = vec, model
		}

		ep.done.Store(int64(i + 1))
		rep.report(core.StateEmbedding, span(fractionChunked, fractionEmbedded, i+1, len(chunks)),
			fmt.Sprintf("embedded chunk %d/%d", i+1, len(chunks)))
	}
	return degraded, nil
}

// embed calls the embedder, turning a panic into an error. model names the
// model that produced vec.
func (ep *embeddingProcessor) embed(ctx context.Context, text string) (vec []float32, model string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: embedder panicked: %v", ai.ErrEmbeddingFailed, rec)
		}
	}()
	return ai.EmbedWithModel(ctx, ep.embedder, text)
}

// beat re-emits the embedding progress every heartbeat interval until ctx is done.
func (ep *embeddingProcessor) beat(ctx context.Context, total int, rep *reporter) {
	ticker := time.NewTicker(ep.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep.pulse(fmt.Sprintf("embedding chunk %d/%d", min(ep.done.Load()+1, int64(total)), total))
		}
	}
}

// imageContext renders the image descriptions of every page the chunk
// references as lines appended to the chunk text for embedding. It returns ""
// when there are none.
func imageContext(refs []int, pages map[int]*core.PageRecord) string {
	var b strings.Builder
	for _, n := range refs {
		p, ok := pages[n]
		if !ok {
			continue
		}
		for _, desc := range p.ImageDescriptions {
			fmt.Fprintf(&b, "\n[Image on page %d: %s]", n, desc)
		}
	}
	return b.String()
}
