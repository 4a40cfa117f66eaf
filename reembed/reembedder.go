// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/local"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Concurrency is the number of documents processed at once
	Concurrency int

	// All reembeds every chunk, e.g. after switching embedding models.
	// Otherwise only degraded and local fallback chunks are repaired.
	All bool

	// SkipLocal leaves local fallback embeddings alone and repairs only
	// degraded chunks.
	SkipLocal bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      16,
		ReportInterval: 16,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Concurrency:    2,
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	Documents int // Documents with at least one chunk to repair
	Chunks    int // Chunks selected for repair
	Repaired  int // Chunks that received a new embedding
	Failed    int // Chunks left as they were after retries ran out
	Elapsed   time.Duration
}

// Reembedder repairs chunk embeddings across every indexed document.
type Reembedder struct {
	store     storage.DocumentStore
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	locks     *storage.DocumentLocks
	logger    *slog.Logger
	processor *BatchProcessor
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithLocks shares the per-document write locks of an ingestion pipeline,
// so a repair never races an ingestion of the same document.
func WithLocks(locks *storage.DocumentLocks) Option {
	return func(r *Reembedder) {
		if locks != nil {
			r.locks = locks
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReembedder creates a new reembedder.
// embedder should be the remote embedder itself, not a fallback wrapper.
// progress: where to write progress output (typically os.Stderr), may be nil
func NewReembedder(store storage.DocumentStore, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.Concurrency < 1 {
		config.Concurrency = defaults.Concurrency
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		store:     store,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		locks:     storage.NewDocumentLocks(),
		logger:    slog.Default().With("component", "reembed"),
		processor: NewBatchProcessor(embedder, config.MaxRetries, config.RetryDelay),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NeedsRepair reports whether chunk would be reembedded under the config.
func (r *Reembedder) NeedsRepair(chunk *core.Chunk) bool {
	switch {
	case r.config.All, chunk.Degraded():
		return true
	case r.config.SkipLocal || r.embedder.Model() == local.ModelName:
		return false
	default:
		return chunk.EmbeddingModel == local.ModelName
	}
}

// Run repairs every document that has chunks needing repair. A failing
// document does not stop the others; their errors are joined.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	plan, err := r.plan(ctx)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Documents: len(plan)}
	for _, n := range plan {
		summary.Chunks += n
	}
	if summary.Chunks == 0 {
		fmt.Fprintf(r.progress, "No chunks need reembedding\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Reembedding %d chunks in %d documents with %s (batch size: %d)\n",
		summary.Chunks, summary.Documents, r.embedder.Model(), r.config.BatchSize)
	tracker := NewProgressTracker(r.progress, summary.Chunks, r.config.ReportInterval)
	tracker.Start()

	pool, err := ants.NewPool(r.config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(repaired, failed int, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Repaired += repaired
		summary.Failed += failed
		if err != nil {
			errs = append(errs, err)
		}
	}

	for id := range plan {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			repaired, failed, err := r.repairDocument(ctx, id, tracker)
			if err != nil {
				err = fmt.Errorf("document %s: %w", id, err)
			}
			record(repaired, failed, err)
		})
		if err != nil {
			wg.Done()
			record(0, 0, fmt.Errorf("document %s: %w", id, err))
		}
	}
	wg.Wait()

	tracker.Finish()
	summary.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Repaired %d of %d chunks in %v\n",
		summary.Repaired, summary.Chunks, summary.Elapsed.Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, errors.Join(errs...)
}

// plan counts the chunks needing repair per document.
func (r *Reembedder) plan(ctx context.Context) (map[string]int, error) {
	metas, err := r.store.ListMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	plan := make(map[string]int)
	for _, meta := range metas {
		chunks, err := r.store.GetChunksForDocument(ctx, meta.ID)
		if err != nil {
			return nil, fmt.Errorf("reading chunks of %s: %w", meta.ID, err)
		}
		n := 0
		for _, c := range chunks {
			if r.NeedsRepair(c) {
				n++
			}
		}
		if n > 0 {
			plan[meta.ID] = n
		}
	}
	return plan, nil
}

// repairDocument reembeds the chunks of id that need it and swaps the chunk
// set in one write. Batches that still fail after retries are left as they
// were and counted as failed.
func (r *Reembedder) repairDocument(ctx context.Context, id string, tracker *ProgressTracker) (repaired, failed int, err error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	meta, err := r.store.GetMetadata(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Debug("document deleted before repair", "document", id)
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	chunks, err := r.store.GetChunksForDocument(ctx, id)
	if err != nil {
		return 0, 0, err
	}

	var targets []*core.Chunk
	for _, c := range chunks {
		if r.NeedsRepair(c) {
			targets = append(targets, c)
		}
	}

	for start := 0; start < len(targets); start += r.config.BatchSize {
		batch := targets[start:min(start+r.config.BatchSize, len(targets))]
		if err := r.processor.Process(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return 0, 0, ctx.Err()
			}
			r.logger.Warn("batch still failing, leaving chunks unchanged",
				"document", id, "chunks", len(batch), "err", err)
			failed += len(batch)
			continue
		}
		repaired += len(batch)
		tracker.Add(len(batch))
	}

	if repaired == 0 {
		return 0, failed, nil
	}
	if err := r.store.ReplaceChunks(ctx, id, chunks); err != nil {
		return 0, failed + repaired, fmt.Errorf("replacing chunks: %w", err)
	}

	if model := core.DocumentEmbeddingModel(chunks, meta.EmbeddingModel); model != meta.EmbeddingModel {
		meta.EmbeddingModel = model
		if err := r.store.PutMetadata(ctx, meta); err != nil {
			return repaired, failed, fmt.Errorf("updating metadata: %w", err)
		}
	}
	r.logger.Info("repaired document", "document", id, "repaired", repaired, "failed", failed)
	return repaired, failed, nil
}
