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

// Package docrag indexes documents for retrieval and answers queries about
// them. A Library ties together the document store, the ingestion pipeline,
// the searcher and the tool registry through which agents query each
// indexed document.
package docrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/acquire"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/fallback"
	"github.com/poiesic/docrag/ai/local"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/extract"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/reembed"
	"github.com/poiesic/docrag/search"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/poiesic/docrag/tools"
)

// DefaultConcurrency is the number of documents IndexAll ingests at once.
const DefaultConcurrency = 2

// Option configures a Library.
type Option func(*libraryOptions)

type libraryOptions struct {
	store        storage.DocumentStore
	ownsStore    bool
	provider     ai.AIProvider
	ownsProvider bool
	registry     tools.Registry
	acquirer     ingestion.Acquirer
	extractor    extract.Extractor
	concurrency  int
	cooldown     time.Duration
	pipelineOpts []ingestion.Option
	searchOpts   []search.Option
	logger       *slog.Logger
}

// WithStore uses store instead of an in-memory badger store. The Library
// closes it on Close when owned is set.
func WithStore(store storage.DocumentStore, owned bool) Option {
	return func(o *libraryOptions) {
		o.store = store
		o.ownsStore = owned
	}
}

// WithProvider supplies the remote AI services. Without a provider every
// embedding is computed locally. The Library closes it on Close when owned
// is set.
func WithProvider(provider ai.AIProvider, owned bool) Option {
	return func(o *libraryOptions) {
		o.provider = provider
		o.ownsProvider = owned
	}
}

// WithRegistry sets where per-document tools are registered.
// Default is a tools.MemoryRegistry.
func WithRegistry(registry tools.Registry) Option {
	return func(o *libraryOptions) {
		o.registry = registry
	}
}

// WithAcquirer replaces the default acquire.Fetcher.
func WithAcquirer(acquirer ingestion.Acquirer) Option {
	return func(o *libraryOptions) {
		o.acquirer = acquirer
	}
}

// WithExtractor replaces the default extract.Auto extractor.
func WithExtractor(extractor extract.Extractor) Option {
	return func(o *libraryOptions) {
		o.extractor = extractor
	}
}

// WithConcurrency bounds the documents IndexAll ingests at once.
func WithConcurrency(n int) Option {
	return func(o *libraryOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithFallbackCooldown skips the remote embedder for d after it fails.
func WithFallbackCooldown(d time.Duration) Option {
	return func(o *libraryOptions) {
		o.cooldown = d
	}
}

// WithPipelineOptions passes options to the ingestion pipeline.
func WithPipelineOptions(opts ...ingestion.Option) Option {
	return func(o *libraryOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithSearchOptions passes options to the searcher.
func WithSearchOptions(opts ...search.Option) Option {
	return func(o *libraryOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *libraryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Library is the retrieval façade over indexed documents.
type Library struct {
	store        storage.DocumentStore
	ownsStore    bool
	provider     ai.AIProvider
	ownsProvider bool
	remote       ai.Embedder
	embedder     *fallback.Embedder
	pipeline     *ingestion.Pipeline
	searcher     *search.Searcher
	registry     tools.Registry
	locks        *storage.DocumentLocks
	concurrency  int
	logger       *slog.Logger
	closed       atomic.Bool
}

var _ tools.DocumentSearcher = (*Library)(nil)

// NewLibrary creates a Library. Without WithStore it keeps documents in an
// in-memory badger store.
func NewLibrary(opts ...Option) (*Library, error) {
	options := &libraryOptions{
		concurrency: DefaultConcurrency,
		logger:      slog.Default().With("component", "library"),
	}
	for _, opt := range opts {
		opt(options)
	}

	created := options.store == nil
	if created {
		store, err := badger.NewMemoryStore()
		if err != nil {
			return nil, err
		}
		options.store = store
		options.ownsStore = true
	}
	if options.registry == nil {
		options.registry = tools.NewMemoryRegistry()
	}
	if options.acquirer == nil {
		options.acquirer = acquire.NewFetcher()
	}
	if options.extractor == nil {
		options.extractor = extract.NewAuto()
	}

	var remote ai.Embedder
	var describer ai.PageDescriber
	if options.provider != nil {
		remote = options.provider.Embedder()
		describer = options.provider.PageDescriber()
	}
	embedder := fallback.New(remote, fallback.WithCooldown(options.cooldown))

	locks := storage.NewDocumentLocks()
	pipelineOpts := []ingestion.Option{ingestion.WithLocks(locks)}
	if describer != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithPageDescriber(describer))
	}
	pipeline, err := ingestion.NewPipeline(options.store, options.acquirer, options.extractor, embedder,
		append(pipelineOpts, options.pipelineOpts...)...)
	if err != nil {
		closeCreated(created, options.store)
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	searcher, err := search.NewSearcher(options.store, embedder, options.searchOpts...)
	if err != nil {
		closeCreated(created, options.store)
		return nil, fmt.Errorf("creating searcher: %w", err)
	}

	return &Library{
		store:        options.store,
		ownsStore:    options.ownsStore,
		provider:     options.provider,
		ownsProvider: options.ownsProvider,
		remote:       remote,
		embedder:     embedder,
		pipeline:     pipeline,
		searcher:     searcher,
		registry:     options.registry,
		locks:        locks,
		concurrency:  options.concurrency,
		logger:       options.logger,
	}, nil
}

func closeCreated(created bool, store storage.DocumentStore) {
	if created {
		store.Close()
	}
}

// Close releases the store and provider the Library owns.
func (l *Library) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.ownsProvider && l.provider != nil {
		if err := l.provider.Close(); err != nil {
			l.logger.Error("error closing AI provider", "err", err)
		}
	}
	if l.ownsStore {
		if err := l.store.Close(); err != nil {
			l.logger.Error("error closing document store", "err", err)
			return err
		}
	}
	return nil
}

// Store returns the document store.
func (l *Library) Store() storage.DocumentStore {
	return l.store
}

// Registry returns the tool registry.
func (l *Library) Registry() tools.Registry {
	return l.registry
}

// Fallbacks returns how many texts were embedded locally because the remote
// embedder failed or is not configured.
func (l *Library) Fallbacks() int64 {
	return l.embedder.Fallbacks()
}

// IndexOption configures one Index call.
type IndexOption func(*ingestion.Request)

// WithDocumentID overrides the id derived from the source name.
func WithDocumentID(id string) IndexOption {
	return func(r *ingestion.Request) {
		r.DocumentID = id
	}
}

// WithTitle overrides the title derived from the source name.
func WithTitle(title string) IndexOption {
	return func(r *ingestion.Request) {
		r.Title = title
	}
}

// WithPageRange limits ingestion to pages start through end.
func WithPageRange(start, end int) IndexOption {
	return func(r *ingestion.Request) {
		r.PageRange = &core.PageRange{Start: start, End: end}
	}
}

// WithChunkTokens overrides the chunk token budget.
func WithChunkTokens(n int) IndexOption {
	return func(r *ingestion.Request) {
		r.ChunkTokens = n
	}
}

// WithProgress receives progress updates.
func WithProgress(fn ingestion.ProgressFunc) IndexOption {
	return func(r *ingestion.Request) {
		r.Progress = fn
	}
}

// Index ingests src and registers its tools. An already indexed document is
// loaded instead. Returns the document id.
func (l *Library) Index(ctx context.Context, src core.Source, opts ...IndexOption) (string, error) {
	if l.closed.Load() {
		return "", ErrClosed
	}
	req := ingestion.Request{Source: src}
	for _, opt := range opts {
		opt(&req)
	}

	result, err := l.pipeline.Index(ctx, req)
	if err != nil {
		return "", err
	}
	if result.Existing {
		return l.Load(ctx, result.ID())
	}

	l.searcher.Cache().Put(&search.Document{
		Metadata: result.Metadata,
		Text:     result.Text,
		Pages:    result.Pages,
		Chunks:   result.Chunks,
	})
	l.registerTools(result.Metadata)
	return result.ID(), nil
}

// IndexResult is the outcome of indexing one source with IndexAll.
type IndexResult struct {
	Source core.Source
	ID     string
	Err    error
}

// IndexAll indexes sources concurrently. Results are in source order; one
// failing source does not affect the others.
func (l *Library) IndexAll(ctx context.Context, sources []core.Source, opts ...IndexOption) ([]IndexResult, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	pool, err := ants.NewPool(l.concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]IndexResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		results[i].Source = src
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i].ID, results[i].Err = l.Index(ctx, src, opts...)
		})
		if err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()
	return results, nil
}

// IsIndexed reports whether metadata exists for id.
func (l *Library) IsIndexed(ctx context.Context, id string) (bool, error) {
	if _, ok := l.searcher.Cache().Get(id); ok {
		return true, nil
	}
	_, err := l.store.GetMetadata(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
}

// IsIndexedMany is IsIndexed for several ids.
func (l *Library) IsIndexedMany(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		ok, err := l.IsIndexed(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = ok
	}
	return out, nil
}

// List returns a summary of every indexed document ordered by id.
func (l *Library) List(ctx context.Context) ([]core.DocumentSummary, error) {
	metas, err := l.store.ListMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	out := make([]core.DocumentSummary, len(metas))
	for i, m := range metas {
		out[i] = m.Summary()
	}
	return out, nil
}

// Load reads document id into the cache and registers its tools.
// It fails with core.ErrNotFound for an unknown id and with
// core.ErrCorruption when no chunks can be read.
func (l *Library) Load(ctx context.Context, id string) (string, error) {
	doc, err := l.searcher.Load(ctx, id)
	if err != nil {
		return "", err
	}
	l.registerTools(doc.Metadata)
	return id, nil
}

// LoadAll loads every indexed document. Documents that fail to load are
// logged and skipped.
func (l *Library) LoadAll(ctx context.Context) ([]string, error) {
	metas, err := l.store.ListMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		if _, err := l.Load(ctx, m.ID); err != nil {
			l.logger.Warn("skipping document", "document", m.ID, "err", err)
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Delete removes document id from the store and the cache and unregisters
// its tools. It fails with core.ErrNotFound for an unknown id.
func (l *Library) Delete(ctx context.Context, id string) error {
	unlock := l.locks.Lock(id)
	err := l.store.DeleteDocument(ctx, id)
	unlock()

	l.searcher.Evict(id)
	l.unregisterTools(id)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: deleting %q: %w", core.ErrStorage, id, err)
	}
	l.logger.Info("deleted document", "document", id)
	return nil
}

// Search ranks the chunks of document id against query. topK is clamped to
// [1, search.MaxTopK]. Failures are reported in the response.
func (l *Library) Search(ctx context.Context, id, query string, topK int) *search.SearchResponse {
	return l.searcher.Search(ctx, id, query, topK)
}

// FullText returns the canonical text of document id, with a marker before
// each page when includePageMarkers is set. Failures are reported in the
// response.
func (l *Library) FullText(ctx context.Context, id string, includePageMarkers bool) *search.FullTextResponse {
	return l.searcher.FullText(ctx, id, includePageMarkers)
}

// StorageStats reports the bytes held per document and in total.
func (l *Library) StorageStats(ctx context.Context) (*core.StorageStats, error) {
	stats, err := l.store.StorageStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return stats, nil
}

// Reembed repairs degraded and local fallback embeddings with the remote
// embedder. Cached documents are dropped so later searches read the new
// embeddings.
func (l *Library) Reembed(ctx context.Context, cfg *reembed.Config, progress io.Writer) (*reembed.Summary, error) {
	if l.remote == nil || l.remote.Model() == local.ModelName {
		return nil, ErrNoRemoteEmbedder
	}
	r, err := reembed.NewReembedder(l.store, l.remote, cfg, progress,
		reembed.WithLocks(l.locks))
	if err != nil {
		return nil, err
	}
	summary, err := r.Run(ctx)
	for _, id := range l.searcher.Cache().IDs() {
		l.searcher.Evict(id)
	}
	return summary, err
}

func (l *Library) registerTools(meta *core.DocumentMetadata) {
	for _, t := range tools.DocumentTools(meta.ID, meta.Title, l) {
		if err := l.registry.Register(t); err != nil {
			l.logger.Warn("failed to register tool", "tool", t.Name, "err", err)
		}
	}
}

// unregisterTools is best effort.
func (l *Library) unregisterTools(id string) {
	for _, name := range tools.DocumentToolNames(id) {
		if err := l.registry.Unregister(name); err != nil {
			l.logger.Debug("tool not unregistered", "tool", name, "err", err)
		}
	}
}
