package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/local"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

const (
	// MaxTopK bounds the number of results a search returns.
	MaxTopK = 8

	// DefaultTopK is used when a search asks for no particular count.
	DefaultTopK = 5

	// DefaultPreviewLength bounds the characters of chunk text per result.
	DefaultPreviewLength = 1000
)

// Result is one ranked chunk.
type Result struct {
	Text           string   `json:"text"`
	Similarity     float64  `json:"similarity"`
	PageReferences []int    `json:"pageReferences"`
	ChunkIndex     int      `json:"chunkIndex"`
	Degraded       bool     `json:"degraded,omitempty"`
	MatchedTerms   []string `json:"matchedTerms,omitempty"`
}

// SearchResponse is the structured answer to a search. Error is set instead
// of Results when the search could not run.
type SearchResponse struct {
	DocumentID  string   `json:"documentId"`
	Query       string   `json:"query"`
	Results     []Result `json:"results"`
	TotalChunks int      `json:"totalChunks"`
	Error       string   `json:"error,omitempty"`
}

// FullTextResponse is the structured answer to a full-text request.
type FullTextResponse struct {
	DocumentID string                 `json:"documentId"`
	FullText   string                 `json:"fullText"`
	Metadata   *core.DocumentMetadata `json:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// PageMarker formats the marker placed before each page's text.
func PageMarker(page int) string {
	return fmt.Sprintf("--- Page %d ---", page)
}

// Searcher runs similarity and full-text queries over a DocumentStore.
type Searcher struct {
	store         storage.DocumentStore
	embedder      ai.Embedder
	cache         *DocumentCache
	previewLength int
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCache shares a document cache with other components.
func WithCache(cache *DocumentCache) Option {
	return func(s *Searcher) error {
		if cache != nil {
			s.cache = cache
		}
		return nil
	}
}

// WithPreviewLength sets the maximum characters of chunk text per result.
func WithPreviewLength(n int) Option {
	return func(s *Searcher) error {
		if n <= 0 {
			return fmt.Errorf("preview length must be positive, got %d", n)
		}
		s.previewLength = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.DocumentStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:         store,
		embedder:      embedder,
		cache:         NewDocumentCache(),
		previewLength: DefaultPreviewLength,
		logger:        slog.Default().With("component", "searcher"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Cache returns the searcher's document cache.
func (s *Searcher) Cache() *DocumentCache {
	return s.cache
}

// Load returns the document for id from the cache, reading it from the store
// on a miss. It fails with core.ErrNotFound when no metadata exists and with
// core.ErrCorruption when metadata exists but no chunks can be read.
func (s *Searcher) Load(ctx context.Context, id string) (*Document, error) {
	doc, _, err := s.load(ctx, id)
	return doc, err
}

func (s *Searcher) load(ctx context.Context, id string) (*Document, bool, error) {
	if doc, ok := s.cache.Get(id); ok {
		return doc, true, nil
	}

	meta, err := s.store.GetMetadata(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %q", core.ErrNotFound, id)
		}
		return nil, false, fmt.Errorf("%w: loading metadata for %q: %w", core.ErrStorage, id, err)
	}

	chunks, err := s.store.GetChunksForDocument(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading chunks of %q: %w", core.ErrCorruption, id, err)
	}
	if len(chunks) == 0 {
		return nil, false, fmt.Errorf("%w: %q has metadata but no chunks", core.ErrCorruption, id)
	}

	text, err := s.store.GetContent(ctx, id, core.ContentTypeText)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading text of %q: %w", core.ErrCorruption, id, err)
	}

	var pages []core.PageRecord
	if data, err := s.store.GetContent(ctx, id, core.ContentTypePages); err == nil {
		pages, err = storage.DecodePages(data, string(text))
		if err != nil {
			return nil, false, fmt.Errorf("%w: decoding pages of %q: %w", core.ErrCorruption, id, err)
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: reading pages of %q: %w", core.ErrStorage, id, err)
	}

	doc := &Document{Metadata: meta, Text: string(text), Pages: pages, Chunks: chunks}
	s.cache.Put(doc)
	s.logger.Debug("loaded document", "document", id, "chunks", len(chunks), "pages", len(pages))
	return doc, false, nil
}

// Evict drops id from the cache.
func (s *Searcher) Evict(id string) {
	s.cache.Delete(id)
}

// Search ranks the chunks of document id against query and returns up to
// topK results. topK is clamped to [1, MaxTopK]; a non-positive topK means
// DefaultTopK. Failures are reported in SearchResponse.Error.
func (s *Searcher) Search(ctx context.Context, id, query string, topK int) *SearchResponse {
	return s.SearchWithMonitor(ctx, id, query, topK, nil)
}

// SearchWithMonitor is Search with stage callbacks.
func (s *Searcher) SearchWithMonitor(ctx context.Context, id, query string, topK int, monitor SearchMonitor) *SearchResponse {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(id, query)

	resp := &SearchResponse{DocumentID: id, Query: query, Results: []Result{}}
	finish := func(err error) *SearchResponse {
		if err != nil {
			resp.Error = core.Describe(err)
			s.logger.Debug("search failed", "document", id, "err", err)
		}
		monitor.Finish(resp)
		return resp
	}

	if strings.TrimSpace(query) == "" {
		return finish(ErrEmptyQuery)
	}

	doc, cached, err := s.load(ctx, id)
	if err != nil {
		return finish(err)
	}
	monitor.AfterLoad(doc, cached)
	resp.TotalChunks = len(doc.Chunks)

	vectors := s.queryVectors(ctx, query)
	monitor.AfterQueryEmbedding(len(vectors.primary), vectors.model == local.ModelName)

	candidates := make([]Candidate[int], len(doc.Chunks))
	for i, c := range doc.Chunks {
		candidates[i] = Candidate[int]{Vector: c.Embedding, Payload: i}
	}
	ranked := RankBy(func(c Candidate[int]) float64 {
		return vectors.similarity(doc.Chunks[c.Payload])
	}, candidates, clampTopK(topK))
	monitor.AfterRanking(ranked)

	queryWords := tokenizeAndFilter(query)
	for _, r := range ranked {
		chunk := doc.Chunks[r.Payload]
		resp.Results = append(resp.Results, Result{
			Text:           preview(chunk.Text, s.previewLength),
			Similarity:     r.Similarity,
			PageReferences: chunk.PageReferences,
			ChunkIndex:     chunk.ChunkIndex,
			Degraded:       !r.Embedded,
			MatchedTerms:   matchedTerms(chunk.Text, queryWords),
		})
	}
	return finish(nil)
}

// FullText reconstructs the text of document id, optionally with a page
// marker before each page. Failures are reported in FullTextResponse.Error.
func (s *Searcher) FullText(ctx context.Context, id string, includePageMarkers bool) *FullTextResponse {
	resp := &FullTextResponse{DocumentID: id}
	doc, _, err := s.load(ctx, id)
	if err != nil {
		resp.Error = core.Describe(err)
		return resp
	}
	resp.Metadata = doc.Metadata
	if !includePageMarkers || len(doc.Pages) == 0 {
		resp.FullText = doc.Text
		return resp
	}

	var b strings.Builder
	b.Grow(len(doc.Text) + len(doc.Pages)*20)
	for i, p := range doc.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(PageMarker(p.PageNumber))
		b.WriteByte('\n')
		b.WriteString(p.Text)
	}
	resp.FullText = b.String()
	return resp
}

// queryVectors holds the query embedding, the model that produced it and,
// lazily, the local embedding of the query.
type queryVectors struct {
	text    string
	primary []float32
	model   string
	local   []float32
}

// similarity compares a chunk against the query embedding of the model that
// embedded the chunk. Chunks of any other remote model score 0. Chunks with
// no recorded model are matched by dimension.
func (q *queryVectors) similarity(chunk *core.Chunk) float64 {
	switch chunk.EmbeddingModel {
	case q.model:
		return Cosine(q.primary, chunk.Embedding)
	case local.ModelName:
		return Cosine(q.localVector(), chunk.Embedding)
	case "":
		switch len(chunk.Embedding) {
		case len(q.primary):
			return Cosine(q.primary, chunk.Embedding)
		case local.Dimension:
			return Cosine(q.localVector(), chunk.Embedding)
		}
	}
	return 0
}

func (q *queryVectors) localVector() []float32 {
	if q.local == nil {
		if q.model == local.ModelName {
			q.local = q.primary
		} else {
			q.local = local.Embed(q.text)
		}
	}
	return q.local
}

func (s *Searcher) queryVectors(ctx context.Context, query string) *queryVectors {
	vec, model, err := ai.EmbedWithModel(ctx, s.embedder, query)
	if err != nil || len(vec) == 0 {
		s.logger.Warn("query embedding failed, using local embedding", "err", err)
		vec, model = local.Embed(query), local.ModelName
	}
	return &queryVectors{text: query, primary: vec, model: model}
}

func clampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return min(k, MaxTopK)
}
