package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docrag/acquire"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/chunker"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/extract"
	"github.com/poiesic/docrag/storage"
)

const (
	// DefaultChunkTokens is the default token budget per chunk.
	DefaultChunkTokens = 500

	// DefaultMaxPages bounds the pages processed by one ingestion.
	DefaultMaxPages = 100

	// DefaultBatchSize is how many chunks are written per store call.
	DefaultBatchSize = 10

	// PageSeparator joins page texts in the canonical text.
	PageSeparator = "\n\n"

	// ImagePlaceholder stands in for a page image that could not be described.
	ImagePlaceholder = "[image description unavailable]"
)

// Acquirer resolves a source into document bytes.
type Acquirer interface {
	Fetch(ctx context.Context, src core.Source) (*acquire.Document, error)
}

var _ Acquirer = (*acquire.Fetcher)(nil)

// Pipeline ingests documents into a DocumentStore. It is safe for concurrent
// use; each Index call runs its own state machine.
type Pipeline struct {
	store       storage.DocumentStore
	acquirer    Acquirer
	extractor   extract.Extractor
	embedder    ai.Embedder
	describer   ai.PageDescriber
	locks       *storage.DocumentLocks
	chunkTokens int
	maxPages    int
	batchSize   int
	heartbeat   time.Duration
	progressTTL time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunkTokens sets the default token budget per chunk.
// Default is DefaultChunkTokens.
func WithChunkTokens(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("chunk tokens must be positive, got %d", n)
		}
		p.chunkTokens = n
		return nil
	}
}

// WithMaxPages sets the page ceiling of a single ingestion.
// Default is DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("max pages must be positive, got %d", n)
		}
		p.maxPages = n
		return nil
	}
}

// WithBatchSize sets how many chunks are written per store call.
// Default is DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithHeartbeat re-emits embedding progress every interval while chunks are
// being embedded. Zero disables the heartbeat.
func WithHeartbeat(interval time.Duration) Option {
	return func(p *Pipeline) error {
		if interval < 0 {
			return fmt.Errorf("heartbeat interval cannot be negative, got %s", interval)
		}
		p.heartbeat = interval
		return nil
	}
}

// WithProgressTimeout bounds how long Index waits for the progress callback
// to take the final update. Zero means DefaultProgressTimeout.
func WithProgressTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("progress timeout cannot be negative, got %s", d)
		}
		p.progressTTL = d
		return nil
	}
}

// WithPageDescriber describes page images so their content becomes searchable.
func WithPageDescriber(d ai.PageDescriber) Option {
	return func(p *Pipeline) error {
		p.describer = d
		return nil
	}
}

// WithLocks shares per-document write locks with other writers.
func WithLocks(locks *storage.DocumentLocks) Option {
	return func(p *Pipeline) error {
		if locks != nil {
			p.locks = locks
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	store storage.DocumentStore,
	acquirer Acquirer,
	extractor extract.Extractor,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if acquirer == nil {
		return nil, ErrAcquirerRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		store:       store,
		acquirer:    acquirer,
		extractor:   extractor,
		embedder:    embedder,
		locks:       storage.NewDocumentLocks(),
		chunkTokens: DefaultChunkTokens,
		maxPages:    DefaultMaxPages,
		batchSize:   DefaultBatchSize,
		progressTTL: DefaultProgressTimeout,
		logger:      slog.Default().With("component", "ingestion"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Request describes one document to ingest.
type Request struct {
	Source core.Source

	// DocumentID overrides the id derived from the source name.
	DocumentID string

	// Title overrides the title derived from the source name.
	Title string

	// PageRange limits ingestion to a range of pages. Nil means all pages.
	PageRange *core.PageRange

	// ChunkTokens overrides the pipeline's token budget when positive.
	ChunkTokens int

	// Progress receives progress updates. May be nil.
	Progress ProgressFunc
}

// Result describes an ingested document.
type Result struct {
	Metadata *core.DocumentMetadata
	Text     string
	Pages    []core.PageRecord
	Chunks   []*core.Chunk

	// Existing is set when the document was already indexed and nothing was
	// processed. Only Metadata is populated then.
	Existing bool

	// Degraded counts chunks stored without an embedding.
	Degraded int
}

// ID returns the document id.
func (r *Result) ID() string {
	return r.Metadata.ID
}

// run is the state of one Index call.
type run struct {
	id     string
	state  core.IngestionState
	rep    *reporter
	logger *slog.Logger
}

func (r *run) enter(state core.IngestionState, fraction float64, message string) {
	r.logger.Debug("ingestion state", "from", r.state, "to", state)
	r.state = state
	r.rep.report(state, fraction, message)
}

// Index ingests the document described by req. A document whose id is
// already indexed is returned as stored without being processed again.
func (p *Pipeline) Index(ctx context.Context, req Request) (*Result, error) {
	if err := core.ValidateSource(req.Source); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAcquisition, err)
	}
	if req.PageRange != nil && (req.PageRange.Start < 1 || req.PageRange.End < req.PageRange.Start) {
		return nil, fmt.Errorf("%w: %s", core.ErrRange, req.PageRange)
	}

	logger := p.logger.With("run", uuid.NewString(), "source", req.Source.String())
	r := &run{rep: newReporter(req.Progress, p.progressTTL, logger), logger: logger}

	res, err := p.index(ctx, req, r)
	if err != nil {
		r.logger.Error("ingestion failed", "document", r.id, "state", r.state, "err", err)
		r.state = core.StateFailed
		r.rep.finish(core.StateFailed, r.rep.current(), core.Describe(err))
		return nil, err
	}
	r.state = core.StateReady
	r.rep.finish(core.StateReady, fractionDone, "ready")
	return res, nil
}

func (p *Pipeline) index(ctx context.Context, req Request, r *run) (*Result, error) {
	r.enter(core.StateAcquiring, 0, "acquiring "+req.Source.String())

	// Nameless sources are identified by content, so their id is only known
	// after acquisition.
	r.id = p.resolveID(req, nil)
	if r.id != "" {
		if res, err := p.existing(ctx, r); res != nil || err != nil {
			return res, err
		}
	}

	doc, err := p.acquirer.Fetch(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if r.id == "" {
		r.id = p.resolveID(req, doc)
		if res, err := p.existing(ctx, r); res != nil || err != nil {
			return res, err
		}
	}
	r.rep.setDocument(r.id)
	r.logger = r.logger.With("document", r.id)

	opened, err := p.extractor.Open(ctx, doc.Data, doc.MIMEType)
	if err != nil {
		return nil, err
	}
	pageCount := opened.PageCount()
	pageRange, err := p.pageRange(req.PageRange, pageCount)
	if err != nil {
		return nil, err
	}
	r.rep.report(core.StateAcquiring, fractionLoaded, fmt.Sprintf("loaded %d pages", pageCount))

	r.enter(core.StateExtracting, fractionLoaded, fmt.Sprintf("extracting pages %s", pageRange))
	extracted, err := opened.Pages(ctx, pageRange)
	if err != nil {
		return nil, err
	}
	text, pages, err := p.assemble(ctx, extracted, r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w: pages %s", core.ErrExtraction, ErrNoText, pageRange)
	}

	tokens := p.chunkTokens
	if req.ChunkTokens > 0 {
		tokens = req.ChunkTokens
	}
	r.enter(core.StateChunking, fractionExtracted, "chunking")
	chunks := p.chunk(text, tokens, pages, r)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %w: pages %s", core.ErrExtraction, ErrNoText, pageRange)
	}
	r.rep.report(core.StateChunking, fractionChunked, fmt.Sprintf("resolved %d chunks", len(chunks)))

	r.enter(core.StateEmbedding, fractionChunked, "embedding")
	ep := newEmbeddingProcessor(p.embedder, p.heartbeat, r.logger)
	degraded, err := ep.process(ctx, chunks, r.rep)
	if err != nil {
		return nil, err
	}

	var requested *core.PageRange
	if req.PageRange != nil {
		pr := *req.PageRange
		requested = &pr
	}
	meta := &core.DocumentMetadata{
		ID:                  r.id,
		Title:               p.title(req, doc, r.id),
		PageCount:           pageCount,
		PagesProcessed:      len(pages),
		PageRange:           requested,
		ChunkCount:          len(chunks),
		ChunkTokenBudget:    tokens,
		EmbeddingModel:      core.DocumentEmbeddingModel(chunks, p.embedder.Model()),
		EstimatedTokenCount: chunker.EstimateTokens(text),
		ProcessedAt:         p.now().UTC(),
	}

	r.enter(core.StatePersisting, fractionEmbedded, "storing")
	res := &Result{Metadata: meta, Text: text, Pages: pages, Chunks: chunks, Degraded: degraded}
	if stored, err := p.persist(ctx, res, r); err != nil || stored != nil {
		return stored, err
	}

	r.logger.Info("indexed document",
		"pages", len(pages), "chunks", len(chunks), "degraded", degraded, "model", meta.EmbeddingModel)
	return res, nil
}

// existing returns the stored document for r.id, or nil when it is not indexed.
func (p *Pipeline) existing(ctx context.Context, r *run) (*Result, error) {
	meta, err := p.store.GetMetadata(ctx, r.id)
	switch {
	case err == nil:
		r.logger.Info("document already indexed", "document", r.id)
		r.rep.setDocument(r.id)
		return &Result{Metadata: meta, Existing: true}, nil
	case errors.Is(err, core.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: checking %q: %w", core.ErrStorage, r.id, err)
	}
}

// resolveID derives the document id: the caller's id, else the slug of the
// source name, else a content hash. doc is nil before acquisition.
func (p *Pipeline) resolveID(req Request, doc *acquire.Document) string {
	if req.DocumentID != "" {
		return truncateID(req.DocumentID)
	}
	if id := core.DocumentIDFromName(req.Source.BaseName()); id != "" {
		return truncateID(id)
	}
	if doc != nil {
		if id := core.DocumentIDFromName(doc.Name); id != "" {
			return truncateID(id)
		}
		return core.DocumentIDFromBytes(doc.Data)
	}
	if req.Source.Kind == core.SourceBytes {
		return core.DocumentIDFromBytes(req.Source.Data)
	}
	return ""
}

func truncateID(id string) string {
	if len(id) <= core.MaxDocumentIDLength {
		return id
	}
	return strings.TrimRight(id[:core.MaxDocumentIDLength], "-")
}

func (p *Pipeline) title(req Request, doc *acquire.Document, id string) string {
	if req.Title != "" {
		return req.Title
	}
	name := req.Source.BaseName()
	if name == "" {
		name = doc.Name
	}
	if name == "" {
		return id
	}
	return core.TitleFromName(name)
}

// pageRange resolves the requested range against the document and enforces
// the page ceiling. Exceeding the ceiling is an error, never a truncation.
func (p *Pipeline) pageRange(requested *core.PageRange, pageCount int) (core.PageRange, error) {
	r := core.PageRange{Start: 1, End: pageCount}
	if requested != nil {
		r = *requested
	}
	if err := core.ValidatePageRange(r, pageCount); err != nil {
		return r, err
	}
	if r.Len() > p.maxPages {
		if requested == nil {
			return r, fmt.Errorf("%w: document has %d pages, at most %d can be indexed at once; request a page range",
				core.ErrRange, pageCount, p.maxPages)
		}
		return r, fmt.Errorf("%w: pages %s span %d pages, at most %d can be indexed at once",
			core.ErrRange, r, r.Len(), p.maxPages)
	}
	return r, nil
}

// assemble joins page texts into the canonical text and records where each
// page lies in it. Page images are described when a describer is configured.
func (p *Pipeline) assemble(ctx context.Context, extracted []extract.Page, r *run) (string, []core.PageRecord, error) {
	var b strings.Builder
	pages := make([]core.PageRecord, 0, len(extracted))
	for i, page := range extracted {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		if i > 0 {
			b.WriteString(PageSeparator)
		}
		rec := core.PageRecord{PageNumber: page.Number, Text: page.Text, Start: b.Len()}
		b.WriteString(page.Text)
		rec.End = b.Len()
		if desc, ok := p.describe(ctx, page, r); ok {
			rec.ImageDescriptions = []string{desc}
		}
		pages = append(pages, rec)
		r.rep.report(core.StateExtracting, span(fractionLoaded, fractionExtracted, i+1, len(extracted)),
			fmt.Sprintf("extracted page %d", page.Number))
	}
	return b.String(), pages, nil
}

// describe describes the page image, if any. Failures yield ImagePlaceholder.
func (p *Pipeline) describe(ctx context.Context, page extract.Page, r *run) (string, bool) {
	if p.describer == nil || len(page.Image) == 0 {
		return "", false
	}
	desc, err := p.describer.DescribePage(ctx, page.Number, page.Image, page.ImageMIME)
	if err != nil || strings.TrimSpace(desc) == "" {
		r.logger.Warn("page image description failed", "page", page.Number, "err", err)
		return ImagePlaceholder, true
	}
	return desc, true
}

// chunk splits text and builds chunk records with page references and, when
// referenced pages carry image descriptions, the image context to embed.
func (p *Pipeline) chunk(text string, tokens int, pages []core.PageRecord, r *run) []*core.Chunk {
	byNumber := make(map[int]*core.PageRecord, len(pages))
	for i := range pages {
		byNumber[pages[i].PageNumber] = &pages[i]
	}

	spans := chunker.Split(text, tokens)
	chunks := make([]*core.Chunk, 0, len(spans))
	for _, s := range spans {
		if s.End <= s.Start {
			continue
		}
		if s.Approximate {
			r.logger.Warn("chunk position approximated", "chunk", len(chunks), "start", s.Start)
		}
		c := &core.Chunk{
			DocumentID:     r.id,
			ChunkIndex:     len(chunks),
			TextStart:      s.Start,
			TextEnd:        s.End,
			PageReferences: chunker.PageReferences(s.Start, s.End, pages),
			Text:           text[s.Start:s.End],
		}
		c.ImageContext = imageContext(c.PageReferences, byNumber)
		chunks = append(chunks, c)
	}
	return chunks
}

// persist writes content, chunks and finally metadata under the document
// lock. If another run stored the document first, that document is returned
// and nothing is written. On failure everything written is removed.
func (p *Pipeline) persist(ctx context.Context, res *Result, r *run) (*Result, error) {
	id := res.Metadata.ID
	unlock := p.locks.Lock(id)
	defer unlock()

	if existing, err := p.existing(ctx, r); existing != nil || err != nil {
		return existing, err
	}

	if err := p.write(ctx, res, r); err != nil {
		if cleanupErr := p.store.DeleteDocument(context.WithoutCancel(ctx), id); cleanupErr != nil && !errors.Is(cleanupErr, core.ErrNotFound) {
			r.logger.Error("cleanup after failed ingestion failed", "err", cleanupErr)
		}
		return nil, err
	}
	return nil, nil
}

func (p *Pipeline) write(ctx context.Context, res *Result, r *run) error {
	id := res.Metadata.ID
	if err := p.store.PutContent(ctx, id, core.ContentTypeText, []byte(res.Text)); err != nil {
		return storageError("storing text", id, err)
	}
	if err := p.store.PutContent(ctx, id, core.ContentTypePages, storage.MarshalPages(res.Pages)); err != nil {
		return storageError("storing pages", id, err)
	}
	for start := 0; start < len(res.Chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(res.Chunks))
		if err := p.store.PutChunks(ctx, id, res.Chunks[start:end]...); err != nil {
			return storageError("storing chunks", id, err)
		}
		r.rep.report(core.StatePersisting, span(fractionEmbedded, fractionDone, end, len(res.Chunks)+1),
			fmt.Sprintf("stored %d/%d chunks", end, len(res.Chunks)))
	}
	if err := p.store.PutMetadata(ctx, res.Metadata); err != nil {
		return storageError("storing metadata", id, err)
	}
	return nil
}

func storageError(op, id string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s of %q: %w", core.ErrStorage, op, id, err)
}
