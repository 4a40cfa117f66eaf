package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived 64-bit identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	return IDFromBytes([]byte(text))
}

// IDFromBytes is IDFromContent for raw bytes.
func IDFromBytes(data []byte) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Hex renders the ID as 16 lowercase hex digits.
func (id ID) Hex() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ContentType names a record in the per-document content collection.
type ContentType string

const (
	// ContentTypeText is the canonical full text of a document.
	ContentTypeText ContentType = "text"
	// ContentTypePages is the encoded ordered page record sequence.
	ContentTypePages ContentType = "pages"
)

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	Start int
	End   int
}

// Len returns the number of pages covered by the range.
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether page lies within the range.
func (r PageRange) Contains(page int) bool {
	return page >= r.Start && page <= r.End
}

func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// DocumentMetadata describes one ingested document.
type DocumentMetadata struct {
	ID                  string
	Title               string
	PageCount           int        // Pages in the source document
	PagesProcessed      int        // Pages actually extracted and indexed
	PageRange           *PageRange // Requested range, nil when the whole document was processed
	ChunkCount          int
	ChunkTokenBudget    int
	EmbeddingModel      string
	EstimatedTokenCount int
	ProcessedAt         time.Time
}

// PageRecord is the extracted text of a single page.
// Start and End locate the page text within the canonical text.
type PageRecord struct {
	PageNumber        int
	Text              string
	Start             int
	End               int
	ImageDescriptions []string
}

// MixedEmbeddingModels is the metadata model name of a document whose
// chunks were embedded by more than one model.
const MixedEmbeddingModels = "mixed"

// Chunk is an offset view into a document's canonical text.
// Text is never stored; it is reconstructed from the canonical text on read.
type Chunk struct {
	DocumentID     string
	ChunkIndex     int
	TextStart      int
	TextEnd        int
	Embedding      []float32 // nil for degraded chunks whose embedding failed
	EmbeddingModel string    // Model that produced Embedding, empty when unknown
	ImageContext   string    // Image description lines appended to Text for embedding
	PageReferences []int
	Text           string // Populated by stores on read
}

// Degraded reports whether the chunk has no embedding.
func (c *Chunk) Degraded() bool {
	return len(c.Embedding) == 0
}

// EmbeddingText is the text submitted to the embedder for the chunk.
func (c *Chunk) EmbeddingText() string {
	return c.Text + c.ImageContext
}

// DocumentEmbeddingModel names the model that embedded chunks: the model
// shared by every embedded chunk, MixedEmbeddingModels when they differ, or
// fallback when no chunk carries a model.
func DocumentEmbeddingModel(chunks []*Chunk, fallback string) string {
	model := ""
	for _, c := range chunks {
		if c.Degraded() || c.EmbeddingModel == "" {
			continue
		}
		switch model {
		case "":
			model = c.EmbeddingModel
		case c.EmbeddingModel:
		default:
			return MixedEmbeddingModels
		}
	}
	if model == "" {
		return fallback
	}
	return model
}

// Len returns the length of the chunk's text span in bytes.
func (c *Chunk) Len() int {
	return c.TextEnd - c.TextStart
}

// DocumentSummary is the listing view of an indexed document.
type DocumentSummary struct {
	ID             string
	Title          string
	PageCount      int
	PagesProcessed int
	ChunkCount     int
	EmbeddingModel string
	ProcessedAt    time.Time
}

// Summary returns the listing view of the metadata.
func (m *DocumentMetadata) Summary() DocumentSummary {
	return DocumentSummary{
		ID:             m.ID,
		Title:          m.Title,
		PageCount:      m.PageCount,
		PagesProcessed: m.PagesProcessed,
		ChunkCount:     m.ChunkCount,
		EmbeddingModel: m.EmbeddingModel,
		ProcessedAt:    m.ProcessedAt,
	}
}

// DocumentStorage accounts for the bytes one document occupies at rest.
type DocumentStorage struct {
	DocumentID     string
	TextBytes      int64
	PageBytes      int64
	EmbeddingBytes int64
	ChunkBytes     int64
	ChunkCount     int
}

// TotalBytes sums every component.
func (d DocumentStorage) TotalBytes() int64 {
	return d.TextBytes + d.PageBytes + d.EmbeddingBytes + d.ChunkBytes
}

// StorageStats aggregates DocumentStorage across the store.
type StorageStats struct {
	Documents  []DocumentStorage
	TotalBytes int64
}

// TotalMB is TotalBytes in mebibytes.
func (s *StorageStats) TotalMB() float64 {
	return float64(s.TotalBytes) / (1024 * 1024)
}

// IngestionState is a stage of the per-document ingestion state machine.
type IngestionState int

const (
	StateAcquiring IngestionState = iota + 1
	StateExtracting
	StateChunking
	StateEmbedding
	StatePersisting
	StateReady
	StateFailed
)

func (s IngestionState) String() string {
	switch s {
	case StateAcquiring:
		return "acquiring"
	case StateExtracting:
		return "extracting"
	case StateChunking:
		return "chunking"
	case StateEmbedding:
		return "embedding"
	case StatePersisting:
		return "persisting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
