package storage

import (
	"context"

	"github.com/poiesic/docrag/core"
)

// DocumentStore persists document metadata, content and chunk records.
//
// Three logical collections are kept: metadata by document id, content keyed
// by (document id, content type) and chunks keyed by (document id, chunk index).
// Chunk text is never stored; it is an offset view into the document's
// canonical text and is reconstructed on read.
//
// Implementations must be thread-safe and must serialize writes to the same
// document id.
type DocumentStore interface {
	// PutMetadata creates or replaces the metadata record for meta.ID.
	PutMetadata(ctx context.Context, meta *core.DocumentMetadata) error

	// GetMetadata returns the metadata for id.
	// Returns ErrNotFound if the document doesn't exist.
	GetMetadata(ctx context.Context, id string) (*core.DocumentMetadata, error)

	// ListMetadata returns every metadata record ordered by id.
	ListMetadata(ctx context.Context) ([]*core.DocumentMetadata, error)

	// PutContent stores a content record, replacing any previous value.
	PutContent(ctx context.Context, id string, contentType core.ContentType, data []byte) error

	// GetContent returns a content record.
	// Returns ErrNotFound if it doesn't exist.
	GetContent(ctx context.Context, id string, contentType core.ContentType) ([]byte, error)

	// PutChunks stores chunk records for id. The canonical text must already
	// be stored; chunks whose offsets fall outside it are rejected.
	PutChunks(ctx context.Context, id string, chunks ...*core.Chunk) error

	// ReplaceChunks atomically swaps the whole chunk set of id.
	ReplaceChunks(ctx context.Context, id string, chunks []*core.Chunk) error

	// GetChunksForDocument returns all chunks of id ordered by chunk index,
	// with Text sliced from the canonical text.
	// Returns an empty slice if the document has no chunks.
	GetChunksForDocument(ctx context.Context, id string) ([]*core.Chunk, error)

	// DeleteDocument removes metadata, content and chunks of id together.
	// Returns ErrNotFound if no metadata exists.
	DeleteDocument(ctx context.Context, id string) error

	// StorageStats reports the bytes held per document and in total.
	StorageStats(ctx context.Context) (*core.StorageStats, error)

	// Close releases the backend.
	Close() error
}
