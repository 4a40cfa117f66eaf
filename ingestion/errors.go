package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrAcquirerRequired is returned when a document acquirer is not provided.
	ErrAcquirerRequired = errors.New("document acquirer required")

	// ErrExtractorRequired is returned when a page extractor is not provided.
	ErrExtractorRequired = errors.New("page extractor required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNoText is returned when the processed pages contain no text to index.
	ErrNoText = errors.New("no extractable text")
)
