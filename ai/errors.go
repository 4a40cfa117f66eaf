package ai

import "errors"

var (
	// ErrEmbeddingFailed indicates the embedding service returned no usable vector.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDescribeFailed indicates the page describer returned no usable text.
	ErrDescribeFailed = errors.New("page description failed")

	// ErrUnknownProvider indicates an unsupported Config.Provider value.
	ErrUnknownProvider = errors.New("unknown ai provider")
)
