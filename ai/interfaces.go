package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model, recorded in document metadata.
	Model() string
}

// TracedEmbedder is an Embedder whose vectors may come from more than one
// model, such as a remote service with a local fallback.
type TracedEmbedder interface {
	Embedder

	// EmbedTextTraced is EmbedText that also names the model that produced
	// the vector.
	EmbedTextTraced(ctx context.Context, text string) ([]float32, string, error)
}

// EmbedWithModel embeds text and names the model that produced the vector.
// Embedders that are not a TracedEmbedder are attributed to their Model.
func EmbedWithModel(ctx context.Context, e Embedder, text string) ([]float32, string, error) {
	if t, ok := e.(TracedEmbedder); ok {
		return t.EmbedTextTraced(ctx, text)
	}
	vec, err := e.EmbedText(ctx, text)
	return vec, e.Model(), err
}

// PageDescriber produces a short textual description of a rendered page image.
// Implementations must be thread-safe for concurrent use.
type PageDescriber interface {
	// DescribePage describes the visual content of one page image.
	// mimeType is the image type, e.g. "image/png".
	DescribePage(ctx context.Context, pageNumber int, image []byte, mimeType string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// PageDescriber returns the page image description service, or nil when
	// the provider has none.
	PageDescriber() PageDescriber

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
