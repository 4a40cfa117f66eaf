// Package reembed repairs the embeddings of indexed documents.
//
// Chunks stored without an embedding, or with a local fallback embedding,
// are embedded again with the remote embedder once it is reachable. Offsets
// and chunk text never change; each document's chunk set is replaced as a
// whole under its write lock.
package reembed
