package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"syscall"

	"github.com/poiesic/docrag/core"
)

// CheckChunks validates chunk offsets against the canonical text length and
// that every chunk belongs to documentID.
func CheckChunks(documentID string, textLen int, chunks []*core.Chunk) error {
	for _, c := range chunks {
		if err := core.ValidateChunk(c, textLen); err != nil {
			return err
		}
		if c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %d belongs to %q, not %q", core.ErrInvalidChunk, c.ChunkIndex, c.DocumentID, documentID)
		}
	}
	return nil
}

// AttachChunkText fills each chunk's Text by slicing text at its offsets and
// sorts chunks by index. Chunks whose offsets no longer fit are dropped.
func AttachChunkText(text string, chunks []*core.Chunk) []*core.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if c.TextStart < 0 || c.TextStart >= c.TextEnd || c.TextEnd > len(text) {
			continue
		}
		c.Text = text[c.TextStart:c.TextEnd]
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *core.Chunk) int {
		return a.ChunkIndex - b.ChunkIndex
	})
	return out
}

// AccountChunk adds the at-rest size of an encoded chunk record to ds.
func AccountChunk(ds *core.DocumentStorage, data []byte) error {
	c, err := UnmarshalChunk(ds.DocumentID, data)
	if err != nil {
		return err
	}
	emb := int64(len(c.Embedding) * float32Size)
	ds.EmbeddingBytes += emb
	ds.ChunkBytes += int64(len(data)) - emb
	ds.ChunkCount++
	return nil
}

// SumStats totals per-document accounting, ordered by document id.
func SumStats(docs []core.DocumentStorage) *core.StorageStats {
	slices.SortFunc(docs, func(a, b core.DocumentStorage) int {
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
	stats := &core.StorageStats{Documents: docs}
	for _, d := range docs {
		stats.TotalBytes += d.TotalBytes()
	}
	return stats
}

// SortMetadata orders metadata by document id.
func SortMetadata(metas []*core.DocumentMetadata) {
	slices.SortFunc(metas, func(a, b *core.DocumentMetadata) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// MapQuotaError wraps err with ErrQuotaExceeded when it signals a full disk.
func MapQuotaError(err error) error {
	if err == nil || errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	if errors.Is(err, syscall.ENOSPC) ||
		strings.Contains(strings.ToLower(err.Error()), "disk is full") ||
		strings.Contains(strings.ToLower(err.Error()), "no space left") {
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	}
	return err
}
