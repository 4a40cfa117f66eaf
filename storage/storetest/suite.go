// Package storetest holds the conformance suite every storage.DocumentStore
// implementation runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.DocumentStore

// Canonical is the document text used by the suite.
const Canonical = "Page one talks about apples. It has two sentences.\n\nPage two covers bananas in depth."

// Seed writes a complete two-page document with three chunks to store.
func Seed(t *testing.T, store storage.DocumentStore, id string) {
	t.Helper()
	ctx := context.Background()

	pages := []core.PageRecord{
		{PageNumber: 1, Start: 0, End: 50},
		{PageNumber: 2, Start: 52, End: len(Canonical), ImageDescriptions: []string{"a bunch of bananas"}},
	}
	require.NoError(t, store.PutContent(ctx, id, core.ContentTypeText, []byte(Canonical)))
	require.NoError(t, store.PutContent(ctx, id, core.ContentTypePages, storage.MarshalPages(pages)))
	require.NoError(t, store.PutChunks(ctx, id,
		&core.Chunk{DocumentID: id, ChunkIndex: 0, TextStart: 0, TextEnd: 28, Embedding: []float32{1, 0, 0}, EmbeddingModel: "test", PageReferences: []int{1}},
		&core.Chunk{DocumentID: id, ChunkIndex: 1, TextStart: 29, TextEnd: 50, Embedding: []float32{0, 1, 0}, EmbeddingModel: "test", PageReferences: []int{1}},
	))
	require.NoError(t, store.PutChunks(ctx, id,
		&core.Chunk{DocumentID: id, ChunkIndex: 2, TextStart: 52, TextEnd: len(Canonical), PageReferences: []int{2},
			ImageContext: "\n[Image on page 2: a bunch of bananas]"},
	))
	require.NoError(t, store.PutMetadata(ctx, &core.DocumentMetadata{
		ID:             id,
		Title:          "Fruit",
		PageCount:      2,
		PagesProcessed: 2,
		ChunkCount:     3,
		EmbeddingModel: "test",
		ProcessedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}))
}

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	ctx := context.Background()

	t.Run("metadata not found", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		_, err := store.GetMetadata(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = store.GetContent(ctx, "missing", core.ContentTypeText)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, store.DeleteDocument(ctx, "missing"), core.ErrNotFound)
	})

	t.Run("metadata put get list", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		Seed(t, store, "b-doc")
		Seed(t, store, "a-doc")

		meta, err := store.GetMetadata(ctx, "a-doc")
		require.NoError(t, err)
		assert.Equal(t, "Fruit", meta.Title)
		assert.Equal(t, 3, meta.ChunkCount)

		all, err := store.ListMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a-doc", all[0].ID)
		assert.Equal(t, "b-doc", all[1].ID)
	})

	t.Run("invalid metadata rejected", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		err := store.PutMetadata(ctx, &core.DocumentMetadata{})
		assert.ErrorIs(t, err, core.ErrInvalidMetadata)
	})

	t.Run("chunks are offset views", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")

		chunks, err := store.GetChunksForDocument(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, "doc", c.DocumentID)
			assert.NotEmpty(t, c.Text)
			assert.Equal(t, Canonical[c.TextStart:c.TextEnd], c.Text)
		}
		assert.Equal(t, "Page one talks about apples.", chunks[0].Text)
		assert.True(t, chunks[2].Degraded())
		assert.Equal(t, Canonical[52:]+"\n[Image on page 2: a bunch of bananas]", chunks[2].EmbeddingText())
		assert.Equal(t, []float32{0, 1, 0}, chunks[1].Embedding)
		assert.Equal(t, "test", chunks[1].EmbeddingModel)
		assert.Empty(t, chunks[2].EmbeddingModel)
	})

	t.Run("pages decode against canonical text", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")

		text, err := store.GetContent(ctx, "doc", core.ContentTypeText)
		require.NoError(t, err)
		data, err := store.GetContent(ctx, "doc", core.ContentTypePages)
		require.NoError(t, err)
		pages, err := storage.DecodePages(data, string(text))
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, "Page two covers bananas in depth.", pages[1].Text)
	})

	t.Run("chunks require canonical text", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		err := store.PutChunks(ctx, "nope", &core.Chunk{DocumentID: "nope", TextStart: 0, TextEnd: 1})
		assert.ErrorIs(t, err, storage.ErrMissingText)
	})

	t.Run("chunks outside text rejected", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")

		err := store.PutChunks(ctx, "doc", &core.Chunk{DocumentID: "doc", ChunkIndex: 9, TextStart: 10, TextEnd: len(Canonical) + 1})
		assert.ErrorIs(t, err, core.ErrInvalidOffsets)
	})

	t.Run("missing document has no chunks", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		chunks, err := store.GetChunksForDocument(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("replace chunks swaps the set", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")

		err := store.ReplaceChunks(ctx, "doc", []*core.Chunk{
			{DocumentID: "doc", ChunkIndex: 0, TextStart: 0, TextEnd: len(Canonical), Embedding: []float32{0.5, 0.5}},
		})
		require.NoError(t, err)

		chunks, err := store.GetChunksForDocument(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, Canonical, chunks[0].Text)
	})

	t.Run("delete removes everything", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")
		Seed(t, store, "keep")

		require.NoError(t, store.DeleteDocument(ctx, "doc"))

		_, err := store.GetMetadata(ctx, "doc")
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = store.GetContent(ctx, "doc", core.ContentTypeText)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = store.GetContent(ctx, "doc", core.ContentTypePages)
		assert.ErrorIs(t, err, core.ErrNotFound)
		chunks, err := store.GetChunksForDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Empty(t, chunks)

		chunks, err = store.GetChunksForDocument(ctx, "keep")
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("ids sharing a prefix stay separate", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")
		Seed(t, store, "doc-2")

		require.NoError(t, store.DeleteDocument(ctx, "doc"))
		chunks, err := store.GetChunksForDocument(ctx, "doc-2")
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("storage stats", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		Seed(t, store, "doc")

		stats, err := store.StorageStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats.Documents, 1)
		ds := stats.Documents[0]
		assert.Equal(t, "doc", ds.DocumentID)
		assert.Equal(t, int64(len(Canonical)), ds.TextBytes)
		assert.Equal(t, int64(2*3*4), ds.EmbeddingBytes)
		assert.Positive(t, ds.ChunkBytes)
		assert.Positive(t, ds.PageBytes)
		assert.Equal(t, 3, ds.ChunkCount)
		assert.Equal(t, ds.TotalBytes(), stats.TotalBytes)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				Seed(t, store, fmt.Sprintf("doc-%d", i))
			}()
		}
		wg.Wait()

		all, err := store.ListMetadata(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 8)
	})
}
