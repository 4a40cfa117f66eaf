package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true, nil)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false, nil)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(tmpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotDirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	_, err := OpenBackend(tmpFile, false, nil)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true, nil)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestKeys(t *testing.T) {
	t.Run("chunk keys sort by index", func(t *testing.T) {
		a := makeChunkKey("doc", 2)
		b := makeChunkKey("doc", 10)
		assert.Less(t, string(a), string(b))
	})

	t.Run("prefix ids do not overlap", func(t *testing.T) {
		short := makePartialChunkKey("doc")
		long := makeChunkKey("doc-2", 0)
		assert.False(t, len(long) >= len(short) && string(long[:len(short)]) == string(short))
	})

	t.Run("content type from key", func(t *testing.T) {
		key := makeContentKey("doc", core.ContentTypePages)
		assert.Equal(t, core.ContentTypePages, contentTypeFromKey("doc", key))
	})
}

func TestNewDocumentStore_NilBackend(t *testing.T) {
	_, err := NewDocumentStore(nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
}

func TestDocumentStore_SharedBackend(t *testing.T) {
	backend, err := OpenBackend("", true, nil)
	require.NoError(t, err)
	defer backend.Close()

	store, err := NewDocumentStore(backend)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.False(t, backend.IsClosed(), "store must not close a backend it does not own")
}

func TestDocumentStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, false, nil)
	require.NoError(t, err)
	storetestSeed(t, store)
	require.NoError(t, store.Close())

	store, err = Open(dir, false, nil)
	require.NoError(t, err)
	defer store.Close()

	meta, err := store.GetMetadata(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.ChunkCount)
	chunks, err := store.GetChunksForDocument(ctx, "persisted")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}
