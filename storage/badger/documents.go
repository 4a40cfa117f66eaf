package badger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend   *Backend
	ownsStore bool
	locks     *storage.DocumentLocks
	logger    *slog.Logger
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore on an open backend.
// Closing the store leaves the backend open.
func NewDocumentStore(backend *Backend) (*DocumentStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &DocumentStore{
		backend: backend,
		locks:   storage.NewDocumentLocks(),
		logger:  backend.logger,
	}, nil
}

// Open opens a BadgerDB at path and returns a store that closes it on Close.
func Open(path string, inMemory bool, logger *slog.Logger) (*DocumentStore, error) {
	backend, err := OpenBackend(path, inMemory, logger)
	if err != nil {
		return nil, err
	}
	store, err := NewDocumentStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	store.ownsStore = true
	return store, nil
}

// Close closes the backend if the store opened it.
func (s *DocumentStore) Close() error {
	if s.ownsStore && !s.backend.IsClosed() {
		return s.backend.Close()
	}
	return nil
}

// PutMetadata creates or replaces a document's metadata.
func (s *DocumentStore) PutMetadata(ctx context.Context, meta *core.DocumentMetadata) error {
	if err := core.ValidateMetadata(meta); err != nil {
		return err
	}
	unlock := s.locks.Lock(meta.ID)
	defer unlock()

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeMetadataKey(meta.ID), storage.MarshalMetadata(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetMetadata retrieves a document's metadata.
func (s *DocumentStore) GetMetadata(ctx context.Context, id string) (*core.DocumentMetadata, error) {
	var meta *core.DocumentMetadata
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeMetadataKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			meta, err = storage.UnmarshalMetadata(val)
			return err
		})
	}, false)
	return meta, err
}

// ListMetadata returns every document's metadata ordered by id.
func (s *DocumentStore) ListMetadata(ctx context.Context) ([]*core.DocumentMetadata, error) {
	var out []*core.DocumentMetadata
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metadataPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				meta, err := storage.UnmarshalMetadata(val)
				if err != nil {
					return err
				}
				out = append(out, meta)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	// Keys sort by id length first; callers expect id order.
	storage.SortMetadata(out)
	return out, nil
}

// PutContent stores a content record.
func (s *DocumentStore) PutContent(ctx context.Context, id string, contentType core.ContentType, data []byte) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeContentKey(id, contentType), data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetContent retrieves a content record.
func (s *DocumentStore) GetContent(ctx context.Context, id string, contentType core.ContentType) ([]byte, error) {
	var data []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		data, err = readValue(tx, makeContentKey(id, contentType))
		return err
	}, false)
	return data, err
}

// PutChunks stores chunk records after checking them against the canonical text.
func (s *DocumentStore) PutChunks(ctx context.Context, id string, chunks ...*core.Chunk) error {
	return s.writeChunks(id, chunks, false)
}

// ReplaceChunks removes every chunk of id and stores chunks in one transaction.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, id string, chunks []*core.Chunk) error {
	return s.writeChunks(id, chunks, true)
}

func (s *DocumentStore) writeChunks(id string, chunks []*core.Chunk, replace bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.backend.WithTx(func(tx *badger.Txn) error {
		text, err := readValue(tx, makeContentKey(id, core.ContentTypeText))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return storage.ErrMissingText
			}
			return err
		}
		if err := storage.CheckChunks(id, len(text), chunks); err != nil {
			return err
		}
		if replace {
			for _, key := range keysWithPrefix(tx, makePartialChunkKey(id)) {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
		}
		for _, c := range chunks {
			if err := tx.Set(makeChunkKey(id, c.ChunkIndex), storage.MarshalChunk(c)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetChunksForDocument returns the chunks of id with text sliced from the
// canonical text.
func (s *DocumentStore) GetChunksForDocument(ctx context.Context, id string) ([]*core.Chunk, error) {
	var text []byte
	chunks := []*core.Chunk{}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		text, err = readValue(tx, makeContentKey(id, core.ContentTypeText))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(id)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				c, err := storage.UnmarshalChunk(id, val)
				if err != nil {
					return err
				}
				chunks = append(chunks, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return storage.AttachChunkText(string(text), chunks), nil
}

// DeleteDocument removes all records of id in a single transaction.
// Orphaned content and chunks without metadata are removed as well, but
// ErrNotFound is still reported.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	missing := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		metaKey := makeMetadataKey(id)
		var keys [][]byte
		if _, err := tx.Get(metaKey); err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			missing = true
		} else {
			keys = append(keys, metaKey)
		}
		keys = append(keys, keysWithPrefix(tx, makePartialContentKey(id))...)
		keys = append(keys, keysWithPrefix(tx, makePartialChunkKey(id))...)
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		s.logger.Debug("deleted document", "document", id, "keys", len(keys))
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	if missing {
		return storage.ErrNotFound
	}
	return nil
}

// StorageStats sums the at-rest bytes of every document.
func (s *DocumentStore) StorageStats(ctx context.Context) (*core.StorageStats, error) {
	metas, err := s.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]core.DocumentStorage, 0, len(metas))
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		for _, meta := range metas {
			ds := core.DocumentStorage{DocumentID: meta.ID}
			if err := accountDocument(tx, &ds); err != nil {
				return err
			}
			docs = append(docs, ds)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return storage.SumStats(docs), nil
}

func accountDocument(tx *badger.Txn, ds *core.DocumentStorage) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialContentKey(ds.DocumentID)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		switch contentTypeFromKey(ds.DocumentID, item.Key()) {
		case core.ContentTypeText:
			ds.TextBytes += item.ValueSize()
		case core.ContentTypePages:
			ds.PageBytes += item.ValueSize()
		}
	}
	iter.Close()

	opts = badger.DefaultIteratorOptions
	opts.Prefix = makePartialChunkKey(ds.DocumentID)
	iter = tx.NewIterator(opts)
	defer iter.Close()
	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			return storage.AccountChunk(ds, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readValue copies the value at key, mapping a missing key to storage.ErrNotFound.
func readValue(tx *badger.Txn, key []byte) ([]byte, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}
