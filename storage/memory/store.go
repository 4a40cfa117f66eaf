// Package memory provides a map-backed storage.DocumentStore for tests and
// ephemeral sessions. Records are held in their encoded form so storage
// accounting matches the persistent backends.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

type document struct {
	meta    []byte
	content map[core.ContentType][]byte
	chunks  map[int][]byte
}

// Store implements storage.DocumentStore in memory.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*document
	locks  *storage.DocumentLocks
	closed bool
}

var _ storage.DocumentStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		docs:  make(map[string]*document),
		locks: storage.NewDocumentLocks(),
	}
}

// doc returns the record group for id, creating it when create is set.
// Caller must hold s.mu.
func (s *Store) doc(id string, create bool) *document {
	d, ok := s.docs[id]
	if !ok && create {
		d = &document{
			content: make(map[core.ContentType][]byte),
			chunks:  make(map[int][]byte),
		}
		s.docs[id] = d
	}
	return d
}

func (s *Store) PutMetadata(ctx context.Context, meta *core.DocumentMetadata) error {
	if err := core.ValidateMetadata(meta); err != nil {
		return err
	}
	unlock := s.locks.Lock(meta.ID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	s.doc(meta.ID, true).meta = storage.MarshalMetadata(meta)
	return nil
}

func (s *Store) GetMetadata(ctx context.Context, id string) (*core.DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	d := s.doc(id, false)
	if d == nil || d.meta == nil {
		return nil, storage.ErrNotFound
	}
	return storage.UnmarshalMetadata(d.meta)
}

func (s *Store) ListMetadata(ctx context.Context) ([]*core.DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	var out []*core.DocumentMetadata
	for _, d := range s.docs {
		if d.meta == nil {
			continue
		}
		meta, err := storage.UnmarshalMetadata(d.meta)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	storage.SortMetadata(out)
	return out, nil
}

func (s *Store) PutContent(ctx context.Context, id string, contentType core.ContentType, data []byte) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	s.doc(id, true).content[contentType] = slices.Clone(data)
	return nil
}

func (s *Store) GetContent(ctx context.Context, id string, contentType core.ContentType) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	d := s.doc(id, false)
	if d == nil {
		return nil, storage.ErrNotFound
	}
	data, ok := d.content[contentType]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *Store) PutChunks(ctx context.Context, id string, chunks ...*core.Chunk) error {
	return s.writeChunks(id, chunks, false)
}

func (s *Store) ReplaceChunks(ctx context.Context, id string, chunks []*core.Chunk) error {
	return s.writeChunks(id, chunks, true)
}

func (s *Store) writeChunks(id string, chunks []*core.Chunk, replace bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	d := s.doc(id, false)
	if d == nil || d.content[core.ContentTypeText] == nil {
		return storage.ErrMissingText
	}
	if err := storage.CheckChunks(id, len(d.content[core.ContentTypeText]), chunks); err != nil {
		return err
	}
	if replace {
		d.chunks = make(map[int][]byte, len(chunks))
	}
	for _, c := range chunks {
		d.chunks[c.ChunkIndex] = storage.MarshalChunk(c)
	}
	return nil
}

func (s *Store) GetChunksForDocument(ctx context.Context, id string) ([]*core.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	d := s.doc(id, false)
	if d == nil {
		return []*core.Chunk{}, nil
	}
	chunks := make([]*core.Chunk, 0, len(d.chunks))
	for _, data := range d.chunks {
		c, err := storage.UnmarshalChunk(id, data)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return storage.AttachChunkText(string(d.content[core.ContentTypeText]), chunks), nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	d := s.doc(id, false)
	if d == nil {
		return storage.ErrNotFound
	}
	delete(s.docs, id)
	if d.meta == nil {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) StorageStats(ctx context.Context) (*core.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	docs := make([]core.DocumentStorage, 0, len(s.docs))
	for id, d := range s.docs {
		ds := core.DocumentStorage{
			DocumentID: id,
			TextBytes:  int64(len(d.content[core.ContentTypeText])),
			PageBytes:  int64(len(d.content[core.ContentTypePages])),
		}
		for _, data := range d.chunks {
			if err := storage.AccountChunk(&ds, data); err != nil {
				return nil, err
			}
		}
		docs = append(docs, ds)
	}
	return storage.SumStats(docs), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	return nil
}
