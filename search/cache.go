package search

import (
	"slices"
	"sync"

	"github.com/poiesic/docrag/core"
)

// Document is a fully loaded document: metadata, canonical text, pages and
// chunks with their text attached.
type Document struct {
	Metadata *core.DocumentMetadata
	Text     string
	Pages    []core.PageRecord
	Chunks   []*core.Chunk
}

// DocumentCache holds loaded documents keyed by id. It is safe for concurrent use.
type DocumentCache struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{docs: make(map[string]*Document)}
}

// Get returns the cached document for id.
func (c *DocumentCache) Get(id string) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	return doc, ok
}

// Put caches doc under its metadata id.
func (c *DocumentCache) Put(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.Metadata.ID] = doc
}

// Delete evicts id. It reports whether id was cached.
func (c *DocumentCache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.docs[id]
	delete(c.docs, id)
	return ok
}

// IDs returns the cached ids in sorted order.
func (c *DocumentCache) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
