package storage

import "sync"

// DocumentLocks serializes writers per document id. Locks for different ids
// never contend. Entries are reference counted and dropped when unused.
type DocumentLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewDocumentLocks creates an empty lock table.
func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{locks: make(map[string]*docLock)}
}

// Lock acquires the lock for id and returns its release function.
func (l *DocumentLocks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	dl, ok := l.locks[id]
	if !ok {
		dl = &docLock{}
		l.locks[id] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
