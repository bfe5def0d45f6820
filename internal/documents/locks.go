package documents

import (
	"sync"

	"github.com/google/uuid"
)

// documentLocks serializes operations on the same document within the
// process. Row locks in the repository cover other processes.
type documentLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[uuid.UUID]*documentLock)}
}

// Lock blocks until the document is free and returns its unlock function.
func (l *documentLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &documentLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
