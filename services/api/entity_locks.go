package api

import (
	"sync"

	"github.com/google/uuid"
)

// entityLocks serializes read-modify-write sequences on a single entity
// (one exchange's transition, one workspace's version bump) while leaving
// unrelated entities free to proceed in parallel.
type entityLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[uuid.UUID]*entityLock)}
}

// lock acquires the mutex for id and returns its release func. Entries
// are reference counted so the map does not grow with every id ever seen.
func (e *entityLocks) lock(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &entityLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}
