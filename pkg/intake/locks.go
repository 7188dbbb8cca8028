package intake

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// sessionLocks serializes read-modify-write cycles per session id. Entries
// are reference counted and dropped once nobody holds or waits on them.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the lock for id is held or ctx is done. The returned
// function releases it and must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.unref(id, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.unref(id, entry)
		})
	}, nil
}

func (l *sessionLocks) unref(id string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, id)
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
