package content

import "sync"

// pageLocks is a keyed mutex. Entries are dropped once no caller holds or
// waits for them.
type pageLocks struct {
	mu    sync.Mutex
	locks map[string]*pageLock
}

type pageLock struct {
	sync.Mutex
	refs int
}

func newPageLocks() *pageLocks {
	return &pageLocks{locks: make(map[string]*pageLock)}
}

// lock blocks until the page is free and returns the unlock function.
func (l *pageLocks) lock(pageID string) func() {
	l.mu.Lock()
	pl, ok := l.locks[pageID]
	if !ok {
		pl = &pageLock{}
		l.locks[pageID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, pageID)
		}
		l.mu.Unlock()
	}
}

func (l *pageLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
