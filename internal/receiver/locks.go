package receiver

import (
	"path/filepath"
	"slices"
	"sync"
)

// PathLocks serializes writers of the same destination path. Entries are
// dropped once no goroutine holds or waits for them.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func NewPathLocks() *PathLocks {
	return &PathLocks{
		locks: make(map[string]*pathLock),
	}
}

// Lock acquires every path in lexical order and returns the matching unlock.
func (l *PathLocks) Lock(paths ...string) func() {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, filepath.Clean(p))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*pathLock, 0, len(keys))
	for _, key := range keys {
		pl := l.acquire(key)
		pl.mu.Lock()
		held = append(held, pl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *PathLocks) acquire(key string) *pathLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.locks[key]
	if !ok {
		pl = &pathLock{}
		l.locks[key] = pl
	}
	pl.refs++

	return pl
}

func (l *PathLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl := l.locks[key]
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *PathLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
