// Package lock provides per-business-unit mutual exclusion for cycles.
package lock

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = eris.New("lock: already held")

// Locker grants exclusive ownership of a key. Acquire never blocks waiting
// for a held key; it fails fast with ErrLocked so the caller decides whether
// to retry later.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker implements Locker within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty MemoryLocker.
func NewMemory() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "lock: acquire")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, eris.Wrapf(ErrLocked, "key %s", key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
