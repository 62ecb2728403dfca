package cache

import (
	"context"
	"sync"
)

// ItemLocks serializes work per key. A second Lock on a held key waits
// until the holder unlocks or the caller's context ends; it is never
// dropped.
type ItemLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewItemLocks creates an empty lock table.
func NewItemLocks() *ItemLocks {
	return &ItemLocks{held: make(map[string]chan struct{})}
}

// Lock blocks until key is free and returns its unlock function.
func (l *ItemLocks) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		done, busy := l.held[key]
		if !busy {
			done = make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Held reports whether key is currently locked.
func (l *ItemLocks) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
