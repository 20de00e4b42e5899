// Package lock serializes maintenance operations (merges, bulk prunes) on a
// category type.
package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive named locks. Acquire blocks until the lock is
// free or ctx is done; the returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// TypeKey is the lock name used for single-writer-per-type maintenance
func TypeKey(nodeType string) string {
	return "cattree:lock:type:" + nodeType
}

// Local is an in-process Locker
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocal creates an empty in-process locker
func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
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
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
