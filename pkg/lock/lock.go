// Package lock serialises check-then-write sequences per tenant. Locks are
// scoped to a single school id so unrelated tenants never contend.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when the lock could not be acquired before the context ended.
var ErrTimeout = errors.New("tenant lock wait timed out")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker acquires an exclusive per-tenant write lock.
type Locker interface {
	Lock(ctx context.Context, tenantID string) (Unlock, error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker. Waiters honour context cancellation.
type Local struct {
	mu      sync.Mutex
	tenants map[string]*localEntry
}

// NewLocal constructs an in-process tenant locker.
func NewLocal() *Local {
	return &Local{tenants: make(map[string]*localEntry)}
}

// Lock blocks until the tenant lock is free or ctx is done.
func (l *Local) Lock(ctx context.Context, tenantID string) (Unlock, error) {
	l.mu.Lock()
	entry, ok := l.tenants[tenantID]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.tenants[tenantID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(tenantID, entry, false)
		return nil, errors.Join(ErrTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(tenantID, entry, true) })
	}, nil
}

func (l *Local) release(tenantID string, entry *localEntry, held bool) {
	if held {
		<-entry.ch
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.tenants, tenantID)
	}
	l.mu.Unlock()
}
