package ak

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// storeWeight is the semaphore capacity. A store-wide transaction takes all
// of it; a category transaction takes one unit plus its category's lock.
const storeWeight = 1 << 16

// scopeLocks serializes transactions: one writer per category, and a
// store-wide writer excludes every category writer.
type scopeLocks struct {
	store *semaphore.Weighted

	mu         sync.Mutex
	categories map[string]chan struct{}
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{
		store:      semaphore.NewWeighted(storeWeight),
		categories: make(map[string]chan struct{}),
	}
}

func (l *scopeLocks) category(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.categories[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.categories[name] = ch
	}
	return ch
}

// acquire blocks until the scope is free or ctx is done. The returned
// func releases the lock.
func (l *scopeLocks) acquire(ctx context.Context, scope Scope) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scope.IsStore() {
		if err := l.store.Acquire(ctx, storeWeight); err != nil {
			return nil, err
		}
		return func() { l.store.Release(storeWeight) }, nil
	}

	if err := l.store.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	ch := l.category(scope.Category)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		l.store.Release(1)
		return nil, ctx.Err()
	}
	return func() {
		<-ch
		l.store.Release(1)
	}, nil
}
