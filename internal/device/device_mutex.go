package device

import (
	"context"
	"sync"
)

// providerLocks serializes batches per provider. Unlike a plain mutex, a batch
// waiting for a busy provider can be abandoned through its context.
type providerLocks struct {
	mtx   sync.Mutex
	slots map[uint32]chan struct{}
}

func (l *providerLocks) slot(id uint32) chan struct{} {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.slots == nil {
		l.slots = make(map[uint32]chan struct{})
	}
	s, ok := l.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[id] = s
	}
	return s
}

// acquire blocks until the provider is free or ctx is done. The returned
// function releases the provider.
func (l *providerLocks) acquire(ctx context.Context, id uint32) (func(), error) {
	s := l.slot(id)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
