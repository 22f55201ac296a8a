package lock

import (
	"context"
	"sync"
)

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MutexMap is an in-process Locker with one mutex per key.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]chan struct{}
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]chan struct{}),
	}
}

func (m *MutexMap) Lock(ctx context.Context, key string) (func(), error) {
	ch := m.getMutex(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MutexMap) getMutex(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.mutexes[key]; ok {
		return ch
	}
	ch := make(chan struct{}, 1)
	m.mutexes[key] = ch
	return ch
}
