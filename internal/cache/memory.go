package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no Redis address is configured.
// Expired entries are dropped by Set, at most once per ttl.
type MemoryStore[T any] struct {
	mu        sync.RWMutex
	ttl       time.Duration
	entries   map[string]memoryEntry[T]
	now       func() time.Time
	nextSweep time.Time
}

type memoryEntry[T any] struct {
	entry     Entry[T]
	expiresAt time.Time
}

func NewMemoryStore[T any](ttl time.Duration) *MemoryStore[T] {
	return &MemoryStore[T]{
		ttl:     ttl,
		entries: make(map[string]memoryEntry[T]),
		now:     time.Now,
	}
}

func (m *MemoryStore[T]) Get(_ context.Context, key string) (Entry[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expiresAt) {
		return Entry[T]{}, ErrCacheMiss
	}
	return e.entry, nil
}

func (m *MemoryStore[T]) Set(_ context.Context, key string, entry Entry[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !now.Before(m.nextSweep) {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.nextSweep = now.Add(m.ttl)
	}
	m.entries[key] = memoryEntry[T]{entry: entry, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *MemoryStore[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

type MemoryGenerations struct {
	mu   sync.Mutex
	gens map[string]uint64
}

func NewMemoryGenerations() *MemoryGenerations {
	return &MemoryGenerations{gens: make(map[string]uint64)}
}

func (g *MemoryGenerations) Current(_ context.Context, deps ...string) ([]uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	stamp := make([]uint64, len(deps))
	for i, d := range deps {
		stamp[i] = g.gens[d]
	}
	return stamp, nil
}

func (g *MemoryGenerations) Bump(_ context.Context, dep string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gens[dep]++
	return g.gens[dep], nil
}
