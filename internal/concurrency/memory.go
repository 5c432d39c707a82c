package concurrency

import (
	"context"
	"sync"
)

// memoryBackend keeps counters in process memory. It is the default backend
// and the fallback when Redis is unreachable.
type memoryBackend struct {
	mu       sync.Mutex
	counters map[string]int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{counters: make(map[string]int)}
}

func (b *memoryBackend) Acquire(_ context.Context, key string, limit int) (bool, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.counters[key]
	if limit > 0 && current >= limit {
		return false, current, nil
	}
	current++
	b.counters[key] = current
	return true, current, nil
}

func (b *memoryBackend) Release(_ context.Context, key string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.counters[key]
	if current <= 1 {
		delete(b.counters, key)
		return 0, nil
	}
	current--
	b.counters[key] = current
	return current, nil
}

func (b *memoryBackend) Current(_ context.Context, key string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[key], nil
}
