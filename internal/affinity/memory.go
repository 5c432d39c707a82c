package affinity

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryLimit caps how many entries the in-process store keeps. The least
// recently used entry is evicted beyond that.
const memoryLimit = 10000

type memoryEntry struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// memoryStore is an LRU map with per-entry expiry.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // Front is most recently used.
	nowFn   func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		nowFn:   time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, key string, ttl time.Duration) (Entry, bool, error) {
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	element, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	stored := element.Value.(*memoryEntry)
	if now.After(stored.expiresAt) {
		s.order.Remove(element)
		delete(s.entries, key)
		return Entry{}, false, nil
	}
	// Sliding TTL: a hit restarts the clock.
	if ttl > 0 {
		stored.expiresAt = now.Add(ttl)
	}
	s.order.MoveToFront(element)
	return stored.entry, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if element, ok := s.entries[key]; ok {
		stored := element.Value.(*memoryEntry)
		stored.entry = entry
		stored.expiresAt = now.Add(ttl)
		s.order.MoveToFront(element)
		return nil
	}
	element := s.order.PushFront(&memoryEntry{key: key, entry: entry, expiresAt: now.Add(ttl)})
	s.entries[key] = element
	if s.order.Len() > memoryLimit {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if element, ok := s.entries[key]; ok {
		s.order.Remove(element)
		delete(s.entries, key)
	}
	return nil
}
