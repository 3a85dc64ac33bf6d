package cache

import (
	"sync"
	"time"
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Store is a bounded in-memory map whose entries expire after a TTL. When
// full, the oldest entry makes room for the new one.
type Store[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func New[K comparable, V any](config Config) *Store[K, V] {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store[K, V]{
		entries:    make(map[K]entry[V]),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        config.Now,
	}
}

func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	item, exists := s.entries[key]
	s.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if s.now().Sub(item.storedAt) > s.ttl {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

// Set stores value under key and restarts its TTL.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = entry[V]{value: value, storedAt: s.now()}
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[K, V]) evictOldest() {
	var (
		oldestKey K
		oldestAt  time.Time
		found     bool
	)
	for key, item := range s.entries {
		if !found || item.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, item.storedAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
