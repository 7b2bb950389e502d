package snapshot

import "sync"

// Store holds the latest value per key. Values come back in first-seen key
// order; re-upserting a key keeps its position and replaces its value.
type Store[K comparable, V any] struct {
	mu     sync.RWMutex
	index  map[K]int
	keys   []K
	values []V
}

func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{index: make(map[K]int)}
}

// Upsert sets the value for key and reports whether the key was new.
func (s *Store[K, V]) Upsert(key K, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[key]; ok {
		s.values[i] = value
		return false
	}
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, key)
	s.values = append(s.values, value)
	return true
}

func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return s.values[i], true
}

func (s *Store[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]V(nil), s.values...)
}

func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]K(nil), s.keys...)
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
