package types

import "sync"

// Set is a concurrency-safe set of comparable values.
type Set[T comparable] struct {
	mu    sync.RWMutex
	items map[T]struct{}
}

func NewSet[T comparable](items ...T) *Set[T] {
	set := &Set[T]{items: make(map[T]struct{})}
	for _, item := range items {
		set.items[item] = struct{}{}
	}
	return set
}

func (s *Set[T]) Insert(items ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item] = struct{}{}
	}
}

func (s *Set[T]) Exists(item T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.items[item]
	return found
}

func (s *Set[T]) Remove(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, item)
}

func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Set[T]) Array() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]T, 0, len(s.items))
	for item := range s.items {
		items = append(items, item)
	}
	return items
}
