// Package ledger holds the bookkeeping of every relocation the engine
// performed: placements, swaps, groups and clones, each in its own
// insertion-ordered store.
package ledger

// Store is an insertion-ordered map. Re-putting an existing key replaces the
// value but keeps the key's original position. Not safe for concurrent use;
// the engine serialises access.
type Store[K comparable, V any] struct {
	index map[K]int
	keys  []K
	vals  []V
}

// NewStore returns an empty store.
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{index: make(map[K]int)}
}

// Put inserts or replaces.
func (s *Store[K, V]) Put(k K, v V) {
	if i, ok := s.index[k]; ok {
		s.vals[i] = v
		return
	}
	s.index[k] = len(s.keys)
	s.keys = append(s.keys, k)
	s.vals = append(s.vals, v)
}

// Get returns the value for k.
func (s *Store[K, V]) Get(k K) (V, bool) {
	i, ok := s.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return s.vals[i], true
}

// Has reports whether k is present.
func (s *Store[K, V]) Has(k K) bool {
	_, ok := s.index[k]
	return ok
}

// Delete removes k and reports whether it was present.
func (s *Store[K, V]) Delete(k K) bool {
	i, ok := s.index[k]
	if !ok {
		return false
	}
	delete(s.index, k)
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	s.vals = append(s.vals[:i], s.vals[i+1:]...)
	for j := i; j < len(s.keys); j++ {
		s.index[s.keys[j]] = j
	}
	return true
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int { return len(s.keys) }

// Keys returns a copy of the keys in insertion order.
func (s *Store[K, V]) Keys() []K { return append([]K(nil), s.keys...) }

// Values returns a copy of the values in insertion order.
func (s *Store[K, V]) Values() []V { return append([]V(nil), s.vals...) }

// Each calls fn in insertion order over a snapshot, so fn may mutate the
// store. Returning false stops the iteration.
func (s *Store[K, V]) Each(fn func(K, V) bool) {
	keys, vals := s.Keys(), s.Values()
	for i := range keys {
		if !fn(keys[i], vals[i]) {
			return
		}
	}
}

// Clear drops every entry.
func (s *Store[K, V]) Clear() {
	s.index = make(map[K]int)
	s.keys, s.vals = nil, nil
}
