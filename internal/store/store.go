// Package store holds the typed key-value store: one mapping per lattice type
// from keys to lattice values, with merge-on-write semantics.
package store

import "github.com/hydro-project/anna/internal/lattice"

// Store maps keys to lattice values of a single type. Put merges rather than
// overwrites, so replaying any prefix of puts yields the join of their values.
type Store[V lattice.Lattice[V]] struct {
	db lattice.Map[V]
}

// New returns an empty typed store.
func New[V lattice.Lattice[V]]() *Store[V] {
	return &Store[V]{db: lattice.NewMap[V]()}
}

// Get returns the value stored at key, or ok=false when the key is absent.
func (s *Store[V]) Get(key string) (V, bool) {
	return s.db.At(key)
}

// Put merges v into the stored value, installing it when absent.
func (s *Store[V]) Put(key string, v V) {
	s.db.Insert(key, v)
}

// Size returns the byte cost of the value at key, zero when absent.
func (s *Store[V]) Size(key string) int {
	v, ok := s.db.At(key)
	if !ok {
		return 0
	}
	return v.Size()
}

// Remove drops the entry at key.
func (s *Store[V]) Remove(key string) {
	s.db.Remove(key)
}

// Len returns the number of stored keys.
func (s *Store[V]) Len() int { return len(s.db) }

// Keys returns all stored keys.
func (s *Store[V]) Keys() []string {
	out := make([]string, 0, len(s.db))
	for k := range s.db {
		out = append(out, k)
	}
	return out
}
