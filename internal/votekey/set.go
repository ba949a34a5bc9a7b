package votekey

import "sort"

// Set is a membership set of VoteKeys. The zero value is not usable; use NewSet.
type Set struct {
	keys map[string]struct{}
}

// NewSet returns a set seeded with keys.
func NewSet(keys ...string) *Set {
	s := &Set{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

func (s *Set) Add(key string) { s.keys[key] = struct{}{} }

func (s *Set) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *Set) Len() int { return len(s.keys) }

// Merge adds every key of other.
func (s *Set) Merge(other *Set) {
	for k := range other.keys {
		s.keys[k] = struct{}{}
	}
}

// Sorted returns the keys in byte order.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := &Set{keys: make(map[string]struct{}, len(s.keys))}
	for k := range s.keys {
		c.keys[k] = struct{}{}
	}
	return c
}
