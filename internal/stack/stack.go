// Package stack provides a bounded LIFO stack that evicts its oldest
// entry when full.
package stack

// Bounded is a LIFO stack holding at most Cap items. It is not safe for
// concurrent use.
type Bounded[T any] struct {
	items []T
	limit int
}

// New returns an empty stack holding at most limit items. A limit below
// one is treated as one.
func New[T any](limit int) *Bounded[T] {
	if limit < 1 {
		limit = 1
	}
	return &Bounded[T]{limit: limit}
}

// Push adds v to the top. If the stack was full, the oldest item is
// removed and returned with evicted set to true.
func (s *Bounded[T]) Push(v T) (oldest T, evicted bool) {
	if len(s.items) == s.limit {
		oldest = s.items[0]
		var zero T
		s.items[0] = zero
		s.items = s.items[1:]
		evicted = true
	}
	s.items = append(s.items, v)
	return oldest, evicted
}

// Pop removes and returns the top item.
func (s *Bounded[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	n := len(s.items) - 1
	v := s.items[n]
	s.items[n] = zero
	s.items = s.items[:n]
	return v, true
}

// Peek returns the top item without removing it.
func (s *Bounded[T]) Peek() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Clear removes every item.
func (s *Bounded[T]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

func (s *Bounded[T]) Len() int { return len(s.items) }
func (s *Bounded[T]) Cap() int { return s.limit }

// Items returns the items from oldest to newest. The slice is a copy.
func (s *Bounded[T]) Items() []T {
	return append([]T(nil), s.items...)
}
