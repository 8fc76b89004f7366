package cache

import "slices"

// ReplayIterator is a resumable cursor over a snapshot of a sequence.
// The snapshot is copied at construction so later mutations of the source
// slice are never observed.
type ReplayIterator[T any] struct {
	items    []T
	position int
}

// NewReplayIterator snapshots items and positions the cursor at the first element.
func NewReplayIterator[T any](items []T) *ReplayIterator[T] {
	return &ReplayIterator[T]{items: slices.Clone(items)}
}

// Peek returns the element under the cursor without advancing.
func (it *ReplayIterator[T]) Peek() (T, bool) {
	if it.Done() {
		var zero T
		return zero, false
	}
	return it.items[it.position], true
}

// Advance moves the cursor one position forward. It is a no-op at the end.
func (it *ReplayIterator[T]) Advance() {
	if !it.Done() {
		it.position++
	}
}

// Next returns the element under the cursor and advances past it.
func (it *ReplayIterator[T]) Next() (T, bool) {
	v, ok := it.Peek()
	if ok {
		it.Advance()
	}
	return v, ok
}

// NextMatch skips elements failing match and returns, consuming it, the first
// element that satisfies it. When nothing matches the cursor ends up at the end.
func (it *ReplayIterator[T]) NextMatch(match func(T) bool) (T, bool) {
	it.FastForward(match)
	return it.Next()
}

// FastForward advances while the element under the cursor does not satisfy
// stop. The first satisfying element is left unconsumed.
func (it *ReplayIterator[T]) FastForward(stop func(T) bool) {
	for !it.Done() {
		if stop(it.items[it.position]) {
			return
		}
		it.position++
	}
}

// ForEachRemaining consumes elements one at a time and hands each to fn.
// Returning false from fn stops the walk; the element passed to that call is
// already consumed, so a later call resumes right after it.
func (it *ReplayIterator[T]) ForEachRemaining(fn func(T) bool) {
	for {
		v, ok := it.Next()
		if !ok || !fn(v) {
			return
		}
	}
}

// Position reports how many elements have been consumed or skipped.
func (it *ReplayIterator[T]) Position() int {
	return it.position
}

// Len returns the size of the snapshot.
func (it *ReplayIterator[T]) Len() int {
	return len(it.items)
}

// Done reports whether the cursor is past the last element.
func (it *ReplayIterator[T]) Done() bool {
	return it.position >= len(it.items)
}
