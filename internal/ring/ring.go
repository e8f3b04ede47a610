// Package ring provides the fixed-capacity windows used by the detectors.
// Oldest values are overwritten once the buffer is full.
package ring

// Buffer is a fixed-size circular buffer. Not safe for concurrent use.
type Buffer[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// New creates a buffer holding at most capacity values.
// Panics on a non-positive capacity; window sizes are validated by config.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, dropping the oldest value when full.
// Returns true if a value was dropped.
func (b *Buffer[T]) Push(v T) bool {
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	if b.count == len(b.data) {
		return true
	}
	b.count++
	return false
}

// Len returns the number of stored values.
func (b *Buffer[T]) Len() int { return b.count }

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the buffer is at capacity.
func (b *Buffer[T]) Full() bool { return b.count == len(b.data) }

// At returns the i-th value counting from the oldest.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.count {
		panic("ring: index out of range")
	}
	return b.data[(b.tail()+i)%len(b.data)]
}

// Newest returns the most recently pushed value.
func (b *Buffer[T]) Newest() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.At(b.count - 1), true
}

// Slice copies all values, oldest first.
func (b *Buffer[T]) Slice() []T {
	return b.Last(b.count)
}

// Last copies the newest n values (fewer if not enough are stored), oldest first.
func (b *Buffer[T]) Last(n int) []T {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := b.count - n
	for i := range out {
		out[i] = b.At(start + i)
	}
	return out
}

// Clear removes every value.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.count = 0
}

func (b *Buffer[T]) tail() int {
	return (b.head - b.count + len(b.data)) % len(b.data)
}
