package aggregator

import "sync"

// CircularBuffer is a thread-safe, fixed-size buffer that overwrites the
// oldest entry when full. Ordering is FIFO: reads return oldest first.
//
// Each subject record keeps its last N signals here.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int // Index where next element will be written
	tail     int // Index of oldest element
}

// NewCircularBuffer creates a buffer with the given capacity.
//
// Panics if capacity is less than 1.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity < 1 {
		panic("CircularBuffer capacity must be at least 1")
	}
	return &CircularBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an element. If the buffer is full the oldest element is
// overwritten and returned with evicted=true.
func (b *CircularBuffer[T]) Push(item T) (old T, evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		old, evicted = b.data[b.tail], true
	}

	b.data[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	} else {
		// Buffer is full, move tail forward (oldest element overwritten)
		b.tail = (b.tail + 1) % b.capacity
	}
	return old, evicted
}

// GetAll returns all elements ordered from oldest to newest.
// The returned slice is a copy and safe to modify.
func (b *CircularBuffer[T]) GetAll() []T {
	return b.GetLast(b.capacity)
}

// GetLast returns the n most recent elements, oldest first.
// If n exceeds the current size, all available elements are returned.
func (b *CircularBuffer[T]) GetLast(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.size == 0 {
		return []T{}
	}
	if n > b.size {
		n = b.size
	}

	result := make([]T, n)
	startOffset := b.size - n
	for i := 0; i < n; i++ {
		result[i] = b.data[(b.tail+startOffset+i)%b.capacity]
	}
	return result
}

// Filter returns, oldest first, the elements for which keep returns true.
func (b *CircularBuffer[T]) Filter(keep func(T) bool) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		item := b.data[(b.tail+i)%b.capacity]
		if keep(item) {
			result = append(result, item)
		}
	}
	return result
}

// Peek returns the most recent element. ok is false when the buffer is empty.
func (b *CircularBuffer[T]) Peek() (item T, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return item, false
	}
	return b.data[(b.head-1+b.capacity)%b.capacity], true
}

// PeekOldest returns the oldest element. ok is false when the buffer is empty.
func (b *CircularBuffer[T]) PeekOldest() (item T, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return item, false
	}
	return b.data[b.tail], true
}

// Size returns the current number of elements.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of elements.
func (b *CircularBuffer[T]) Capacity() int {
	return b.capacity // Immutable, no lock needed
}

// IsFull reports whether the buffer is at capacity.
func (b *CircularBuffer[T]) IsFull() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size == b.capacity
}

// Clear removes all elements.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.size = 0
	b.head = 0
	b.tail = 0
}
