package services

// Pool is a bounded free list. Items released while the free list is full
// wait in an overflow list until Trim drops them, so releasing never blocks
// on cleanup.
type Pool[T any] struct {
	capacity int
	free     []T
	overflow []T
	newFn    func() T
	resetFn  func(T) T
}

// NewPool creates a pool holding up to capacity idle items
func NewPool[T any](capacity int, newFn func() T, resetFn func(T) T) *Pool[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool[T]{
		capacity: capacity,
		free:     make([]T, 0, capacity),
		newFn:    newFn,
		resetFn:  resetFn,
	}
}

// Acquire returns an idle item, preferring overflow so it drains first
func (p *Pool[T]) Acquire() T {
	if n := len(p.overflow); n > 0 {
		item := p.overflow[n-1]
		p.overflow = p.overflow[:n-1]
		return item
	}
	if n := len(p.free); n > 0 {
		item := p.free[n-1]
		p.free = p.free[:n-1]
		return item
	}
	return p.newFn()
}

// Release hands an item back to the pool
func (p *Pool[T]) Release(item T) {
	if p.resetFn != nil {
		item = p.resetFn(item)
	}
	if len(p.free) < p.capacity {
		p.free = append(p.free, item)
		return
	}
	p.overflow = append(p.overflow, item)
}

// Trim drops up to max overflow items and returns how many were dropped
func (p *Pool[T]) Trim(max int) int {
	n := len(p.overflow)
	if max < n {
		n = max
	}
	if n <= 0 {
		return 0
	}
	keep := len(p.overflow) - n
	var zero T
	for i := keep; i < len(p.overflow); i++ {
		p.overflow[i] = zero
	}
	p.overflow = p.overflow[:keep]
	return n
}

// Idle returns the number of pooled items, overflow included
func (p *Pool[T]) Idle() int {
	return len(p.free) + len(p.overflow)
}

// Overflow returns the number of items waiting to be trimmed
func (p *Pool[T]) Overflow() int {
	return len(p.overflow)
}
