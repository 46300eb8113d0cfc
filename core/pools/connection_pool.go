package pools

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by objects that clear themselves before reuse
type Poolable interface {
	Reset()
}

// ConnectionPool recycles connection objects through an explicit free list.
//
// Objects are preallocated in blocks: initCapacity up front, then increment
// more each time the free list runs dry, doubling the block size on every
// growth. Locking is optional because the reactor is normally the only
// goroutine calling Get and Put.
type ConnectionPool[T any] struct {
	newFunc   func() T
	free      []T
	increment int
	locked    bool
	mu        sync.Mutex

	gets   atomic.Uint64
	puts   atomic.Uint64
	allocs atomic.Uint64
}

// NewConnectionPool creates a pool with initCapacity objects ready to hand out
func NewConnectionPool[T any](initCapacity, increment int, locked bool, newFunc func() T) *ConnectionPool[T] {
	if increment <= 0 {
		increment = 128
	}
	cp := &ConnectionPool[T]{
		newFunc:   newFunc,
		increment: increment,
		locked:    locked,
	}
	cp.grow(initCapacity)
	return cp
}

func (cp *ConnectionPool[T]) grow(n int) {
	if cap(cp.free)-len(cp.free) < n {
		free := make([]T, len(cp.free), len(cp.free)+n)
		copy(free, cp.free)
		cp.free = free
	}
	for i := 0; i < n; i++ {
		cp.free = append(cp.free, cp.newFunc())
	}
	cp.allocs.Add(uint64(n))
}

// Get takes an object off the free list, growing the pool if it is empty
func (cp *ConnectionPool[T]) Get() T {
	if cp.locked {
		cp.mu.Lock()
		defer cp.mu.Unlock()
	}
	cp.gets.Add(1)

	if len(cp.free) == 0 {
		cp.grow(cp.increment)
		cp.increment *= 2
	}
	last := len(cp.free) - 1
	obj := cp.free[last]
	var zero T
	cp.free[last] = zero
	cp.free = cp.free[:last]
	return obj
}

// Put resets obj and returns it to the free list
func (cp *ConnectionPool[T]) Put(obj T) {
	if p, ok := any(obj).(Poolable); ok {
		p.Reset()
	}
	if cp.locked {
		cp.mu.Lock()
		defer cp.mu.Unlock()
	}
	cp.puts.Add(1)
	cp.free = append(cp.free, obj)
}

// Idle returns the number of objects on the free list
func (cp *ConnectionPool[T]) Idle() int {
	if cp.locked {
		cp.mu.Lock()
		defer cp.mu.Unlock()
	}
	return len(cp.free)
}

// ConnectionPoolStats contains pool statistics
type ConnectionPoolStats struct {
	Gets   uint64 `json:"gets"`
	Puts   uint64 `json:"puts"`
	Allocs uint64 `json:"allocs"`
}

// Stats returns pool statistics
func (cp *ConnectionPool[T]) Stats() ConnectionPoolStats {
	return ConnectionPoolStats{
		Gets:   cp.gets.Load(),
		Puts:   cp.puts.Load(),
		Allocs: cp.allocs.Load(),
	}
}
