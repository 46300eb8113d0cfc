package store

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ConnPool hands out a fixed set of connections. The semaphore counts free
// connections; the mutex guards the free list.
type ConnPool[T any] struct {
	sem  *semaphore.Weighted
	size int

	mu      sync.Mutex
	free    []T
	closed  bool
	closeFn func(T) error
}

// NewConnPool creates a pool owning conns
func NewConnPool[T any](conns []T) *ConnPool[T] {
	free := make([]T, len(conns))
	copy(free, conns)
	return &ConnPool[T]{
		sem:  semaphore.NewWeighted(int64(len(conns))),
		size: len(conns),
		free: free,
	}
}

// Acquire takes a connection, waiting until one is free or ctx is done
func (p *ConnPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrPoolExhausted, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.free) == 0 {
		p.sem.Release(1)
		return zero, ErrPoolClosed
	}
	last := len(p.free) - 1
	conn := p.free[last]
	p.free[last] = zero
	p.free = p.free[:last]
	return conn, nil
}

// Release returns conn to the pool and wakes one waiter. Connections
// released after Close are closed instead.
func (p *ConnPool[T]) Release(conn T) {
	p.mu.Lock()
	if p.closed {
		fn := p.closeFn
		p.mu.Unlock()
		if fn != nil {
			_ = fn(conn)
		}
		return
	}
	p.free = append(p.free, conn)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Free returns the number of idle connections
func (p *ConnPool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the number of connections the pool was created with
func (p *ConnPool[T]) Size() int { return p.size }

// Close closes idle connections with fn and marks the pool closed; busy
// connections are closed as they are released.
func (p *ConnPool[T]) Close(fn func(T) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.closeFn = fn
	idle := p.free
	p.free = nil
	p.mu.Unlock()

	var first error
	for _, c := range idle {
		if err := fn(c); err != nil && first == nil {
			first = err
		}
	}
	return first
}
