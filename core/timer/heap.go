// Package timer implements a keyed min-heap of expiry deadlines.
package timer

import "time"

// TimeoutFunc is invoked with the key of an expired node
type TimeoutFunc func(key int)

type node struct {
	key     int
	expires time.Time
	cb      TimeoutFunc
}

// HeapTimer orders nodes by expiry and indexes them by key.
//
// Each key appears at most once. HeapTimer is not safe for concurrent use;
// it belongs to the goroutine that runs the event loop.
type HeapTimer struct {
	heap []node
	ref  map[int]int
	now  func() time.Time
}

// Option configures a HeapTimer
type Option func(*HeapTimer)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *HeapTimer) { t.now = now }
}

// New creates an empty timer
func New(opts ...Option) *HeapTimer {
	t := &HeapTimer{
		heap: make([]node, 0, 64),
		ref:  make(map[int]int, 64),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add schedules cb for key after timeout. An existing node for key gets the
// new deadline and callback.
func (t *HeapTimer) Add(key int, timeout time.Duration, cb TimeoutFunc) {
	expires := t.now().Add(timeout)
	if i, ok := t.ref[key]; ok {
		t.heap[i].expires = expires
		t.heap[i].cb = cb
		t.fix(i)
		return
	}
	i := len(t.heap)
	t.heap = append(t.heap, node{key: key, expires: expires, cb: cb})
	t.ref[key] = i
	t.siftUp(i)
}

// Adjust moves the deadline of key to now+timeout. It reports false when
// key is not scheduled.
func (t *HeapTimer) Adjust(key int, timeout time.Duration) bool {
	i, ok := t.ref[key]
	if !ok {
		return false
	}
	t.heap[i].expires = t.now().Add(timeout)
	t.fix(i)
	return true
}

// Remove cancels key without running its callback
func (t *HeapTimer) Remove(key int) bool {
	i, ok := t.ref[key]
	if !ok {
		return false
	}
	t.del(i)
	return true
}

// DoWork removes key and runs its callback immediately
func (t *HeapTimer) DoWork(key int) {
	i, ok := t.ref[key]
	if !ok {
		return
	}
	n := t.heap[i]
	t.del(i)
	if n.cb != nil {
		n.cb(n.key)
	}
}

// Tick runs the callbacks of every expired node. Each node leaves the heap
// before its callback runs.
func (t *HeapTimer) Tick() {
	for len(t.heap) > 0 {
		n := t.heap[0]
		if n.expires.After(t.now()) {
			return
		}
		t.del(0)
		if n.cb != nil {
			n.cb(n.key)
		}
	}
}

// Pop removes the earliest node without running it
func (t *HeapTimer) Pop() {
	if len(t.heap) > 0 {
		t.del(0)
	}
}

// NextTick runs Tick and returns the milliseconds until the next deadline,
// or -1 when nothing is scheduled.
func (t *HeapTimer) NextTick() int {
	t.Tick()
	if len(t.heap) == 0 {
		return -1
	}
	d := t.heap[0].expires.Sub(t.now())
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}

// Len returns the number of scheduled keys
func (t *HeapTimer) Len() int {
	return len(t.heap)
}

// Clear drops every node without running callbacks
func (t *HeapTimer) Clear() {
	clear(t.heap)
	t.heap = t.heap[:0]
	clear(t.ref)
}

func (t *HeapTimer) less(i, j int) bool {
	return t.heap[i].expires.Before(t.heap[j].expires)
}

func (t *HeapTimer) swap(i, j int) {
	t.heap[i], t.heap[j] = t.heap[j], t.heap[i]
	t.ref[t.heap[i].key] = i
	t.ref[t.heap[j].key] = j
}

func (t *HeapTimer) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !t.less(i, parent) {
			return
		}
		t.swap(i, parent)
		i = parent
	}
}

// siftDown reports whether the node at i moved
func (t *HeapTimer) siftDown(i int) bool {
	start := i
	n := len(t.heap)
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if r := child + 1; r < n && t.less(r, child) {
			child = r
		}
		if !t.less(child, i) {
			break
		}
		t.swap(i, child)
		i = child
	}
	return i > start
}

func (t *HeapTimer) fix(i int) {
	if !t.siftDown(i) {
		t.siftUp(i)
	}
}

func (t *HeapTimer) del(i int) {
	last := len(t.heap) - 1
	if i != last {
		t.swap(i, last)
	}
	delete(t.ref, t.heap[last].key)
	t.heap[last] = node{}
	t.heap = t.heap[:last]
	if i < last {
		t.fix(i)
	}
}
