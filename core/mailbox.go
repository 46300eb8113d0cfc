//go:build linux

package core

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// action is what a worker asks the reactor to do with its connection
type action uint8

const (
	actionArmRead action = iota
	actionArmWrite
	actionClose
)

func (a action) String() string {
	switch a {
	case actionArmRead:
		return "arm-read"
	case actionArmWrite:
		return "arm-write"
	case actionClose:
		return "close"
	}
	return "unknown"
}

// completion reports a finished job. gen guards against a connection that
// was recycled while the job ran.
type completion struct {
	conn   *Connection
	gen    uint64
	action action
}

// mailbox carries completions from workers to the reactor. Posting to an
// empty queue signals an eventfd the reactor polls.
type mailbox struct {
	fd     int
	mu     sync.Mutex
	queue  []completion
	spare  []completion
	closed bool
}

func newMailbox() (*mailbox, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &mailbox{
		fd:    fd,
		queue: make([]completion, 0, 64),
		spare: make([]completion, 0, 64),
	}, nil
}

func (m *mailbox) post(c completion) {
	m.mu.Lock()
	m.queue = append(m.queue, c)
	first := len(m.queue) == 1
	m.mu.Unlock()

	if first {
		m.wake()
	}
}

// wake makes the eventfd readable. It is a no-op after close, so a late
// cancellation callback cannot write to a recycled descriptor.
func (m *mailbox) wake() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		_, _ = unix.Write(m.fd, one[:])
	}
}

// drain resets the eventfd and returns every queued completion. The slice
// is valid until the next drain.
func (m *mailbox) drain() []completion {
	var counter [8]byte
	_, _ = unix.Read(m.fd, counter[:])

	m.mu.Lock()
	out := m.queue
	clear(m.spare)
	m.queue = m.spare[:0]
	m.spare = out
	m.mu.Unlock()
	return out
}

func (m *mailbox) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return unix.Close(m.fd)
}
