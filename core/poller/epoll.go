//go:build linux

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event flags
const (
	In      = uint32(unix.EPOLLIN)
	Out     = uint32(unix.EPOLLOUT)
	RDHup   = uint32(unix.EPOLLRDHUP)
	Hup     = uint32(unix.EPOLLHUP)
	Err     = uint32(unix.EPOLLERR)
	ET      = uint32(unix.EPOLLET)
	OneShot = uint32(unix.EPOLLONESHOT)
)

// DefaultMaxEvents is the batch size used when none is given
const DefaultMaxEvents = 1024

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
	n      int
}

// NewPoller creates an epoll instance reporting up to maxEvents per Wait
func NewPoller(maxEvents int) (*EpollPoller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (p *EpollPoller) ctl(op, fd int, events uint32) error {
	if fd < 0 {
		return ErrBadFD
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

// Add registers fd with the given interest mask
func (p *EpollPoller) Add(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

// Modify replaces the interest mask of fd. For one-shot descriptors this is
// the re-arm operation.
func (p *EpollPoller) Modify(fd int, events uint32) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

// Remove unregisters fd
func (p *EpollPoller) Remove(fd int) error {
	if fd < 0 {
		return ErrBadFD
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one event is ready or timeoutMs elapses
// (-1 waits forever). An interrupted wait reports zero events.
func (p *EpollPoller) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		p.n = 0
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.n = n
	return n, nil
}

// EventFD returns the descriptor of the i-th event of the last batch
func (p *EpollPoller) EventFD(i int) int {
	if i < 0 || i >= p.n {
		panic(fmt.Sprintf("poller: event index %d out of range [0,%d)", i, p.n))
	}
	return int(p.events[i].Fd)
}

// EventFlags returns the readiness flags of the i-th event of the last batch
func (p *EpollPoller) EventFlags(i int) uint32 {
	if i < 0 || i >= p.n {
		panic(fmt.Sprintf("poller: event index %d out of range [0,%d)", i, p.n))
	}
	return p.events[i].Events
}

// Close closes the epoll instance
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}

var _ Poller = (*EpollPoller)(nil)
