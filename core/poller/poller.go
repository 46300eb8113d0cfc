// Package poller wraps the kernel readiness notification facility.
package poller

import "errors"

// ErrBadFD is returned when registering a negative descriptor
var ErrBadFD = errors.New("poller: invalid file descriptor")

// Poller is the I/O multiplexing interface.
//
// Events from the last Wait are addressed by index through EventFD and
// EventFlags; indexing past the batch is a programmer error and panics.
type Poller interface {
	Add(fd int, events uint32) error
	Modify(fd int, events uint32) error
	Remove(fd int) error
	Wait(timeoutMs int) (int, error)
	EventFD(i int) int
	EventFlags(i int) uint32
	Close() error
}

// Modes returns the interest masks for the listening socket and for
// connection sockets for a trigger mode:
//
//	0: both level-triggered
//	1: connections edge-triggered
//	2: listener edge-triggered
//	3: both edge-triggered (also used for any unknown mode)
//
// Connection masks are always one-shot and report peer half-close.
func Modes(trigMode int) (listen, conn uint32) {
	listen = RDHup
	conn = OneShot | RDHup
	switch trigMode {
	case 0:
	case 1:
		conn |= ET
	case 2:
		listen |= ET
	default:
		listen |= ET
		conn |= ET
	}
	return listen, conn
}
