//go:build linux

package buffer

import (
	"golang.org/x/sys/unix"
)

// ReadFd performs one scatter read into the writable tail plus a spill
// region. When the data fits the tail only the write cursor moves; otherwise
// the buffer grows and the spilled bytes are appended.
func (b *Buffer) ReadFd(fd int) (int, error) {
	spill := getSpill()
	defer putSpill(spill)

	writable := b.Writable()
	iovs := [][]byte{b.buf[b.writePos:], spill}
	if writable == 0 {
		iovs = iovs[1:]
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return -1, err
	}
	if n <= writable {
		b.writePos += n
		return n, nil
	}
	b.writePos = len(b.buf)
	b.Append(spill[:n-writable])
	return n, nil
}

// WriteFd writes the readable window once and consumes what the kernel took.
// A short write is not an error; callers loop on their own schedule.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return -1, err
	}
	b.readPos += n
	return n, nil
}
