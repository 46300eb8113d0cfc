// Package buffer implements the growable read/write cursor buffer used to
// stage inbound request bytes and outbound response headers.
package buffer

import (
	"errors"

	"github.com/searchktools/reactor-server/core/pools"
)

// DefaultSize is the initial capacity of a connection buffer
const DefaultSize = 1024

// spillSize bounds how much a single readv can pull past the writable tail
const spillSize = 65535

// ErrRetrieveOverflow is returned when retrieving more bytes than are readable
var ErrRetrieveOverflow = errors.New("buffer: retrieve past readable bytes")

// Buffer is a byte buffer with separate read and write cursors.
//
//	| prependable | readable | writable |
//	0          readPos    writePos     cap
//
// It is owned by a single connection and is not safe for concurrent use.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New creates a buffer with the given initial capacity
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// Readable returns the number of bytes available to read
func (b *Buffer) Readable() int {
	return b.writePos - b.readPos
}

// Writable returns the number of bytes that can be written without growing
func (b *Buffer) Writable() int {
	return len(b.buf) - b.writePos
}

// Prependable returns the number of already-consumed bytes before the read cursor
func (b *Buffer) Prependable() int {
	return b.readPos
}

// Cap returns the total backing capacity
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Peek returns the readable window. The slice aliases the buffer and is only
// valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readPos:b.writePos]
}

// BeginWrite returns the writable tail
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.writePos:]
}

// HasWritten advances the write cursor after a direct write into BeginWrite
func (b *Buffer) HasWritten(n int) {
	b.writePos += n
}

// Retrieve consumes n readable bytes
func (b *Buffer) Retrieve(n int) error {
	if n < 0 || n > b.Readable() {
		return ErrRetrieveOverflow
	}
	b.readPos += n
	return nil
}

// RetrieveUntil consumes bytes up to offset end, relative to Peek()
func (b *Buffer) RetrieveUntil(end int) error {
	return b.Retrieve(end)
}

// RetrieveAll resets both cursors and zeroes the storage so stale bytes never
// leak into the next message on a reused connection.
func (b *Buffer) RetrieveAll() {
	clear(b.buf)
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString returns the readable bytes as a string and resets the buffer
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies p into the buffer, making room as needed
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	n := copy(b.buf[b.writePos:], p)
	b.HasWritten(n)
}

// AppendString copies s into the buffer
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	n := copy(b.buf[b.writePos:], s)
	b.HasWritten(n)
}

// EnsureWritable guarantees Writable() >= n
func (b *Buffer) EnsureWritable(n int) {
	if b.Writable() < n {
		b.makeSpace(n)
	}
}

// makeSpace compacts unread bytes to offset 0 when the total free space is
// enough, and grows the backing array otherwise.
func (b *Buffer) makeSpace(n int) {
	if b.Writable()+b.Prependable() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}
	readable := b.Readable()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

var spillPool = pools.NewBytePool()

func getSpill() []byte {
	return spillPool.Get(spillSize)
}

func putSpill(p []byte) {
	spillPool.Put(p)
}

// SpillStats reports usage of the pool backing the readv spill region
func SpillStats() pools.BytePoolStats {
	return spillPool.Stats()
}
