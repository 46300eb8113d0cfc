//go:build linux

package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/buffer"
	"github.com/searchktools/reactor-server/core/http"
	"github.com/searchktools/reactor-server/core/router"
)

// ProcessResult is the outcome of one Process call
type ProcessResult int

const (
	// ProcessIdle means no complete request is buffered; keep reading
	ProcessIdle ProcessResult = iota
	// ProcessReady means a response is staged for writing
	ProcessReady
	// ProcessBadRequest means a 400 response is staged and the connection
	// closes after it is written
	ProcessBadRequest
)

// Connection is one accepted client socket with its buffers and the
// request/response pair currently in progress.
//
// At most one worker touches a Connection at a time: the descriptor is
// one-shot and is only re-armed by the reactor after the worker's
// completion arrives. The inflight and expired fields belong to the reactor.
type Connection struct {
	fd     int
	addr   string
	id     uuid.UUID
	gen    uint64
	closed atomic.Bool

	root string
	et   bool

	readBuf   *buffer.Buffer
	writeBuf  *buffer.Buffer
	iov       [2][]byte
	req       *http.Request
	resp      *http.Response
	keepAlive bool

	inflight bool
	expired  bool
	accepted time.Time
}

func newConnection(root string, et bool, routes *router.Router) *Connection {
	c := &Connection{
		fd:       -1,
		root:     root,
		et:       et,
		readBuf:  buffer.New(buffer.DefaultSize),
		writeBuf: buffer.New(buffer.DefaultSize),
		req:      http.NewRequest(),
		resp:     http.NewResponse(routes),
	}
	c.closed.Store(true)
	return c
}

// Init binds the connection to a freshly accepted descriptor
func (c *Connection) Init(fd int, addr string, gen uint64) {
	c.fd = fd
	c.addr = addr
	c.gen = gen
	c.id = uuid.New()
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.iov = [2][]byte{}
	c.keepAlive = false
	c.inflight = false
	c.expired = false
	c.accepted = time.Now()
	c.closed.Store(false)
}

// Reset clears per-client state before the connection is pooled
func (c *Connection) Reset() {
	c.fd = -1
	c.addr = ""
	c.id = uuid.Nil
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.iov = [2][]byte{}
	c.req.Reset()
	c.resp.UnmapFile()
	c.keepAlive = false
	c.inflight = false
	c.expired = false
}

// Close unmaps any file body and closes the descriptor. Only the first
// call does anything; it reports whether this call closed the socket.
func (c *Connection) Close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	c.resp.UnmapFile()
	_ = unix.Close(c.fd)
	return true
}

// Closed reports whether Close has run since the last Init
func (c *Connection) Closed() bool { return c.closed.Load() }

func (c *Connection) FD() int            { return c.fd }
func (c *Connection) Addr() string       { return c.addr }
func (c *Connection) ID() uuid.UUID      { return c.id }
func (c *Connection) Generation() uint64 { return c.gen }

// KeepAlive reports whether the last response keeps the connection open
func (c *Connection) KeepAlive() bool { return c.keepAlive }

// ToWriteBytes returns how much of the staged response is still unsent
func (c *Connection) ToWriteBytes() int {
	return len(c.iov[0]) + len(c.iov[1])
}

// Read pulls bytes from the socket into the read buffer. Edge-triggered
// connections read until the kernel reports EAGAIN or EOF. It returns the
// result of the last read.
func (c *Connection) Read() (int, error) {
	for {
		n, err := c.readBuf.ReadFd(c.fd)
		if n <= 0 || !c.et {
			return n, err
		}
	}
}

// Write sends the staged response with gathered writes. It keeps going
// while edge-triggered, or while more than writeThreshold bytes remain,
// and stops early on EAGAIN with -1.
func (c *Connection) Write() (int, error) {
	for {
		n, err := c.writev()
		if n <= 0 {
			return n, err
		}
		c.advance(n)
		remaining := c.ToWriteBytes()
		if remaining == 0 {
			c.resp.UnmapFile()
			return n, nil
		}
		if !c.et && remaining <= writeThreshold {
			return n, nil
		}
	}
}

func (c *Connection) writev() (int, error) {
	var iovs [][]byte
	switch {
	case len(c.iov[0]) > 0 && len(c.iov[1]) > 0:
		iovs = c.iov[:]
	case len(c.iov[0]) > 0:
		iovs = c.iov[:1]
	case len(c.iov[1]) > 0:
		iovs = c.iov[1:]
	default:
		return 0, nil
	}
	n, err := unix.Writev(c.fd, iovs)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// advance slides the iov window past n written bytes
func (c *Connection) advance(n int) {
	if head := len(c.iov[0]); n >= head {
		c.iov[1] = c.iov[1][n-head:]
		if head > 0 {
			c.writeBuf.RetrieveAll()
			c.iov[0] = nil
		}
		return
	}
	c.iov[0] = c.iov[0][n:]
	_ = c.writeBuf.Retrieve(n)
}

// Process parses the next buffered request and stages its response.
func (c *Connection) Process(ctx context.Context) ProcessResult {
	c.req.Reset()
	if c.readBuf.Readable() <= 0 {
		return ProcessIdle
	}

	result := ProcessReady
	err := c.req.Parse(c.readBuf)
	switch {
	case err == nil:
		c.keepAlive = c.req.KeepAlive()
		c.resp.Init(c.root, c.req.Path(), c.keepAlive, 200, c.req.PostForm())
	case errors.Is(err, http.ErrIncomplete):
		return ProcessIdle
	default:
		c.readBuf.RetrieveAll()
		c.keepAlive = false
		c.resp.Init(c.root, c.req.Path(), false, 400, nil)
		result = ProcessBadRequest
	}

	c.writeBuf.RetrieveAll()
	c.resp.MakeResponse(ctx, c.writeBuf)
	c.iov[0] = c.writeBuf.Peek()
	c.iov[1] = c.resp.File()
	return result
}

// Request returns the request parsed by the last Process
func (c *Connection) Request() *http.Request { return c.req }

// Response returns the response staged by the last Process
func (c *Connection) Response() *http.Response { return c.resp }
