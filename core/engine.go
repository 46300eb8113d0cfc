//go:build linux

package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/observability"
	"github.com/searchktools/reactor-server/core/poller"
	"github.com/searchktools/reactor-server/core/pools"
	"github.com/searchktools/reactor-server/core/router"
	"github.com/searchktools/reactor-server/core/timer"
)

// Options configures an Engine. Zero values fall back to the package
// defaults; Port has no default.
type Options struct {
	Port       int
	TrigMode   int
	Timeout    time.Duration // idle timeout, 0 disables eviction
	OpenLinger bool
	RootDir    string
	MaxConns   int

	Workers      int // 0 means one per CPU
	InitCapacity int
	Increment    int
	PoolLocked   bool
	MaxEvents    int
}

// Option injects a collaborator into the engine
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRouter sets the table of reserved paths
func WithRouter(r *router.Router) Option {
	return func(e *Engine) { e.routes = r }
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMonitor sets the per-route latency monitor
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

type jobKind uint8

const (
	jobRead jobKind = iota
	jobWrite
)

type job struct {
	kind jobKind
	conn *Connection
	gen  uint64
}

// Engine is the reactor: one goroutine waits on epoll, accepts clients,
// runs the idle timer and hands ready connections to the worker pool.
//
// Only the reactor goroutine touches the poller, the timer and the
// connection registry. Workers report back through the mailbox.
type Engine struct {
	opts    Options
	log     *zap.Logger
	routes  *router.Router
	metrics *observability.Metrics
	monitor *observability.Monitor

	poller       poller.Poller
	timer        *timer.HeapTimer
	workers      *pools.WorkerPool[job]
	conns        *pools.ConnectionPool[*Connection]
	mailbox      *mailbox
	registry     []*Connection
	listenFd     int
	listenEvents uint32
	connEvents   uint32
	nextGen      uint64
	ctx          context.Context

	started  atomic.Bool
	ready    chan struct{}
	addr     atomic.Pointer[string]
	active   atomic.Int64
	accepted atomic.Uint64
}

// NewEngine validates opts and prepares an engine; Run starts it
func NewEngine(opts Options, deps ...Option) (*Engine, error) {
	if opts.Port < 1024 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, opts.Port)
	}
	if opts.MaxConns < 0 || opts.Timeout < 0 || opts.Workers < 0 {
		return nil, ErrInvalidOptions
	}
	if opts.MaxConns == 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.InitCapacity <= 0 {
		opts.InitCapacity = DefaultInitCapacity
	}
	if opts.Increment <= 0 {
		opts.Increment = DefaultIncrement
	}
	if opts.RootDir == "" {
		opts.RootDir = DefaultRootDir
	}

	e := &Engine{
		opts:     opts,
		log:      zap.NewNop(),
		listenFd: -1,
		ready:    make(chan struct{}),
		timer:    timer.New(),
	}
	for _, dep := range deps {
		dep(e)
	}
	if e.routes == nil {
		e.routes = router.New()
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if e.monitor == nil {
		e.monitor = observability.NewMonitor()
	}
	e.listenEvents, e.connEvents = poller.Modes(opts.TrigMode)

	et := e.connEvents&poller.ET != 0
	e.conns = pools.NewConnectionPool(opts.InitCapacity, opts.Increment, opts.PoolLocked, func() *Connection {
		return newConnection(opts.RootDir, et, e.routes)
	})
	return e, nil
}

// Ready is closed once the listener accepts connections
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Addr returns the bound listen address, or "" before Ready
func (e *Engine) Addr() string {
	if p := e.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// Active returns the number of open client connections
func (e *Engine) Active() int64 { return e.active.Load() }

// Run listens and serves until ctx is cancelled. Queued jobs are drained
// and every connection is closed before it returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineStarted
	}
	e.ctx = ctx

	if err := e.setup(); err != nil {
		e.teardown()
		return err
	}
	defer e.shutdown()
	stop := context.AfterFunc(ctx, e.mailbox.wake)
	defer stop()

	e.log.Info("server listening",
		zap.String("addr", e.Addr()),
		zap.Int("trig_mode", e.opts.TrigMode),
		zap.Bool("listen_et", e.listenEvents&poller.ET != 0),
		zap.Bool("conn_et", e.connEvents&poller.ET != 0),
		zap.Duration("timeout", e.opts.Timeout),
		zap.Int("max_conns", e.opts.MaxConns),
		zap.String("root", e.opts.RootDir),
	)
	close(e.ready)
	return e.loop(ctx)
}

func (e *Engine) setup() error {
	var err error
	if e.mailbox, err = newMailbox(); err != nil {
		return err
	}
	p, err := poller.NewPoller(e.opts.MaxEvents)
	if err != nil {
		return err
	}
	e.poller = p
	if e.listenFd, err = listen(e.opts.Port, e.opts.OpenLinger); err != nil {
		return err
	}
	if err := e.poller.Add(e.listenFd, poller.In|e.listenEvents); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	if err := e.poller.Add(e.mailbox.fd, poller.In); err != nil {
		return fmt.Errorf("register mailbox: %w", err)
	}

	sa, err := unix.Getsockname(e.listenFd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	addr := sockaddrString(sa)
	e.addr.Store(&addr)

	e.registry = make([]*Connection, 1024)
	e.workers = pools.NewWorkerPool(e.opts.Workers, e.handle)
	return nil
}

func (e *Engine) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		timeout := -1
		if e.opts.Timeout > 0 {
			timeout = e.timer.NextTick()
		}
		e.metrics.QueueDepth.Set(float64(e.workers.Pending()))

		n, err := e.poller.Wait(timeout)
		if err != nil {
			return fmt.Errorf("epoll wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := e.poller.EventFD(i)
			events := e.poller.EventFlags(i)
			switch {
			case fd == e.listenFd:
				e.accept()
			case fd == e.mailbox.fd:
				e.drainMailbox()
			default:
				e.onEvent(fd, events)
			}
		}
	}
	return nil
}

func (e *Engine) onEvent(fd int, events uint32) {
	c := e.lookup(fd)
	if c == nil {
		e.log.Warn("event for unknown descriptor", zap.Int("fd", fd), zap.Uint32("events", events))
		_ = e.poller.Remove(fd)
		return
	}
	switch {
	case events&(poller.RDHup|poller.Hup|poller.Err) != 0:
		e.closeConn(c)
	case events&poller.In != 0:
		e.dispatch(c, jobRead)
	case events&poller.Out != 0:
		e.dispatch(c, jobWrite)
	default:
		e.log.Warn("unexpected event", zap.Int("fd", fd), zap.Uint32("events", events))
	}
}

func (e *Engine) accept() {
	for {
		fd, sa, err := unix.Accept4(e.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				e.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		if e.active.Load() >= int64(e.opts.MaxConns) {
			_, _ = unix.Write(fd, []byte(busyMessage))
			_ = unix.Close(fd)
			e.metrics.Rejected.Inc()
			e.log.Warn("server busy, connection refused", zap.String("peer", sockaddrString(sa)))
		} else {
			e.addClient(fd, sa)
		}
		if e.listenEvents&poller.ET == 0 {
			return
		}
	}
}

func (e *Engine) addClient(fd int, sa unix.Sockaddr) {
	setNoDelay(fd)
	e.nextGen++
	c := e.conns.Get()
	c.Init(fd, sockaddrString(sa), e.nextGen)

	if fd >= len(e.registry) {
		grown := make([]*Connection, max(fd+1, 2*len(e.registry)))
		copy(grown, e.registry)
		e.registry = grown
	}
	e.registry[fd] = c
	e.active.Add(1)
	e.accepted.Add(1)
	e.metrics.Accepted.Inc()
	e.metrics.ActiveConns.Inc()

	if e.opts.Timeout > 0 {
		e.timer.Add(fd, e.opts.Timeout, e.expire)
	}
	if err := e.poller.Add(fd, poller.In|e.connEvents); err != nil {
		e.log.Warn("register client failed", zap.Int("fd", fd), zap.Error(err))
		e.closeConn(c)
		return
	}
	e.log.Debug("client connected",
		zap.Int("fd", fd),
		zap.String("peer", c.Addr()),
		zap.Stringer("conn", c.ID()),
		zap.Int64("active", e.active.Load()),
	)
}

func (e *Engine) lookup(fd int) *Connection {
	if fd < 0 || fd >= len(e.registry) {
		return nil
	}
	return e.registry[fd]
}

// dispatch refreshes the idle deadline and queues work for c
func (e *Engine) dispatch(c *Connection, kind jobKind) {
	if e.opts.Timeout > 0 {
		e.timer.Adjust(c.fd, e.opts.Timeout)
	}
	c.inflight = true
	if !e.workers.Submit(job{kind: kind, conn: c, gen: c.gen}) {
		c.inflight = false
		e.closeConn(c)
	}
}

// expire is the idle timer callback. A connection with a job in flight is
// only marked: it is not idle, and its completion restarts the deadline.
func (e *Engine) expire(fd int) {
	c := e.lookup(fd)
	if c == nil {
		return
	}
	if c.inflight {
		c.expired = true
		return
	}
	e.log.Debug("client idle timeout", zap.Int("fd", fd), zap.Stringer("conn", c.ID()))
	e.metrics.Evicted.Inc()
	e.closeConn(c)
}

func (e *Engine) drainMailbox() {
	for _, cp := range e.mailbox.drain() {
		e.apply(cp)
	}
}

func (e *Engine) apply(cp completion) {
	c := cp.conn
	if c.Closed() || c.gen != cp.gen || e.lookup(c.fd) != c {
		return
	}
	c.inflight = false
	if c.expired {
		c.expired = false
		if e.opts.Timeout > 0 {
			e.timer.Add(c.fd, e.opts.Timeout, e.expire)
		}
	}

	var err error
	switch cp.action {
	case actionArmRead:
		err = e.poller.Modify(c.fd, poller.In|e.connEvents)
	case actionArmWrite:
		err = e.poller.Modify(c.fd, poller.Out|e.connEvents)
	case actionClose:
		e.closeConn(c)
	}
	if err != nil {
		e.log.Warn("re-arm failed", zap.Int("fd", c.fd), zap.Stringer("action", cp.action), zap.Error(err))
		e.closeConn(c)
	}
}

// closeConn releases everything tied to c. It is safe to call more than once.
func (e *Engine) closeConn(c *Connection) {
	if c.Closed() {
		return
	}
	fd := c.fd
	_ = e.poller.Remove(fd)
	e.timer.Remove(fd)
	if e.lookup(fd) == c {
		e.registry[fd] = nil
	}
	if !c.Close() {
		return
	}
	e.active.Add(-1)
	e.metrics.ActiveConns.Dec()
	e.metrics.Closed.Inc()
	e.log.Debug("client closed",
		zap.Int("fd", fd),
		zap.Stringer("conn", c.ID()),
		zap.Duration("age", time.Since(c.accepted)),
		zap.Int64("active", e.active.Load()),
	)
	e.conns.Put(c)
}

// handle runs on a worker goroutine
func (e *Engine) handle(j job) {
	var act action
	switch j.kind {
	case jobRead:
		act = e.onRead(j.conn)
	case jobWrite:
		act = e.onWrite(j.conn)
	}
	e.mailbox.post(completion{conn: j.conn, gen: j.gen, action: act})
}

func (e *Engine) onRead(c *Connection) action {
	n, err := c.Read()
	if n <= 0 && !errors.Is(err, unix.EAGAIN) {
		if err != nil {
			e.log.Debug("read failed", zap.Int("fd", c.fd), zap.Error(err))
		}
		return actionClose
	}
	return e.onProcess(c)
}

func (e *Engine) onProcess(c *Connection) action {
	start := time.Now()
	switch c.Process(e.ctx) {
	case ProcessIdle:
		return actionArmRead
	case ProcessBadRequest:
		e.metrics.BadRequests.Inc()
		e.log.Debug("bad request", zap.Int("fd", c.fd), zap.Stringer("conn", c.ID()))
	}

	if err := c.req.BodyErr(); err != nil {
		e.log.Debug("request body ignored", zap.String("path", c.req.Path()), zap.Error(err))
	}
	route := "static"
	if p := c.resp.Path(); e.routes.Reserved(p) {
		route = p
	}
	code := c.resp.Code()
	d := time.Since(start)
	e.metrics.ObserveResponse(route, code, d)
	e.monitor.Record(route, d, code >= 500)
	return actionArmWrite
}

func (e *Engine) onWrite(c *Connection) action {
	n, err := c.Write()
	if c.ToWriteBytes() == 0 {
		if c.KeepAlive() {
			return e.onProcess(c)
		}
		return actionClose
	}
	if n > 0 || errors.Is(err, unix.EAGAIN) {
		return actionArmWrite
	}
	e.log.Debug("write failed", zap.Int("fd", c.fd), zap.Error(err))
	return actionClose
}

func (e *Engine) shutdown() {
	e.log.Info("server shutting down", zap.Int64("active", e.active.Load()))
	e.workers.Close()
	for _, cp := range e.mailbox.drain() {
		cp.conn.inflight = false
	}
	for _, c := range e.registry {
		if c != nil {
			e.closeConn(c)
		}
	}
	e.timer.Clear()
	e.teardown()
}

func (e *Engine) teardown() {
	if e.listenFd >= 0 {
		_ = unix.Close(e.listenFd)
		e.listenFd = -1
	}
	if e.poller != nil {
		_ = e.poller.Close()
	}
	if e.mailbox != nil {
		_ = e.mailbox.close()
	}
}
