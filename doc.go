/*
Package reactorserver is a static-file HTTP/1.1 server built on a single
epoll reactor goroutine and a fixed pool of worker goroutines.

The reactor owns the listening socket, the poller, the idle-timeout heap and
the connection registry. Workers read, parse and build responses for ready
connections and report back through an eventfd mailbox, so every poller
update and every close happens on the reactor goroutine.

Files are served from a document root by mapping them into memory and
writing header and body with writev. Two reserved paths, /register and
/login, are answered from a credential store instead of the file system.

Quick Start

	webserver conf/server.toml

Modules

  - app: process wiring, admin listener and route handlers
  - config: TOML file, REACTOR_* environment overrides, live reload
  - logging: zap logger with rotating file output
  - store: credential store (memory or MySQL) and its connection pool
  - core: reactor engine, connections and mailbox
  - core/buffer: growable read/write buffer with readv spill
  - core/http: request parser and mmap-backed responses
  - core/poller: epoll wrapper and trigger modes
  - core/timer: idle-timeout min-heap
  - core/pools: worker pool, connection object pool, byte pool, GC tuning
  - core/router: reserved-route table
  - core/middleware: recovery, logging and rate limiting for routes
  - core/observability: Prometheus metrics and per-route latency monitor
*/
package reactorserver
