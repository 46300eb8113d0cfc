package core

import "errors"

const (
	// listenBacklog is the accept queue length of the listening socket
	listenBacklog = 16

	// writeThreshold keeps a level-triggered writer looping while more than
	// this many bytes remain
	writeThreshold = 10240

	// busyMessage is written to sockets refused at capacity
	busyMessage = "Server busy!"
)

// Defaults applied by NewEngine to zero Options fields
const (
	DefaultMaxConns     = 65536
	DefaultInitCapacity = 1024
	DefaultIncrement    = 128
	DefaultRootDir      = "./resources"
)

// Error definitions
var (
	ErrInvalidPort    = errors.New("core: port must be within 1024-65535")
	ErrEngineStarted  = errors.New("core: engine already started")
	ErrInvalidOptions = errors.New("core: invalid engine options")
)
