// Package store verifies and records user credentials for the register
// and login routes.
package store

import (
	"context"
	"errors"
)

// Outcome is the result of a store operation
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeConflict
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Error definitions
var (
	ErrPoolExhausted = errors.New("store: no free connection")
	ErrPoolClosed    = errors.New("store: pool closed")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Store is the credential collaborator. Register reports OutcomeConflict
// when the name or phone is taken; Login reports OutcomeFailed for unknown
// users and wrong passwords. A non-nil error means the store itself failed.
type Store interface {
	Register(ctx context.Context, name, phone, password string) (Outcome, error)
	Login(ctx context.Context, name, password string) (Outcome, error)
	Close() error
}
