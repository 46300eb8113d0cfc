package store

import (
	"context"
	"sync"
)

type memUser struct {
	phone string
	hash  []byte
}

// MemoryStore keeps users in process memory
type MemoryStore struct {
	hasher Hasher

	mu      sync.RWMutex
	byName  map[string]*memUser
	byPhone map[string]string
}

// NewMemoryStore creates an empty store hashing with the given bcrypt cost
func NewMemoryStore(cost int) *MemoryStore {
	return &MemoryStore{
		hasher:  Hasher{Cost: cost},
		byName:  make(map[string]*memUser),
		byPhone: make(map[string]string),
	}
}

func (s *MemoryStore) Register(ctx context.Context, name, phone, password string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return OutcomeFailed, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[name]; taken {
		return OutcomeConflict, nil
	}
	if _, taken := s.byPhone[phone]; taken {
		return OutcomeConflict, nil
	}
	s.byName[name] = &memUser{phone: phone, hash: hash}
	s.byPhone[phone] = name
	return OutcomeOK, nil
}

// Login accepts either the user name or the phone number as name
func (s *MemoryStore) Login(ctx context.Context, name, password string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}

	s.mu.RLock()
	u, ok := s.byName[name]
	if !ok {
		if owner, byPhone := s.byPhone[name]; byPhone {
			u, ok = s.byName[owner]
		}
	}
	s.mu.RUnlock()
	if !ok {
		return OutcomeFailed, nil
	}

	match, err := s.hasher.Check(u.hash, password)
	if err != nil {
		return OutcomeFailed, err
	}
	if !match {
		return OutcomeFailed, nil
	}
	return OutcomeOK, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
