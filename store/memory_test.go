package store

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMemoryStore_RegisterLogin(t *testing.T) {
	s := NewMemoryStore(bcrypt.MinCost)
	ctx := context.Background()

	if got, err := s.Register(ctx, "alice", "13800000000", "secret"); err != nil || got != OutcomeOK {
		t.Fatalf("Register = %v, %v", got, err)
	}

	tests := []struct {
		name     string
		user     string
		password string
		want     Outcome
	}{
		{"by name", "alice", "secret", OutcomeOK},
		{"by phone", "13800000000", "secret", OutcomeOK},
		{"wrong password", "alice", "nope", OutcomeFailed},
		{"unknown user", "bob", "secret", OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Login(ctx, tt.user, tt.password)
			if err != nil {
				t.Fatalf("Login error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Login(%q) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestMemoryStore_Conflict(t *testing.T) {
	s := NewMemoryStore(bcrypt.MinCost)
	ctx := context.Background()
	s.Register(ctx, "alice", "1", "pw")

	if got, _ := s.Register(ctx, "alice", "2", "pw"); got != OutcomeConflict {
		t.Errorf("duplicate name = %v, want conflict", got)
	}
	if got, _ := s.Register(ctx, "carol", "1", "pw"); got != OutcomeConflict {
		t.Errorf("duplicate phone = %v, want conflict", got)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore(bcrypt.MinCost)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got, err := s.Register(ctx, "a", "1", "pw"); err == nil || got != OutcomeFailed {
		t.Errorf("Register on canceled ctx = %v, %v", got, err)
	}
	if got, err := s.Login(ctx, "a", "pw"); err == nil || got != OutcomeFailed {
		t.Errorf("Login on canceled ctx = %v, %v", got, err)
	}
}

func TestMemoryStore_ConcurrentRegister(t *testing.T) {
	s := NewMemoryStore(bcrypt.MinCost)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := s.Register(ctx, "same", "555", "pw")
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for r := range results {
		if r == OutcomeOK {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d registrations succeeded, want exactly 1", ok)
	}
}

func TestHasher(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := h.Check(hash, "secret"); !ok || err != nil {
		t.Errorf("Check(correct) = %v, %v", ok, err)
	}
	if ok, err := h.Check(hash, "other"); ok || err != nil {
		t.Errorf("Check(wrong) = %v, %v", ok, err)
	}
	if _, err := h.Check([]byte("not-a-hash"), "secret"); err == nil {
		t.Error("Check(malformed) should fail")
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeOK:       "ok",
		OutcomeConflict: "conflict",
		OutcomeFailed:   "failed",
		Outcome(42):     "unknown",
	} {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(o), o.String(), want)
		}
	}
}
