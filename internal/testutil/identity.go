package testutil

import (
	"sync"

	"dtb-go/internal/dtb"
)

// StubIdentity reports a settable machine identity. Safe for concurrent use.
type StubIdentity struct {
	mu  sync.Mutex
	cur dtb.Identity
}

// NewStubIdentity creates a StubIdentity for the given computer and account.
func NewStubIdentity(computer, account string) *StubIdentity {
	return &StubIdentity{cur: dtb.Identity{Computer: computer, Account: account}}
}

func (s *StubIdentity) Current() (dtb.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

// Set switches to another machine, as if the next call ran elsewhere.
func (s *StubIdentity) Set(computer, account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = dtb.Identity{Computer: computer, Account: account}
}

// Compile-time check
var _ dtb.IdentitySource = (*StubIdentity)(nil)
