package fingerprint

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/core"
)

// InMemoryStore is a process-local FingerprintStore guarded by a mutex,
// giving the atomic check-then-set the contract requires. Best suited for
// tests and single-instance deployments; multi-instance deployments need a
// shared implementation with the same Admit semantics.
type InMemoryStore struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	nowFunc func() time.Time
}

// NewInMemoryStore constructs an empty in-memory fingerprint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{expiry: make(map[string]time.Time), nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (s *InMemoryStore) SetNowFunc(now func() time.Time) { s.nowFunc = now }

// Admit implements core.FingerprintStore. The first call for a fingerprint
// within the TTL window returns true; every later call returns false until
// the window elapses.
func (s *InMemoryStore) Admit(_ context.Context, fp string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if exp, ok := s.expiry[fp]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[fp] = now.Add(ttl)
	return true, nil
}

// Release withdraws an admission so a later attempt may re-admit.
func (s *InMemoryStore) Release(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expiry, fp)
	return nil
}

var _ core.FingerprintStore = (*InMemoryStore)(nil)
