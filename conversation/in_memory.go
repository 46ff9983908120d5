package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/core"
)

// InMemoryStore is a process-local ConversationStore. Every returned
// conversation is a clone so callers can never mutate stored state except
// through Save.
type InMemoryStore struct {
	mu      sync.Mutex
	convs   map[string]*core.Conversation
	nowFunc func() time.Time
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string]*core.Conversation), nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (s *InMemoryStore) SetNowFunc(now func() time.Time) { s.nowFunc = now }

// LoadOrCreate implements core.ConversationStore. An idle conversation
// whose TTL elapsed is moved to StateExpired with the OutcomeExpired
// terminal marker before being returned; the expiry mutation bumps the
// stored version like any other write.
func (s *InMemoryStore) LoadOrCreate(_ context.Context, id string, ttl time.Duration) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		now := s.nowFunc().UTC()
		conv = core.NewConversation(id, ttl)
		conv.CreatedAt = now
		conv.UpdatedAt = now
		conv.ExpiresAt = now.Add(ttl)
		s.convs[id] = conv
		return conv.Clone(), nil
	}

	if !conv.Terminal() && conv.ExpiredAt(s.nowFunc()) {
		conv.CurrentState = core.StateExpired
		expired := core.OutcomeExpired
		conv.Outcome = &expired
		conv.Version++
		conv.UpdatedAt = s.nowFunc().UTC()
	}

	return conv.Clone(), nil
}

// Save implements core.ConversationStore. The write only succeeds when
// expectedVersion matches the stored version; the stored version then
// increments by one.
func (s *InMemoryStore) Save(_ context.Context, conv *core.Conversation, expectedVersion int64) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.convs[conv.ID]
	if !ok {
		return nil, &core.VersionConflictError{ConversationID: conv.ID, Expected: expectedVersion, Actual: 0}
	}
	if stored.Version != expectedVersion {
		return nil, &core.VersionConflictError{ConversationID: conv.ID, Expected: expectedVersion, Actual: stored.Version}
	}
	if stored.Terminal() {
		return nil, core.ErrConversationClosed
	}

	next := conv.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.nowFunc().UTC()
	s.convs[conv.ID] = next
	return next.Clone(), nil
}

var _ core.ConversationStore = (*InMemoryStore)(nil)
