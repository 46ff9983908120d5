package audit

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/util"
)

// InMemoryChain is a process-local AuditChain. Each conversation owns an
// independent chain rooted at the genesis sentinel.
type InMemoryChain struct {
	mu     sync.RWMutex
	chains map[string][]core.AuditEvent
}

// NewInMemoryChain constructs an empty in-memory audit chain.
func NewInMemoryChain() *InMemoryChain {
	return &InMemoryChain{chains: make(map[string][]core.AuditEvent)}
}

// Append implements core.AuditChain. The stored copy gets its EventID,
// Timestamp, PrevHash and Hash filled in; the caller's expectedPrevHash
// must still be last-in-chain or a *core.ChainConflictError is returned.
func (c *InMemoryChain) Append(_ context.Context, ev core.AuditEvent, expectedPrevHash string) (core.AuditEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.headLocked(ev.ConversationID)
	if expectedPrevHash != head {
		return core.AuditEvent{}, &core.ChainConflictError{
			ConversationID: ev.ConversationID,
			ExpectedPrev:   expectedPrevHash,
			ActualPrev:     head,
		}
	}

	if ev.EventID == "" {
		ev.EventID = util.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.PrevHash = head
	ev.Hash = ev.ComputeHash()

	c.chains[ev.ConversationID] = append(c.chains[ev.ConversationID], ev)
	return ev, nil
}

// Head returns the hash of the last event, or the genesis sentinel.
func (c *InMemoryChain) Head(_ context.Context, conversationID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headLocked(conversationID), nil
}

func (c *InMemoryChain) headLocked(conversationID string) string {
	chain := c.chains[conversationID]
	if len(chain) == 0 {
		return core.GenesisHash
	}
	return chain[len(chain)-1].Hash
}

// Events returns a defensive copy of the ordered chain.
func (c *InMemoryChain) Events(_ context.Context, conversationID string) ([]core.AuditEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chain := c.chains[conversationID]
	out := make([]core.AuditEvent, len(chain))
	copy(out, chain)
	for i := range out {
		if out[i].Detail != nil {
			d := make(map[string]string, len(out[i].Detail))
			for k, v := range out[i].Detail {
				d[k] = v
			}
			out[i].Detail = d
		}
	}
	return out, nil
}

// VerifyChain recomputes every hash and checks the prev-hash linkage. Any
// mismatch at position i invalidates the chain from i onward; the returned
// index is -1 when the chain is intact.
func (c *InMemoryChain) VerifyChain(ctx context.Context, conversationID string) (bool, int, error) {
	events, err := c.Events(ctx, conversationID)
	if err != nil {
		return false, 0, err
	}
	return Verify(events)
}

// Verify checks an exported chain independently of any store. It is the
// formula compliance readers re-run: linkage against the previous hash
// (genesis sentinel first) and recomputation of every content hash.
func Verify(events []core.AuditEvent) (bool, int, error) {
	prev := core.GenesisHash
	for i, ev := range events {
		if ev.PrevHash != prev {
			return false, i, nil
		}
		if !ev.Sealed() {
			return false, i, nil
		}
		prev = ev.Hash
	}
	return true, -1, nil
}

var _ core.AuditChain = (*InMemoryChain)(nil)
