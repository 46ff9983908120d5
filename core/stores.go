package core

import (
	"context"
	"time"
)

// FingerprintStore is the content-addressed at-most-once admission store.
// It is used twice with independent TTLs: inbound event admission and the
// outbound send-guard.
type FingerprintStore interface {
	// Admit atomically returns true only the first time a fingerprint is
	// admitted within its TTL window. Concurrent callers must never both
	// observe true. An unreachable backing store yields
	// ErrStoreUnavailable, never a permissive default.
	Admit(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)

	// Release withdraws an admission so a later attempt may re-admit the
	// fingerprint. Used by the dispatcher when a send fails retryably.
	Release(ctx context.Context, fingerprint string) error
}

// ConversationStore persists versioned conversations with conditional
// writes as the sole concurrency-control mechanism.
type ConversationStore interface {
	// LoadOrCreate returns the stored conversation or creates a fresh one
	// with the given inactivity TTL. A stored conversation whose TTL has
	// elapsed is surfaced (and persisted) in StateExpired with the
	// OutcomeExpired terminal marker.
	LoadOrCreate(ctx context.Context, id string, ttl time.Duration) (*Conversation, error)

	// Save commits conv only if expectedVersion matches the stored
	// version, then bumps the stored version by one and returns the saved
	// snapshot. A lost race yields *VersionConflictError; callers reload
	// and recompute, never merge.
	Save(ctx context.Context, conv *Conversation, expectedVersion int64) (*Conversation, error)
}

// AuditChain is the append-only hash-linked event log.
type AuditChain interface {
	// Append commits ev only if expectedPrevHash still matches the chain
	// head for ev.ConversationID, computing PrevHash/Hash on the stored
	// copy. A lost race yields *ChainConflictError.
	Append(ctx context.Context, ev AuditEvent, expectedPrevHash string) (AuditEvent, error)

	// Head returns the hash of the last event for the conversation, or
	// GenesisHash for an empty chain.
	Head(ctx context.Context, conversationID string) (string, error)

	// Events returns the ordered chain for export / compliance readers.
	Events(ctx context.Context, conversationID string) ([]AuditEvent, error)

	// VerifyChain recomputes every hash from content. It returns false
	// plus the index of the first broken link when the chain has been
	// tampered with; the index is -1 on success.
	VerifyChain(ctx context.Context, conversationID string) (bool, int, error)
}

// AbuseGate is the shared sliding-window flood counter. A gate error is
// handled fail-open by the caller: a missed flood check is lower-severity
// than blocking legitimate traffic.
type AbuseGate interface {
	Check(ctx context.Context, conversationID string) (flooded bool, err error)
}

// Transport is the outbound boundary. Implementations render the concrete
// wire payload per ContentShape and talk to the messaging provider; both
// concerns are outside this module. Failures must be classified as
// *DispatchError so the dispatcher can tell retryable from permanent.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
