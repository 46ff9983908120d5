package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hupe1980/convopipe/internal/util"
)

// GenesisHash is the fixed sentinel used as PrevHash by the first event of
// every conversation's chain.
const GenesisHash = "genesis"

// Actor identifies who caused an audit event.
type Actor string

const (
	ActorSystem   Actor = "system"
	ActorBackend  Actor = "reasoning-backend"
	ActorOperator Actor = "operator"
)

// AuditEvent is one link of a conversation's tamper-evident chain.
// Hash = sha256(canonicalJSON(event without hash) || PrevHash). Events are
// append-only: never updated, never deleted.
type AuditEvent struct {
	EventID        string            `json:"event_id"`
	ConversationID string            `json:"conversation_id"`
	Actor          Actor             `json:"actor"`
	Action         string            `json:"action"`
	Timestamp      time.Time         `json:"timestamp"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
	PrevHash       string            `json:"prev_hash"`
	Hash           string            `json:"hash,omitempty"`
}

// ComputeHash derives the chain hash for the event over its canonical
// encoding, the same one fingerprint digests use. The stored hash field
// itself is excluded from the digested content.
func (e AuditEvent) ComputeHash() string {
	c := e
	c.Hash = ""
	body, err := util.MarshalCanonical(c)
	if err != nil {
		// Only unreachable marshal failures (no channels/funcs in the type).
		body = []byte(e.EventID)
	}
	sum := sha256.Sum256(append(body, []byte(e.PrevHash)...))
	return hex.EncodeToString(sum[:])
}

// Sealed reports whether the stored hash matches a recomputation from the
// event's content, i.e. the link has not been tampered with.
func (e AuditEvent) Sealed() bool {
	return e.Hash != "" && e.Hash == e.ComputeHash()
}
